package probe

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"

	"github.com/carvectf/canary/config"
	"github.com/carvectf/canary/template"
)

// maxMessageBytes bounds the Shell evaluator's reported message
// (spec.md §4.1: "truncated to 256 bytes").
const maxMessageBytes = 256

// ShellEvaluator runs Spec.Script inside an ephemeral nix-shell sandbox
// that provides Spec.Packages on PATH, with the target's first resolved
// A record passed as $1 (spec.md §9 open question on {{ ip }}).
type ShellEvaluator struct {
	Spec config.ShellSpec
}

func (e *ShellEvaluator) Evaluate(ctx context.Context, hostname string, creds Credentials) Outcome {
	return withTimeout(ctx, e.Spec.Timeout, func(ctx context.Context) Outcome {
		return e.evaluate(ctx, hostname, creds)
	})
}

func (e *ShellEvaluator) evaluate(ctx context.Context, hostname string, creds Credentials) Outcome {
	script, err := template.Resolve("shell", e.Spec.Script, template.Values{
		TeamName:       creds.TeamName,
		BoxName:        creds.BoxName,
		IP:             hostname,
		Username:       creds.Username,
		Password:       creds.Password,
		HasCredentials: creds.Available,
	})
	if err != nil {
		return Outcome{Success: false, Message: "no creds"}
	}

	ip := firstResolvedIP(hostname)

	args := []string{"--pure", "--run", "bash -c " + shellQuote(script) + " -- " + ip}
	if len(e.Spec.Packages) > 0 {
		args = append([]string{"-p", strings.Join(e.Spec.Packages, " ")}, args...)
	}

	cmd := exec.CommandContext(ctx, "nix-shell", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err = cmd.Run()
	message := lastLine(out.Bytes())

	if ctx.Err() != nil {
		return Outcome{Success: false, Message: "timeout"}
	}
	if err != nil {
		return Outcome{Success: false, Message: message}
	}
	return Outcome{Success: true, Message: message}
}

// firstResolvedIP resolves hostname to its first A record; if resolution
// fails, the hostname itself is passed through as $1.
func firstResolvedIP(hostname string) string {
	ips, err := net.LookupIP(hostname)
	if err != nil || len(ips) == 0 {
		return hostname
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ips[0].String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func lastLine(combined []byte) string {
	trimmed := bytes.TrimRight(combined, "\n")
	if len(trimmed) > maxMessageBytes {
		trimmed = trimmed[len(trimmed)-maxMessageBytes:]
	}
	lines := bytes.Split(trimmed, []byte("\n"))
	last := lines[len(lines)-1]
	if len(last) == 0 && len(combined) == 0 {
		return ""
	}
	return fmt.Sprintf("%s", last)
}
