package probe

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/crypto/ssh"

	"github.com/carvectf/canary/config"
	"github.com/carvectf/canary/template"
)

// SshEvaluator authenticates against an SSH server and nothing more: it
// never opens a session or executes a command (spec.md §4.1).
type SshEvaluator struct {
	Spec config.SshSpec
}

func (e *SshEvaluator) Evaluate(ctx context.Context, hostname string, creds Credentials) Outcome {
	return withTimeout(ctx, e.Spec.Timeout, func(ctx context.Context) Outcome {
		return e.evaluate(ctx, hostname, creds)
	})
}

func (e *SshEvaluator) evaluate(ctx context.Context, hostname string, creds Credentials) Outcome {
	values := template.Values{
		TeamName:       creds.TeamName,
		BoxName:        creds.BoxName,
		IP:             hostname,
		Username:       creds.Username,
		Password:       creds.Password,
		HasCredentials: creds.Available,
	}

	username, err := template.Resolve("ssh", e.Spec.Username, values)
	if err != nil {
		return Outcome{Success: false, Message: "no creds"}
	}
	password, err := template.Resolve("ssh", e.Spec.Password, values)
	if err != nil {
		return Outcome{Success: false, Message: "no creds"}
	}
	privateKey := e.Spec.PrivateKey
	if username == "" && creds.Available {
		username = creds.Username
		password = creds.Password
		privateKey = creds.PrivateKey
	}

	var methods []ssh.AuthMethod
	if len(privateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(privateKey)
		if err == nil {
			methods = append(methods, ssh.PublicKeys(signer))
		}
	}
	if password != "" {
		methods = append(methods, ssh.Password(password))
	}
	if len(methods) == 0 {
		return Outcome{Success: false, Message: "no creds"}
	}

	port := e.Spec.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(hostname, fmt.Sprintf("%d", port))

	clientConfig := &ssh.ClientConfig{
		User:            username,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // targets are intentionally weakly configured
	}

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Outcome{Success: false, Message: "connect fail"}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		return Outcome{Success: false, Message: "auth fail"}
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	return Outcome{Success: true, Message: "ok"}
}
