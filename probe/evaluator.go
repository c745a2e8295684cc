// Package probe implements the four check-family evaluators of spec.md
// §4.1: Http, Icmp, Ssh, Shell. Every evaluator shares one contract —
// given a template-resolved ProbeSpec and a resolved hostname, produce a
// ProbeOutcome within a bounded wall-clock budget — mirroring the
// teacher's validator.Validate signature.
package probe

import (
	"context"
	"time"

	"github.com/carvectf/canary/config"
)

// DefaultTimeout is used when a ProbeSpec doesn't set its own timeout
// (spec.md §4.1).
const DefaultTimeout = 10 * time.Second

// Outcome is one probe's pass/fail verdict.
type Outcome struct {
	Success bool
	Message string
}

// Evaluator executes one probe against one resolved hostname.
type Evaluator interface {
	// Evaluate must not block past the spec's timeout (or DefaultTimeout);
	// on budget exhaustion it returns Outcome{false, "timeout"}.
	Evaluate(ctx context.Context, hostname string, creds Credentials) Outcome
}

// Credentials carries per-target template context: the team/box names
// used to resolve {{ team_name }}/{{ box_name }} in spec fields like an
// HTTP regex (spec.md §4.2, §8's literal `regex:"{{ team_name }}"`
// example), plus username/password/key already resolved by the caller
// (target.CredentialSource). Evaluators that don't need credentials or
// templated fields ignore the parts they don't use.
type Credentials struct {
	TeamName string
	BoxName  string

	Username   string
	Password   string
	PrivateKey []byte
	Available  bool
}

// NewEvaluator selects the Evaluator matching the ProbeSpec variant
// (spec.md §9: "Evaluators are selected by match on the variant; no
// dynamic dispatch table is required").
func NewEvaluator(spec config.ProbeSpec) Evaluator {
	switch s := spec.(type) {
	case config.HttpSpec:
		return &HttpEvaluator{Spec: s}
	case config.IcmpSpec:
		return &IcmpEvaluator{Spec: s}
	case config.SshSpec:
		return &SshEvaluator{Spec: s}
	case config.ShellSpec:
		return &ShellEvaluator{Spec: s}
	default:
		return unsupportedEvaluator{}
	}
}

type unsupportedEvaluator struct{}

func (unsupportedEvaluator) Evaluate(context.Context, string, Credentials) Outcome {
	return Outcome{Success: false, Message: "unsupported probe spec"}
}

// withTimeout runs fn with a bounded context and converts
// context.DeadlineExceeded into the standard "timeout" outcome.
func withTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) Outcome) Outcome {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan Outcome, 1)
	go func() {
		resultCh <- fn(ctx)
	}()

	select {
	case res := <-resultCh:
		return res
	case <-ctx.Done():
		return Outcome{Success: false, Message: "timeout"}
	}
}
