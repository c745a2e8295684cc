// Package runner implements the C5 check runner: for one firing of one
// check, fan out target resolution and probe evaluation with bounded
// concurrency, reduce to one event per team, and hand each event to the
// event log client (spec.md §4.5).
package runner

import (
	"context"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carvectf/canary/config"
	"github.com/carvectf/canary/eventlog"
	"github.com/carvectf/canary/internal/metrics"
	"github.com/carvectf/canary/probe"
	"github.com/carvectf/canary/target"
)

// maxInflightDefault bounds concurrent in-flight probes for one team within
// a firing. Teams are probed in parallel with no shared bound, so one
// firing can have up to len(Teams)*MaxInflight probes in flight.
const maxInflightDefault = 32

// maxMessageBytes bounds the concatenated failure message (spec.md §4.5).
const maxMessageBytes = 256

// EventLog is the subset of eventlog.Client the runner needs, so tests
// can substitute a fake.
type EventLog interface {
	Append(ctx context.Context, competition, check, team string, alignedTsMs int64, fields eventlog.Fields) (string, error)
}

// CheckRunner executes one firing of one CheckDef.
type CheckRunner struct {
	Competition  config.Competition
	Check        config.CheckDef
	Credentials  target.CredentialSource
	Log          EventLog
	Metrics      *metrics.Metrics
	MaxInflight  int
}

// New builds a CheckRunner with defaults filled in.
func New(comp config.Competition, check config.CheckDef, creds target.CredentialSource, log EventLog, m *metrics.Metrics) *CheckRunner {
	return &CheckRunner{
		Competition: comp,
		Check:       check,
		Credentials: creds,
		Log:         log,
		Metrics:     m,
		MaxInflight: maxInflightDefault,
	}
}

// Run executes one firing at alignedTsMs: targets are resolved per team
// (spec.md §4.3), probed with concurrency bounded per team, reduced
// per team (spec.md §4.5), and appended to the event log.
func (r *CheckRunner) Run(ctx context.Context, alignedTsMs int64) {
	start := time.Now()
	defer func() {
		if r.Metrics != nil {
			r.Metrics.FiringDuration.WithLabelValues(r.Check.Name).Observe(time.Since(start).Seconds())
		}
	}()

	var wg errgroup.Group
	for _, team := range r.Competition.Teams {
		team := team
		wg.Go(func() error {
			r.runTeam(ctx, team, alignedTsMs)
			return nil
		})
	}
	_ = wg.Wait()

	if r.Metrics != nil {
		r.Metrics.LastSuccess.WithLabelValues(r.Check.Name).Set(float64(time.Now().Unix()))
	}
}

func (r *CheckRunner) runTeam(ctx context.Context, team config.Team, alignedTsMs int64) {
	targets := target.Resolve(r.Competition, r.Check, team)
	if len(targets) == 0 {
		// spec.md §3 invariant 5 / §4.5: zero targets means zero events,
		// not a failure event.
		return
	}

	outcomes := r.probeAll(ctx, targets)
	event := reduce(targets, outcomes)

	fields := eventlog.Fields{
		Result:  boolToResult(event.success),
		Team:    team.Name,
		Box:     event.box,
		Message: event.message,
	}

	id, err := r.Log.Append(ctx, r.Competition.Name, r.Check.Name, team.Name, alignedTsMs, fields)
	if err != nil {
		if r.Metrics != nil {
			r.Metrics.EventsDropped.WithLabelValues(r.Check.Name).Inc()
		}
		log.Printf("event DROPPED: competition=%q check=%q team=%q aligned_ts_ms=%d err=%q",
			r.Competition.Name, r.Check.Name, team.Name, alignedTsMs, err)
		return
	}
	log.Printf("event WRITTEN: competition=%q check=%q team=%q aligned_ts_ms=%d entry_id=%q result=%s",
		r.Competition.Name, r.Check.Name, team.Name, alignedTsMs, id, fields.Result)
}

// probeAll evaluates one team's targets with at most MaxInflight of them
// in flight, returning outcomes in Target.Index order (spec.md §5: "probes
// are issued in Target order but complete in arbitrary order; reduction
// re-orders by Target index").
func (r *CheckRunner) probeAll(ctx context.Context, targets []target.Target) []probe.Outcome {
	outcomes := make([]probe.Outcome, len(targets))

	limit := r.MaxInflight
	if limit <= 0 {
		limit = maxInflightDefault
	}

	var wg errgroup.Group
	wg.SetLimit(limit)

	evaluator := probe.NewEvaluator(r.Check.Spec)

	for i, t := range targets {
		i, t := i, t
		wg.Go(func() error {
			username, password, key, ok := r.Credentials.Lookup(t.Team, t.Box)
			creds := probe.Credentials{
				TeamName:   t.Team.Name,
				BoxName:    t.Box.Name,
				Username:   username,
				Password:   password,
				PrivateKey: key,
				Available:  ok,
			}
			outcomes[i] = evaluator.Evaluate(ctx, t.Hostname, creds)
			return nil
		})
	}
	_ = wg.Wait()

	return outcomes
}

type reduced struct {
	success bool
	box     string
	message string
}

// reduce implements spec.md §4.5 step 3: success iff any box succeeded;
// box/message come from the first-succeeding target in Target order, or
// from the concatenation of failure messages (truncated to 256 bytes)
// when none succeeded.
func reduce(targets []target.Target, outcomes []probe.Outcome) reduced {
	for i, t := range targets {
		if outcomes[i].Success {
			return reduced{success: true, box: t.Box.Name, message: outcomes[i].Message}
		}
	}

	var parts []string
	for i, t := range targets {
		parts = append(parts, t.Box.Name+": "+outcomes[i].Message)
	}
	message := strings.Join(parts, " | ")
	if len(message) > maxMessageBytes {
		message = message[:maxMessageBytes]
	}
	return reduced{success: false, box: "", message: message}
}

func boolToResult(success bool) string {
	if success {
		return "1"
	}
	return "0"
}
