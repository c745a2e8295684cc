// Package supervisor implements the C7 supervisor: owns one scheduler per
// CheckDef for one Competition, exposes /api/health, and propagates
// shutdown (spec.md §4.7).
package supervisor

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/carvectf/canary/config"
	"github.com/carvectf/canary/eventlog"
	"github.com/carvectf/canary/internal/metrics"
	"github.com/carvectf/canary/probe"
	"github.com/carvectf/canary/runner"
	"github.com/carvectf/canary/scheduler"
	"github.com/carvectf/canary/target"
)

// wedgeFactor: a check is "wedged" if no firing has completed within
// wedgeFactor*interval of any given check (spec.md §4.7).
const wedgeFactor = 3

// Supervisor owns one Scheduler per CheckDef in one Competition.
type Supervisor struct {
	competition config.Competition
	log         *eventlog.Client
	metrics     *metrics.Metrics
	replicaID   string

	schedulers []*scheduler.Scheduler

	wg sync.WaitGroup
}

// New builds a Supervisor wired to the given Competition, event log, and
// credential source. It does not start any schedulers; call Start.
func New(comp config.Competition, logClient *eventlog.Client, creds target.CredentialSource, reg prometheus.Registerer) *Supervisor {
	m := metrics.New(reg)
	s := &Supervisor{
		competition: comp,
		log:         logClient,
		metrics:     m,
		replicaID:   uuid.NewString(),
	}

	for _, check := range comp.Checks {
		r := runner.New(comp, check, creds, logClient, m)
		sched := scheduler.New(check.Name, check.Interval, r, m)
		s.schedulers = append(s.schedulers, sched)
	}
	return s
}

// Start launches every scheduler and blocks until ctx is cancelled, then
// drains each scheduler up to one probe timeout before returning
// (spec.md §5).
func (s *Supervisor) Start(ctx context.Context) {
	log.Printf("supervisor starting: competition=%q replica=%q checks=%d",
		s.competition.Name, s.replicaID, len(s.schedulers))

	for _, sched := range s.schedulers {
		sched := sched
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sched.Run(ctx)
		}()
	}

	<-ctx.Done()

	for _, sched := range s.schedulers {
		sched.Drain(drainTimeout(s.competition))
	}
	s.wg.Wait()
	log.Printf("supervisor stopped: competition=%q replica=%q", s.competition.Name, s.replicaID)
}

// drainTimeout uses the longest per-check probe timeout as the maximum
// wait, defaulting to probe.DefaultTimeout (spec.md §5: "wait up to one
// probe-timeout for outstanding runners to finish").
func drainTimeout(comp config.Competition) time.Duration {
	longest := probe.DefaultTimeout
	for _, check := range comp.Checks {
		if t := specTimeout(check.Spec); t > longest {
			longest = t
		}
	}
	return longest
}

func specTimeout(spec config.ProbeSpec) time.Duration {
	switch s := spec.(type) {
	case config.HttpSpec:
		return s.Timeout
	case config.IcmpSpec:
		return s.Timeout
	case config.SshSpec:
		return s.Timeout
	case config.ShellSpec:
		return s.Timeout
	default:
		return 0
	}
}

// Healthy reports whether the log store is reachable and no scheduler is
// wedged (spec.md §4.7).
func (s *Supervisor) Healthy(ctx context.Context) error {
	if err := s.log.Health(ctx); err != nil {
		return err
	}
	now := time.Now()
	for i, sched := range s.schedulers {
		completedAt := sched.LastFiringCompletedAt()
		if completedAt.IsZero() {
			continue // hasn't had time to fire yet
		}
		check := s.competition.Checks[i]
		if now.Sub(completedAt) > wedgeFactor*check.Interval {
			return wedgedError{checkName: check.Name}
		}
	}
	return nil
}

type wedgedError struct{ checkName string }

func (e wedgedError) Error() string { return "scheduler wedged: check " + e.checkName }

// HealthHandler implements GET /api/health (spec.md §6): 200 when
// Healthy returns nil, 500 otherwise.
func (s *Supervisor) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Healthy(r.Context()); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
