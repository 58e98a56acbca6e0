// Package retention schedules the periodic sweeps implied by spec §6's
// activity_log.retention_count and snapshot.retention_days settings:
// something has to actually enforce those numbers over time. It runs a
// single cron.Cron (as github.com/marcus-qen/legator/internal/controlplane/jobs
// drives its command scheduler) with one entry per sweep, each sweep
// independent so a panic or slow run in one never blocks the other.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/subagentctl/subagentctl/logwriter"
	"github.com/subagentctl/subagentctl/snapshot"
	"github.com/subagentctl/subagentctl/telemetry"
)

// Sweeper periodically prunes old activity logs and snapshots according to
// the retention settings in config.Config (spec §6).
type Sweeper struct {
	cron *cron.Cron
	log  telemetry.Logger
}

// Option configures a Sweeper at construction.
type Option func(*Sweeper)

// WithLogger injects a telemetry.Logger for sweep-error reporting.
func WithLogger(l telemetry.Logger) Option {
	return func(s *Sweeper) { s.log = l }
}

// New builds a Sweeper that, once Start is called, prunes logWriter down
// to logRetentionCount files every sweepEvery and removes snapshots under
// snapMgr older than snapRetentionDays every sweepEvery. A zero
// logRetentionCount or snapRetentionDays disables that sweep.
func New(logWriter *logwriter.Writer, logRetentionCount int, snapMgr *snapshot.Manager, snapRetentionDays int, sweepEvery time.Duration, opts ...Option) *Sweeper {
	s := &Sweeper{
		cron: cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		log:  telemetry.NoopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}

	spec := everySpec(sweepEvery)
	if logWriter != nil && logRetentionCount > 0 {
		if _, err := s.cron.AddFunc(spec, func() {
			if _, err := logWriter.PruneOldest(logRetentionCount); err != nil {
				s.log.Error(context.Background(), "retention: prune logs failed", "error", err)
			}
		}); err != nil {
			s.log.Error(context.Background(), "retention: schedule log prune failed", "error", err)
		}
	}
	if snapMgr != nil && snapRetentionDays > 0 {
		if _, err := s.cron.AddFunc(spec, func() {
			cutoff := time.Now().Add(-time.Duration(snapRetentionDays) * 24 * time.Hour)
			if _, err := snapMgr.Cleanup(cutoff); err != nil {
				s.log.Error(context.Background(), "retention: cleanup snapshots failed", "error", err)
			}
		}); err != nil {
			s.log.Error(context.Background(), "retention: schedule snapshot cleanup failed", "error", err)
		}
	}
	return s
}

// Start begins running scheduled sweeps in the background.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the scheduler and waits for any in-flight sweep to finish.
func (s *Sweeper) Stop() { <-s.cron.Stop().Done() }

// everySpec renders d as a cron "@every" spec, the simplest way to express
// a fixed-interval job with robfig/cron/v3.
func everySpec(d time.Duration) string {
	if d <= 0 {
		d = time.Hour
	}
	return "@every " + d.String()
}
