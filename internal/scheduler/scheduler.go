// Package scheduler runs the daily reset tick: at local midnight, every
// open daily-stats interval is closed into yesterday's bucket and
// reopened for today.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"smartfarm/shared"
)

// Accumulator is the subset of stats.Accumulator the scheduler depends
// on, kept narrow so the scheduler is testable against a fake.
type Accumulator interface {
	SweepMidnight(ctx context.Context, now time.Time) (int, error)
}

// Scheduler owns the cron job that fires the daily reset.
type Scheduler struct {
	cron  *cron.Cron
	stats Accumulator
}

// New constructs a Scheduler over stats, using cron's local-time parser
// so "@midnight" fires at the server's local 00:00:00.
func New(stats Accumulator) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		stats: stats,
	}
}

// Start registers the midnight job and starts the cron runner. Call Stop
// to shut it down; ctx cancellation alone does not stop the underlying
// cron goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc("@midnight", func() {
		s.runSweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("registering daily reset job: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron runner, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runSweep(ctx context.Context) {
	now := time.Now()
	swept, err := s.stats.SweepMidnight(ctx, now)
	if err != nil {
		shared.DebugError(fmt.Errorf("daily reset sweep: %w", err))
		return
	}
	shared.DebugPrint("daily reset swept %d open cursor(s) at %s", swept, now.Format(time.RFC3339))
}

// RunOnce runs a single sweep immediately, bypassing the cron schedule --
// used by the admin surface to trigger a reset on demand and by tests.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	return s.stats.SweepMidnight(ctx, time.Now())
}
