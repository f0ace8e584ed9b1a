package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Runner is the unit the scheduler drives once per day. *Job satisfies it.
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler triggers the reporting job once per day at a fixed UTC wall-clock
// time. A failed run is logged and the next day's run stays scheduled; the job
// itself is idempotent per day, so a manual re-run after a failure is safe.
type Scheduler struct {
	job        Runner
	runAt      string // "HH:MM", UTC
	runOnStart bool

	now func() time.Time
}

// NewScheduler validates runAt ("HH:MM", 24h, UTC) and builds a scheduler.
func NewScheduler(job Runner, runAt string, runOnStart bool) (*Scheduler, error) {
	if _, err := time.Parse("15:04", runAt); err != nil {
		return nil, fmt.Errorf("invalid reporting run_at %q (want HH:MM): %w", runAt, err)
	}
	return &Scheduler{
		job:        job,
		runAt:      runAt,
		runOnStart: runOnStart,
		now:        time.Now,
	}, nil
}

// Start blocks until ctx is cancelled, firing the job at each day's run time.
func (s *Scheduler) Start(ctx context.Context) error {
	slog.Info("[Reporting] Scheduler started", "run_at_utc", s.runAt, "run_on_start", s.runOnStart)

	if s.runOnStart {
		s.runOnce(ctx)
	}

	for {
		wait := time.Until(s.nextRun())
		timer := time.NewTimer(wait)
		slog.Info("[Reporting] Next run scheduled", "in", wait.Round(time.Second))

		select {
		case <-timer.C:
			s.runOnce(ctx)
		case <-ctx.Done():
			timer.Stop()
			slog.Info("[Reporting] Scheduler stopping (context cancelled)")
			return nil
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if err := s.job.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("[Reporting] Run failed", "error", err)
	}
}

// nextRun returns the next occurrence of runAt in UTC, strictly after now.
func (s *Scheduler) nextRun() time.Time {
	now := s.now().UTC()
	at, _ := time.Parse("15:04", s.runAt)

	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
