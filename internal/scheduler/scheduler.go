package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"lenstracker-reminders/internal/sweep"
)

// Sweeper runs one reminder sweep.
type Sweeper interface {
	RunSweep(ctx context.Context, now time.Time) (sweep.Stats, error)
}

// SweepScheduler triggers sweeps on a cron schedule.
type SweepScheduler struct {
	cronEngine *cron.Cron
	sweeper    Sweeper
	log        logrus.FieldLogger
	spec       string
	now        func() time.Time
}

// New creates a scheduler for the given cron spec, e.g. "*/30 * * * *".
// Schedules are evaluated in UTC.
func New(sweeper Sweeper, spec string, log logrus.FieldLogger) *SweepScheduler {
	return &SweepScheduler{
		cronEngine: cron.New(cron.WithLocation(time.UTC)),
		sweeper:    sweeper,
		log:        log.WithField("component", "scheduler"),
		spec:       spec,
		now:        time.Now,
	}
}

// Start registers the sweep job and starts the cron engine.
func (s *SweepScheduler) Start() error {
	if _, err := s.cronEngine.AddFunc(s.spec, s.runOnce); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.spec, err)
	}
	s.cronEngine.Start()
	s.log.WithField("spec", s.spec).Info("Sweep scheduler started")
	return nil
}

// Stop stops scheduling new sweeps and waits for a running one to finish
// or for ctx to be done.
func (s *SweepScheduler) Stop(ctx context.Context) {
	s.log.Info("Stopping sweep scheduler...")
	select {
	case <-s.cronEngine.Stop().Done():
		s.log.Info("Sweep scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("Timed out waiting for the running sweep to finish")
	}
}

func (s *SweepScheduler) runOnce() {
	stats, err := s.sweeper.RunSweep(context.Background(), s.now())
	switch {
	case errors.Is(err, sweep.ErrSweepInProgress):
		s.log.Info("Previous sweep still running, skipping this tick")
	case err != nil:
		s.log.WithError(err).Error("Scheduled sweep failed")
	default:
		s.log.WithFields(logrus.Fields{
			"total":   stats.Total,
			"sent":    stats.Sent,
			"emailed": stats.Emailed,
			"errors":  stats.Errors,
		}).Debug("Scheduled sweep completed")
	}
}
