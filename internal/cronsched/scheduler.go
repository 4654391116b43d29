// Package cronsched is the orchestrator's periodic maintenance driver
// (§4.7): health checks, stall recovery/retry, and cleanup, each
// registered as an "@every" entry on a robfig/cron scheduler instead
// of a hand-rolled time.Ticker per job.
package cronsched

import (
	"fmt"
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Scheduler wraps a cron.Cron, logging entry registration the way
// the corpus's ticker-based scheduler logs start/stop.
type Scheduler struct {
	c      *cronlib.Cron
	logger *slog.Logger
}

// New returns a Scheduler. logger may be nil.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{c: cronlib.New(), logger: logger}
}

// Every registers fn to run every interval, named for log output.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) error {
	spec := fmt.Sprintf("@every %s", interval.String())
	_, err := s.c.AddFunc(spec, func() {
		s.logger.Info("cronsched: job firing", "job", name)
		fn()
	})
	if err != nil {
		return fmt.Errorf("cronsched: register %s: %w", name, err)
	}
	return nil
}

// Start begins running registered jobs in the background.
func (s *Scheduler) Start() {
	s.c.Start()
	s.logger.Info("cronsched: started", "entries", len(s.c.Entries()))
}

// Stop stops the scheduler and blocks until any running job completes.
func (s *Scheduler) Stop() {
	ctx := s.c.Stop()
	<-ctx.Done()
	s.logger.Info("cronsched: stopped")
}
