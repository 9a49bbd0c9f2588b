package daemon

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler wraps gocron for the periodic rebuild job.
type Scheduler struct {
	scheduler gocron.Scheduler
	daemon    *Daemon
}

// NewScheduler creates a scheduler bound to the daemon's trigger.
func NewScheduler(d *Daemon) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, daemon: d}, nil
}

// SchedulePeriodic registers the interval rebuild job.
func (s *Scheduler) SchedulePeriodic(interval time.Duration) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.daemon.Trigger(TriggerSchedule) }),
		gocron.WithName("periodic-rebuild"),
	)
	if err != nil {
		return fmt.Errorf("failed to create periodic rebuild job: %w", err)
	}
	slog.Info("Scheduled periodic rebuild", slog.Duration("interval", interval))
	return nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() { s.scheduler.Start() }

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error { return s.scheduler.Shutdown() }
