package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Default schedules, in the scheduler's location.
const (
	ScheduleExpireSubscriptions = "0 2 * * *"
	ScheduleMarkOverdue         = "0 3 * * *"
	ScheduleExpiryWarnings      = "0 9 * * *"
	ScheduleOverdueReminders    = "0 10 * * *"
	ScheduleMessageCleanup      = "0 4 * * 0"
)

// DefaultLocation is the timezone sweeps are scheduled in.
const DefaultLocation = "Europe/Paris"

// Scheduler drives the runner on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	logger *slog.Logger
}

func NewScheduler(runner *Runner, locationName string, logger *slog.Logger) (*Scheduler, error) {
	if locationName == "" {
		locationName = DefaultLocation
	}
	loc, err := time.LoadLocation(locationName)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		runner: runner,
		logger: logger.With("component", "scheduler"),
	}
	if err := s.register(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) register() error {
	jobs := []struct {
		spec string
		name string
		run  func(context.Context, time.Time) error
	}{
		{ScheduleExpireSubscriptions, "expire_subscriptions", s.runner.ExpireSubscriptions},
		{ScheduleMarkOverdue, "mark_overdue_invoices", s.runner.MarkOverdueInvoices},
		{ScheduleExpiryWarnings, "warn_expiring_subscriptions", s.runner.WarnExpiringSubscriptions},
		{ScheduleOverdueReminders, "remind_overdue_invoices", s.runner.RemindOverdueInvoices},
		{ScheduleMessageCleanup, "cleanup_messages", s.runner.CleanupMessages},
	}
	for _, job := range jobs {
		job := job
		_, err := s.cron.AddFunc(job.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := job.run(ctx, time.Now()); err != nil {
				s.logger.Error("sweep failed", "job", job.name, "error", err)
				return
			}
			s.logger.Debug("sweep completed", "job", job.name)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("maintenance schedule started", "jobs", len(s.cron.Entries()))
}

// Stop halts scheduling and waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("maintenance schedule stopped")
}
