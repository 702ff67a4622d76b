package scheduler

import (
	"context"
	"fmt"
	"time"

	"sitewarehouse/internal/inventory/transfers"
	"sitewarehouse/internal/notifications"
	"sitewarehouse/pkg/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// OverdueSource lists temporary transfers whose return is late.
type OverdueSource interface {
	ListOverdueReturns(ctx context.Context) ([]models.Transfer, error)
}

// Scheduler runs the background reminder jobs.
type Scheduler struct {
	cron       *cron.Cron
	spec       string
	source     OverdueSource
	dispatcher notifications.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

func NewScheduler(spec string, source OverdueSource, dispatcher notifications.Dispatcher, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cron:       cron.New(),
		spec:       spec,
		source:     source,
		dispatcher: dispatcher,
		logger:     logger.Named("scheduler"),
		now:        time.Now,
	}
}

// Start registers the jobs and starts the cron loop. An invalid schedule
// is reported before anything runs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.remindOverdueReturns); err != nil {
		return fmt.Errorf("schedule overdue return reminder %q: %w", s.spec, err)
	}

	s.logger.Info("Starting scheduler", zap.String("return_reminder", s.spec))
	s.cron.Start()
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) remindOverdueReturns() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sent, err := s.RemindOverdueReturns(ctx)
	if err != nil {
		s.logger.Error("Failed to send overdue return reminders", zap.Error(err))
		return
	}
	s.logger.Info("Overdue return reminders sent", zap.Int("count", sent))
}

// RemindOverdueReturns raises one reminder per overdue transfer and returns
// how many were delivered.
func (s *Scheduler) RemindOverdueReturns(ctx context.Context) (int, error) {
	overdue, err := s.source.ListOverdueReturns(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	sent := 0
	for _, t := range overdue {
		event := transfers.OverdueEvent(t, now)
		if err := s.dispatcher.Notify(ctx, event); err != nil {
			s.logger.Warn("Failed to dispatch overdue reminder",
				zap.Int("transfer_id", t.ID),
				zap.Error(err),
			)
			continue
		}
		sent++
	}

	return sent, nil
}
