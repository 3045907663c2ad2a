package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Scheduler runs refreshes on a cron schedule
type Scheduler struct {
	refresher *Refresher
	cron      *cron.Cron
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewScheduler creates a new refresh scheduler
func NewScheduler(refresher *Refresher, timeout time.Duration) *Scheduler {
	return &Scheduler{
		refresher: refresher,
		cron:      cron.New(),
		timeout:   timeout,
	}
}

// Start begins the scheduled refreshes. schedule is a standard five field
// cron expression, e.g. "0 6 * * *".
func (s *Scheduler) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.runRefresh()
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	logger.Info("Refresh scheduler started", logger.String("schedule", schedule))
	return nil
}

// Stop stops the scheduler and waits for a running refresh to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	logger.Info("Refresh scheduler stopped")
}

// RunNow triggers an immediate refresh
func (s *Scheduler) RunNow() {
	logger.Info("Triggering immediate refresh")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runRefresh()
	}()
}

func (s *Scheduler) runRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	logger.Info("Starting scheduled refresh")

	report, err := s.refresher.Refresh(ctx, false)
	if errors.Is(err, ErrRefreshInProgress) {
		logger.Warn("Skipping scheduled refresh, previous run still active")
		return
	}
	if err != nil {
		logger.ErrorsTotal.WithLabelValues("ingest", "refresh").Inc()
		logger.Error("Scheduled refresh failed", logger.ErrorField(err))
		return
	}

	logger.Info("Scheduled refresh completed",
		logger.String("run_id", report.RunID),
		logger.Int("windows", len(report.Scores)),
	)
}
