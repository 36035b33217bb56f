package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// IdempotencyPurger deletes idempotency records older than a cutoff
type IdempotencyPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CronService manages scheduled background jobs
type CronService struct {
	cron     *cron.Cron
	purger   IdempotencyPurger
	ttl      time.Duration
	schedule string
	logger   *logrus.Logger
}

// NewCronService creates a new CronService
func NewCronService(purger IdempotencyPurger, ttl time.Duration, schedule string, logger *logrus.Logger) *CronService {
	// Seconds precision: "0 0 * * * *" = top of every hour
	c := cron.New(cron.WithSeconds())

	return &CronService{
		cron:     c,
		purger:   purger,
		ttl:      ttl,
		schedule: schedule,
		logger:   logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	if _, err := s.cron.AddFunc(s.schedule, s.purgeIdempotencyJob); err != nil {
		return fmt.Errorf("failed to schedule idempotency purge job: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"schedule": s.schedule,
		"ttl":      s.ttl.String(),
	}).Info("Scheduled: Purge expired idempotency records")

	s.cron.Start()
	s.logger.Info("Cron service started")

	return nil
}

// Stop stops all cron jobs and waits for running ones
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) purgeIdempotencyJob() {
	if _, err := s.RunPurgeNow(context.Background()); err != nil {
		s.logger.WithError(err).Error("[CRON] Idempotency purge failed")
	}
}

// RunPurgeNow deletes expired idempotency records immediately
func (s *CronService) RunPurgeNow(ctx context.Context) (int64, error) {
	startTime := time.Now()
	cutoff := startTime.Add(-s.ttl)

	deleted, err := s.purger.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"deleted":  deleted,
		"cutoff":   cutoff.UTC().Format(time.RFC3339),
		"duration": time.Since(startTime).String(),
	}).Info("[CRON] Purged expired idempotency records")

	return deleted, nil
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
