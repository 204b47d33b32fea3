package billing

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/huamanraj/project-management-api/pkg/observability"
)

// DefaultStaleOrderTTL is how long a pending order may sit before the
// sweeper cancels it. Gateway orders expire on the provider side on a
// similar horizon, so a pending record older than this can never complete.
const DefaultStaleOrderTTL = 24 * time.Hour

// Sweeper periodically cancels pending orders that outlived their gateway
// order. It runs on a cron schedule alongside the API server.
type Sweeper struct {
	store   Store
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
	cron    *cron.Cron
}

// NewSweeper creates a sweeper. ttl <= 0 falls back to DefaultStaleOrderTTL.
func NewSweeper(store Store, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Sweeper {
	if ttl <= 0 {
		ttl = DefaultStaleOrderTTL
	}
	return &Sweeper{
		store:   store,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
		cron:    cron.New(),
	}
}

// Start schedules the sweep. schedule is a cron expression such as
// "@every 1h".
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = "@every 1h"
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.Sweep(ctx)
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithField("schedule", schedule).Info("Stale order sweeper started")
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep cancels pending orders older than the TTL and returns the count.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	cutoff := time.Now().Add(-s.ttl)
	swept, err := s.store.CancelStale(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Stale order sweep failed")
		return 0
	}
	if swept > 0 {
		s.metrics.StaleOrdersSweptTotal.Add(float64(swept))
		s.logger.WithField("cancelled", swept).Info("Cancelled stale pending orders")
	}
	return swept
}
