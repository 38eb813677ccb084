package scheduler

import (
	"context"
	"time"

	"lead_distribution_backend/platform/logger"
)

const defaultSweepInterval = 5 * time.Minute

// SweepEnqueuer queues an expiry sweep.
type SweepEnqueuer interface {
	EnqueueSweep(ctx context.Context) error
}

// SweepTicker periodically enqueues an expiry sweep.
type SweepTicker struct {
	jobs     SweepEnqueuer
	log      *logger.Logger
	interval time.Duration
}

func NewSweepTicker(jobs SweepEnqueuer, log *logger.Logger, interval time.Duration) *SweepTicker {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &SweepTicker{
		jobs:     jobs,
		log:      log,
		interval: interval,
	}
}

func (t *SweepTicker) Run(ctx context.Context) {
	if t == nil || t.jobs == nil {
		return
	}

	t.enqueue(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.enqueue(ctx)
		}
	}
}

func (t *SweepTicker) enqueue(ctx context.Context) {
	if err := t.jobs.EnqueueSweep(ctx); err != nil {
		t.log.Warn("expiry sweep enqueue failed", "error", err)
	}
}
