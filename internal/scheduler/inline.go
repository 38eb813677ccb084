package scheduler

import (
	"context"
	"sync"

	"lead_distribution_backend/platform/logger"

	"github.com/google/uuid"
)

// Inline runs jobs on background goroutines of the current process. It is
// used when no Redis queue is configured, so requests still return before
// the work runs.
type Inline struct {
	dispatcher Dispatcher
	sweeper    Sweeper
	log        *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sweep  sync.Mutex
}

func NewInline(dispatcher Dispatcher, sw Sweeper, log *logger.Logger) *Inline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Inline{
		dispatcher: dispatcher,
		sweeper:    sw,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (i *Inline) EnqueueDispatch(_ context.Context, leadID uuid.UUID) error {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		if _, err := i.dispatcher.Dispatch(i.ctx, leadID); err != nil {
			i.log.Error("inline dispatch failed", "lead_id", leadID, "error", err)
		}
	}()
	return nil
}

// EnqueueSweep starts a sweep unless one is already running.
func (i *Inline) EnqueueSweep(context.Context) error {
	if !i.sweep.TryLock() {
		return nil
	}
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		defer i.sweep.Unlock()
		if _, err := i.sweeper.Run(i.ctx); err != nil {
			i.log.Error("inline sweep failed", "error", err)
		}
	}()
	return nil
}

// Close cancels running jobs and waits for them to return.
func (i *Inline) Close() error {
	i.cancel()
	i.wg.Wait()
	return nil
}

// Wait blocks until every started job has finished.
func (i *Inline) Wait() {
	i.wg.Wait()
}
