package scheduler

import (
	"context"
	"fmt"

	"lead_distribution_backend/internal/matching/dispatch"
	"lead_distribution_backend/internal/matching/sweeper"
	"lead_distribution_backend/platform/apperr"
	"lead_distribution_backend/platform/config"
	"lead_distribution_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Dispatcher runs one dispatch for a lead.
type Dispatcher interface {
	Dispatch(ctx context.Context, leadID uuid.UUID) (dispatch.Result, error)
}

// Sweeper runs one expiry sweep.
type Sweeper interface {
	Run(ctx context.Context) (sweeper.Result, error)
}

type Worker struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	dispatcher Dispatcher
	sweeper    Sweeper
	log        *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, dispatcher Dispatcher, sw Sweeper, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	w := newWorker(dispatcher, sw, log)
	w.server = asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
		IsFailure: func(err error) bool { return !apperr.IsRetryable(err) },
	})
	return w, nil
}

func newWorker(dispatcher Dispatcher, sw Sweeper, log *logger.Logger) *Worker {
	mux := asynq.NewServeMux()
	w := &Worker{
		mux:        mux,
		dispatcher: dispatcher,
		sweeper:    sw,
		log:        log,
	}

	mux.Use(withJobID)
	mux.HandleFunc(TaskDispatchLead, w.handleDispatchLead)
	mux.HandleFunc(TaskSweepExpired, w.handleSweepExpired)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// withJobID tags the context with the asynq task id for log correlation.
func withJobID(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		if id, ok := asynq.GetTaskID(ctx); ok {
			ctx = context.WithValue(ctx, logger.JobIDKey, id)
		}
		return next.ProcessTask(ctx, task)
	})
}

func (w *Worker) handleDispatchLead(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseDispatchLeadPayload(task)
	if err != nil {
		return fmt.Errorf("decode dispatch payload: %v: %w", err, asynq.SkipRetry)
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return fmt.Errorf("invalid lead id %q: %w", payload.LeadID, asynq.SkipRetry)
	}

	if _, err := w.dispatcher.Dispatch(ctx, leadID); err != nil {
		return w.jobError(ctx, task.Type(), err)
	}
	return nil
}

func (w *Worker) handleSweepExpired(ctx context.Context, task *asynq.Task) error {
	if _, err := w.sweeper.Run(ctx); err != nil {
		return w.jobError(ctx, task.Type(), err)
	}
	return nil
}

// jobError lets asynq retry persistence outages. Everything else is final.
func (w *Worker) jobError(ctx context.Context, taskType string, err error) error {
	if apperr.IsRetryable(err) {
		w.log.WithContext(ctx).Warn("job failed, will retry", "task", taskType, "error", err)
		return err
	}
	w.log.WithContext(ctx).Error("job failed", "task", taskType, "error", err)
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}
