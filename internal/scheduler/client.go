package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"lead_distribution_backend/platform/apperr"
	"lead_distribution_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	dispatchUniqueTTL = time.Minute
	sweepUniqueTTL    = time.Minute
	dispatchMaxRetry  = 5
	sweepMaxRetry     = 2
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueDispatch queues a dispatch run for leadID. Repeated requests for
// the same lead within dispatchUniqueTTL collapse into one task.
func (c *Client) EnqueueDispatch(ctx context.Context, leadID uuid.UUID) error {
	task, err := NewDispatchLeadTask(DispatchLeadPayload{LeadID: leadID.String()})
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, asynq.Unique(dispatchUniqueTTL), asynq.MaxRetry(dispatchMaxRetry))
}

// EnqueueSweep queues one expiry sweep.
func (c *Client) EnqueueSweep(ctx context.Context) error {
	return c.enqueue(ctx, NewSweepExpiredTask(), asynq.Unique(sweepUniqueTTL), asynq.MaxRetry(sweepMaxRetry))
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	opts = append(opts, asynq.Queue(c.queue))
	_, err := c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return apperr.Unavailable("job queue unavailable", err).WithOp(task.Type())
	}
	return nil
}

func queueName(cfg config.SchedulerConfig) string {
	if queue := cfg.GetAsynqQueueName(); queue != "" {
		return queue
	}
	return "default"
}

// NewRedisClient opens a go-redis client for the same Redis the queue uses.
// The config store publishes reload notifications through it.
func NewRedisClient(cfg config.SchedulerConfig) (redis.UniversalClient, error) {
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}
	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return redis.NewClient(opt), nil
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
