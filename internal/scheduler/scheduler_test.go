package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lead_distribution_backend/internal/matching/dispatch"
	"lead_distribution_backend/internal/matching/sweeper"
	"lead_distribution_backend/platform/apperr"
	"lead_distribution_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	leads []uuid.UUID
	err   error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, leadID uuid.UUID) (dispatch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leads = append(f.leads, leadID)
	return dispatch.Result{LeadID: leadID}, f.err
}

func (f *fakeDispatcher) calls() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.leads...)
}

type fakeSweeper struct {
	runs    atomic.Int32
	err     error
	release chan struct{}
}

func (f *fakeSweeper) Run(ctx context.Context) (sweeper.Result, error) {
	f.runs.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}
	return sweeper.Result{}, f.err
}

type countingJobs struct{ sweeps atomic.Int32 }

func (c *countingJobs) EnqueueSweep(context.Context) error {
	c.sweeps.Add(1)
	return nil
}

type queueConfig struct{ url string }

func (q queueConfig) GetRedisURL() string       { return q.url }
func (q queueConfig) GetRedisTLSInsecure() bool { return false }
func (q queueConfig) GetAsynqQueueName() string { return "matching" }
func (q queueConfig) GetAsynqConcurrency() int  { return 2 }

func TestDispatchTaskRoundTrip(t *testing.T) {
	leadID := uuid.New()
	task, err := NewDispatchLeadTask(DispatchLeadPayload{LeadID: leadID.String()})
	require.NoError(t, err)
	assert.Equal(t, TaskDispatchLead, task.Type())

	payload, err := ParseDispatchLeadPayload(task)
	require.NoError(t, err)
	assert.Equal(t, leadID.String(), payload.LeadID)
}

func TestWorkerDispatchesLead(t *testing.T) {
	d := &fakeDispatcher{}
	w := newWorker(d, &fakeSweeper{}, logger.Nop())
	leadID := uuid.New()
	task, err := NewDispatchLeadTask(DispatchLeadPayload{LeadID: leadID.String()})
	require.NoError(t, err)

	require.NoError(t, w.mux.ProcessTask(context.Background(), task))
	assert.Equal(t, []uuid.UUID{leadID}, d.calls())
}

func TestWorkerRetryPolicy(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		skipRetry bool
	}{
		{name: "transient", err: apperr.Unavailable("database unavailable", errors.New("conn reset")), skipRetry: false},
		{name: "missing lead", err: apperr.NotFound("lead not found"), skipRetry: true},
		{name: "unexpected", err: errors.New("boom"), skipRetry: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := newWorker(&fakeDispatcher{err: tc.err}, &fakeSweeper{err: tc.err}, logger.Nop())
			task, err := NewDispatchLeadTask(DispatchLeadPayload{LeadID: uuid.NewString()})
			require.NoError(t, err)

			for _, task := range []*asynq.Task{task, NewSweepExpiredTask()} {
				err := w.mux.ProcessTask(context.Background(), task)
				require.Error(t, err)
				assert.Equal(t, tc.skipRetry, errors.Is(err, asynq.SkipRetry), task.Type())
				assert.ErrorIs(t, err, tc.err)
			}
		})
	}
}

func TestWorkerRejectsMalformedPayload(t *testing.T) {
	d := &fakeDispatcher{}
	w := newWorker(d, &fakeSweeper{}, logger.Nop())

	for _, payload := range [][]byte{[]byte("{"), []byte(`{"leadId":"nope"}`)} {
		err := w.mux.ProcessTask(context.Background(), asynq.NewTask(TaskDispatchLead, payload))
		require.Error(t, err)
		assert.ErrorIs(t, err, asynq.SkipRetry)
	}
	assert.Empty(t, d.calls())
}

func TestClientCollapsesDuplicateDispatches(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(queueConfig{url: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	first, second := uuid.New(), uuid.New()
	require.NoError(t, client.EnqueueDispatch(ctx, first))
	require.NoError(t, client.EnqueueDispatch(ctx, first))
	require.NoError(t, client.EnqueueDispatch(ctx, second))
	require.NoError(t, client.EnqueueSweep(ctx))
	require.NoError(t, client.EnqueueSweep(ctx))

	pending, err := mr.List("asynq:{matching}:pending")
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestClientReportsUnavailableQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(queueConfig{url: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	err = client.EnqueueSweep(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.IsRetryable(err))
}

func TestNewClientRequiresRedis(t *testing.T) {
	_, err := NewClient(queueConfig{})
	assert.Error(t, err)
	_, err = NewWorker(queueConfig{}, &fakeDispatcher{}, &fakeSweeper{}, logger.Nop())
	assert.Error(t, err)
}

func TestSweepTickerEnqueuesImmediatelyAndOnTick(t *testing.T) {
	jobs := &countingJobs{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweepTicker(jobs, logger.Nop(), 10*time.Millisecond).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return jobs.sweeps.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestInlineRunsJobsInBackground(t *testing.T) {
	d := &fakeDispatcher{}
	sw := &fakeSweeper{release: make(chan struct{})}
	inline := NewInline(d, sw, logger.Nop())

	leadID := uuid.New()
	require.NoError(t, inline.EnqueueDispatch(context.Background(), leadID))
	require.NoError(t, inline.EnqueueSweep(context.Background()))
	require.Eventually(t, func() bool { return sw.runs.Load() == 1 }, time.Second, time.Millisecond)

	// a second sweep while one is running is dropped
	require.NoError(t, inline.EnqueueSweep(context.Background()))
	close(sw.release)
	inline.Wait()

	assert.Equal(t, int32(1), sw.runs.Load())
	assert.Equal(t, []uuid.UUID{leadID}, d.calls())
	require.NoError(t, inline.Close())
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(queueConfig{url: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	require.NoError(t, rdb.Ping(context.Background()).Err())

	_, err = NewRedisClient(queueConfig{url: "not a url"})
	assert.Error(t, err)
}
