package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"chauffeur/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	name string

	mu    sync.Mutex
	calls int
	errs  []error
	got   []string
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Deliver(_ context.Context, s *models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.got = append(f.got, s.Reference)
	return nil
}

func (f *fakeSink) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func submission(ref string) models.Submission {
	return models.Submission{Reference: ref, Form: models.FormQuote}
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestProcessTaskSuccess(t *testing.T) {
	logSink := &fakeSink{name: "log"}
	tgSink := &fakeSink{name: "telegram"}
	worker := NewDispatchWorker([]Sink{logSink, tgSink}, nil, RetryPolicy{}, 4, zerolog.Nop())

	ctx := context.Background()
	require.NoError(t, worker.Enqueue(ctx, submission("CH-1")))

	task, ok := worker.tryLocalQueue()
	require.True(t, ok)
	assert.NotEmpty(t, task.ID)

	worker.processTask(ctx, &task)

	assert.Equal(t, []string{"CH-1"}, logSink.got)
	assert.Equal(t, []string{"CH-1"}, tgSink.got)
	assert.Equal(t, []string{"log", "telegram"}, task.Delivered)
	assert.Zero(t, task.Attempt)
}

func TestProcessTaskRetrySkipsDeliveredSinks(t *testing.T) {
	logSink := &fakeSink{name: "log"}
	tgSink := &fakeSink{name: "telegram", errs: []error{errors.New("boom")}}
	worker := NewDispatchWorker([]Sink{logSink, tgSink}, nil, RetryPolicy{MaxRetries: 3, InitialDelay: 10 * time.Millisecond}, 4, zerolog.Nop())

	ctx := context.Background()
	require.NoError(t, worker.Enqueue(ctx, submission("CH-2")))
	task, _ := worker.tryLocalQueue()

	worker.processTask(ctx, &task)
	assert.Equal(t, 1, task.Attempt)
	assert.Contains(t, task.LastError, "telegram: boom")
	require.NotNil(t, task.NextTryAt)

	// the retry comes back through the local queue after the backoff
	var retried models.DispatchTask
	require.Eventually(t, func() bool {
		var ok bool
		retried, ok = worker.tryLocalQueue()
		return ok
	}, time.Second, 5*time.Millisecond)

	worker.processTask(ctx, &retried)
	assert.Equal(t, 1, logSink.Calls())
	assert.Equal(t, 2, tgSink.Calls())
	assert.Equal(t, []string{"log", "telegram"}, retried.Delivered)
}

func TestProcessTaskDeadLetter(t *testing.T) {
	sink := &fakeSink{name: "sheets", errs: []error{errors.New("quota"), errors.New("quota")}}
	worker := NewDispatchWorker([]Sink{sink}, nil, RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond}, 4, zerolog.Nop())
	ctx := context.Background()

	task := models.DispatchTask{ID: "t1", Submission: submission("CH-3"), Attempt: 1}
	worker.processTask(ctx, &task)

	dead, err := worker.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "t1", dead[0].ID)
	assert.Equal(t, 2, dead[0].Attempt)
	assert.Contains(t, dead[0].LastError, "quota")
}

func TestEnqueueQueueFull(t *testing.T) {
	worker := NewDispatchWorker(nil, nil, RetryPolicy{}, 1, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, worker.Enqueue(ctx, submission("a")))
	assert.ErrorIs(t, worker.Enqueue(ctx, submission("b")), ErrQueueFull)
}

func TestEnqueueRedis(t *testing.T) {
	mr, client := newMiniRedis(t)
	worker := NewDispatchWorker(nil, client, RetryPolicy{}, 1, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, worker.Enqueue(ctx, submission("CH-R")))
	_, ok := worker.tryLocalQueue()
	assert.False(t, ok)

	items, err := mr.List(redisQueueKey)
	require.NoError(t, err)
	require.Len(t, items, 1)

	var task models.DispatchTask
	require.NoError(t, json.Unmarshal([]byte(items[0]), &task))
	assert.Equal(t, "CH-R", task.Submission.Reference)

	got, ok := worker.tryRedis(ctx)
	require.True(t, ok)
	assert.Equal(t, task.ID, got.ID)
}

func TestEnqueueRedisDownFallsBack(t *testing.T) {
	mr, client := newMiniRedis(t)
	mr.SetError("READONLY")
	worker := NewDispatchWorker(nil, client, RetryPolicy{}, 1, zerolog.Nop())

	require.NoError(t, worker.Enqueue(context.Background(), submission("CH-F")))
	task, ok := worker.tryLocalQueue()
	require.True(t, ok)
	assert.Equal(t, "CH-F", task.Submission.Reference)
}

func TestRedisRetryAndPromote(t *testing.T) {
	mr, client := newMiniRedis(t)
	sink := &fakeSink{name: "telegram", errs: []error{errors.New("timeout")}}
	worker := NewDispatchWorker([]Sink{sink}, client, RetryPolicy{MaxRetries: 3, InitialDelay: time.Minute}, 1, zerolog.Nop())

	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	worker.now = func() time.Time { return now }
	ctx := context.Background()

	task := models.DispatchTask{ID: "t-redis", Submission: submission("CH-Z")}
	worker.processTask(ctx, &task)

	members, err := mr.ZMembers(redisDelayedKey)
	require.NoError(t, err)
	require.Len(t, members, 1)

	// not due yet
	worker.promoteDue(ctx)
	assert.False(t, mr.Exists(redisQueueKey))

	now = now.Add(time.Minute)
	worker.promoteDue(ctx)

	members, _ = mr.ZMembers(redisDelayedKey)
	assert.Empty(t, members)

	got, ok := worker.tryRedis(ctx)
	require.True(t, ok)
	assert.Equal(t, "t-redis", got.ID)
	assert.Equal(t, 1, got.Attempt)

	worker.processTask(ctx, &got)
	assert.Equal(t, []string{"CH-Z"}, sink.got)
}

func TestRedisDeadLetter(t *testing.T) {
	_, client := newMiniRedis(t)
	sink := &fakeSink{name: "sheets", errs: []error{errors.New("403")}}
	worker := NewDispatchWorker([]Sink{sink}, client, RetryPolicy{MaxRetries: 1}, 1, zerolog.Nop())
	ctx := context.Background()

	task := models.DispatchTask{ID: "t-dead", Submission: submission("CH-D")}
	worker.processTask(ctx, &task)

	dead, err := worker.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "t-dead", dead[0].ID)
}

func TestStartProcessesAndStops(t *testing.T) {
	sink := &fakeSink{name: "log"}
	worker := NewDispatchWorker([]Sink{sink}, nil, RetryPolicy{}, 4, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	require.NoError(t, worker.Enqueue(context.Background(), submission("CH-S")))
	require.Eventually(t, func() bool { return sink.Calls() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(zerolog.Nop())
	assert.Equal(t, "log", sink.Name())
	s := submission("CH-L")
	assert.NoError(t, sink.Deliver(context.Background(), &s))
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 5*time.Second, policy.NextDelay(5))
	assert.Equal(t, time.Second, policy.NextDelay(0))
}

func TestRetryPolicyDefaults(t *testing.T) {
	policy := RetryPolicy{}.withDefaults()
	assert.Equal(t, 5, policy.MaxRetries)
	assert.False(t, policy.Exhausted(4))
	assert.True(t, policy.Exhausted(5))
}
