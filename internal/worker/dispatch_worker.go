package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"chauffeur/internal/metrics"
	"chauffeur/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var ErrQueueFull = errors.New("dispatch queue is full")

const (
	redisQueueKey   = "dispatch:queue"
	redisDelayedKey = "dispatch:delayed"
	deadLetterKey   = "dispatch:deadletter"
)

// DispatchWorker delivers submissions to every sink. Tasks travel through a
// Redis list when Redis is available and an in-memory channel otherwise;
// failed tasks wait in a delayed set and end in a dead-letter list.
type DispatchWorker struct {
	sinks        []Sink
	redis        *redis.Client
	retryPolicy  RetryPolicy
	queue        chan models.DispatchTask
	pollInterval time.Duration
	batchSize    int64
	logger       zerolog.Logger
	now          func() time.Time

	mu          sync.Mutex
	deadLetters []models.DispatchTask
	timers      map[string]*time.Timer
}

// NewDispatchWorker builds a worker with sane defaults. redisClient may be nil.
func NewDispatchWorker(sinks []Sink, redisClient *redis.Client, retry RetryPolicy, queueSize int, logger zerolog.Logger) *DispatchWorker {
	if queueSize <= 0 {
		queueSize = models.DispatchQueueSize
	}

	return &DispatchWorker{
		sinks:        sinks,
		redis:        redisClient,
		retryPolicy:  retry.withDefaults(),
		queue:        make(chan models.DispatchTask, queueSize),
		pollInterval: time.Second,
		batchSize:    20,
		logger:       logger,
		now:          time.Now,
		timers:       make(map[string]*time.Timer),
	}
}

// Enqueue schedules delivery of a submission.
func (w *DispatchWorker) Enqueue(ctx context.Context, submission models.Submission) error {
	task := models.DispatchTask{
		ID:         uuid.NewString(),
		Submission: submission,
		CreatedAt:  w.now(),
	}

	// Try redis first for durability.
	if w.redis != nil {
		err := w.pushRedis(ctx, task)
		if err == nil {
			return nil
		}
		w.logger.Warn().Err(err).Str("task_id", task.ID).Msg("redis push failed, fallback to memory queue")
	}

	return w.pushLocal(task)
}

func (w *DispatchWorker) pushLocal(task models.DispatchTask) error {
	select {
	case w.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches main loop; stops when ctx is done.
func (w *DispatchWorker) Start(ctx context.Context) {
	w.logger.Info().Int("sinks", len(w.sinks)).Msg("dispatch worker started")
	defer w.logger.Info().Msg("dispatch worker stopped")
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if w.redis == nil {
			select {
			case <-ctx.Done():
				return
			case t := <-w.queue:
				w.processTask(ctx, &t)
			}
			continue
		}

		w.promoteDue(ctx)

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
		}
	}
}

func (w *DispatchWorker) tryLocalQueue() (models.DispatchTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.DispatchTask{}, false
	}
}

func (w *DispatchWorker) tryRedis(ctx context.Context) (models.DispatchTask, bool) {
	res, err := w.redis.BRPop(ctx, w.pollInterval, redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return models.DispatchTask{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		w.sleep(ctx)
		return models.DispatchTask{}, false
	}
	if len(res) != 2 {
		return models.DispatchTask{}, false
	}
	var task models.DispatchTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.DispatchTask{}, false
	}
	return task, true
}

// promoteDue moves retries whose time has come back onto the queue.
func (w *DispatchWorker) promoteDue(ctx context.Context) {
	due, err := w.redis.ZRangeByScore(ctx, redisDelayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(w.now().UnixMilli(), 10),
		Count: w.batchSize,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("read delayed tasks")
		}
		return
	}

	for _, member := range due {
		removed, err := w.redis.ZRem(ctx, redisDelayedKey, member).Result()
		if err != nil || removed == 0 {
			// another instance took it
			continue
		}
		if err := w.redis.LPush(ctx, redisQueueKey, member).Err(); err != nil {
			w.logger.Error().Err(err).Msg("requeue delayed task")
		}
	}
}

func (w *DispatchWorker) processTask(ctx context.Context, task *models.DispatchTask) {
	var errs []error
	for _, sink := range w.sinks {
		if task.IsDelivered(sink.Name()) {
			continue
		}
		if err := sink.Deliver(ctx, &task.Submission); err != nil {
			metrics.IncDispatch(sink.Name(), "failed")
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		metrics.IncDispatch(sink.Name(), "ok")
		task.MarkDelivered(sink.Name())
	}

	if len(errs) == 0 {
		w.logger.Debug().Str("task_id", task.ID).Str("reference", task.Submission.Reference).Msg("task delivered")
		return
	}

	w.retryOrFail(ctx, task, errors.Join(errs...))
}

func (w *DispatchWorker) retryOrFail(ctx context.Context, task *models.DispatchTask, cause error) {
	task.Attempt++
	task.LastError = cause.Error()

	if w.retryPolicy.Exhausted(task.Attempt) {
		w.logger.Error().
			Err(cause).
			Str("task_id", task.ID).
			Str("reference", task.Submission.Reference).
			Int("attempt", task.Attempt).
			Msg("task moved to dead letter")
		w.pushDeadLetter(ctx, task)
		return
	}

	delay := w.retryPolicy.NextDelay(task.Attempt)
	next := w.now().Add(delay)
	task.NextTryAt = &next

	w.logger.Warn().
		Err(cause).
		Str("task_id", task.ID).
		Int("attempt", task.Attempt).
		Dur("retry_in", delay).
		Msg("task delivery failed")

	if w.redis != nil {
		if err := w.pushDelayed(ctx, *task); err == nil {
			return
		}
	}
	w.scheduleLocal(*task, delay)
}

func (w *DispatchWorker) scheduleLocal(task models.DispatchTask, delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.timers[task.ID] = time.AfterFunc(delay, func() {
		w.mu.Lock()
		delete(w.timers, task.ID)
		w.mu.Unlock()

		if err := w.pushLocal(task); err != nil {
			w.logger.Error().Err(err).Str("task_id", task.ID).Msg("retry dropped to dead letter")
			w.pushDeadLetter(context.Background(), &task)
		}
	})
}

func (w *DispatchWorker) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
}

func (w *DispatchWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

func (w *DispatchWorker) pushRedis(ctx context.Context, task models.DispatchTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, redisQueueKey, data).Err()
}

func (w *DispatchWorker) pushDelayed(ctx context.Context, task models.DispatchTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.ZAdd(ctx, redisDelayedKey, redis.Z{
		Score:  float64(task.NextTryAt.UnixMilli()),
		Member: string(data),
	}).Err()
}

func (w *DispatchWorker) pushDeadLetter(ctx context.Context, task *models.DispatchTask) {
	metrics.IncDeadLetter()

	if w.redis != nil {
		data, err := json.Marshal(task)
		if err == nil {
			err = w.redis.LPush(ctx, deadLetterKey, data).Err()
		}
		if err == nil {
			return
		}
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("deadletter push failed")
	}

	w.mu.Lock()
	w.deadLetters = append(w.deadLetters, *task)
	w.mu.Unlock()
}

// DeadLetters returns tasks that exhausted their retries, newest first.
func (w *DispatchWorker) DeadLetters(ctx context.Context) ([]models.DispatchTask, error) {
	var out []models.DispatchTask

	if w.redis != nil {
		raw, err := w.redis.LRange(ctx, deadLetterKey, 0, -1).Result()
		if err != nil {
			return nil, err
		}
		for _, item := range raw {
			var task models.DispatchTask
			if err := json.Unmarshal([]byte(item), &task); err != nil {
				return nil, fmt.Errorf("decode dead letter: %w", err)
			}
			out = append(out, task)
		}
	}

	w.mu.Lock()
	for i := len(w.deadLetters) - 1; i >= 0; i-- {
		out = append(out, w.deadLetters[i])
	}
	w.mu.Unlock()

	return out, nil
}
