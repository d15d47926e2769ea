package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chauffeur/internal/config"
	"chauffeur/internal/models"

	"github.com/redis/go-redis/v9"
)

var ErrNilClient = errors.New("redis client is nil")

const (
	formStateKey = "form_state:%s"
	rateLimitKey = "rate_limit:%s"
)

type RedisStateRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisStateRepository(client *redis.Client, ttl time.Duration) *RedisStateRepository {
	return &RedisStateRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisStateRepository) GetState(ctx context.Context, sessionID string) (*models.FormState, error) {
	if r.client == nil {
		return nil, ErrNilClient
	}
	val, err := r.client.Get(ctx, fmt.Sprintf(formStateKey, sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state from redis: %w", err)
	}

	var state models.FormState
	if err := json.Unmarshal(val, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return &state, nil
}

// SetState stores the state and restarts its TTL.
func (r *RedisStateRepository) SetState(ctx context.Context, state *models.FormState) error {
	if r.client == nil {
		return ErrNilClient
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := r.client.Set(ctx, fmt.Sprintf(formStateKey, state.SessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set state in redis: %w", err)
	}

	return nil
}

// TakeState reads and deletes the state in one GETDEL.
func (r *RedisStateRepository) TakeState(ctx context.Context, sessionID string) (*models.FormState, error) {
	if r.client == nil {
		return nil, ErrNilClient
	}
	val, err := r.client.GetDel(ctx, fmt.Sprintf(formStateKey, sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take state from redis: %w", err)
	}

	var state models.FormState
	if err := json.Unmarshal(val, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return &state, nil
}

func (r *RedisStateRepository) ClearState(ctx context.Context, sessionID string) error {
	if r.client == nil {
		return ErrNilClient
	}
	if err := r.client.Del(ctx, fmt.Sprintf(formStateKey, sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete state from redis: %w", err)
	}
	return nil
}

// CheckRateLimit is a fixed-window counter: the window starts on the first hit.
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, ErrNilClient
	}
	redisKey := fmt.Sprintf(rateLimitKey, key)

	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return ErrNilClient
	}
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
