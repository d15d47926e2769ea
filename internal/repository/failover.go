package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"chauffeur/internal/domain"
	"chauffeur/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStateRepository serves from primary until it errors, then from the
// fallback, probing the primary again on reads once per recoveryInterval.
type FailoverStateRepository struct {
	primary  domain.StateRepository
	fallback domain.StateRepository
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStateRepository) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary state repository failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverStateRepository) shouldProbe() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastCheck) > recoveryInterval
}

// Healthy reports whether the primary is currently in use.
func (r *FailoverStateRepository) Healthy() bool {
	return !r.isDown.Load()
}

func (r *FailoverStateRepository) GetState(ctx context.Context, sessionID string) (*models.FormState, error) {
	if !r.isDown.Load() {
		state, err := r.primary.GetState(ctx, sessionID)
		if err == nil {
			return state, nil
		}
		r.markDown(err)
	} else if r.shouldProbe() {
		state, err := r.primary.GetState(ctx, sessionID)
		if err == nil {
			r.isDown.Store(false)
			r.logger.Info().Msg("Primary state repository recovered")
			if state != nil {
				return state, nil
			}
			// the session may only exist in the fallback
			return r.fallback.GetState(ctx, sessionID)
		}
		r.markDown(err)
	}

	return r.fallback.GetState(ctx, sessionID)
}

func (r *FailoverStateRepository) SetState(ctx context.Context, state *models.FormState) error {
	if !r.isDown.Load() {
		err := r.primary.SetState(ctx, state)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetState(ctx, state)
}

// TakeState claims the session from whichever store holds it.
func (r *FailoverStateRepository) TakeState(ctx context.Context, sessionID string) (*models.FormState, error) {
	if !r.isDown.Load() {
		state, err := r.primary.TakeState(ctx, sessionID)
		if err == nil {
			if state != nil {
				_ = r.fallback.ClearState(ctx, sessionID)
				return state, nil
			}
			return r.fallback.TakeState(ctx, sessionID)
		}
		r.markDown(err)
	}

	return r.fallback.TakeState(ctx, sessionID)
}

func (r *FailoverStateRepository) ClearState(ctx context.Context, sessionID string) error {
	if !r.isDown.Load() {
		err := r.primary.ClearState(ctx, sessionID)
		if err == nil {
			_ = r.fallback.ClearState(ctx, sessionID)
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.ClearState(ctx, sessionID)
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
