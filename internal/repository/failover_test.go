package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"chauffeur/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetState(ctx context.Context, sessionID string) (*models.FormState, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FormState), args.Error(1)
}

func (m *mockRepo) SetState(ctx context.Context, state *models.FormState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *mockRepo) TakeState(ctx context.Context, sessionID string) (*models.FormState, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FormState), args.Error(1)
}

func (m *mockRepo) ClearState(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *mockRepo) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverStateRepository(t *testing.T) {
	primary := new(mockRepo)
	fallback := new(mockRepo)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverStateRepository(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		state := &models.FormState{SessionID: "a"}
		primary.On("GetState", ctx, "a").Return(state, nil).Once()

		got, err := repo.GetState(ctx, "a")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		assert.True(t, repo.Healthy())
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		state := &models.FormState{SessionID: "b"}
		primary.On("GetState", ctx, "b").Return(nil, errors.New("fail")).Once()
		fallback.On("GetState", ctx, "b").Return(state, nil).Once()

		got, err := repo.GetState(ctx, "b")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		assert.False(t, repo.Healthy())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("NoProbeBeforeInterval", func(t *testing.T) {
		fallback.On("GetState", ctx, "c").Return(nil, nil).Once()

		_, err := repo.GetState(ctx, "c")
		assert.NoError(t, err)
		primary.AssertNotCalled(t, "GetState", ctx, "c")
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		state := &models.FormState{SessionID: "d"}
		primary.On("GetState", ctx, "d").Return(state, nil).Once()

		got, err := repo.GetState(ctx, "d")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		assert.True(t, repo.Healthy())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryFindsSessionInFallback", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		state := &models.FormState{SessionID: "e"}
		primary.On("GetState", ctx, "e").Return(nil, nil).Once()
		fallback.On("GetState", ctx, "e").Return(state, nil).Once()

		got, err := repo.GetState(ctx, "e")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		primary.On("GetState", ctx, "f").Return(nil, errors.New("still fail")).Once()
		fallback.On("GetState", ctx, "f").Return(nil, nil).Once()

		_, err := repo.GetState(ctx, "f")
		assert.NoError(t, err)
		assert.False(t, repo.Healthy())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetStateSuccess", func(t *testing.T) {
		repo.isDown.Store(false)
		state := &models.FormState{SessionID: "g"}
		primary.On("SetState", ctx, state).Return(nil).Once()

		assert.NoError(t, repo.SetState(ctx, state))
		primary.AssertExpectations(t)
	})

	t.Run("ClearStateSuccess", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("ClearState", ctx, "h").Return(nil).Once()
		fallback.On("ClearState", ctx, "h").Return(nil).Once()

		assert.NoError(t, repo.ClearState(ctx, "h"))
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("CheckRateLimitSuccess", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("CheckRateLimit", ctx, "ip", 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "ip", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		primary.AssertExpectations(t)
	})

	t.Run("SetStateFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		state := &models.FormState{SessionID: "i"}
		primary.On("SetState", ctx, state).Return(errors.New("fail")).Once()
		fallback.On("SetState", ctx, state).Return(nil).Once()

		assert.NoError(t, repo.SetState(ctx, state))
		assert.False(t, repo.Healthy())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("ClearStateFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("ClearState", ctx, "j").Return(errors.New("fail")).Once()
		fallback.On("ClearState", ctx, "j").Return(nil).Once()

		assert.NoError(t, repo.ClearState(ctx, "j"))
		assert.False(t, repo.Healthy())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("CheckRateLimitFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("CheckRateLimit", ctx, "ip2", 10, time.Minute).Return(false, errors.New("fail")).Once()
		fallback.On("CheckRateLimit", ctx, "ip2", 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "ip2", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.False(t, repo.Healthy())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetStateAlreadyDown", func(t *testing.T) {
		repo.isDown.Store(true)
		state := &models.FormState{SessionID: "k"}
		fallback.On("SetState", ctx, state).Return(nil).Once()

		assert.NoError(t, repo.SetState(ctx, state))
		fallback.AssertExpectations(t)
	})

	t.Run("CheckRateLimitAlreadyDown", func(t *testing.T) {
		repo.isDown.Store(true)
		fallback.On("CheckRateLimit", ctx, "ip3", 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "ip3", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		fallback.AssertExpectations(t)
	})

	t.Run("TakeStatePrimary", func(t *testing.T) {
		repo.isDown.Store(false)
		state := &models.FormState{SessionID: "l"}
		primary.On("TakeState", ctx, "l").Return(state, nil).Once()
		fallback.On("ClearState", ctx, "l").Return(nil).Once()

		got, err := repo.TakeState(ctx, "l")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("TakeStateOnlyInFallback", func(t *testing.T) {
		repo.isDown.Store(false)
		state := &models.FormState{SessionID: "m"}
		primary.On("TakeState", ctx, "m").Return(nil, nil).Once()
		fallback.On("TakeState", ctx, "m").Return(state, nil).Once()

		got, err := repo.TakeState(ctx, "m")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("TakeStateFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("TakeState", ctx, "n").Return(nil, errors.New("fail")).Once()
		fallback.On("TakeState", ctx, "n").Return(nil, nil).Once()

		got, err := repo.TakeState(ctx, "n")
		assert.NoError(t, err)
		assert.Nil(t, got)
		assert.False(t, repo.Healthy())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}
