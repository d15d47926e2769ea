package service

import (
	"context"
	"time"

	"chauffeur/internal/domain"
	"chauffeur/internal/models"

	"github.com/rs/zerolog"
)

type StateService struct {
	stateRepo domain.StateRepository
	logger    *zerolog.Logger
}

func NewStateService(stateRepo domain.StateRepository, logger *zerolog.Logger) *StateService {
	return &StateService{
		stateRepo: stateRepo,
		logger:    logger,
	}
}

func (s *StateService) GetFormState(ctx context.Context, sessionID string) (*models.FormState, error) {
	state, err := s.stateRepo.GetState(ctx, sessionID)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to get form state")
		return nil, err
	}

	return state, nil
}

func (s *StateService) SaveFormState(ctx context.Context, state *models.FormState) error {
	if state.Values == nil {
		state.Values = make(map[string]interface{})
	}
	if err := s.stateRepo.SetState(ctx, state); err != nil {
		s.logger.Error().Err(err).Str("session_id", state.SessionID).Msg("failed to save form state")
		return err
	}
	return nil
}

// TakeFormState removes the state from the store and hands it to the caller.
func (s *StateService) TakeFormState(ctx context.Context, sessionID string) (*models.FormState, error) {
	state, err := s.stateRepo.TakeState(ctx, sessionID)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to take form state")
		return nil, err
	}
	return state, nil
}

func (s *StateService) ClearFormState(ctx context.Context, sessionID string) error {
	return s.stateRepo.ClearState(ctx, sessionID)
}

func (s *StateService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return s.stateRepo.CheckRateLimit(ctx, key, limit, window)
}
