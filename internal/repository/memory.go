package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chauffeur/internal/models"
)

type memoryState struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStateRepository keeps serialized states so callers never share a pointer
// with the store, matching the Redis behaviour.
type MemoryStateRepository struct {
	mu         sync.Mutex
	states     map[string]memoryState
	rateLimits map[string]*rateLimitEntry
	ttl        time.Duration
	now        func() time.Time
}

func NewMemoryStateRepository(ttl time.Duration) *MemoryStateRepository {
	return &MemoryStateRepository{
		states:     make(map[string]memoryState),
		rateLimits: make(map[string]*rateLimitEntry),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (r *MemoryStateRepository) GetState(_ context.Context, sessionID string) (*models.FormState, error) {
	r.mu.Lock()
	entry, ok := r.states[sessionID]
	if ok && r.expired(entry.expiresAt) {
		delete(r.states, sessionID)
		ok = false
	}
	r.mu.Unlock()

	if !ok {
		return nil, nil
	}

	var state models.FormState
	if err := json.Unmarshal(entry.data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *MemoryStateRepository) SetState(_ context.Context, state *models.FormState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := memoryState{data: data}
	if r.ttl > 0 {
		entry.expiresAt = r.now().Add(r.ttl)
	}
	r.states[state.SessionID] = entry
	return nil
}

// TakeState removes the state and returns it. Of two concurrent callers only one gets it.
func (r *MemoryStateRepository) TakeState(_ context.Context, sessionID string) (*models.FormState, error) {
	r.mu.Lock()
	entry, ok := r.states[sessionID]
	if ok {
		delete(r.states, sessionID)
		ok = !r.expired(entry.expiresAt)
	}
	r.mu.Unlock()

	if !ok {
		return nil, nil
	}

	var state models.FormState
	if err := json.Unmarshal(entry.data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *MemoryStateRepository) ClearState(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, sessionID)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryStateRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || !now.Before(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++

	return entry.count <= limit, nil
}

// Sweep drops expired states and rate limit windows, returning how many states were removed.
func (r *MemoryStateRepository) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, entry := range r.states {
		if r.expired(entry.expiresAt) {
			delete(r.states, id)
			removed++
		}
	}

	now := r.now()
	for key, entry := range r.rateLimits {
		if !now.Before(entry.expiresAt) {
			delete(r.rateLimits, key)
		}
	}
	return removed
}

func (r *MemoryStateRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *MemoryStateRepository) expired(at time.Time) bool {
	return !at.IsZero() && !r.now().Before(at)
}
