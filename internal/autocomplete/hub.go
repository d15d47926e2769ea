package autocomplete

import (
	"context"
	"sync"
	"time"

	"chauffeur/internal/models"

	"github.com/rs/zerolog"
)

type inputKey struct {
	session string
	field   string
}

// Hub owns one Input per (session, field) and tears down idle ones.
type Hub struct {
	searcher Searcher
	opts     Options
	idleTTL  time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	mu     sync.Mutex
	inputs map[inputKey]*Input
}

func NewHub(searcher Searcher, opts Options, idleTTL time.Duration, logger zerolog.Logger) *Hub {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &Hub{
		searcher: searcher,
		opts:     opts.withDefaults(),
		idleTTL:  idleTTL,
		logger:   logger,
		now:      time.Now,
		inputs:   make(map[inputKey]*Input),
	}
}

// Lookup runs q on the input for (session, field), creating it on first use.
func (h *Hub) Lookup(ctx context.Context, session, field, q string) ([]models.AddressSuggestion, error) {
	return h.input(session, field).Lookup(ctx, q)
}

func (h *Hub) input(session, field string) *Input {
	key := inputKey{session: session, field: field}

	h.mu.Lock()
	defer h.mu.Unlock()

	in, ok := h.inputs[key]
	if !ok {
		in = NewInput(h.searcher, h.opts, h.logger.With().Str("session", session).Str("field", field).Logger())
		in.now = h.now
		in.lastUsed = h.now()
		h.inputs[key] = in
	}
	return in
}

// Release closes and forgets the input for (session, field).
func (h *Hub) Release(session, field string) {
	key := inputKey{session: session, field: field}

	h.mu.Lock()
	in, ok := h.inputs[key]
	delete(h.inputs, key)
	h.mu.Unlock()

	if ok {
		in.Close()
	}
}

// ReleaseSession closes every input of a session.
func (h *Hub) ReleaseSession(session string) int {
	h.mu.Lock()
	var closed []*Input
	for key, in := range h.inputs {
		if key.session == session {
			closed = append(closed, in)
			delete(h.inputs, key)
		}
	}
	h.mu.Unlock()

	for _, in := range closed {
		in.Close()
	}
	return len(closed)
}

// Sweep closes inputs idle for longer than the TTL and returns how many were removed.
func (h *Hub) Sweep() int {
	cutoff := h.now().Add(-h.idleTTL)

	h.mu.Lock()
	var stale []*Input
	for key, in := range h.inputs {
		if in.IdleSince().Before(cutoff) {
			stale = append(stale, in)
			delete(h.inputs, key)
		}
	}
	h.mu.Unlock()

	for _, in := range stale {
		in.Close()
	}
	return len(stale)
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.inputs)
}

// Run sweeps periodically until ctx is done, then closes every input.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			if n := h.Sweep(); n > 0 {
				h.logger.Debug().Int("evicted", n).Msg("autocomplete inputs evicted")
			}
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	inputs := h.inputs
	h.inputs = make(map[inputKey]*Input)
	h.mu.Unlock()

	for _, in := range inputs {
		in.Close()
	}
}
