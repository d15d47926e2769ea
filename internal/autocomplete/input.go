package autocomplete

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"chauffeur/internal/metrics"
	"chauffeur/internal/models"

	"github.com/rs/zerolog"
)

var (
	// ErrSuperseded is returned to a lookup replaced by a newer one on the same input.
	ErrSuperseded = errors.New("autocomplete: superseded by a newer query")
	ErrClosed     = errors.New("autocomplete: input closed")
)

// Searcher is the upstream address search.
type Searcher interface {
	Search(ctx context.Context, q string) ([]models.AddressSuggestion, error)
}

type Options struct {
	MinLength int
	Debounce  time.Duration
}

func (o Options) withDefaults() Options {
	if o.MinLength <= 0 {
		o.MinLength = models.MinQueryLength
	}
	if o.Debounce <= 0 {
		o.Debounce = models.DefaultDebounce
	}
	return o
}

// Input is one address field. It keeps at most one pending lookup:
// starting a new one cancels the previous wait or request.
type Input struct {
	searcher Searcher
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	seq      uint64
	cancel   context.CancelFunc
	closed   bool
	lastUsed time.Time
}

func NewInput(searcher Searcher, opts Options, logger zerolog.Logger) *Input {
	return &Input{
		searcher: searcher,
		opts:     opts.withDefaults(),
		logger:   logger,
		now:      time.Now,
		lastUsed: time.Now(),
	}
}

// Lookup returns suggestions for q once the input has been quiet for the
// debounce window. Short queries return an empty list without a request.
// Upstream failures are logged and degrade to an empty list.
func (in *Input) Lookup(ctx context.Context, q string) ([]models.AddressSuggestion, error) {
	q = strings.TrimSpace(q)

	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		metrics.IncAutocomplete("closed")
		return nil, ErrClosed
	}
	in.seq++
	seq := in.seq
	if in.cancel != nil {
		in.cancel()
		in.cancel = nil
	}
	in.lastUsed = in.now()

	if utf8.RuneCountInString(q) < in.opts.MinLength {
		in.mu.Unlock()
		metrics.IncAutocomplete("short")
		return []models.AddressSuggestion{}, nil
	}

	reqCtx, cancel := context.WithCancel(ctx)
	in.cancel = cancel
	in.mu.Unlock()

	defer func() {
		in.mu.Lock()
		if in.seq == seq {
			in.cancel = nil
		}
		in.mu.Unlock()
		cancel()
	}()

	timer := time.NewTimer(in.opts.Debounce)
	defer timer.Stop()

	select {
	case <-reqCtx.Done():
		return nil, in.abandoned(ctx, seq)
	case <-timer.C:
	}

	results, err := in.searcher.Search(reqCtx, q)
	if !in.isCurrent(seq) {
		return nil, in.abandoned(ctx, seq)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.IncAutocomplete("degraded")
		in.logger.Warn().Err(err).Str("query", q).Msg("address lookup failed")
		return []models.AddressSuggestion{}, nil
	}

	metrics.IncAutocomplete("ok")
	if results == nil {
		results = []models.AddressSuggestion{}
	}
	return results, nil
}

// Close cancels any pending lookup. Later lookups return ErrClosed.
func (in *Input) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.closed = true
	if in.cancel != nil {
		in.cancel()
		in.cancel = nil
	}
}

// IdleSince returns the time of the last lookup.
func (in *Input) IdleSince() time.Time {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.lastUsed
}

func (in *Input) isCurrent(seq uint64) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return !in.closed && in.seq == seq
}

func (in *Input) abandoned(ctx context.Context, seq uint64) error {
	in.mu.Lock()
	closed, current := in.closed, in.seq == seq
	in.mu.Unlock()

	switch {
	case closed:
		metrics.IncAutocomplete("closed")
		return ErrClosed
	case !current:
		metrics.IncAutocomplete("superseded")
		return ErrSuperseded
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return context.Canceled
	}
}
