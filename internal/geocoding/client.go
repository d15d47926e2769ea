package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chauffeur/internal/models"

	"github.com/google/go-querystring/query"
	"github.com/rs/zerolog"
)

var (
	ErrNoResult      = errors.New("geocoding: no result")
	ErrBadStatus     = errors.New("geocoding: unexpected status")
	ErrEmptyQuery    = errors.New("geocoding: empty query")
	maxResponseBytes = int64(1 << 20)
)

// Client queries a BAN-compatible address search API.
type Client struct {
	options *Options
	http    *http.Client
	logger  *zerolog.Logger
}

func NewClient(optionFuncs ...OptionFunc) *Client {
	options := newOptions(optionFuncs...)
	return &Client{
		options: options,
		http: &http.Client{
			Timeout:   options.timeout,
			Transport: newOutgoingLoggerRoundTripper(options.transport, options.logger, "geocoding"),
		},
		logger: options.logger,
	}
}

// Search returns up to the configured limit of suggestions for q.
func (c *Client) Search(ctx context.Context, q string) ([]models.AddressSuggestion, error) {
	return c.search(ctx, q, c.options.limit, true)
}

// Geocode resolves a free-text address to its best match.
func (c *Client) Geocode(ctx context.Context, address string) (models.AddressSuggestion, error) {
	results, err := c.search(ctx, address, 1, false)
	if err != nil {
		return models.AddressSuggestion{}, err
	}
	if len(results) == 0 || !results[0].HasCoordinates() {
		return models.AddressSuggestion{}, ErrNoResult
	}
	return results[0], nil
}

func (c *Client) search(ctx context.Context, q string, limit int, autocomplete bool) ([]models.AddressSuggestion, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrEmptyQuery
	}

	opt := searchRQ{Query: q, Limit: limit, Type: c.options.resultType}
	if autocomplete {
		opt.Autocomplete = 1
	}
	v, err := query.Values(opt)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	cacheKey := v.Encode()

	var cached []models.AddressSuggestion
	if c.options.cache != nil && c.options.cache.Fetch(ctx, cacheKey, &cached) {
		return cached, nil
	}

	url := fmt.Sprintf("%s/search/?%s", strings.TrimRight(c.options.baseURL, "/"), cacheKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var collection featureCollection
	if err := json.Unmarshal(body, &collection); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	results := make([]models.AddressSuggestion, 0, len(collection.Features))
	for _, f := range collection.Features {
		results = append(results, f.suggestion())
	}

	if c.options.cache != nil {
		if err := c.options.cache.Store(ctx, cacheKey, results, c.options.cacheTTL); err != nil {
			c.logger.Warn().Err(err).Str("query", q).Msg("failed to cache geocoding response")
		}
	}

	return results, nil
}
