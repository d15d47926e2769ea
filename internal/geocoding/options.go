package geocoding

import (
	"net/http"
	"time"

	"chauffeur/internal/caching"

	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL  = "https://api-adresse.data.gouv.fr"
	DefaultTimeout  = 3 * time.Second
	DefaultLimit    = 5
	DefaultCacheTTL = 24 * time.Hour
)

type OptionFunc func(o *Options)

type Options struct {
	// BaseURL - scheme and host of the geocoding API, without the /search/ path
	baseURL string

	// Timeout - if not set, then default timeout is used
	timeout time.Duration

	// Limit - maximum suggestions per query
	limit int

	// Type - restricts results (housenumber, street, municipality...), empty means any
	resultType string

	cache    *caching.Cacher
	cacheTTL time.Duration

	transport http.RoundTripper
	logger    *zerolog.Logger
}

func WithBaseURL(baseURL string) OptionFunc {
	return func(o *Options) {
		o.baseURL = baseURL
	}
}

func WithTimeout(timeout time.Duration) OptionFunc {
	return func(o *Options) {
		o.timeout = timeout
	}
}

func WithLimit(limit int) OptionFunc {
	return func(o *Options) {
		o.limit = limit
	}
}

func WithType(resultType string) OptionFunc {
	return func(o *Options) {
		o.resultType = resultType
	}
}

func WithCache(cache *caching.Cacher, ttl time.Duration) OptionFunc {
	return func(o *Options) {
		o.cache = cache
		o.cacheTTL = ttl
	}
}

func WithTransport(transport http.RoundTripper) OptionFunc {
	return func(o *Options) {
		o.transport = transport
	}
}

func WithLogger(logger *zerolog.Logger) OptionFunc {
	return func(o *Options) {
		o.logger = logger
	}
}

func newOptions(optionFuncs ...OptionFunc) *Options {
	options := &Options{}
	for _, optionFunc := range optionFuncs {
		optionFunc(options)
	}

	if options.baseURL == "" {
		options.baseURL = DefaultBaseURL
	}
	if options.timeout <= 0 {
		options.timeout = DefaultTimeout
	}
	if options.limit <= 0 {
		options.limit = DefaultLimit
	}
	if options.cacheTTL <= 0 {
		options.cacheTTL = DefaultCacheTTL
	}
	if options.transport == nil {
		options.transport = http.DefaultTransport
	}
	if options.logger == nil {
		nop := zerolog.Nop()
		options.logger = &nop
	}
	return options
}
