package caching

import (
	"bytes"
	"compress/flate"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Engine stores raw bytes under a key. A missing key is (nil, nil).
type Engine interface {
	Store(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Cacher keeps JSON values deflated in an Engine under "prefix:key".
type Cacher struct {
	engine Engine
	prefix string
}

func New(engine Engine, prefix string) *Cacher {
	return &Cacher{engine: engine, prefix: strings.TrimSuffix(prefix, ":")}
}

func NewRedisCache(redisClient redis.Cmdable, prefix string) *Cacher {
	return New(&redisCache{redis: redisClient}, prefix)
}

func NewMemoryCache(prefix string) *Cacher {
	return New(newMemoryCache(), prefix)
}

func deflate(uncompressed []byte) ([]byte, error) {
	var buffer bytes.Buffer
	writer, _ := flate.NewWriter(&buffer, flate.BestSpeed)

	if _, err := writer.Write(uncompressed); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buffer.Bytes(), nil
}

func inflate(compressed []byte) ([]byte, error) {
	reader := flate.NewReader(bytes.NewReader(compressed))
	defer reader.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(reader); err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}

func (c *Cacher) key(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

// Sweep drops expired entries from engines that do not expire keys on their own.
// It returns how many were removed.
func (c *Cacher) Sweep() int {
	if s, ok := c.engine.(interface{ Sweep() int }); ok {
		return s.Sweep()
	}
	return 0
}

func (c *Cacher) Store(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	compressed, err := deflate(raw)
	if err != nil {
		return err
	}

	return c.engine.Store(ctx, c.key(key), compressed, ttl)
}

// Fetch decodes the cached value into destination and reports whether it was found.
// Engine and decode errors count as a miss.
func (c *Cacher) Fetch(ctx context.Context, key string, destination any) bool {
	value, err := c.engine.Fetch(ctx, c.key(key))
	if err != nil || value == nil {
		return false
	}

	uncompressed, err := inflate(value)
	if err != nil {
		return false
	}

	return json.Unmarshal(uncompressed, destination) == nil
}
