// Package cache stores payloads in a storage medium with a time-to-live.
// Expiry is lazy: an expired entry is removed when it is next read.
package cache

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"goflare.io/stride/internal/models"
	"goflare.io/stride/internal/utils"
	"goflare.io/stride/metrics"
	"goflare.io/stride/pkg/serialization"
	"goflare.io/stride/storage"
)

// DefaultTTL is the lifetime used when Set is given none.
const DefaultTTL = 24 * time.Hour

// Cache is a TTL cache of T values over a storage.Medium.
type Cache[T any] struct {
	medium     storage.Medium
	codec      serialization.Codec
	defaultTTL time.Duration
	now        func() time.Time
	metrics    *models.Metrics
	recorder   *metrics.Recorder
	tracer     trace.Tracer
	logger     *zap.Logger
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	codec      serialization.Codec
	defaultTTL time.Duration
	now        func() time.Time
	recorder   *metrics.Recorder
	logger     *zap.Logger
}

// WithCodec sets the entry codec. JSON is the default.
func WithCodec(codec serialization.Codec) Option {
	return func(o *options) { o.codec = codec }
}

// WithDefaultTTL sets the lifetime used when Set is given none.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.defaultTTL = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRecorder reports hits, misses and expirations.
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates a Cache over medium.
func New[T any](medium storage.Medium, opts ...Option) *Cache[T] {
	o := options{
		codec:      serialization.JSON(),
		defaultTTL: DefaultTTL,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[T]{
		medium:     medium,
		codec:      o.codec,
		defaultTTL: o.defaultTTL,
		now:        o.now,
		metrics:    models.NewMetrics(),
		recorder:   o.recorder,
		tracer:     otel.Tracer("stride/cache"),
		logger:     o.logger,
	}
}

// Get returns the payload stored under key if present and unexpired. Expired
// entries are deleted. Undecodable entries count as absent. The error is
// only set when the medium itself fails.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	ctx, span := c.tracer.Start(ctx, "Cache.Get", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	var zero T
	raw, found, err := c.medium.Read(ctx, key)
	if err != nil {
		return zero, false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	if !found {
		c.miss()
		return zero, false, nil
	}

	var entry models.Entry[T]
	if err := c.codec.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("Ignoring malformed cache entry", zap.String("key", key), zap.Error(err))
		c.metrics.Malformed.Inc()
		c.miss()
		return zero, false, nil
	}

	if entry.IsExpired(c.now()) {
		c.metrics.Expirations.Inc()
		c.recorder.CacheExpired()
		c.miss()
		if err := c.medium.Delete(ctx, key); err != nil {
			c.logger.Warn("Failed to delete expired cache entry", zap.String("key", key), zap.Error(err))
		}
		return zero, false, nil
	}

	c.metrics.Hits.Inc()
	c.recorder.CacheHit()
	return entry.Data, true, nil
}

// Set stores payload under key for ttl, or the default TTL when omitted. An
// explicit zero or negative ttl is kept as given.
func (c *Cache[T]) Set(ctx context.Context, key string, payload T, ttl ...time.Duration) error {
	ctx, span := c.tracer.Start(ctx, "Cache.Set", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	entry := models.NewEntry(payload, c.now(), utils.ResolveTTL(c.defaultTTL, ttl...))
	raw, err := c.codec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := c.medium.Write(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	return nil
}

// Remove deletes key. Missing keys are not an error.
func (c *Cache[T]) Remove(ctx context.Context, key string) error {
	if err := c.medium.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to remove cache entry %s: %w", key, err)
	}
	return nil
}

// Metrics returns a snapshot of the cache counters.
func (c *Cache[T]) Metrics() models.Snapshot {
	return c.metrics.Snapshot()
}

// DefaultTTL returns the lifetime used when Set is given none.
func (c *Cache[T]) DefaultTTL() time.Duration {
	return c.defaultTTL
}

func (c *Cache[T]) miss() {
	c.metrics.Misses.Inc()
	c.recorder.CacheMiss()
}

// Key builds the key of id within a subdomain prefix.
func Key(prefix, id string) string {
	return utils.Key(prefix, id)
}
