package stride

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"goflare.io/stride/internal/config"
	"goflare.io/stride/lookup"
	"goflare.io/stride/storage"
)

// Option configures a Session.
type Option func(*builder) error

type builder struct {
	cfg        *config.Config
	loggerSet  bool
	medium     storage.Medium
	sqlitePath string
	redis      *redis.Options
	service    lookup.Service
	registerer prometheus.Registerer
}

func withConfig(option config.Option) Option {
	return func(b *builder) error {
		return option(b.cfg)
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *builder) error {
		if logger == nil {
			return nil
		}
		b.loggerSet = true
		return config.WithLogger(logger)(b.cfg)
	}
}

// WithMedium persists the session state in medium.
func WithMedium(medium storage.Medium) Option {
	return func(b *builder) error {
		b.medium = medium
		return nil
	}
}

// WithSQLite persists the session state in the SQLite database at path.
func WithSQLite(path string) Option {
	return func(b *builder) error {
		b.sqlitePath = path
		return nil
	}
}

// WithRedis persists the session state in Redis.
func WithRedis(opts *redis.Options) Option {
	return func(b *builder) error {
		b.redis = opts
		return nil
	}
}

// WithLookupService replaces the HTTP lookup client.
func WithLookupService(service lookup.Service) Option {
	return func(b *builder) error {
		b.service = service
		return nil
	}
}

// WithMetrics registers the session collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(b *builder) error {
		b.registerer = reg
		return nil
	}
}

// WithDefaultTTL sets how long fetched records stay cached.
func WithDefaultTTL(ttl time.Duration) Option {
	return withConfig(config.WithDefaultTTL(ttl))
}

// WithPalette replaces the selection colors.
func WithPalette(colors ...string) Option {
	return withConfig(config.WithPalette(colors...))
}

// WithDebounceWindow sets the search quiescence window.
func WithDebounceWindow(window time.Duration) Option {
	return withConfig(config.WithDebounceWindow(window))
}

// WithMinQueryLength sets the shortest query that is sent.
func WithMinQueryLength(n int) Option {
	return withConfig(config.WithMinQueryLength(n))
}

// WithLookupURL sets the base URL of the athlete database.
func WithLookupURL(baseURL string) Option {
	return withConfig(config.WithLookupURL(baseURL))
}

// WithSerialization selects the cache entry codec, "json" or "gob".
func WithSerialization(name string) Option {
	return withConfig(config.WithSerialization(name))
}

// WithLocalCache toggles the in-process read cache in front of the medium.
func WithLocalCache(enabled bool) Option {
	return withConfig(config.WithLocalCache(enabled))
}

// WithBloomFilter toggles the negative-lookup filter in front of the medium.
func WithBloomFilter(enabled bool) Option {
	return withConfig(config.WithBloomFilter(enabled))
}

// WithClock replaces the wall clock used to stamp cache entries.
func WithClock(now func() time.Time) Option {
	return withConfig(config.WithClock(now))
}

// WithDistances replaces the built-in distances and the custom maximum.
func WithDistances(defaults []float64, maximum float64) Option {
	return withConfig(config.WithDistances(defaults, maximum))
}
