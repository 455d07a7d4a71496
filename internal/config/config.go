package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"goflare.io/stride/pkg/serialization"
)

// Config is the session-wide configuration.
type Config struct {
	DefaultTTL       time.Duration
	RecordsKeyPrefix string
	Palette          []string

	Keys          StorageKeys
	Search        SearchConfig
	Distances     DistanceConfig
	Resilience    ResilienceConfig
	LocalCache    LocalCacheConfig
	BloomFilter   BloomFilterConfig
	Lookup        LookupConfig
	Serialization serialization.Codec
	Logger        *zap.Logger

	// Now is the clock used for cache stamping.
	Now func() time.Time
}

// StorageKeys names the medium keys of every persisted store.
type StorageKeys struct {
	ColorUsage       string
	Selection        string
	CustomDistances  string
	MinPace          string
	MaxPace          string
	Increment        string
	VMA              string
	ShowVMA          string
	ShowWorldRecords string
}

// SearchConfig drives the debounced athlete search.
type SearchConfig struct {
	DebounceWindow time.Duration
	MinQueryLength int
	// WarmupConcurrency bounds parallel record loads after restore.
	WarmupConcurrency int
}

// DistanceConfig holds the built-in distances and the custom upper bound.
type DistanceConfig struct {
	Defaults []float64
	Max      float64
}

// ResilienceConfig configures retries and the circuit breaker around remote calls.
type ResilienceConfig struct {
	CircuitBreaker      gobreaker.Settings
	MaxRetries          int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// LocalCacheConfig sizes the in-process read cache in front of the medium.
type LocalCacheConfig struct {
	Enabled     bool
	MaxCost     int64
	NumCounters int64
}

// BloomFilterConfig sizes the negative-lookup filter of the tiered medium.
type BloomFilterConfig struct {
	Enabled           bool
	ExpectedItems     uint
	FalsePositiveRate float64
	Key               string
}

// LookupConfig points at the remote athlete service.
type LookupConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Option mutates a Config.
type Option func(*Config) error

var (
	ErrEmptyPalette   = errors.New("palette must contain at least one color")
	ErrInvalidTTL     = errors.New("default TTL must be positive")
	ErrInvalidWindow  = errors.New("debounce window must not be negative")
	ErrInvalidMaximum = errors.New("distance maximum must be positive")
)

// DefaultPalette is the ordered set of selection colors.
var DefaultPalette = []string{
	"#03A9F4",
	"#F44336",
	"#9C27B0",
	"#607D8B",
	"#E91E63",
	"#3F51B5",
	"#795548",
	"#009688",
	"#00BCD4",
	"#4CAF50",
}

// DefaultDistances are the built-in table rows in metres.
var DefaultDistances = []float64{
	100, 200, 300, 400, 500, 600, 800, 1000, 1500, 1609.34,
	3000, 5000, 10000, 20000, 21097, 42195,
}

// NewConfig builds the default Config and applies options.
func NewConfig(options ...Option) (*Config, error) {
	cfg := &Config{
		DefaultTTL:       24 * time.Hour,
		RecordsKeyPrefix: "athlete_records_",
		Palette:          append([]string(nil), DefaultPalette...),
		Keys: StorageKeys{
			ColorUsage:       "colorUsage",
			Selection:        "selectedAthletes",
			CustomDistances:  "customDistances",
			MinPace:          "selectedMinPace",
			MaxPace:          "selectedMaxPace",
			Increment:        "selectedIncrement",
			VMA:              "selectedVMA",
			ShowVMA:          "showVMA",
			ShowWorldRecords: "showWorldRecords",
		},
		Search: SearchConfig{
			DebounceWindow:    200 * time.Millisecond,
			MinQueryLength:    3,
			WarmupConcurrency: 4,
		},
		Distances: DistanceConfig{
			Defaults: append([]float64(nil), DefaultDistances...),
			Max:      100000,
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: gobreaker.Settings{
				Name:        "LookupCircuitBreaker",
				MaxRequests: 3,
				Interval:    60 * time.Second,
				Timeout:     30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures > 5
				},
			},
			MaxRetries:          3,
			InitialInterval:     100 * time.Millisecond,
			MaxInterval:         time.Second,
			Multiplier:          2,
			RandomizationFactor: 0.1,
		},
		LocalCache: LocalCacheConfig{
			Enabled:     true,
			MaxCost:     1 << 14,
			NumCounters: 1 << 17,
		},
		BloomFilter: BloomFilterConfig{
			Enabled:           true,
			ExpectedItems:     10000,
			FalsePositiveRate: 0.01,
			Key:               "__stride_bloom_filter",
		},
		Lookup: LookupConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 10 * time.Second,
		},
		Serialization: serialization.JSON(),
		Logger:        zap.NewNop(),
		Now:           time.Now,
	}

	for _, option := range options {
		if err := option(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the stores rely on.
func (c *Config) Validate() error {
	if len(c.Palette) == 0 {
		return ErrEmptyPalette
	}
	if c.DefaultTTL <= 0 {
		return ErrInvalidTTL
	}
	if c.Search.DebounceWindow < 0 {
		return ErrInvalidWindow
	}
	if c.Distances.Max <= 0 {
		return ErrInvalidMaximum
	}
	if c.Search.WarmupConcurrency < 1 {
		c.Search.WarmupConcurrency = 1
	}
	return nil
}

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) error {
		if logger != nil {
			c.Logger = logger
		}
		return nil
	}
}

// WithDefaultTTL sets the records cache lifetime.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Config) error {
		if ttl <= 0 {
			return ErrInvalidTTL
		}
		c.DefaultTTL = ttl
		return nil
	}
}

// WithPalette replaces the color pool.
func WithPalette(colors ...string) Option {
	return func(c *Config) error {
		if len(colors) == 0 {
			return ErrEmptyPalette
		}
		c.Palette = append([]string(nil), colors...)
		return nil
	}
}

// WithDebounceWindow sets the search quiescence window.
func WithDebounceWindow(window time.Duration) Option {
	return func(c *Config) error {
		if window < 0 {
			return ErrInvalidWindow
		}
		c.Search.DebounceWindow = window
		return nil
	}
}

// WithMinQueryLength sets the shortest query that reaches the network.
func WithMinQueryLength(n int) Option {
	return func(c *Config) error {
		if n < 0 {
			return fmt.Errorf("min query length must not be negative: %d", n)
		}
		c.Search.MinQueryLength = n
		return nil
	}
}

// WithLookupURL sets the remote service base URL.
func WithLookupURL(baseURL string) Option {
	return func(c *Config) error {
		c.Lookup.BaseURL = baseURL
		return nil
	}
}

// WithSerialization selects the codec by name.
func WithSerialization(name string) Option {
	return func(c *Config) error {
		codec, err := serialization.ByName(name)
		if err != nil {
			return err
		}
		c.Serialization = codec
		return nil
	}
}

// WithLocalCache toggles the in-process read cache.
func WithLocalCache(enabled bool) Option {
	return func(c *Config) error {
		c.LocalCache.Enabled = enabled
		return nil
	}
}

// WithBloomFilter toggles the negative-lookup filter.
func WithBloomFilter(enabled bool) Option {
	return func(c *Config) error {
		c.BloomFilter.Enabled = enabled
		return nil
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Config) error {
		if now != nil {
			c.Now = now
		}
		return nil
	}
}

// WithDistances replaces the default distance set and maximum.
func WithDistances(defaults []float64, maximum float64) Option {
	return func(c *Config) error {
		if maximum <= 0 {
			return ErrInvalidMaximum
		}
		c.Distances.Defaults = append([]float64(nil), defaults...)
		c.Distances.Max = maximum
		return nil
	}
}
