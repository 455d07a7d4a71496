package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/dgraph-io/ristretto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TieredConfig configures the layers in front of the backing medium.
type TieredConfig struct {
	LocalCache  bool
	MaxCost     int64
	NumCounters int64

	BloomFilter       bool
	ExpectedItems     uint
	FalsePositiveRate float64
	FilterKey         string
}

// Tiered is a write-through Medium that serves reads from an in-process
// ristretto cache and answers reads of never-written keys from a bloom filter
// before falling back to the backing medium.
type Tiered struct {
	backend Medium
	local   *ristretto.Cache
	filter  *BloomFilter
	tracer  trace.Tracer
	logger  *zap.Logger
}

// NewTiered builds the layers and loads the persisted filter. When no filter
// was saved it is rebuilt from the backend's keys, or disabled if the
// backend cannot list them.
func NewTiered(ctx context.Context, backend Medium, cfg TieredConfig, logger *zap.Logger) (*Tiered, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tiered{
		backend: backend,
		tracer:  otel.Tracer("stride/storage"),
		logger:  logger,
	}

	if cfg.LocalCache {
		local, err := ristretto.NewCache(&ristretto.Config{
			NumCounters:        max(cfg.NumCounters, 1000),
			MaxCost:            max(cfg.MaxCost, 100),
			BufferItems:        64,
			IgnoreInternalCost: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ristretto cache: %w", err)
		}
		t.local = local
	}

	if cfg.BloomFilter {
		key := cfg.FilterKey
		if key == "" {
			key = "__stride_bloom_filter"
		}
		filter := NewBloomFilter(key, max(cfg.ExpectedItems, 1), cfg.FalsePositiveRate, logger)
		enabled, err := t.loadFilter(ctx, filter)
		if err != nil {
			if t.local != nil {
				t.local.Close()
			}
			return nil, err
		}
		if enabled {
			t.filter = filter
		}
	}

	return t, nil
}

func (t *Tiered) loadFilter(ctx context.Context, filter *BloomFilter) (bool, error) {
	loaded, err := filter.Load(ctx, t.backend)
	if err != nil {
		return false, err
	}
	if loaded {
		t.logger.Debug("Loaded bloom filter", zap.String("key", filter.Key()))
		return true, nil
	}

	scanner, ok := t.backend.(Scanner)
	if !ok {
		t.logger.Info("Bloom filter not found and backend cannot list keys, filter disabled")
		return false, nil
	}
	keys, err := scanner.Keys(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list keys for bloom filter: %w", err)
	}
	filter.Rebuild(keys)
	if err := filter.Save(ctx, t.backend); err != nil {
		t.logger.Warn("Failed to persist rebuilt bloom filter", zap.Error(err))
	}
	t.logger.Info("Rebuilt bloom filter", zap.Int("keys", len(keys)))
	return true, nil
}

// Read implements Medium.
func (t *Tiered) Read(ctx context.Context, key string) (string, bool, error) {
	ctx, span := t.tracer.Start(ctx, "Tiered.Read", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	if t.filter != nil && key != t.filter.Key() && !t.filter.Test(key) {
		return "", false, nil
	}

	if t.local != nil {
		if value, found := t.local.Get(key); found {
			if s, ok := value.(string); ok {
				return s, true, nil
			}
		}
	}

	value, found, err := t.backend.Read(ctx, key)
	if err != nil || !found {
		return "", false, err
	}
	if t.local != nil {
		t.local.Set(key, value, 1)
	}
	return value, true, nil
}

// Write implements Medium.
func (t *Tiered) Write(ctx context.Context, key, value string) error {
	ctx, span := t.tracer.Start(ctx, "Tiered.Write", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	if err := t.backend.Write(ctx, key, value); err != nil {
		if t.local != nil {
			t.local.Del(key)
		}
		return err
	}

	if t.local != nil {
		if !t.local.Set(key, value, 1) {
			t.logger.Debug("Ristretto dropped set", zap.String("key", key))
			t.local.Del(key)
		}
		t.local.Wait()
	}

	if t.filter != nil && t.filter.Add(key) {
		if err := t.filter.Save(ctx, t.backend); err != nil {
			t.logger.Warn("Failed to save bloom filter", zap.Error(err))
		}
	}
	return nil
}

// Delete implements Medium.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	ctx, span := t.tracer.Start(ctx, "Tiered.Delete", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	if t.local != nil {
		t.local.Del(key)
	}
	return t.backend.Delete(ctx, key)
}

// Keys implements Scanner when the backend does. The filter key is hidden.
func (t *Tiered) Keys(ctx context.Context) ([]string, error) {
	scanner, ok := t.backend.(Scanner)
	if !ok {
		return nil, fmt.Errorf("backend %T cannot list keys", t.backend)
	}
	keys, err := scanner.Keys(ctx)
	if err != nil || t.filter == nil {
		return keys, err
	}
	visible := keys[:0]
	for _, k := range keys {
		if k != t.filter.Key() {
			visible = append(visible, k)
		}
	}
	return visible, nil
}

// FilterEnabled reports whether reads consult the bloom filter.
func (t *Tiered) FilterEnabled() bool {
	return t.filter != nil
}

// Close releases the local cache and closes the backend if it is closable.
func (t *Tiered) Close() error {
	if t.local != nil {
		t.local.Close()
	}
	if closer, ok := t.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
