// Package numlist keeps a sorted set of numbers split into built-in defaults
// and user additions. Only the additions are persisted.
package numlist

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"goflare.io/stride/pkg/observable"
	"goflare.io/stride/storage"
)

// Config describes a Store.
type Config struct {
	// Defaults are always present and can not be removed.
	Defaults []float64
	// Max is the largest accepted custom value.
	Max    float64
	Key    string
	Logger *zap.Logger
}

// Store is an ascending, duplicate-free list of positive numbers.
type Store struct {
	defaults map[float64]struct{}
	max      float64
	medium   storage.Medium
	key      string
	value    *observable.Value[[]float64]
	logger   *zap.Logger
}

// Load builds the list from the defaults and the custom values persisted
// under cfg.Key. Malformed or out-of-range stored values are dropped.
func Load(ctx context.Context, medium storage.Medium, cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		defaults: make(map[float64]struct{}, len(cfg.Defaults)),
		max:      cfg.Max,
		medium:   medium,
		key:      cfg.Key,
		logger:   logger,
	}

	values := make([]float64, 0, len(cfg.Defaults))
	for _, d := range cfg.Defaults {
		if _, dup := s.defaults[d]; dup {
			continue
		}
		s.defaults[d] = struct{}{}
		values = append(values, d)
	}

	custom, err := s.loadCustom(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range custom {
		if s.valid(v) && !slices.Contains(values, v) {
			values = append(values, v)
		}
	}
	slices.Sort(values)

	s.value = observable.New(values)
	s.persist(ctx, values)
	return s, nil
}

func (s *Store) loadCustom(ctx context.Context) ([]float64, error) {
	raw, found, err := s.medium.Read(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.key, err)
	}
	if !found {
		return nil, nil
	}
	var custom []float64
	if err := json.Unmarshal([]byte(raw), &custom); err != nil {
		s.logger.Warn("Ignoring malformed custom values", zap.String("key", s.key), zap.Error(err))
		return nil, nil
	}
	return custom, nil
}

// Add parses raw and inserts it in order. Non-numeric, non-finite,
// non-positive, too large or already present values are ignored and Add
// reports false.
func (s *Store) Add(ctx context.Context, raw string) bool {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || !s.valid(v) {
		return false
	}
	return s.commit(ctx, func(current []float64) ([]float64, bool) {
		i, found := slices.BinarySearch(current, v)
		if found {
			return current, false
		}
		return slices.Insert(slices.Clone(current), i, v), true
	})
}

// Remove deletes a custom value. Defaults stay.
func (s *Store) Remove(ctx context.Context, v float64) bool {
	if s.IsDefault(v) {
		return false
	}
	return s.commit(ctx, func(current []float64) ([]float64, bool) {
		i, found := slices.BinarySearch(current, v)
		if !found {
			return current, false
		}
		return slices.Delete(slices.Clone(current), i, i+1), true
	})
}

// IsDefault reports whether v is one of the built-in values.
func (s *Store) IsDefault(v float64) bool {
	_, ok := s.defaults[v]
	return ok
}

// Values returns the full ascending list.
func (s *Store) Values() []float64 {
	return slices.Clone(s.value.Get())
}

// Custom returns the user-added values in ascending order.
func (s *Store) Custom() []float64 {
	return s.custom(s.value.Get())
}

// Subscribe calls fn with the list now and after every change. The slice
// must not be modified.
func (s *Store) Subscribe(fn func([]float64)) func() {
	return s.value.Subscribe(fn)
}

// Watch streams the list until ctx is done.
func (s *Store) Watch(ctx context.Context) <-chan []float64 {
	return s.value.Watch(ctx)
}

func (s *Store) valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0 && v <= s.max
}

func (s *Store) custom(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !s.IsDefault(v) {
			out = append(out, v)
		}
	}
	return out
}

func (s *Store) commit(ctx context.Context, fn func([]float64) ([]float64, bool)) bool {
	_, changed := s.value.Mutate(func(current []float64) ([]float64, bool) {
		next, changed := fn(current)
		if changed {
			s.persist(ctx, next)
		}
		return next, changed
	})
	return changed
}

func (s *Store) persist(ctx context.Context, values []float64) {
	data, err := json.Marshal(s.custom(values))
	if err != nil {
		s.logger.Error("Failed to encode custom values", zap.Error(err))
		return
	}
	if err := s.medium.Write(ctx, s.key, string(data)); err != nil {
		s.logger.Warn("Failed to persist custom values", zap.String("key", s.key), zap.Error(err))
	}
}
