// Package settings persists the table preferences as plain text values, one
// key each.
package settings

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"goflare.io/stride/pkg/observable"
	"goflare.io/stride/storage"
)

// Scalar is a single persisted value. Every change is written back as text.
type Scalar[T comparable] struct {
	medium storage.Medium
	key    string
	format func(T) string
	value  *observable.Value[T]
	logger *zap.Logger
}

func load[T comparable](ctx context.Context, medium storage.Medium, key string, def T,
	parse func(string) (T, bool), format func(T) string, logger *zap.Logger) (*Scalar[T], error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	raw, found, err := medium.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	initial := def
	if found {
		if v, ok := parse(raw); ok {
			initial = v
		} else {
			logger.Warn("Ignoring unparseable setting", zap.String("key", key), zap.String("value", raw))
		}
	}

	s := &Scalar[T]{
		medium: medium,
		key:    key,
		format: format,
		value:  observable.New(initial),
		logger: logger,
	}
	s.persist(ctx, initial)
	return s, nil
}

// LoadFloat restores a number. Stored text that does not parse yields def.
func LoadFloat(ctx context.Context, medium storage.Medium, key string, def float64, logger *zap.Logger) (*Scalar[float64], error) {
	return load(ctx, medium, key, def, parseFloat, formatFloat, logger)
}

// LoadBool restores a flag. Only the text "true" is true.
func LoadBool(ctx context.Context, medium storage.Medium, key string, def bool, logger *zap.Logger) (*Scalar[bool], error) {
	return load(ctx, medium, key, def, parseBool, strconv.FormatBool, logger)
}

func parseFloat(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(raw, 64)
	return v, err == nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseBool(raw string) (bool, bool) {
	return raw == "true", true
}

// Key returns the storage key.
func (s *Scalar[T]) Key() string {
	return s.key
}

// Get returns the current value.
func (s *Scalar[T]) Get() T {
	return s.value.Get()
}

// Set stores v.
func (s *Scalar[T]) Set(ctx context.Context, v T) {
	s.value.Mutate(func(current T) (T, bool) {
		if current == v {
			return current, false
		}
		s.persist(ctx, v)
		return v, true
	})
}

// Update derives the next value from the current one.
func (s *Scalar[T]) Update(ctx context.Context, fn func(T) T) T {
	next, _ := s.value.Mutate(func(current T) (T, bool) {
		v := fn(current)
		if v == current {
			return current, false
		}
		s.persist(ctx, v)
		return v, true
	})
	return next
}

// Subscribe calls fn with the value now and after every change.
func (s *Scalar[T]) Subscribe(fn func(T)) func() {
	return s.value.Subscribe(fn)
}

// Watch streams the value until ctx is done.
func (s *Scalar[T]) Watch(ctx context.Context) <-chan T {
	return s.value.Watch(ctx)
}

func (s *Scalar[T]) persist(ctx context.Context, v T) {
	if err := s.medium.Write(ctx, s.key, s.format(v)); err != nil {
		s.logger.Warn("Failed to persist setting", zap.String("key", s.key), zap.Error(err))
	}
}
