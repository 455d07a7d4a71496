package models

import (
	"time"
)

// Entry is a cached payload with its write and expiry timestamps in Unix
// milliseconds.
type Entry[T any] struct {
	Data      T     `json:"data"`
	CachedAt  int64 `json:"cachedAt"`
	ExpiresAt int64 `json:"expiresAt"`
}

// NewEntry stamps data with now and now+ttl.
func NewEntry[T any](data T, now time.Time, ttl time.Duration) *Entry[T] {
	cachedAt := now.UnixMilli()
	return &Entry[T]{
		Data:      data,
		CachedAt:  cachedAt,
		ExpiresAt: cachedAt + ttl.Milliseconds(),
	}
}

// IsExpired reports whether now is strictly past the expiry.
func (e *Entry[T]) IsExpired(now time.Time) bool {
	return now.UnixMilli() > e.ExpiresAt
}

// Expiration returns the expiry as a time.
func (e *Entry[T]) Expiration() time.Time {
	return time.UnixMilli(e.ExpiresAt)
}
