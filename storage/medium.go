// Package storage provides the durable key-value media that back every
// persisted store: an in-memory map, SQLite, Redis and a tiered medium that
// fronts any of them with a local read cache and a bloom filter.
package storage

import (
	"context"
	"errors"
)

// ErrClosed is returned by media used after Close.
var ErrClosed = errors.New("storage: medium closed")

// Medium is a string key-value store that outlives the process.
type Medium interface {
	// Read returns the value stored under key and whether it exists.
	Read(ctx context.Context, key string) (string, bool, error)
	// Write stores value under key, replacing any previous value.
	Write(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Scanner is implemented by media that can list their keys.
type Scanner interface {
	Keys(ctx context.Context) ([]string, error)
}
