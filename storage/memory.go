package storage

import (
	"context"
	"sort"
	"sync"

	"goflare.io/stride/internal/utils"
)

const defaultMemoryShards = 8

// Memory is an in-process Medium. It does not survive restarts and is meant
// for tests and ephemeral sessions.
type Memory struct {
	shards []memoryShard
}

type memoryShard struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory creates an empty Memory medium.
func NewMemory() *Memory {
	m := &Memory{shards: make([]memoryShard, defaultMemoryShards)}
	for i := range m.shards {
		m.shards[i].data = make(map[string]string)
	}
	return m
}

func (m *Memory) shard(key string) *memoryShard {
	return &m.shards[utils.ShardIndex(uint64(len(m.shards)), key)]
}

// Read implements Medium.
func (m *Memory) Read(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s := m.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	return value, ok, nil
}

// Write implements Medium.
func (m *Memory) Write(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Delete implements Medium.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Keys implements Scanner. Keys are returned sorted.
func (m *Memory) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		for k := range s.data {
			keys = append(keys, k)
		}
		s.mu.RUnlock()
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.data)
		s.mu.RUnlock()
	}
	return n
}
