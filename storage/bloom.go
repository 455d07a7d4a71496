package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"
)

// BloomFilter remembers which keys were ever written so reads of unknown
// keys can skip the backing medium. It is persisted into that medium.
type BloomFilter struct {
	mu       sync.RWMutex
	filter   *bloom.BloomFilter
	key      string
	expected uint
	fpRate   float64
	logger   *zap.Logger
}

// NewBloomFilter creates an empty filter persisted under key.
func NewBloomFilter(key string, expectedItems uint, fpRate float64, logger *zap.Logger) *BloomFilter {
	return &BloomFilter{
		filter:   bloom.NewWithEstimates(expectedItems, fpRate),
		key:      key,
		expected: expectedItems,
		fpRate:   fpRate,
		logger:   logger,
	}
}

// Key returns the medium key the filter is saved under.
func (bf *BloomFilter) Key() string {
	return bf.key
}

// Add records key and reports whether it was not already present.
func (bf *BloomFilter) Add(key string) bool {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	return !bf.filter.TestAndAdd([]byte(key))
}

// Test reports whether key might have been added.
func (bf *BloomFilter) Test(key string) bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return bf.filter.Test([]byte(key))
}

// Save writes the filter into m.
func (bf *BloomFilter) Save(ctx context.Context, m Medium) error {
	bf.mu.RLock()
	var buf bytes.Buffer
	_, err := bf.filter.WriteTo(&buf)
	bf.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to serialize bloom filter: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	if err := m.Write(ctx, bf.key, encoded); err != nil {
		return fmt.Errorf("failed to save bloom filter: %w", err)
	}
	return nil
}

// Load replaces the filter with the copy saved in m. It reports false when
// nothing usable was saved.
func (bf *BloomFilter) Load(ctx context.Context, m Medium) (bool, error) {
	encoded, found, err := m.Read(ctx, bf.key)
	if err != nil {
		return false, fmt.Errorf("failed to load bloom filter: %w", err)
	}
	if !found {
		return false, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		bf.logger.Warn("Discarding undecodable bloom filter", zap.Error(err))
		return false, nil
	}
	filter := &bloom.BloomFilter{}
	if _, err := filter.ReadFrom(bytes.NewReader(decoded)); err != nil {
		bf.logger.Warn("Discarding corrupt bloom filter", zap.Error(err))
		return false, nil
	}

	bf.mu.Lock()
	bf.filter = filter
	bf.mu.Unlock()
	return true, nil
}

// Rebuild resets the filter to exactly keys.
func (bf *BloomFilter) Rebuild(keys []string) {
	filter := bloom.NewWithEstimates(bf.expected, bf.fpRate)
	for _, key := range keys {
		filter.Add([]byte(key))
	}
	bf.mu.Lock()
	bf.filter = filter
	bf.mu.Unlock()
}
