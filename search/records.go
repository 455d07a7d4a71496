package search

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"goflare.io/stride/cache"
	"goflare.io/stride/lookup"
	"goflare.io/stride/metrics"
	"goflare.io/stride/pace"
)

// RecordLoaderConfig configures a RecordLoader.
type RecordLoaderConfig struct {
	// KeyPrefix namespaces the cache keys, e.g. "athlete_records_".
	KeyPrefix string
	Logger    *zap.Logger
	Recorder  *metrics.Recorder
}

// RecordLoader fetches athlete records, serving them from the TTL cache when
// possible. Concurrent loads of one athlete share a single remote call.
type RecordLoader struct {
	service  lookup.Service
	cache    *cache.Cache[pace.Records]
	prefix   string
	group    singleflight.Group
	mu       sync.Mutex
	loading  map[string]int
	logger   *zap.Logger
	recorder *metrics.Recorder
}

// NewRecordLoader builds a loader over service and records.
func NewRecordLoader(service lookup.Service, records *cache.Cache[pace.Records], cfg RecordLoaderConfig) *RecordLoader {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordLoader{
		service:  service,
		cache:    records,
		prefix:   cfg.KeyPrefix,
		loading:  make(map[string]int),
		logger:   logger,
		recorder: cfg.Recorder,
	}
}

// Load returns the records of id. The athlete is flagged as loading until
// Load returns, whatever the outcome. Failed fetches are not cached.
func (l *RecordLoader) Load(ctx context.Context, id string) (pace.Records, error) {
	l.begin(id)
	defer l.end(id)

	key := cache.Key(l.prefix, id)
	records, found, err := l.cache.Get(ctx, key)
	if err != nil {
		l.logger.Warn("Failed to read cached records", zap.String("id", id), zap.Error(err))
	}
	if found {
		l.recorder.RecordFetch("cache")
		return records, nil
	}

	ch := l.group.DoChan(id, func() (any, error) {
		return l.fetch(ctx, id, key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			l.recorder.RecordFetch("failed")
			return nil, res.Err
		}
		return res.Val.(pace.Records), nil
	}
}

func (l *RecordLoader) fetch(ctx context.Context, id, key string) (pace.Records, error) {
	records, err := l.service.FetchRecords(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records of %s: %w", id, err)
	}
	l.recorder.RecordFetch("remote")
	if err := l.cache.Set(ctx, key, records); err != nil {
		l.logger.Warn("Failed to cache records", zap.String("id", id), zap.Error(err))
	}
	return records, nil
}

// Invalidate drops the cached records of id.
func (l *RecordLoader) Invalidate(ctx context.Context, id string) error {
	return l.cache.Remove(ctx, cache.Key(l.prefix, id))
}

// IsLoading reports whether a load of id is running.
func (l *RecordLoader) IsLoading(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading[id] > 0
}

func (l *RecordLoader) begin(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading[id]++
}

func (l *RecordLoader) end(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loading[id] <= 1 {
		delete(l.loading, id)
		return
	}
	l.loading[id]--
}
