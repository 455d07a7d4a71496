// Package stride is the client-side state of the pace calculator: the
// selected athletes and their colors, the athlete search, the cached
// records and the table preferences, all persisted in one medium.
package stride

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"goflare.io/stride/cache"
	"goflare.io/stride/internal/config"
	"goflare.io/stride/internal/retrier"
	"goflare.io/stride/lookup"
	"goflare.io/stride/metrics"
	"goflare.io/stride/numlist"
	"goflare.io/stride/pace"
	"goflare.io/stride/palette"
	"goflare.io/stride/search"
	"goflare.io/stride/selection"
	"goflare.io/stride/settings"
	"goflare.io/stride/storage"
)

// Session owns every store of one user session. Create it with New and
// release it with Close.
type Session struct {
	cfg      *config.Config
	medium   storage.Medium
	closer   io.Closer
	recorder *metrics.Recorder
	logger   *zap.Logger

	records   *cache.Cache[pace.Records]
	palette   *palette.Pool
	selection *selection.Store
	distances *numlist.Store
	settings  *settings.Settings
	search    *search.Controller
	loader    *search.RecordLoader
	status    *search.StatusTracker

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a session and restores the persisted state. Without a medium
// option the state lives in memory only.
func New(ctx context.Context, opts ...Option) (*Session, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}
	b := &builder{cfg: cfg}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !b.loggerSet {
		logger, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize default logger: %w", err)
		}
		cfg.Logger = logger
	}
	logger := cfg.Logger

	var recorder *metrics.Recorder
	if b.registerer != nil {
		if recorder, err = metrics.NewRecorder(b.registerer); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	backend, err := openMedium(ctx, b)
	if err != nil {
		return nil, err
	}
	medium := backend
	var closer io.Closer
	if c, ok := backend.(io.Closer); ok {
		closer = c
	}
	if cfg.LocalCache.Enabled || cfg.BloomFilter.Enabled {
		tiered, err := storage.NewTiered(ctx, backend, storage.TieredConfig{
			LocalCache:        cfg.LocalCache.Enabled,
			MaxCost:           cfg.LocalCache.MaxCost,
			NumCounters:       cfg.LocalCache.NumCounters,
			BloomFilter:       cfg.BloomFilter.Enabled,
			ExpectedItems:     cfg.BloomFilter.ExpectedItems,
			FalsePositiveRate: cfg.BloomFilter.FalsePositiveRate,
			FilterKey:         cfg.BloomFilter.Key,
		}, logger)
		if err != nil {
			closeQuietly(closer, logger)
			return nil, fmt.Errorf("failed to initialize tiered storage: %w", err)
		}
		medium, closer = tiered, tiered
	}

	s, err := build(ctx, cfg, b, medium, recorder)
	if err != nil {
		closeQuietly(closer, logger)
		return nil, err
	}
	s.closer = closer
	return s, nil
}

func build(ctx context.Context, cfg *config.Config, b *builder, medium storage.Medium, recorder *metrics.Recorder) (*Session, error) {
	logger := cfg.Logger

	service := b.service
	if service == nil {
		client, err := newLookupClient(cfg)
		if err != nil {
			return nil, err
		}
		service = client
	}

	records := cache.New[pace.Records](medium,
		cache.WithCodec(cfg.Serialization),
		cache.WithDefaultTTL(cfg.DefaultTTL),
		cache.WithClock(cfg.Now),
		cache.WithRecorder(recorder),
		cache.WithLogger(logger),
	)

	pool, err := palette.Load(ctx, medium, palette.Config{
		Colors:   cfg.Palette,
		Key:      cfg.Keys.ColorUsage,
		Logger:   logger,
		Recorder: recorder,
	})
	if err != nil {
		return nil, err
	}

	selected := selection.New(pool, medium, selection.Config{
		Key:      cfg.Keys.Selection,
		Logger:   logger,
		Recorder: recorder,
	})
	if err := selected.Restore(ctx); err != nil {
		return nil, err
	}

	distances, err := numlist.Load(ctx, medium, numlist.Config{
		Defaults: cfg.Distances.Defaults,
		Max:      cfg.Distances.Max,
		Key:      cfg.Keys.CustomDistances,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	prefs, err := settings.Load(ctx, medium, cfg.Keys, logger)
	if err != nil {
		return nil, err
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:       cfg,
		medium:    medium,
		recorder:  recorder,
		logger:    logger,
		records:   records,
		palette:   pool,
		selection: selected,
		distances: distances,
		settings:  prefs,
		search: search.NewController(service, search.Config{
			DebounceWindow: cfg.Search.DebounceWindow,
			MinQueryLength: cfg.Search.MinQueryLength,
			Logger:         logger,
			Recorder:       recorder,
		}),
		loader: search.NewRecordLoader(service, records, search.RecordLoaderConfig{
			KeyPrefix: cfg.RecordsKeyPrefix,
			Logger:    logger,
			Recorder:  recorder,
		}),
		status: search.NewStatusTracker(service, logger),
		ctx:    sessionCtx,
		cancel: cancel,
	}, nil
}

func openMedium(ctx context.Context, b *builder) (storage.Medium, error) {
	logger := b.cfg.Logger
	switch {
	case b.medium != nil:
		return b.medium, nil
	case b.sqlitePath != "":
		db, err := storage.OpenSQLite(ctx, b.sqlitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite medium: %w", err)
		}
		return db, nil
	case b.redis != nil:
		client := redis.NewClient(b.redis)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		medium, err := storage.NewRedis(client, storage.RedisConfig{Prefix: "stride:"}, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return medium, nil
	default:
		return storage.NewMemory(), nil
	}
}

func newLookupClient(cfg *config.Config) (*lookup.Client, error) {
	res := cfg.Resilience
	r, err := retrier.NewRetrier(res.MaxRetries, res.InitialInterval, res.MaxInterval,
		res.Multiplier, res.RandomizationFactor, retrier.ExponentialBackoff, lookup.IsRetryable)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrier: %w", err)
	}
	client, err := lookup.NewClient(lookup.ClientConfig{
		BaseURL:        cfg.Lookup.BaseURL,
		Timeout:        cfg.Lookup.Timeout,
		CircuitBreaker: res.CircuitBreaker,
		Retrier:        r,
		Logger:         cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup client: %w", err)
	}
	return client, nil
}

func closeQuietly(c io.Closer, logger *zap.Logger) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn("Failed to close medium", zap.Error(err))
	}
}

// Selection returns the selected athletes.
func (s *Session) Selection() *selection.Store { return s.selection }

// Palette returns the color pool backing the selection.
func (s *Session) Palette() *palette.Pool { return s.palette }

// Distances returns the table distances.
func (s *Session) Distances() *numlist.Store { return s.distances }

// Settings returns the table preferences.
func (s *Session) Settings() *settings.Settings { return s.settings }

// Search returns the athlete search.
func (s *Session) Search() *search.Controller { return s.search }

// Status returns the remote database status.
func (s *Session) Status() *search.StatusTracker { return s.status }

// Records returns the records cache.
func (s *Session) Records() *cache.Cache[pace.Records] { return s.records }

// IsLoadingRecords reports whether a record fetch for id is running.
func (s *Session) IsLoadingRecords(id string) bool {
	return s.loader.IsLoading(id)
}

// SelectAthlete adds a search suggestion to the selection, clears the search
// and loads the athlete's records in the background. It reports whether the
// athlete was newly added.
func (s *Session) SelectAthlete(ctx context.Context, athlete selection.Athlete) bool {
	if s.isClosed() {
		return false
	}
	s.search.Search("")
	added := s.selection.Add(ctx, athlete)
	s.selection.SetLoading(ctx, athlete.ID, true)
	s.loadInBackground(athlete.ID)
	return added
}

// DeleteAthlete drops id from the selection and frees its color.
func (s *Session) DeleteAthlete(ctx context.Context, id string) bool {
	return s.selection.Remove(ctx, id)
}

// ToggleAthleteRecords shows or hides the records of id. Showing them loads
// fresh records in the background. It returns the new visibility.
func (s *Session) ToggleAthleteRecords(ctx context.Context, id string) bool {
	visible := s.selection.ToggleVisible(ctx, id)
	if visible && !s.isClosed() {
		s.selection.SetLoading(ctx, id, true)
		s.loadInBackground(id)
	}
	return visible
}

// ReloadAthlete drops the cached records of id and fetches them again,
// returning once the selection holds the result.
func (s *Session) ReloadAthlete(ctx context.Context, id string) error {
	if s.isClosed() {
		return ErrClosed
	}
	if _, ok := s.selection.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAthlete, id)
	}
	if err := s.loader.Invalidate(ctx, id); err != nil {
		return err
	}
	s.selection.SetLoading(ctx, id, true)
	return s.load(ctx, id)
}

// Warmup loads the records of every selected athlete, a few at a time.
// Individual failures only clear the loading flag; the error is set when ctx
// ends first.
func (s *Session) Warmup(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Search.WarmupConcurrency)
	for _, entity := range s.selection.List() {
		id := entity.ID
		s.selection.SetLoading(ctx, id, true)
		g.Go(func() error {
			err := s.load(gctx, id)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// RefreshStatus fetches the remote database status.
func (s *Session) RefreshStatus(ctx context.Context) bool {
	return s.status.Refresh(ctx)
}

// Reset empties the selection, frees every color and clears the search.
func (s *Session) Reset(ctx context.Context) {
	s.search.Search("")
	s.selection.Reset(ctx)
}

// Close stops the search, waits for background loads and closes the medium.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.search.Close()
	s.cancel()
	s.wg.Wait()

	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			return fmt.Errorf("failed to close medium: %w", err)
		}
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) loadInBackground(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.load(s.ctx, id)
	}()
}

// load fetches the records of id into the selection. A failure clears the
// loading flag and is logged unless the load was cancelled.
func (s *Session) load(ctx context.Context, id string) error {
	records, err := s.loader.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("Failed to load athlete records", zap.String("id", id), zap.Error(err))
		}
		s.selection.SetLoading(context.WithoutCancel(ctx), id, false)
		return err
	}
	s.selection.SetRecords(context.WithoutCancel(ctx), id, records)
	return nil
}
