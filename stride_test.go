package stride

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap/zaptest"

	"goflare.io/stride/internal/config"
	"goflare.io/stride/lookup"
	"goflare.io/stride/pace"
	"goflare.io/stride/palette"
	"goflare.io/stride/selection"
)

const waitFor = 2 * time.Second

type fakeService struct {
	mu          sync.Mutex
	failRecords bool
	recordCalls atomic.Int32
}

func (f *fakeService) SearchAthletes(_ context.Context, query string) ([]selection.Athlete, error) {
	return []selection.Athlete{{ID: query, Name: query}}, nil
}

func (f *fakeService) FetchRecords(_ context.Context, id string) (pace.Records, error) {
	f.recordCalls.Inc()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRecords {
		return nil, &lookup.StatusError{Endpoint: "/get_athlete_records", Code: 404}
	}
	return pace.Records{5000: 900, 10000: 1900}, nil
}

func (f *fakeService) DatabaseStatus(context.Context) (lookup.Status, error) {
	return lookup.Status{NumAthletes: 3, LastUpdate: "2024-05-01"}, nil
}

func (f *fakeService) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRecords = fail
}

func newSession(t *testing.T, service lookup.Service, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t)),
		WithLookupService(service),
	}, opts...)
	s, err := New(context.Background(), opts...)
	require.NoError(t, err)
	return s
}

func loaded(s *Session, id string) func() bool {
	return func() bool {
		e, ok := s.Selection().Get(id)
		return ok && !e.IsLoading && len(e.Records) > 0
	}
}

func TestSelectAthleteLoadsRecords(t *testing.T) {
	ctx := context.Background()
	service := &fakeService{}
	s := newSession(t, service)
	defer func() { require.NoError(t, s.Close()) }()

	s.Search().Search("dupont")
	s.Search().Flush()
	require.Eventually(t, func() bool { return len(s.Search().Results().Get()) == 1 }, waitFor, 5*time.Millisecond)

	require.True(t, s.SelectAthlete(ctx, selection.Athlete{ID: "a", Name: "Alice"}))
	require.Empty(t, s.Search().Results().Get())
	require.Empty(t, s.Search().Query())

	require.Eventually(t, loaded(s, "a"), waitFor, 5*time.Millisecond)
	e, _ := s.Selection().Get("a")
	require.Equal(t, palette.Color(config.DefaultPalette[0]), e.Color)
	require.Equal(t, pace.Records{5000: 900, 10000: 1900}, e.Records)
	require.False(t, s.IsLoadingRecords("a"))

	require.False(t, s.SelectAthlete(ctx, selection.Athlete{ID: "a", Name: "Alice"}))
	require.Equal(t, 1, s.Selection().Len())
}

func TestToggleAthleteRecords(t *testing.T) {
	ctx := context.Background()
	service := &fakeService{}
	s := newSession(t, service)
	defer s.Close()

	s.SelectAthlete(ctx, selection.Athlete{ID: "a"})
	require.Eventually(t, loaded(s, "a"), waitFor, 5*time.Millisecond)

	require.False(t, s.ToggleAthleteRecords(ctx, "a"))
	require.True(t, s.ToggleAthleteRecords(ctx, "a"))
	require.Eventually(t, loaded(s, "a"), waitFor, 5*time.Millisecond)

	// The second load is answered by the records cache.
	require.EqualValues(t, 1, service.recordCalls.Load())
	require.False(t, s.ToggleAthleteRecords(ctx, "unknown"))
}

func TestFailedLoadClearsLoadingFlag(t *testing.T) {
	ctx := context.Background()
	service := &fakeService{}
	service.setFail(true)
	s := newSession(t, service)
	defer s.Close()

	s.SelectAthlete(ctx, selection.Athlete{ID: "a"})
	require.Eventually(t, func() bool {
		e, ok := s.Selection().Get("a")
		return ok && !e.IsLoading && service.recordCalls.Load() == 1
	}, waitFor, 5*time.Millisecond)

	e, _ := s.Selection().Get("a")
	require.Empty(t, e.Records)
	require.True(t, e.Visible)
}

func TestDeleteAndReset(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, &fakeService{})
	defer s.Close()

	s.SelectAthlete(ctx, selection.Athlete{ID: "a"})
	s.SelectAthlete(ctx, selection.Athlete{ID: "b"})
	a, _ := s.Selection().Get("a")

	require.True(t, s.DeleteAthlete(ctx, "a"))
	require.False(t, s.DeleteAthlete(ctx, "a"))
	s.SelectAthlete(ctx, selection.Athlete{ID: "c"})
	c, _ := s.Selection().Get("c")
	require.Equal(t, a.Color, c.Color)

	s.Reset(ctx)
	require.Zero(t, s.Selection().Len())
	require.Zero(t, s.Palette().InUse())
}

func TestReloadAthlete(t *testing.T) {
	ctx := context.Background()
	service := &fakeService{}
	s := newSession(t, service)
	defer s.Close()

	require.ErrorIs(t, s.ReloadAthlete(ctx, "ghost"), ErrUnknownAthlete)

	s.SelectAthlete(ctx, selection.Athlete{ID: "a"})
	require.Eventually(t, loaded(s, "a"), waitFor, 5*time.Millisecond)

	require.NoError(t, s.ReloadAthlete(ctx, "a"))
	require.EqualValues(t, 2, service.recordCalls.Load())
	require.Eventually(t, loaded(s, "a"), waitFor, 5*time.Millisecond)
}

func TestStatePersistsAcrossSessions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "stride.db")
	service := &fakeService{}

	first := newSession(t, service, WithSQLite(path))
	first.SelectAthlete(ctx, selection.Athlete{ID: "a", Name: "Alice"})
	first.SelectAthlete(ctx, selection.Athlete{ID: "b", Name: "Bob"})
	require.Eventually(t, loaded(first, "b"), waitFor, 5*time.Millisecond)
	require.Eventually(t, loaded(first, "a"), waitFor, 5*time.Millisecond)
	first.ToggleAthleteRecords(ctx, "b")
	require.True(t, first.Distances().Add(ctx, "2000"))
	first.Settings().VMA.Set(ctx, 18.5)
	require.NoError(t, first.Close())

	second := newSession(t, service, WithSQLite(path))
	defer second.Close()

	list := second.Selection().List()
	require.Len(t, list, 2)
	require.Equal(t, "Alice", list[0].Name)
	require.False(t, list[1].Visible)
	require.Equal(t, []bool{true, true, false, false, false, false, false, false, false, false}, second.Palette().Used())
	require.Equal(t, []float64{2000}, second.Distances().Custom())
	require.Equal(t, 18.5, second.Settings().VMA.Get())

	require.NoError(t, second.Warmup(ctx))
	require.EqualValues(t, 2, service.recordCalls.Load())
	for _, e := range second.Selection().List() {
		require.False(t, e.IsLoading)
		require.NotEmpty(t, e.Records)
	}
}

func TestRedisMedium(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	service := &fakeService{}

	first := newSession(t, service, WithRedis(&redis.Options{Addr: mr.Addr()}))
	first.SelectAthlete(ctx, selection.Athlete{ID: "a"})
	require.Eventually(t, loaded(first, "a"), waitFor, 5*time.Millisecond)
	require.NoError(t, first.Close())

	require.True(t, mr.Exists("stride:selectedAthletes"))
	require.True(t, mr.Exists("stride:athlete_records_a"))

	second := newSession(t, service, WithRedis(&redis.Options{Addr: mr.Addr()}))
	defer second.Close()
	require.Equal(t, 1, second.Selection().Len())
}

func TestUnreachableRedisFails(t *testing.T) {
	_, err := New(context.Background(),
		WithLogger(zaptest.NewLogger(t)),
		WithLookupService(&fakeService{}),
		WithRedis(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1}),
	)
	require.Error(t, err)
}

func TestRefreshStatus(t *testing.T) {
	s := newSession(t, &fakeService{})
	defer s.Close()

	require.True(t, s.RefreshStatus(context.Background()))
	require.Equal(t, 3, s.Status().Status().NumAthletes)
}

func TestMetricsAreRegistered(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	s := newSession(t, &fakeService{}, WithMetrics(reg))
	defer s.Close()

	s.SelectAthlete(ctx, selection.Athlete{ID: "a"})
	require.Eventually(t, loaded(s, "a"), waitFor, 5*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["stride_selection_size"])
	require.True(t, names["stride_palette_events_total"])
	require.True(t, names["stride_record_fetches_total"])

	_, err = New(ctx, WithLogger(zaptest.NewLogger(t)), WithLookupService(&fakeService{}), WithMetrics(reg))
	require.Error(t, err)
}

func TestInvalidOptions(t *testing.T) {
	ctx := context.Background()
	_, err := New(ctx, WithPalette())
	require.ErrorIs(t, err, config.ErrEmptyPalette)

	_, err = New(ctx, WithSerialization("xml"))
	require.Error(t, err)

	_, err = New(ctx, WithLogger(zaptest.NewLogger(t)), WithLookupURL("not a url"))
	require.Error(t, err)
}

func TestClosedSession(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, &fakeService{})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	require.False(t, s.SelectAthlete(ctx, selection.Athlete{ID: "a"}))
	require.ErrorIs(t, s.Warmup(ctx), ErrClosed)
	require.ErrorIs(t, s.ReloadAthlete(ctx, "a"), ErrClosed)
}
