package numlist

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"goflare.io/stride/internal/config"
	"goflare.io/stride/storage"
)

const customKey = "customDistances"

func newStore(t *testing.T, medium storage.Medium) *Store {
	t.Helper()
	s, err := Load(context.Background(), medium, Config{
		Defaults: config.DefaultDistances,
		Max:      100000,
		Key:      customKey,
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return s
}

func stored(t *testing.T, medium storage.Medium) []float64 {
	t.Helper()
	raw, found, err := medium.Read(context.Background(), customKey)
	require.NoError(t, err)
	require.True(t, found)
	var out []float64
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestInitialValuesAreDefaults(t *testing.T) {
	medium := storage.NewMemory()
	s := newStore(t, medium)

	require.Equal(t, config.DefaultDistances, s.Values())
	require.Empty(t, s.Custom())
	require.Empty(t, stored(t, medium))
}

func TestAddInsertsSorted(t *testing.T) {
	ctx := context.Background()
	medium := storage.NewMemory()
	s := newStore(t, medium)

	require.True(t, s.Add(ctx, "2000"))
	require.True(t, s.Add(ctx, " 7500 "))

	values := s.Values()
	require.Contains(t, values, 2000.0)
	require.IsIncreasing(t, values)
	require.Equal(t, []float64{2000, 7500}, s.Custom())
	require.Equal(t, []float64{2000, 7500}, stored(t, medium))
}

func TestAddRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewMemory())
	before := s.Values()

	for _, raw := range []string{"0", "-5", "-100", "abc", "", "100001", "NaN", "Inf", "1e400"} {
		require.False(t, s.Add(ctx, raw), raw)
	}
	require.True(t, s.Add(ctx, "100000"))
	require.False(t, s.Add(ctx, "100000"))
	require.False(t, s.Add(ctx, "1000"))
	require.Len(t, s.Values(), len(before)+1)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	medium := storage.NewMemory()
	s := newStore(t, medium)
	s.Add(ctx, "2000")

	require.False(t, s.Remove(ctx, 1000))
	require.Contains(t, s.Values(), 1000.0)

	require.True(t, s.Remove(ctx, 2000))
	require.NotContains(t, s.Values(), 2000.0)
	require.False(t, s.Remove(ctx, 2000))
	require.Empty(t, stored(t, medium))
}

func TestPersistedSetExcludesDefaults(t *testing.T) {
	ctx := context.Background()
	medium := storage.NewMemory()
	s := newStore(t, medium)
	s.Add(ctx, "2000")
	s.Add(ctx, "1000")

	custom := stored(t, medium)
	require.Equal(t, []float64{2000}, custom)
	for _, v := range custom {
		require.False(t, s.IsDefault(v))
	}
}

func TestLoadRestoresCustomValues(t *testing.T) {
	ctx := context.Background()
	medium := storage.NewMemory()
	require.NoError(t, medium.Write(ctx, customKey, `[2000, 1000, 2000, -3, 250000]`))

	s := newStore(t, medium)
	require.Equal(t, []float64{2000}, s.Custom())
	require.Len(t, s.Values(), len(config.DefaultDistances)+1)
	require.IsIncreasing(t, s.Values())
	require.Equal(t, []float64{2000}, stored(t, medium))
}

func TestLoadIgnoresMalformedData(t *testing.T) {
	ctx := context.Background()
	medium := storage.NewMemory()
	require.NoError(t, medium.Write(ctx, customKey, `{"oops"`))

	s := newStore(t, medium)
	require.Equal(t, config.DefaultDistances, s.Values())
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, storage.NewMemory())

	var sizes []int
	defer s.Subscribe(func(v []float64) { sizes = append(sizes, len(v)) })()

	n := len(config.DefaultDistances)
	s.Add(ctx, "2000")
	s.Add(ctx, "abc")
	s.Remove(ctx, 1000)
	s.Remove(ctx, 2000)
	require.Equal(t, []int{n, n + 1, n}, sizes)
}
