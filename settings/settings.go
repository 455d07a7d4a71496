package settings

import (
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"

	"goflare.io/stride/internal/config"
	"goflare.io/stride/storage"
)

const (
	// DefaultMinPace is the slowest table row in seconds per kilometre.
	DefaultMinPace = 360
	// DefaultMaxPace is the fastest table row in seconds per kilometre.
	DefaultMaxPace   = 120
	DefaultIncrement = 1
	// DefaultVMA is in km/h.
	DefaultVMA = 16
)

// ErrInvalidPaceRange is returned when the slowest pace is faster than the
// fastest one.
var ErrInvalidPaceRange = errors.New("min pace can not be faster than max pace")

var (
	// PaceChoices are the selectable table bounds, slowest first.
	PaceChoices = []float64{600, 540, 480, 420, 360, 300, 240, 180, 120, 90}
	// IncrementChoices are the selectable row steps in seconds.
	IncrementChoices = []float64{1, 2, 5, 10, 15, 20, 30}
	// VMAChoices run from 10 to 30 km/h in half steps.
	VMAChoices = vmaChoices()
)

func vmaChoices() []float64 {
	out := make([]float64, 41)
	for i := range out {
		out[i] = 10 + float64(i)*0.5
	}
	return out
}

// Settings bundles the persisted table preferences.
type Settings struct {
	MinPace          *Scalar[float64]
	MaxPace          *Scalar[float64]
	Increment        *Scalar[float64]
	VMA              *Scalar[float64]
	ShowVMA          *Scalar[bool]
	ShowWorldRecords *Scalar[bool]

	WorldRecords *WorldRecordBoard
}

// Load restores every preference from medium.
func Load(ctx context.Context, medium storage.Medium, keys config.StorageKeys, logger *zap.Logger) (*Settings, error) {
	var (
		s   Settings
		err error
	)
	floats := []struct {
		dst **Scalar[float64]
		key string
		def float64
	}{
		{&s.MinPace, keys.MinPace, DefaultMinPace},
		{&s.MaxPace, keys.MaxPace, DefaultMaxPace},
		{&s.Increment, keys.Increment, DefaultIncrement},
		{&s.VMA, keys.VMA, DefaultVMA},
	}
	for _, f := range floats {
		if *f.dst, err = LoadFloat(ctx, medium, f.key, f.def, logger); err != nil {
			return nil, err
		}
	}
	if s.ShowVMA, err = LoadBool(ctx, medium, keys.ShowVMA, false, logger); err != nil {
		return nil, err
	}
	if s.ShowWorldRecords, err = LoadBool(ctx, medium, keys.ShowWorldRecords, false, logger); err != nil {
		return nil, err
	}
	s.WorldRecords = NewWorldRecordBoard()
	return &s, nil
}

// SetPaceRange updates both table bounds. A range whose slowest pace is
// faster than its fastest pace is rejected and the previous bounds stay.
func (s *Settings) SetPaceRange(ctx context.Context, minPace, maxPace float64) error {
	if minPace < maxPace {
		return ErrInvalidPaceRange
	}
	s.MinPace.Set(ctx, minPace)
	s.MaxPace.Set(ctx, maxPace)
	return nil
}

// Reset restores every default.
func (s *Settings) Reset(ctx context.Context) {
	s.MinPace.Set(ctx, DefaultMinPace)
	s.MaxPace.Set(ctx, DefaultMaxPace)
	s.Increment.Set(ctx, DefaultIncrement)
	s.VMA.Set(ctx, DefaultVMA)
	s.ShowVMA.Set(ctx, false)
	s.ShowWorldRecords.Set(ctx, false)
}

// IsChoice reports whether v is one of choices.
func IsChoice(choices []float64, v float64) bool {
	return slices.Contains(choices, v)
}
