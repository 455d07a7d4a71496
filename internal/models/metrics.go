package models

import "go.uber.org/atomic"

// Metrics counts cache outcomes.
type Metrics struct {
	Hits        *atomic.Int64
	Misses      *atomic.Int64
	Expirations *atomic.Int64
	Malformed   *atomic.Int64
}

// NewMetrics creates zeroed counters.
func NewMetrics() *Metrics {
	return &Metrics{
		Hits:        atomic.NewInt64(0),
		Misses:      atomic.NewInt64(0),
		Expirations: atomic.NewInt64(0),
		Malformed:   atomic.NewInt64(0),
	}
}

// Snapshot is a point-in-time copy of Metrics.
type Snapshot struct {
	Hits        int64
	Misses      int64
	Expirations int64
	Malformed   int64
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Hits:        m.Hits.Load(),
		Misses:      m.Misses.Load(),
		Expirations: m.Expirations.Load(),
		Malformed:   m.Malformed.Load(),
	}
}
