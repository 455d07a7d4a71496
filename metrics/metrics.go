// Package metrics exports session activity to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stride"

// Recorder holds the session collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	cacheRequests   *prometheus.CounterVec
	searchRequests  *prometheus.CounterVec
	searchInFlight  prometheus.Gauge
	recordFetches   *prometheus.CounterVec
	paletteEvents   *prometheus.CounterVec
	selectionLength prometheus.Gauge
}

// NewRecorder creates the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Records cache lookups by result (hit, miss, expired).",
		}, []string{"result"}),
		searchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Athlete searches by outcome (success, aborted, failed).",
		}, []string{"outcome"}),
		searchInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "search_in_flight",
			Help:      "Athlete searches currently awaiting a response.",
		}),
		recordFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_fetches_total",
			Help:      "Athlete record loads by source (cache, remote, failed).",
		}, []string{"source"}),
		paletteEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "palette_events_total",
			Help:      "Color pool events (allocate, release, wraparound, reset).",
		}, []string{"event"}),
		selectionLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "selection_size",
			Help:      "Number of selected athletes.",
		}),
	}

	for _, c := range []prometheus.Collector{
		r.cacheRequests,
		r.searchRequests,
		r.searchInFlight,
		r.recordFetches,
		r.paletteEvents,
		r.selectionLength,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) CacheHit()     { r.cache("hit") }
func (r *Recorder) CacheMiss()    { r.cache("miss") }
func (r *Recorder) CacheExpired() { r.cache("expired") }

func (r *Recorder) cache(result string) {
	if r == nil {
		return
	}
	r.cacheRequests.WithLabelValues(result).Inc()
}

// SearchStarted marks a dispatched search.
func (r *Recorder) SearchStarted() {
	if r == nil {
		return
	}
	r.searchInFlight.Inc()
}

// SearchFinished marks a search outcome: success, aborted or failed.
func (r *Recorder) SearchFinished(outcome string) {
	if r == nil {
		return
	}
	r.searchInFlight.Dec()
	r.searchRequests.WithLabelValues(outcome).Inc()
}

// RecordFetch counts a record load by source: cache, remote or failed.
func (r *Recorder) RecordFetch(source string) {
	if r == nil {
		return
	}
	r.recordFetches.WithLabelValues(source).Inc()
}

// PaletteEvent counts allocate, release, wraparound and reset events.
func (r *Recorder) PaletteEvent(event string) {
	if r == nil {
		return
	}
	r.paletteEvents.WithLabelValues(event).Inc()
}

// SelectionSize sets the selection gauge.
func (r *Recorder) SelectionSize(n int) {
	if r == nil {
		return
	}
	r.selectionLength.Set(float64(n))
}
