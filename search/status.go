package search

import (
	"context"

	"go.uber.org/zap"

	"goflare.io/stride/lookup"
	"goflare.io/stride/pkg/observable"
)

// StatusTracker holds the last known state of the remote database.
type StatusTracker struct {
	service lookup.Service
	value   *observable.Value[lookup.Status]
	logger  *zap.Logger
}

// NewStatusTracker starts with an empty status.
func NewStatusTracker(service lookup.Service, logger *zap.Logger) *StatusTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusTracker{
		service: service,
		value:   observable.New(lookup.Status{}),
		logger:  logger,
	}
}

// Refresh fetches the status. On failure the previous value stays and the
// error is logged.
func (s *StatusTracker) Refresh(ctx context.Context) bool {
	status, err := s.service.DatabaseStatus(ctx)
	if err != nil {
		s.logger.Error("Failed to fetch database status", zap.Error(err))
		return false
	}
	s.value.Set(status)
	return true
}

// Status returns the last fetched status.
func (s *StatusTracker) Status() lookup.Status {
	return s.value.Get()
}

// Subscribe calls fn with the status now and after every refresh.
func (s *StatusTracker) Subscribe(fn func(lookup.Status)) func() {
	return s.value.Subscribe(fn)
}
