package search

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/atomic"

	"goflare.io/stride/lookup"
	"goflare.io/stride/pace"
	"goflare.io/stride/selection"
)

var errBoom = errors.New("boom")

// fakeService answers from funcs and records the queries it receives.
type fakeService struct {
	mu      sync.Mutex
	queries []string

	search  func(ctx context.Context, query string) ([]selection.Athlete, error)
	records func(ctx context.Context, id string) (pace.Records, error)
	status  func(ctx context.Context) (lookup.Status, error)

	recordCalls atomic.Int32
}

func (f *fakeService) SearchAthletes(ctx context.Context, query string) ([]selection.Athlete, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.search == nil {
		return []selection.Athlete{{ID: query, Name: query}}, nil
	}
	return f.search(ctx, query)
}

func (f *fakeService) FetchRecords(ctx context.Context, id string) (pace.Records, error) {
	f.recordCalls.Inc()
	if f.records == nil {
		return pace.Records{5000: 900}, nil
	}
	return f.records(ctx, id)
}

func (f *fakeService) DatabaseStatus(ctx context.Context) (lookup.Status, error) {
	if f.status == nil {
		return lookup.Status{}, errBoom
	}
	return f.status(ctx)
}

func (f *fakeService) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func athlete(id string) []selection.Athlete {
	return []selection.Athlete{{ID: id, Name: id}}
}
