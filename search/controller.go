// Package search runs the search-as-you-type athlete lookup and the record
// loads that follow a selection.
package search

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"goflare.io/stride/lookup"
	"goflare.io/stride/metrics"
	"goflare.io/stride/pkg/observable"
	"goflare.io/stride/selection"
)

const (
	outcomeSuccess = "success"
	outcomeAborted = "aborted"
	outcomeFailed  = "failed"
)

// Config configures a Controller.
type Config struct {
	DebounceWindow time.Duration
	MinQueryLength int
	Logger         *zap.Logger
	Recorder       *metrics.Recorder
}

// Controller debounces queries and keeps at most one search request live.
// A new dispatch cancels the previous request; only the response of the
// latest dispatch may change Results.
//
// Subscribers of Results and Searching must not call back into the
// Controller.
type Controller struct {
	service  lookup.Service
	minLen   int
	debounce *Debouncer[string]

	results   *observable.Value[[]selection.Athlete]
	searching *observable.Value[bool]
	inFlight  *atomic.Int64

	mu         sync.Mutex
	generation uint64
	abort      context.CancelFunc
	query      string
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger   *zap.Logger
	recorder *metrics.Recorder
}

// NewController wires the controller to service.
func NewController(service lookup.Service, cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		service:   service,
		minLen:    cfg.MinQueryLength,
		results:   observable.New([]selection.Athlete{}),
		searching: observable.New(false),
		inFlight:  atomic.NewInt64(0),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		recorder:  cfg.Recorder,
	}
	c.debounce = NewDebouncer(cfg.DebounceWindow, c.dispatch)
	return c
}

// Search takes the current input. Queries shorter than the minimum length
// clear the results at once and cancel any pending or live request; longer
// ones are dispatched once the debounce window passes quietly.
func (c *Controller) Search(query string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.query = query
	if !c.qualifies(query) {
		c.debounce.Cancel()
		c.abortLocked()
		c.generation++
		c.results.Set([]selection.Athlete{})
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.debounce.Trigger(query)
}

// Focus searches the last input again when it is long enough.
func (c *Controller) Focus() {
	c.mu.Lock()
	query := c.query
	c.mu.Unlock()
	if c.qualifies(query) {
		c.debounce.Trigger(query)
	}
}

// Flush dispatches a pending query without waiting for the window.
func (c *Controller) Flush() bool {
	return c.debounce.Flush()
}

// Dismiss clears the results and drops any pending or live request. The last
// input is kept for Focus.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debounce.Cancel()
	c.abortLocked()
	c.generation++
	c.results.Set([]selection.Athlete{})
}

// Query returns the last input.
func (c *Controller) Query() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// Results holds the suggestions of the latest completed search.
func (c *Controller) Results() *observable.Value[[]selection.Athlete] {
	return c.results
}

// Searching is true while at least one request is in flight.
func (c *Controller) Searching() *observable.Value[bool] {
	return c.searching
}

// InFlight returns the number of requests not yet finished, including
// aborted ones still unwinding.
func (c *Controller) InFlight() int64 {
	return c.inFlight.Load()
}

// Close cancels pending and live requests and waits for them to return.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.debounce.Stop()
	c.abortLocked()
	c.generation++
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Controller) qualifies(query string) bool {
	return utf8.RuneCountInString(query) >= c.minLen
}

func (c *Controller) abortLocked() {
	if c.abort != nil {
		c.abort()
		c.abort = nil
	}
}

// dispatch starts the request for query, aborting the previous one first.
func (c *Controller) dispatch(query string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.abortLocked()
	c.generation++
	generation := c.generation
	ctx, cancel := context.WithCancel(c.ctx)
	c.abort = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	c.inFlight.Inc()
	c.syncSearching()
	c.recorder.SearchStarted()

	go func() {
		defer c.wg.Done()
		defer cancel()
		outcome := c.run(ctx, generation, query)
		c.inFlight.Dec()
		c.syncSearching()
		c.recorder.SearchFinished(outcome)
	}()
}

func (c *Controller) run(ctx context.Context, generation uint64, query string) string {
	athletes, err := c.service.SearchAthletes(ctx, query)

	c.mu.Lock()
	defer c.mu.Unlock()
	current := generation == c.generation

	switch {
	case err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil):
		c.logger.Debug("Search aborted", zap.String("query", query))
		return outcomeAborted
	case !current:
		c.logger.Debug("Discarding superseded search", zap.String("query", query))
		return outcomeAborted
	case err != nil:
		c.logger.Error("Athlete search failed", zap.String("query", query), zap.Error(err))
		c.results.Set([]selection.Athlete{})
		return outcomeFailed
	}
	if athletes == nil {
		athletes = []selection.Athlete{}
	}
	c.results.Set(athletes)
	return outcomeSuccess
}

// syncSearching derives the flag from the counter under the flag's own lock
// so concurrent finishes can not leave a stale value behind.
func (c *Controller) syncSearching() {
	c.searching.Mutate(func(current bool) (bool, bool) {
		next := c.inFlight.Load() > 0
		return next, next != current
	})
}
