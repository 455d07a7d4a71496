package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"goflare.io/stride/selection"
)

const waitFor = 2 * time.Second

func newController(t *testing.T, service *fakeService, window time.Duration) *Controller {
	t.Helper()
	c := NewController(service, Config{
		DebounceWindow: window,
		MinQueryLength: 3,
		Logger:         zaptest.NewLogger(t),
	})
	t.Cleanup(c.Close)
	return c
}

func resultsEqual(c *Controller, want []selection.Athlete) func() bool {
	return func() bool {
		got := c.Results().Get()
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}
}

func TestBurstTriggersOneSearchWithLastInput(t *testing.T) {
	service := &fakeService{}
	c := newController(t, service, 50*time.Millisecond)

	c.Search("dup")
	c.Search("dupo")
	c.Search("dupon")

	require.Eventually(t, resultsEqual(c, athlete("dupon")), waitFor, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, []string{"dupon"}, service.received())
}

func TestShortQueryClearsWithoutRequest(t *testing.T) {
	service := &fakeService{}
	c := newController(t, service, time.Hour)

	c.Search("dupont")
	require.True(t, c.Flush())
	require.Eventually(t, resultsEqual(c, athlete("dupont")), waitFor, 5*time.Millisecond)

	c.Search("du")
	require.Empty(t, c.Results().Get())
	require.False(t, c.Flush())
	require.Equal(t, []string{"dupont"}, service.received())
}

func TestShortQueryCancelsPendingSearch(t *testing.T) {
	service := &fakeService{}
	c := newController(t, service, 30*time.Millisecond)

	c.Search("dupont")
	c.Search("d")
	time.Sleep(90 * time.Millisecond)
	require.Empty(t, service.received())
	require.Empty(t, c.Results().Get())
}

func TestNewSearchAbortsPrevious(t *testing.T) {
	aborted := make(chan struct{})
	service := &fakeService{
		search: func(ctx context.Context, query string) ([]selection.Athlete, error) {
			if query == "slow" {
				<-ctx.Done()
				close(aborted)
				return nil, ctx.Err()
			}
			return athlete(query), nil
		},
	}
	c := newController(t, service, time.Hour)

	c.Search("slow")
	c.Flush()
	require.Eventually(t, func() bool { return len(service.received()) == 1 }, waitFor, 5*time.Millisecond)

	c.Search("fast")
	c.Flush()

	select {
	case <-aborted:
	case <-time.After(waitFor):
		t.Fatal("previous search was not aborted")
	}
	require.Eventually(t, resultsEqual(c, athlete("fast")), waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return c.InFlight() == 0 }, waitFor, 5*time.Millisecond)
	require.False(t, c.Searching().Get())
}

func TestAbortKeepsLastResult(t *testing.T) {
	service := &fakeService{
		search: func(ctx context.Context, query string) ([]selection.Athlete, error) {
			if query == "hang" {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return athlete(query), nil
		},
	}
	c := NewController(service, Config{MinQueryLength: 3, DebounceWindow: time.Hour, Logger: zaptest.NewLogger(t)})

	c.Search("first")
	c.Flush()
	require.Eventually(t, resultsEqual(c, athlete("first")), waitFor, 5*time.Millisecond)

	c.Search("hang")
	c.Flush()
	require.Eventually(t, func() bool { return c.InFlight() == 1 }, waitFor, 5*time.Millisecond)

	c.Close()
	require.Zero(t, c.InFlight())
	require.Equal(t, athlete("first"), c.Results().Get())
}

func TestFailureClearsResults(t *testing.T) {
	service := &fakeService{
		search: func(ctx context.Context, query string) ([]selection.Athlete, error) {
			if query == "broken" {
				return nil, errBoom
			}
			return athlete(query), nil
		},
	}
	c := newController(t, service, time.Hour)

	c.Search("first")
	c.Flush()
	require.Eventually(t, resultsEqual(c, athlete("first")), waitFor, 5*time.Millisecond)

	c.Search("broken")
	c.Flush()
	require.Eventually(t, resultsEqual(c, nil), waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !c.Searching().Get() }, waitFor, 5*time.Millisecond)
}

func TestSupersededResponseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	service := &fakeService{
		search: func(ctx context.Context, query string) ([]selection.Athlete, error) {
			if query == "stale" {
				<-release
			}
			return athlete(query), nil
		},
	}
	c := newController(t, service, time.Hour)

	c.Search("stale")
	c.Flush()
	require.Eventually(t, func() bool { return len(service.received()) == 1 }, waitFor, 5*time.Millisecond)

	c.Search("fresh")
	c.Flush()
	require.Eventually(t, resultsEqual(c, athlete("fresh")), waitFor, 5*time.Millisecond)
	require.EqualValues(t, 1, c.InFlight())
	require.True(t, c.Searching().Get())

	close(release)
	require.Eventually(t, func() bool { return c.InFlight() == 0 }, waitFor, 5*time.Millisecond)
	require.Equal(t, athlete("fresh"), c.Results().Get())
	require.False(t, c.Searching().Get())
}

func TestSearchingFollowsInFlightRequests(t *testing.T) {
	release := make(chan struct{})
	service := &fakeService{
		search: func(ctx context.Context, query string) ([]selection.Athlete, error) {
			<-release
			return athlete(query), nil
		},
	}
	c := newController(t, service, time.Hour)

	var flags []bool
	unsubscribe := c.Searching().Subscribe(func(v bool) { flags = append(flags, v) })

	c.Search("dupont")
	c.Flush()
	require.True(t, c.Searching().Get())

	close(release)
	require.Eventually(t, func() bool { return !c.Searching().Get() }, waitFor, 5*time.Millisecond)
	unsubscribe()
	require.Equal(t, []bool{false, true, false}, flags)
}

func TestFocusRepeatsLastQuery(t *testing.T) {
	service := &fakeService{}
	c := newController(t, service, time.Hour)

	c.Focus()
	require.False(t, c.Flush())

	c.Search("dupont")
	c.Flush()
	require.Eventually(t, resultsEqual(c, athlete("dupont")), waitFor, 5*time.Millisecond)

	c.Dismiss()
	require.Empty(t, c.Results().Get())

	c.Focus()
	require.True(t, c.Flush())
	require.Eventually(t, resultsEqual(c, athlete("dupont")), waitFor, 5*time.Millisecond)
	require.Equal(t, []string{"dupont", "dupont"}, service.received())
	require.Equal(t, "dupont", c.Query())
}

func TestClosedControllerIgnoresInput(t *testing.T) {
	service := &fakeService{}
	c := NewController(service, Config{MinQueryLength: 3, DebounceWindow: time.Millisecond})
	c.Close()

	c.Search("dupont")
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, service.received())
}

func TestDismissDropsLiveSearch(t *testing.T) {
	release := make(chan struct{})
	service := &fakeService{
		search: func(ctx context.Context, query string) ([]selection.Athlete, error) {
			<-release
			return athlete(query), nil
		},
	}
	c := newController(t, service, time.Hour)

	c.Search("dupont")
	c.Flush()
	require.Eventually(t, func() bool { return len(service.received()) == 1 }, waitFor, 5*time.Millisecond)

	c.Dismiss()
	close(release)
	require.Eventually(t, func() bool { return c.InFlight() == 0 }, waitFor, 5*time.Millisecond)
	require.Empty(t, c.Results().Get())
	require.Equal(t, "dupont", c.Query())
}

func TestDismissCancelsPendingSearch(t *testing.T) {
	service := &fakeService{}
	c := newController(t, service, time.Hour)

	c.Search("dupont")
	c.Dismiss()
	require.False(t, c.Flush())
	require.Empty(t, service.received())
}

func TestCloseDiscardsLateResponse(t *testing.T) {
	release := make(chan struct{})
	service := &fakeService{
		search: func(ctx context.Context, query string) ([]selection.Athlete, error) {
			<-release
			return athlete(query), nil
		},
	}
	c := NewController(service, Config{MinQueryLength: 3, DebounceWindow: time.Hour, Logger: zaptest.NewLogger(t)})

	c.Search("dupont")
	c.Flush()
	require.Eventually(t, func() bool { return len(service.received()) == 1 }, waitFor, 5*time.Millisecond)

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.closed
	}, waitFor, 5*time.Millisecond)
	close(release)

	select {
	case <-closed:
	case <-time.After(waitFor):
		t.Fatal("Close did not return")
	}
	require.Empty(t, c.Results().Get())
}
