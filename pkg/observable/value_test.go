package observable

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesCurrentValue(t *testing.T) {
	v := New(42)

	var got []int
	unsubscribe := v.Subscribe(func(n int) { got = append(got, n) })
	defer unsubscribe()

	require.Equal(t, []int{42}, got)

	v.Set(7)
	v.Update(func(n int) int { return n + 1 })
	require.Equal(t, []int{42, 7, 8}, got)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	v := New("a")

	var got []string
	unsubscribe := v.Subscribe(func(s string) { got = append(got, s) })
	v.Set("b")
	unsubscribe()
	unsubscribe()
	v.Set("c")

	require.Equal(t, []string{"a", "b"}, got)
	require.Equal(t, 0, v.Subscribers())
	require.Equal(t, "c", v.Get())
}

func TestMutateSkipsUnchanged(t *testing.T) {
	v := New([]int{1})

	calls := 0
	defer v.Subscribe(func([]int) { calls++ })()

	_, changed := v.Mutate(func(s []int) ([]int, bool) { return s, false })
	require.False(t, changed)
	require.Equal(t, 1, calls)

	next, changed := v.Mutate(func(s []int) ([]int, bool) { return append(s, 2), true })
	require.True(t, changed)
	require.Equal(t, []int{1, 2}, next)
	require.Equal(t, 2, calls)
}

func TestSubscribersNotifiedInOrder(t *testing.T) {
	v := New(0)

	var order []string
	defer v.Subscribe(func(int) { order = append(order, "first") })()
	defer v.Subscribe(func(int) { order = append(order, "second") })()

	order = nil
	v.Set(1)
	require.Equal(t, []string{"first", "second"}, order)
}

func TestWatch(t *testing.T) {
	v := New(1)
	ctx, cancel := context.WithCancel(context.Background())

	ch := v.Watch(ctx)
	require.Equal(t, 1, <-ch)

	v.Set(2)
	v.Set(3)
	require.Equal(t, 3, <-ch)

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 0, v.Subscribers())
}

func TestSubscriberMayRead(t *testing.T) {
	v := New(1)

	var seen []int
	defer v.Subscribe(func(int) { seen = append(seen, v.Get()) })()

	v.Set(2)
	require.Equal(t, []int{1, 2}, seen)
}
