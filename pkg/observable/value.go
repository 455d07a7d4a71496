// Package observable provides a value holder that pushes its current state to
// every new subscriber and notifies all subscribers after each change.
package observable

import (
	"context"
	"sync"
)

// Value holds a T and broadcasts changes to it.
//
// Mutations and notifications are serialised: a subscriber sees values in the
// order they were set. Subscribers may call Get but must not mutate the same
// Value.
type Value[T any] struct {
	mu     sync.Mutex
	state  sync.RWMutex
	value  T
	nextID uint64
	ids    []uint64
	subs   map[uint64]func(T)
}

// New creates a Value holding initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{
		value: initial,
		subs:  make(map[uint64]func(T)),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.state.RLock()
	defer v.state.RUnlock()
	return v.value
}

// Set replaces the value and notifies subscribers.
func (v *Value[T]) Set(value T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.store(value)
	v.notify()
}

// Update derives the next value from the current one and notifies subscribers.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.store(fn(v.value))
	v.notify()
	return v.value
}

// Mutate is like Update but only stores and broadcasts the result when fn
// reports a change.
func (v *Value[T]) Mutate(fn func(T) (T, bool)) (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	next, changed := fn(v.value)
	if !changed {
		return v.value, false
	}
	v.store(next)
	v.notify()
	return v.value, true
}

// Subscribe registers fn, calls it immediately with the current value and
// returns a function that removes the subscription.
func (v *Value[T]) Subscribe(fn func(T)) func() {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.subs[id] = fn
	v.ids = append(v.ids, id)
	fn(v.value)
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			v.remove(id)
		})
	}
}

// Watch returns a channel that receives the current value and then every
// change until ctx is done. Slow readers only observe the latest value.
func (v *Value[T]) Watch(ctx context.Context) <-chan T {
	ch := make(chan T, 1)
	unsubscribe := v.Subscribe(func(value T) {
		select {
		case <-ch:
		default:
		}
		ch <- value
	})
	go func() {
		<-ctx.Done()
		unsubscribe()
		close(ch)
	}()
	return ch
}

// Subscribers returns the number of active subscriptions.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

func (v *Value[T]) store(value T) {
	v.state.Lock()
	v.value = value
	v.state.Unlock()
}

func (v *Value[T]) notify() {
	for _, id := range v.ids {
		if fn, ok := v.subs[id]; ok {
			fn(v.value)
		}
	}
}

func (v *Value[T]) remove(id uint64) {
	delete(v.subs, id)
	for i, existing := range v.ids {
		if existing == id {
			v.ids = append(v.ids[:i], v.ids[i+1:]...)
			return
		}
	}
}
