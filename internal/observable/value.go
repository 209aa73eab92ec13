// Package observable provides a last-value cache with change notification.
package observable

import (
	"context"
	"sync"
)

// Value holds the latest value of T and notifies observers on every Set.
// Callback subscribers run synchronously on the setter's goroutine, in
// subscription order, after the new value is visible through Get.
type Value[T any] struct {
	mu       sync.RWMutex
	current  T
	nextID   uint64
	subs     map[uint64]func(T)
	order    []uint64
	watchers map[uint64]chan T
}

// New creates a Value holding initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{
		current:  initial,
		subs:     make(map[uint64]func(T)),
		watchers: make(map[uint64]chan T),
	}
}

// Get returns the latest value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Set stores next and notifies observers.
func (v *Value[T]) Set(next T) {
	v.mu.Lock()
	v.current = next
	for _, ch := range v.watchers {
		// keep only the newest value for slow readers
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- next:
		default:
		}
	}
	fns := make([]func(T), 0, len(v.order))
	for _, id := range v.order {
		if fn, ok := v.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}

// Subscribe registers fn for future changes. The returned function removes
// the subscription and is safe to call more than once.
func (v *Value[T]) Subscribe(fn func(T)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.nextID++
	id := v.nextID
	v.subs[id] = fn
	v.order = append(v.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			delete(v.subs, id)
			for i, sid := range v.order {
				if sid == id {
					v.order = append(v.order[:i:i], v.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Watch returns a channel that yields the current value immediately and then
// the latest value after each change. Intermediate values may be skipped when
// the reader falls behind. The channel is closed when ctx is done.
func (v *Value[T]) Watch(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	v.mu.Lock()
	v.nextID++
	id := v.nextID
	v.watchers[id] = ch
	ch <- v.current
	v.mu.Unlock()

	go func() {
		<-ctx.Done()
		v.mu.Lock()
		delete(v.watchers, id)
		close(ch)
		v.mu.Unlock()
	}()

	return ch
}

// Subscribers returns the number of active callback subscriptions.
func (v *Value[T]) Subscribers() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.subs)
}
