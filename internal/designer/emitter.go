package designer

import (
	"context"
	"slices"
	"sync"
)

// Emitter delivers events to subscribers synchronously, in subscription
// order. Listeners subscribed or removed during an Emit take effect from
// the next Emit. The context passed to Emit is handed to every listener.
type Emitter[T any] struct {
	mu        sync.Mutex
	nextID    int
	listeners []listener[T]
}

type listener[T any] struct {
	id int
	fn func(context.Context, T)
}

// On subscribes fn and returns a function that removes it.
func (e *Emitter[T]) On(fn func(context.Context, T)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, listener[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.listeners = slices.DeleteFunc(e.listeners, func(l listener[T]) bool { return l.id == id })
		})
	}
}

// Emit calls every listener with ev.
func (e *Emitter[T]) Emit(ctx context.Context, ev T) {
	e.mu.Lock()
	ls := slices.Clone(e.listeners)
	e.mu.Unlock()

	for _, l := range ls {
		l.fn(ctx, ev)
	}
}

// Clear removes every listener.
func (e *Emitter[T]) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = nil
}

// Len returns the number of listeners.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}
