// Package history keeps bounded undo/redo histories of snapshots.
//
// A Stack is a list of snapshots with a cursor at the current one.
// Pushing discards everything after the cursor (the redo branch) and
// evicts the oldest entry once the stack exceeds its maximum size.
// Snapshots are deep-copied on the way in and on the way out, so callers
// can never change recorded history through a value they hold.
package history

import (
	"slices"
	"sync"
)

const (
	// DefaultMaxSize applies when no size (or 0) is configured.
	DefaultMaxSize = 200

	// MinMaxSize is the smallest accepted maximum size; smaller values are raised to it.
	MinMaxSize = 2
)

// Cloner is implemented by snapshot types. Clone must return a deep copy.
type Cloner[T any] interface {
	Clone() T
}

type config struct {
	maxSize int
}

// Option configures stacks and containers.
type Option func(*config)

// WithMaxSize bounds each stack. 0 selects DefaultMaxSize; values below
// MinMaxSize are raised to MinMaxSize.
func WithMaxSize(n int) Option {
	return func(c *config) {
		c.maxSize = n
	}
}

func newConfig(opts []Option) config {
	c := config{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(&c)
	}
	switch {
	case c.maxSize == 0:
		c.maxSize = DefaultMaxSize
	case c.maxSize < MinMaxSize:
		c.maxSize = MinMaxSize
	}
	return c
}

// Stack is a bounded, cursor-addressed undo/redo history.
//
// Invariant: 0 <= cursor < len(entries) whenever entries is non-empty;
// cursor is -1 for an empty stack.
//
// Stack is safe for concurrent use.
type Stack[T Cloner[T]] struct {
	mu      sync.Mutex
	entries []T
	cursor  int
	maxSize int
}

// NewStack creates an empty stack.
func NewStack[T Cloner[T]](opts ...Option) *Stack[T] {
	c := newConfig(opts)
	return &Stack[T]{
		entries: make([]T, 0, min(c.maxSize, 16)),
		cursor:  -1,
		maxSize: c.maxSize,
	}
}

// MaxSize returns the effective maximum number of entries.
func (s *Stack[T]) MaxSize() int {
	return s.maxSize
}

// Push discards the redo branch, appends a copy of entry and makes it
// current. When the stack grows past its maximum size the oldest entry
// is dropped and the cursor follows the entries it pointed at.
func (s *Stack[T]) Push(entry T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	for i := s.cursor + 1; i < len(s.entries); i++ {
		s.entries[i] = zero
	}
	s.entries = append(s.entries[:s.cursor+1], entry.Clone())
	s.cursor = len(s.entries) - 1

	if len(s.entries) > s.maxSize {
		s.entries = slices.Delete(s.entries, 0, 1)
		s.cursor--
	}
}

// CanUndo reports whether there is an entry before the current one.
func (s *Stack[T]) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor > 0
}

// CanRedo reports whether there is an entry after the current one.
func (s *Stack[T]) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor < len(s.entries)-1
}

// Undo moves the cursor back and returns a copy of the entry it lands on.
// It returns false, leaving the stack unchanged, if there is nothing to undo.
func (s *Stack[T]) Undo() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor <= 0 {
		var zero T
		return zero, false
	}
	s.cursor--
	return s.entries[s.cursor].Clone(), true
}

// Redo moves the cursor forward and returns a copy of the entry it lands on.
// It returns false, leaving the stack unchanged, if there is nothing to redo.
func (s *Stack[T]) Redo() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor >= len(s.entries)-1 {
		var zero T
		return zero, false
	}
	s.cursor++
	return s.entries[s.cursor].Clone(), true
}

// Current returns a copy of the current entry, or false for an empty stack.
func (s *Stack[T]) Current() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor < 0 {
		var zero T
		return zero, false
	}
	return s.entries[s.cursor].Clone(), true
}

// Len returns the number of entries.
func (s *Stack[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cursor returns the index of the current entry, -1 when empty.
func (s *Stack[T]) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Entries returns copies of all entries, oldest first.
func (s *Stack[T]) Entries() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]T, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out
}
