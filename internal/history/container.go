package history

import "sync"

// Container holds one Stack per document key and tracks which document
// is active. Stacks are created on first activation of a key, seeded with
// the document's state at that moment, and survive switching to another
// key.
//
// Container is safe for concurrent use.
type Container[K comparable, T Cloner[T]] struct {
	mu     sync.Mutex
	opts   []Option
	stacks map[K]*Stack[T]
	active K
	has    bool
}

// NewContainer creates an empty container. opts apply to every stack it creates.
func NewContainer[K comparable, T Cloner[T]](opts ...Option) *Container[K, T] {
	return &Container[K, T]{
		opts:   opts,
		stacks: make(map[K]*Stack[T]),
	}
}

// Activate makes key the active document. If key has no stack yet, one
// is created with seed as its first entry and Activate reports true.
func (c *Container[K, T]) Activate(key K, seed T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active, c.has = key, true
	if _, ok := c.stacks[key]; ok {
		return false
	}
	s := NewStack[T](c.opts...)
	s.Push(seed)
	c.stacks[key] = s
	return true
}

// Active returns the active key, if any.
func (c *Container[K, T]) Active() (K, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.has
}

// Deactivate clears the active key. Stacks are kept.
func (c *Container[K, T]) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero K
	c.active, c.has = zero, false
}

// Stack returns the stack of key, if one exists.
func (c *Container[K, T]) Stack(key K) (*Stack[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.stacks[key]
	return s, ok
}

// ActiveStack returns the stack of the active document.
func (c *Container[K, T]) ActiveStack() (*Stack[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.has {
		return nil, false
	}
	s, ok := c.stacks[c.active]
	return s, ok
}

// Remove drops the stack of key, e.g. when its document is closed. If key
// is active it is deactivated.
func (c *Container[K, T]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.stacks, key)
	if c.has && c.active == key {
		var zero K
		c.active, c.has = zero, false
	}
}

// Reset drops every stack and clears the active key.
func (c *Container[K, T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.stacks)
	var zero K
	c.active, c.has = zero, false
}

// Len returns the number of documents with a stack.
func (c *Container[K, T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stacks)
}

// Push records entry on the active document's stack. It reports false
// when no document is active.
func (c *Container[K, T]) Push(entry T) bool {
	s, ok := c.ActiveStack()
	if !ok {
		return false
	}
	s.Push(entry)
	return true
}

// Undo steps the active document back.
func (c *Container[K, T]) Undo() (T, bool) {
	s, ok := c.ActiveStack()
	if !ok {
		var zero T
		return zero, false
	}
	return s.Undo()
}

// Redo steps the active document forward.
func (c *Container[K, T]) Redo() (T, bool) {
	s, ok := c.ActiveStack()
	if !ok {
		var zero T
		return zero, false
	}
	return s.Redo()
}

// Current returns the active document's current entry.
func (c *Container[K, T]) Current() (T, bool) {
	s, ok := c.ActiveStack()
	if !ok {
		var zero T
		return zero, false
	}
	return s.Current()
}

// CanUndo reports whether the active document can step back.
func (c *Container[K, T]) CanUndo() bool {
	s, ok := c.ActiveStack()
	return ok && s.CanUndo()
}

// CanRedo reports whether the active document can step forward.
func (c *Container[K, T]) CanRedo() bool {
	s, ok := c.ActiveStack()
	return ok && s.CanRedo()
}
