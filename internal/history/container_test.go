package history

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainer_ActivateSeedsOnce(t *testing.T) {
	c := NewContainer[string, snap]()

	assert.True(t, c.Activate("page_1", s("seed1")))
	assert.False(t, c.Activate("page_1", s("other")))

	cur, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, "seed1", cur.Name)
	assert.False(t, c.CanUndo())
}

func TestContainer_IndependentStacks(t *testing.T) {
	c := NewContainer[string, snap]()

	c.Activate("p1", s("p1-0"))
	require.True(t, c.Push(s("p1-1")))

	c.Activate("p2", s("p2-0"))
	assert.False(t, c.CanUndo())
	cur, _ := c.Current()
	assert.Equal(t, "p2-0", cur.Name)

	// Switching back keeps p1's history.
	c.Activate("p1", s("ignored"))
	assert.True(t, c.CanUndo())
	got, ok := c.Undo()
	require.True(t, ok)
	assert.Equal(t, "p1-0", got.Name)

	got, ok = c.Redo()
	require.True(t, ok)
	assert.Equal(t, "p1-1", got.Name)
	assert.Equal(t, 2, c.Len())
}

func TestContainer_NoActiveDocument(t *testing.T) {
	c := NewContainer[string, snap]()

	assert.False(t, c.Push(s("x")))
	_, ok := c.Undo()
	assert.False(t, ok)
	_, ok = c.Redo()
	assert.False(t, ok)
	_, ok = c.Current()
	assert.False(t, ok)
	assert.False(t, c.CanUndo())
	assert.False(t, c.CanRedo())
}

func TestContainer_DeactivateKeepsStacks(t *testing.T) {
	c := NewContainer[string, snap]()
	c.Activate("p1", s("a"))
	c.Push(s("b"))

	c.Deactivate()
	_, ok := c.Active()
	assert.False(t, ok)
	assert.False(t, c.CanUndo())

	st, ok := c.Stack("p1")
	require.True(t, ok)
	assert.Equal(t, 2, st.Len())
}

func TestContainer_RemoveAndReset(t *testing.T) {
	c := NewContainer[string, snap](WithMaxSize(5))
	c.Activate("p1", s("a"))
	c.Activate("p2", s("b"))

	c.Remove("p2")
	_, ok := c.Active()
	assert.False(t, ok)
	_, ok = c.Stack("p2")
	assert.False(t, ok)

	st, ok := c.Stack("p1")
	require.True(t, ok)
	assert.Equal(t, 5, st.MaxSize())

	c.Reset()
	assert.Equal(t, 0, c.Len())

	// A reset key is seeded again.
	assert.True(t, c.Activate("p1", s("fresh")))
	cur, _ := c.Current()
	assert.Equal(t, "fresh", cur.Name)
}

func TestContainer_ConcurrentPushes(t *testing.T) {
	c := NewContainer[string, snap](WithMaxSize(1000))
	c.Activate("p1", s("seed"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Push(s("x"))
		}()
	}
	wg.Wait()

	st, _ := c.Stack("p1")
	assert.Equal(t, 51, st.Len())
	assert.Equal(t, 50, st.Cursor())
}
