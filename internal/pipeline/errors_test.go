package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("calling add: %w", NewError(ErrCodeUnknownOperation, "add", "operation not declared"))
	assert.ErrorIs(t, err, ErrUnknownOperation)
	assert.NotErrorIs(t, err, ErrUnknownHook)
	assert.True(t, IsUnknownOperation(err))
	assert.Equal(t, "calling add: UNKNOWN_OPERATION: operation not declared (add)", err.Error())
}

func TestAs(t *testing.T) {
	s, err := As[string]("x")
	require.NoError(t, err)
	assert.Equal(t, "x", s)

	n, err := As[int](nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = As[int]("x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedType)
	assert.Contains(t, err.Error(), "expected int, got string")
}

func TestArg(t *testing.T) {
	args := Args{"id-1", 3}
	id, err := Arg[string](args, 0)
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)

	missing, err := Arg[string](args, 5)
	require.NoError(t, err)
	assert.Empty(t, missing)

	_, err = Arg[string](args, 1)
	assert.Error(t, err)
}

func TestVerdictAccessors(t *testing.T) {
	v := With("a")
	got, ok := v.Value()
	assert.True(t, ok)
	assert.Equal(t, Args{"a"}, got)
	assert.False(t, v.Aborted())

	var zero Verdict[any]
	_, ok = zero.Value()
	assert.False(t, ok)
	assert.NoError(t, zero.Err())

	ab := Abort[any](nil)
	assert.True(t, ab.Aborted())
	assert.ErrorIs(t, ab.Err(), ErrAborted)
}

func TestArgsClone(t *testing.T) {
	a := Args{1, 2}
	b := a.Clone()
	b[0] = 9
	assert.Equal(t, 1, a[0])
	assert.Nil(t, Args(nil).Clone())
}
