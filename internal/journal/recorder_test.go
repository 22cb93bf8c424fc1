package journal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opline/internal/designer"
	"github.com/roach88/opline/internal/ir"
	"github.com/roach88/opline/internal/pipeline"
	"github.com/roach88/opline/internal/service"
	"github.com/roach88/opline/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newEditor(t *testing.T) *service.Base {
	t.Helper()
	var b *service.Base
	b, err := service.New("editor", []service.Operation{
		{Name: "select", Async: true, Impl: func(ctx context.Context, args pipeline.Args) (any, error) {
			return fmt.Sprintf("selected:%v", args.Get(0)), nil
		}},
		{Name: "lock", Impl: func(ctx context.Context, args pipeline.Args) (any, error) {
			return nil, errors.New("page is read-only")
		}},
		{Name: "outer", Impl: func(ctx context.Context, args pipeline.Args) (any, error) {
			return b.Call(ctx, "select", "nested")
		}},
	}, service.WithSerial("select"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close(context.Background()) })
	return b
}

func TestRecorder_JournalsCalls(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	b := newEditor(t)
	r := NewRecorder(s, WithClock(NewClock()), WithFlowGenerator(NewFixedGenerator("flow-1", "flow-2")))
	require.NoError(t, r.Attach(b))

	got, err := b.Call(ctx, "select", "n1")
	require.NoError(t, err)
	assert.Equal(t, "selected:n1", got)

	_, err = b.Call(ctx, "lock")
	require.EqualError(t, err, "page is read-only")

	invs, comps, err := s.ReadFlow(ctx, "flow-1")
	require.NoError(t, err)
	require.Len(t, invs, 1)
	require.Len(t, comps, 1)
	assert.Equal(t, ir.OperationRef("editor.select"), invs[0].Operation)
	assert.Equal(t, ir.IRArray{ir.IRString("n1")}, invs[0].Args)
	assert.Equal(t, int64(1), invs[0].Seq)
	assert.Equal(t, ir.MustInvocationID("flow-1", "editor.select", invs[0].Args, 1), invs[0].ID)
	assert.Equal(t, invs[0].ID, comps[0].InvocationID)
	assert.Equal(t, ir.OutcomeOK, comps[0].Outcome)
	assert.Equal(t, ir.IRString("selected:n1"), comps[0].Result)
	assert.Equal(t, int64(2), comps[0].Seq)

	_, comps, err = s.ReadFlow(ctx, "flow-2")
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, ir.OutcomeError, comps[0].Outcome)
	assert.Equal(t, "page is read-only", comps[0].Error)
	assert.Equal(t, ir.IRNull{}, comps[0].Result)
}

func TestRecorder_FlowFromContextAndNesting(t *testing.T) {
	ctx := ContextWithFlow(context.Background(), "given")
	s := openStore(t)
	b := newEditor(t)
	// An empty generator panics if the recorder ever needs a new flow.
	r := NewRecorder(s, WithFlowGenerator(NewFixedGenerator()))
	require.NoError(t, r.Attach(b))

	got, err := b.Call(ctx, "outer")
	require.NoError(t, err)
	assert.Equal(t, "selected:nested", got)

	invs, comps, err := s.ReadFlow(ctx, "given")
	require.NoError(t, err)
	require.Len(t, invs, 2)
	require.Len(t, comps, 2)
	assert.Equal(t, ir.OperationRef("editor.outer"), invs[0].Operation)
	assert.Equal(t, ir.OperationRef("editor.select"), invs[1].Operation)
	// The nested call completes first.
	assert.Equal(t, invs[1].ID, comps[0].InvocationID)
	assert.Equal(t, invs[0].ID, comps[1].InvocationID)
}

func TestRecorder_SeesRewrittenArgs(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	b := newEditor(t)
	require.NoError(t, b.UsePlugin(pipeline.Plugin{
		"beforeSelect": pipeline.BeforeHook(func(ctx context.Context, args pipeline.Args) (pipeline.Verdict[pipeline.Args], error) {
			return pipeline.With("n2"), nil
		}),
	}))
	r := NewRecorder(s, WithFlowGenerator(NewFixedGenerator("flow-1")))
	require.NoError(t, r.Attach(b))

	_, err := b.Call(ctx, "select", "n1")
	require.NoError(t, err)

	invs, _, err := s.ReadFlow(ctx, "flow-1")
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, ir.IRArray{ir.IRString("n2")}, invs[0].Args)
}

type failingWriter struct{}

func (failingWriter) WriteInvocation(context.Context, ir.Invocation) error {
	return errors.New("disk full")
}

func (failingWriter) WriteCompletion(context.Context, ir.Completion) error {
	return errors.New("disk full")
}

func (failingWriter) WriteHistoryStep(context.Context, ir.HistoryStep) (int64, error) {
	return 0, errors.New("disk full")
}

func TestRecorder_WriteFailuresDoNotFailCalls(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	b := newEditor(t)
	r := NewRecorder(failingWriter{}, WithLogger(logger))
	require.NoError(t, r.Attach(b))

	got, err := b.Call(context.Background(), "select", "n1")
	require.NoError(t, err)
	assert.Equal(t, "selected:n1", got)
	assert.Contains(t, logs.String(), "journal: write invocation failed")
	assert.Contains(t, logs.String(), "journal: write completion failed")
	assert.Contains(t, logs.String(), "level=WARN")
}

func TestRecorder_ObserveHistory(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	h, err := designer.NewHistoryService()
	require.NoError(t, err)
	t.Cleanup(func() { h.Destroy(context.Background()) })

	r := NewRecorder(s, WithFlowGenerator(NewFixedGenerator("f-push", "f-undo", "f-undo-empty", "f-redo")))
	require.NoError(t, r.Attach(h.Base()))
	stop := r.ObserveHistory(h)

	p1 := ir.IRObject{"id": ir.IRString("p1"), "title": ir.IRString("v1")}
	require.NoError(t, h.ChangePage(p1))

	edited := designer.Step{Data: ir.IRObject{"id": ir.IRString("p1"), "title": ir.IRString("v2")}, NodeID: "p1"}
	_, ok, err := h.Push(ctx, edited)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = h.Undo(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = h.Undo(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	steps, err := s.ReadHistory(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, steps, 3)

	assert.Equal(t, ir.StepPush, steps[0].Kind)
	assert.Equal(t, "f-push", steps[0].FlowToken)
	assert.True(t, steps[0].Found)
	assert.Equal(t, edited.IRValue(), steps[0].Snapshot)
	hash, err := ir.SnapshotHash(steps[0].Snapshot)
	require.NoError(t, err)
	assert.Equal(t, hash, steps[0].EntryHash)

	assert.Equal(t, ir.StepUndo, steps[1].Kind)
	assert.Equal(t, "f-undo", steps[1].FlowToken)
	data, _ := steps[1].Snapshot["data"].(ir.IRObject)
	assert.Equal(t, ir.IRString("v1"), data["title"])

	assert.Equal(t, ir.StepUndo, steps[2].Kind)
	assert.False(t, steps[2].Found)
	assert.Nil(t, steps[2].Snapshot)
	assert.Empty(t, steps[2].EntryHash)

	// The step is written between the call's invocation and completion.
	invs, comps, err := s.ReadFlow(ctx, "f-push")
	require.NoError(t, err)
	require.Len(t, invs, 1)
	require.Len(t, comps, 1)
	assert.Less(t, invs[0].Seq, steps[0].Seq)
	assert.Less(t, steps[0].Seq, comps[0].Seq)

	stop()
	_, _, err = h.Redo(ctx)
	require.NoError(t, err)
	steps, err = s.ReadHistory(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, steps, 3)
}
