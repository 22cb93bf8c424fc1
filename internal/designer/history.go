// Package designer holds the editor services built on the operation
// pipeline. HistoryService tracks per-page undo/redo history.
package designer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/roach88/opline/internal/history"
	"github.com/roach88/opline/internal/ir"
	"github.com/roach88/opline/internal/pipeline"
	"github.com/roach88/opline/internal/service"
)

// HistoryServiceName is the service name used in hook registration,
// journals and traces.
const HistoryServiceName = "history"

// Operation names of HistoryService.
const (
	OpPush = "push"
	OpUndo = "undo"
	OpRedo = "redo"
)

// ErrPageWithoutID is returned by ChangePage for a page lacking a string "id".
var ErrPageWithoutID = errors.New("designer: page has no id")

// Step is one recorded state of a page.
type Step struct {
	Data            ir.IRObject
	ModifiedNodeIDs map[string]string
	NodeID          string
}

// Clone returns a deep copy.
func (s Step) Clone() Step {
	return Step{
		Data:            s.Data.Clone(),
		ModifiedNodeIDs: maps.Clone(s.ModifiedNodeIDs),
		NodeID:          s.NodeID,
	}
}

// IRValue renders the step for journals and traces.
func (s Step) IRValue() ir.IRValue {
	modified := make(ir.IRObject, len(s.ModifiedNodeIDs))
	for k, v := range s.ModifiedNodeIDs {
		modified[k] = ir.IRString(v)
	}
	data := ir.IRValue(ir.IRNull{})
	if s.Data != nil {
		data = s.Data.Clone()
	}
	return ir.IRObject{
		"data":              data,
		"modified_node_ids": modified,
		"node_id":           ir.IRString(s.NodeID),
	}
}

// State is the observable history state of the active page.
type State struct {
	PageID  string
	CanUndo bool
	CanRedo bool
}

// Change is emitted after push, undo and redo reach a page's stack.
type Change struct {
	Kind   string // ir.StepPush, ir.StepUndo or ir.StepRedo
	PageID string
	Step   Step
	Found  bool // false when undo or redo had nothing to return
	State  State
}

type historyOptions struct {
	stack  []history.Option
	logger *slog.Logger
	svc    []service.Option
}

// HistoryOption configures a HistoryService.
type HistoryOption func(*historyOptions)

// WithMaxSize bounds every page's stack. See history.WithMaxSize.
func WithMaxSize(n int) HistoryOption {
	return func(o *historyOptions) {
		o.stack = append(o.stack, history.WithMaxSize(n))
	}
}

// WithLogger sets the logger of the service.
func WithLogger(logger *slog.Logger) HistoryOption {
	return func(o *historyOptions) {
		o.logger = logger
		o.svc = append(o.svc, service.WithLogger(logger))
	}
}

// HistoryService keeps one undo/redo stack per page and tracks the
// active page. Push, Undo and Redo are declared operations of an
// embedded service.Base, so plugins can hook them like any other.
//
// HistoryService is safe for concurrent use. Every stack change and the
// State it leads to are taken under one lock, so the State in a Change
// always matches its step.
type HistoryService struct {
	base    *service.Base
	pages   *history.Container[string, Step]
	changes Emitter[Change]
	logger  *slog.Logger

	mu    sync.Mutex // held across a stack change and its state update
	state State
}

// NewHistoryService creates a service with no active page.
func NewHistoryService(opts ...HistoryOption) (*HistoryService, error) {
	o := historyOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	h := &HistoryService{
		pages:  history.NewContainer[string, Step](o.stack...),
		logger: o.logger,
	}
	base, err := service.New(HistoryServiceName, []service.Operation{
		{Name: OpPush, Impl: h.push},
		{Name: OpUndo, Impl: h.undo},
		{Name: OpRedo, Impl: h.redo},
	}, o.svc...)
	if err != nil {
		return nil, fmt.Errorf("history service: %w", err)
	}
	h.base = base
	return h, nil
}

// NewHistoryServiceFromSpec applies a compiled history manifest.
func NewHistoryServiceFromSpec(spec ir.HistorySpec, opts ...HistoryOption) (*HistoryService, error) {
	return NewHistoryService(append([]HistoryOption{WithMaxSize(spec.MaxSize)}, opts...)...)
}

// Base exposes the underlying service for plugins, middleware and observers.
func (h *HistoryService) Base() *service.Base {
	return h.base
}

// OnChange subscribes fn to change notifications. fn receives the context
// of the operation call that caused the change.
func (h *HistoryService) OnChange(fn func(context.Context, Change)) (unsubscribe func()) {
	return h.changes.On(fn)
}

// ChangePage makes page the active page. The first time a page is seen,
// its stack is seeded with the page itself. A nil page is ignored.
func (h *HistoryService) ChangePage(page ir.IRObject) error {
	if page == nil {
		return nil
	}
	id, ok := page.String("id")
	if !ok || id == "" {
		return ErrPageWithoutID
	}

	h.mu.Lock()
	opened := h.pages.Activate(id, Step{Data: page, ModifiedNodeIDs: map[string]string{}, NodeID: id})
	h.refreshLocked()
	h.mu.Unlock()

	if opened {
		h.logger.Debug("history page opened", "page", id)
	}
	return nil
}

// Push records step on the active page. It reports false when no page is active.
func (h *HistoryService) Push(ctx context.Context, step Step) (Step, bool, error) {
	return h.call(ctx, OpPush, step)
}

// Undo steps the active page back and returns the step it lands on.
func (h *HistoryService) Undo(ctx context.Context) (Step, bool, error) {
	return h.call(ctx, OpUndo)
}

// Redo steps the active page forward and returns the step it lands on.
func (h *HistoryService) Redo(ctx context.Context) (Step, bool, error) {
	return h.call(ctx, OpRedo)
}

// Current returns the active page's current step.
func (h *HistoryService) Current() (Step, bool) {
	return h.pages.Current()
}

// State returns the active page and whether it can undo or redo.
func (h *HistoryService) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Reset drops every page's history and clears the active page.
func (h *HistoryService) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pages.Reset()
	h.state = State{}
}

// ResetPage clears the active page. Recorded histories are kept.
func (h *HistoryService) ResetPage() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pages.Deactivate()
	h.state = State{}
}

// Destroy resets the service, drops all subscribers and closes the
// underlying service.
func (h *HistoryService) Destroy(ctx context.Context) error {
	h.Reset()
	h.changes.Clear()
	return h.base.Close(ctx)
}

func (h *HistoryService) call(ctx context.Context, op string, args ...any) (Step, bool, error) {
	result, err := h.base.Call(ctx, op, args...)
	if err != nil {
		return Step{}, false, err
	}
	step, err := pipeline.As[Step](result)
	if err != nil {
		return Step{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return step, result != nil, nil
}

func (h *HistoryService) push(ctx context.Context, args pipeline.Args) (any, error) {
	step, err := pipeline.Arg[Step](args, 0)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	pushed := h.pages.Push(step)
	state := h.refreshLocked()
	h.mu.Unlock()

	if !pushed {
		return nil, nil
	}
	h.notify(ctx, ir.StepPush, step, true, state)
	return step, nil
}

func (h *HistoryService) undo(ctx context.Context, args pipeline.Args) (any, error) {
	return h.move(ctx, ir.StepUndo, h.pages.Undo)
}

func (h *HistoryService) redo(ctx context.Context, args pipeline.Args) (any, error) {
	return h.move(ctx, ir.StepRedo, h.pages.Redo)
}

func (h *HistoryService) move(ctx context.Context, kind string, step func() (Step, bool)) (any, error) {
	h.mu.Lock()
	if _, active := h.pages.ActiveStack(); !active {
		h.mu.Unlock()
		return nil, nil
	}
	s, found := step()
	state := h.refreshLocked()
	h.mu.Unlock()

	h.notify(ctx, kind, s, found, state)
	if !found {
		return nil, nil
	}
	return s, nil
}

// notify runs listeners outside the lock; state is the one taken with the change.
func (h *HistoryService) notify(ctx context.Context, kind string, step Step, found bool, state State) {
	h.changes.Emit(ctx, Change{
		Kind:   kind,
		PageID: state.PageID,
		Step:   step,
		Found:  found,
		State:  state,
	})
}

// refreshLocked recomputes State from the stacks. h.mu must be held.
func (h *HistoryService) refreshLocked() State {
	id, _ := h.pages.Active()
	h.state = State{
		PageID:  id,
		CanUndo: h.pages.CanUndo(),
		CanRedo: h.pages.CanRedo(),
	}
	return h.state
}
