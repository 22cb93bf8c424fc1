package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/opline/internal/designer"
	"github.com/roach88/opline/internal/ir"
	"github.com/roach88/opline/internal/pipeline"
	"github.com/roach88/opline/internal/service"
)

// Writer persists journal records. *store.Store implements it.
type Writer interface {
	WriteInvocation(ctx context.Context, inv ir.Invocation) error
	WriteCompletion(ctx context.Context, comp ir.Completion) error
	WriteHistoryStep(ctx context.Context, step ir.HistoryStep) (int64, error)
}

// Recorder writes operation calls and history steps to a Writer.
type Recorder struct {
	w      Writer
	clock  Sequencer
	flows  FlowGenerator
	logger *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock sets the seq source. Default: NewClock().
func WithClock(c Sequencer) Option {
	return func(r *Recorder) {
		r.clock = c
	}
}

// WithFlowGenerator sets the generator used for calls whose context
// carries no flow token. Default: UUIDv7Generator.
func WithFlowGenerator(g FlowGenerator) Option {
	return func(r *Recorder) {
		r.flows = g
	}
}

// WithLogger sets the logger used for write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// NewRecorder creates a recorder writing to w.
func NewRecorder(w Writer, opts ...Option) *Recorder {
	r := &Recorder{
		w:      w,
		clock:  NewClock(),
		flows:  UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach installs the journal middleware on every operation of b.
// The middleware is appended after any already registered, so it sees
// the arguments left by before-hooks and outer middleware.
// RemoveAllPlugins on b detaches it.
func (r *Recorder) Attach(b *service.Base) error {
	mw := make(map[string]pipeline.Middleware, len(b.Operations()))
	for _, op := range b.Operations() {
		mw[op] = r.Middleware(ir.NewOperationRef(b.Name(), op))
	}
	if err := b.Use(mw); err != nil {
		return fmt.Errorf("journal attach %s: %w", b.Name(), err)
	}
	r.logger.Debug("journal attached", "service", b.Name())
	return nil
}

// Middleware journals calls of op. Calls without a flow token in their
// context start a new flow; the token is passed down the chain, so nested
// calls made with the same context join it.
func (r *Recorder) Middleware(op ir.OperationRef) pipeline.Middleware {
	return func(ctx context.Context, args pipeline.Args, next pipeline.Next) (any, error) {
		ctx, flow := r.flow(ctx)
		inv := ir.Invocation{
			FlowToken: flow,
			Operation: op,
			Args:      ir.FromArgs(args),
			Seq:       r.clock.Next(),
		}
		id, err := ir.InvocationID(inv.FlowToken, inv.Operation, inv.Args, inv.Seq)
		if err != nil {
			r.warn("invocation id", err, "operation", op)
			return next(ctx)
		}
		inv.ID = id
		if err := r.w.WriteInvocation(context.WithoutCancel(ctx), inv); err != nil {
			r.warn("write invocation", err, "operation", op, "flow", flow)
		}

		result, callErr := next(ctx)
		r.complete(ctx, inv, result, callErr)
		return result, callErr
	}
}

func (r *Recorder) complete(ctx context.Context, inv ir.Invocation, result any, callErr error) {
	comp := ir.Completion{
		InvocationID: inv.ID,
		Outcome:      ir.OutcomeOK,
		Result:       ir.FromGo(result),
		Seq:          r.clock.Next(),
	}
	if callErr != nil {
		comp.Outcome = ir.OutcomeError
		comp.Result = ir.IRNull{}
		comp.Error = callErr.Error()
	}
	id, err := ir.CompletionID(comp.InvocationID, comp.Outcome, comp.Result, comp.Seq)
	if err != nil {
		r.warn("completion id", err, "operation", inv.Operation)
		return
	}
	comp.ID = id
	if err := r.w.WriteCompletion(context.WithoutCancel(ctx), comp); err != nil {
		r.warn("write completion", err, "operation", inv.Operation, "flow", inv.FlowToken)
	}
}

// ObserveHistory records every change of h as a history step. Steps are
// written under the flow token of the call that caused them when h's
// operations are journaled too (see Attach), otherwise under a new flow.
func (r *Recorder) ObserveHistory(h *designer.HistoryService) (unsubscribe func()) {
	return h.OnChange(func(ctx context.Context, c designer.Change) {
		if err := r.recordChange(ctx, c); err != nil {
			r.warn("write history step", err, "page", c.PageID, "kind", c.Kind)
		}
	})
}

func (r *Recorder) recordChange(ctx context.Context, c designer.Change) error {
	ctx, flow := r.flow(ctx)
	step := ir.HistoryStep{
		FlowToken: flow,
		DocKey:    c.PageID,
		Kind:      c.Kind,
		Found:     c.Found,
		Seq:       r.clock.Next(),
	}
	if c.Found {
		snapshot, ok := c.Step.IRValue().(ir.IRObject)
		if !ok {
			return errors.New("step did not render as an object")
		}
		hash, err := ir.SnapshotHash(snapshot)
		if err != nil {
			return err
		}
		step.Snapshot = snapshot
		step.EntryHash = hash
	}
	_, err := r.w.WriteHistoryStep(context.WithoutCancel(ctx), step)
	return err
}

func (r *Recorder) flow(ctx context.Context) (context.Context, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if token := FlowFromContext(ctx); token != "" {
		return ctx, token
	}
	token := r.flows.Generate()
	return ContextWithFlow(ctx, token), token
}

func (r *Recorder) warn(what string, err error, attrs ...any) {
	r.logger.Warn("journal: "+what+" failed", append([]any{"error", err}, attrs...)...)
}
