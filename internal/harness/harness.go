package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/opline/internal/compiler"
	"github.com/roach88/opline/internal/ir"
	"github.com/roach88/opline/internal/journal"
	"github.com/roach88/opline/internal/pipeline"
	"github.com/roach88/opline/internal/service"
	"github.com/roach88/opline/internal/store"
	"github.com/roach88/opline/internal/telemetry"
)

// defaultFlowToken is used when a scenario names no flow_token.
const defaultFlowToken = "test-flow-default"

// Harness runs one scenario against a scripted service.
type Harness struct {
	scenario *Scenario
	trace    *tracer
	store    *store.Store
	flow     string
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
//  1. Build the service from the manifest or inline declarations
//  2. Attach the journal and tracing, then plugins and middleware in scenario order
//  3. Issue calls; detached calls are awaited after the last call is issued
//  4. Close the service, which drains its serial queue
//  5. Read the journal back and evaluate assertions
//
// An error is returned when the scenario cannot be set up; failed
// assertions are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		scenario: scenario,
		trace:    newTracer(),
		store:    st,
		flow:     scenario.FlowToken,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	if h.flow == "" {
		h.flow = defaultFlowToken
	}
	// Every call, nested ones included, is journaled under the scenario flow.
	ctx := journal.ContextWithFlow(context.Background(), h.flow)

	b, err := h.build()
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.Calls = h.issue(ctx, b)

	if err := b.Close(ctx); err != nil {
		return nil, fmt.Errorf("failed to close service: %w", err)
	}
	result.Trace = h.trace.snapshot()

	invs, _, err := st.ReadFlow(ctx, h.flow)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	for _, inv := range invs {
		result.Journal = append(result.Journal, string(inv.Operation))
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// build declares the scripted service and installs the journal, plugins
// and middleware on it.
func (h *Harness) build() (*service.Base, error) {
	spec, scripts, err := h.declare()
	if err != nil {
		return nil, err
	}
	if errs := compiler.Validate(spec); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid service: %s", strings.Join(msgs, "; "))
	}

	impls := make(map[string]pipeline.Func, len(spec.Operations))
	for _, op := range spec.Operations {
		impls[op.Name] = h.operation(scripts[op.Name])
	}
	b, err := service.FromSpec(*spec, impls, service.WithLogger(h.logger))
	if err != nil {
		return nil, err
	}

	rec := journal.NewRecorder(h.store,
		journal.WithClock(journal.NewClock()),
		journal.WithLogger(h.logger))
	if err := rec.Attach(b); err != nil {
		return nil, err
	}
	// Spans go to the global tracer provider, a no-op unless telemetry.Init ran.
	if err := telemetry.Attach(b); err != nil {
		return nil, err
	}

	for i, p := range h.scenario.Plugins {
		if err := b.UsePlugin(pipeline.Plugin{p.Hook: h.plugin(p)}); err != nil {
			return nil, fmt.Errorf("plugins[%d]: %w", i, err)
		}
	}
	for i, m := range h.scenario.Middleware {
		if err := b.Use(map[string]pipeline.Middleware{m.Operation: h.middleware(m)}); err != nil {
			return nil, fmt.Errorf("middleware[%d]: %w", i, err)
		}
	}
	return b, nil
}

// declare returns the service spec and the script of every operation.
func (h *Harness) declare() (*ir.ServiceSpec, map[string]OperationScript, error) {
	def := h.scenario.Service
	scripts := make(map[string]OperationScript, len(def.Operations))
	for _, op := range def.Operations {
		scripts[op.Name] = op
	}

	if def.Manifest == "" {
		spec := &ir.ServiceSpec{Name: def.Name}
		for _, op := range def.Operations {
			spec.Operations = append(spec.Operations, ir.OperationSpec{Name: op.Name, Async: op.Async, Serial: op.Serial})
		}
		return spec, scripts, nil
	}

	spec, err := loadManifest(def.Manifest, def.Name)
	if err != nil {
		return nil, nil, err
	}
	for name := range scripts {
		if !isDeclared(spec, name) {
			return nil, nil, fmt.Errorf("operation %q is scripted but not declared in %s", name, def.Manifest)
		}
	}
	for _, op := range spec.Operations {
		s := scripts[op.Name]
		s.Name = op.Name
		scripts[op.Name] = s
	}
	return spec, scripts, nil
}

func isDeclared(spec *ir.ServiceSpec, name string) bool {
	for _, op := range spec.Operations {
		if op.Name == name {
			return true
		}
	}
	return false
}

// loadManifest compiles service.<name> from a CUE file.
func loadManifest(path, name string) (*ir.ServiceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile manifest: %w", err)
	}
	svc := v.LookupPath(cue.MakePath(cue.Str("service"), cue.Str(name)))
	if !svc.Exists() {
		return nil, fmt.Errorf("manifest %s does not declare service %q", path, name)
	}
	return compiler.CompileService(svc)
}

// operation scripts one implementation. It traces "<op>:start" with its
// arguments and "<op>:end" with its result, or "<op>:error".
func (h *Harness) operation(s OperationScript) pipeline.Func {
	return func(ctx context.Context, args pipeline.Args) (any, error) {
		h.trace.add(s.Name+":start", ir.FromArgs(args))

		if s.SleepMS > 0 {
			select {
			case <-time.After(time.Duration(s.SleepMS) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if s.Error != "" {
			h.trace.add(s.Name+":error", ir.IRString(s.Error))
			return nil, errors.New(s.Error)
		}

		result := s.Result
		if result == nil {
			result = args.Get(0)
		}
		h.trace.add(s.Name+":end", ir.FromGo(result))
		return result, nil
	}
}

// plugin scripts one hook. Every hook traces its own name.
func (h *Harness) plugin(p PluginStep) pipeline.Hook {
	fail := func() error {
		if p.Error != "" {
			return errors.New(p.Error)
		}
		return fmt.Errorf("%s aborted", p.Hook)
	}

	if strings.HasPrefix(p.Hook, string(pipeline.KindBefore)) {
		return pipeline.BeforeHook(func(ctx context.Context, args pipeline.Args) (pipeline.Verdict[pipeline.Args], error) {
			h.trace.add(p.Hook, ir.FromArgs(args))
			switch p.Action {
			case ActionRewrite:
				return pipeline.With(p.Args...), nil
			case ActionAbort:
				return pipeline.Abort[pipeline.Args](fail()), nil
			case ActionFail:
				return pipeline.Verdict[pipeline.Args]{}, fail()
			}
			return pipeline.Pass[pipeline.Args](), nil
		})
	}

	return pipeline.AfterHook(func(ctx context.Context, result any, args pipeline.Args) (pipeline.Verdict[any], error) {
		h.trace.add(p.Hook, ir.FromGo(result))
		switch p.Action {
		case ActionReplace:
			return pipeline.Replace(p.Value), nil
		case ActionAbort:
			return pipeline.Abort[any](fail()), nil
		}
		return pipeline.Pass[any](), nil
	})
}

// middleware scripts one middleware around next.
func (h *Harness) middleware(m MiddlewareStep) pipeline.Middleware {
	return func(ctx context.Context, args pipeline.Args, next pipeline.Next) (any, error) {
		h.trace.add(m.Name+":before", ir.FromArgs(args))

		if m.CallNext != nil && !*m.CallNext {
			h.trace.add(m.Name+":after", ir.FromGo(m.Result))
			return m.Result, nil
		}

		result, err := next(ctx)
		if err == nil && m.Twice {
			result, err = next(ctx)
		}
		if err != nil {
			h.trace.add(m.Name+":error", ir.IRString(err.Error()))
			return nil, err
		}
		h.trace.add(m.Name+":after", ir.FromGo(result))
		return result, nil
	}
}

// issue runs the scenario calls. Outcomes are returned in call order.
func (h *Harness) issue(ctx context.Context, b *service.Base) []CallOutcome {
	type pending struct {
		index  int
		future interface {
			Wait(context.Context) (any, error)
		}
	}

	outcomes := make([]CallOutcome, len(h.scenario.Calls))
	var detached []pending
	for i, c := range h.scenario.Calls {
		outcomes[i] = CallOutcome{ID: c.ID, Call: c.Call}
		if c.Detach {
			detached = append(detached, pending{index: i, future: b.Go(ctx, c.Call, c.Args...)})
			continue
		}
		result, err := b.Call(ctx, c.Call, c.Args...)
		outcomes[i].settle(result, err)
	}

	for _, p := range detached {
		result, err := p.future.Wait(ctx)
		outcomes[p.index].settle(result, err)
	}
	return outcomes
}

func (c *CallOutcome) settle(result any, err error) {
	if err != nil {
		c.Error = err.Error()
		return
	}
	c.Result = ir.FromGo(result)
}
