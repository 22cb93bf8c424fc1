package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/opline/internal/pipeline"
	"github.com/roach88/opline/internal/queue"
)

// Operation declares one operation and its implementation.
type Operation struct {
	Name  string
	Async bool
	Impl  pipeline.Func
}

// Descriptor describes a declared operation.
type Descriptor struct {
	Name   string
	Async  bool
	Serial bool
}

// Method is a bound, wrapped operation.
type Method func(ctx context.Context, args ...any) (any, error)

type operation struct {
	desc    Descriptor
	wrapped pipeline.Func
}

type options struct {
	serial []string
	logger *slog.Logger
	queue  *queue.Queue
}

// Option configures a Base.
type Option func(*options)

// WithSerial marks async operations as serial.
func WithSerial(names ...string) Option {
	return func(o *options) {
		o.serial = append(o.serial, names...)
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithQueue routes serial operations through q instead of a queue owned
// by the service. Services sharing q are totally ordered with each other.
// A shared queue is not closed by Close.
func WithQueue(q *queue.Queue) Option {
	return func(o *options) {
		o.queue = q
	}
}

// Base holds the declared operations of one service together with their
// hook registry and serial queue.
//
// Base is safe for concurrent use.
type Base struct {
	name     string
	logger   *slog.Logger
	registry *pipeline.Registry
	ops      map[string]*operation
	order    []string
	queue    *queue.Queue
	ownQueue bool
	inflight *inflight
	closed   atomic.Bool
}

// New declares ops for the service called name.
//
// Declaring the same name twice, a serial name that is not declared, a
// serial operation that is not async, or an operation without an
// implementation is a *DeclarationError.
func New(name string, ops []Operation, opts ...Option) (*Base, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Name
	}
	registry, err := pipeline.NewRegistry(names...)
	if err != nil {
		return nil, &DeclarationError{Service: name, Message: err.Error()}
	}

	b := &Base{
		name:     name,
		logger:   o.logger,
		registry: registry,
		ops:      make(map[string]*operation, len(ops)),
		order:    names,
		inflight: newInflight(),
	}

	for _, op := range ops {
		if op.Impl == nil {
			return nil, &DeclarationError{Service: name, Operation: op.Name, Message: "missing implementation"}
		}
		wrapped, err := registry.Wrap(op.Name, op.Impl)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", name, err)
		}
		b.ops[op.Name] = &operation{
			desc:    Descriptor{Name: op.Name, Async: op.Async},
			wrapped: wrapped,
		}
	}

	for _, s := range o.serial {
		op, ok := b.ops[s]
		if !ok {
			return nil, &DeclarationError{Service: name, Operation: s, Message: "serial operation is not declared"}
		}
		if !op.desc.Async {
			return nil, &DeclarationError{Service: name, Operation: s, Message: "only async operations can be serial"}
		}
		op.desc.Serial = true
	}

	if slices.ContainsFunc(b.Descriptors(), func(d Descriptor) bool { return d.Serial }) {
		b.queue = o.queue
		if b.queue == nil {
			b.queue = queue.New(queue.WithName(name), queue.WithLogger(o.logger))
			b.ownQueue = true
		}
	}

	b.logger.Debug("service constructed",
		"service", name,
		"operations", len(ops),
		"serial", len(o.serial))
	return b, nil
}

// Name returns the service name.
func (b *Base) Name() string {
	return b.name
}

// Operations returns the declared operation names in declaration order.
func (b *Base) Operations() []string {
	return slices.Clone(b.order)
}

// Descriptors describes the declared operations in declaration order.
func (b *Base) Descriptors() []Descriptor {
	out := make([]Descriptor, len(b.order))
	for i, name := range b.order {
		out[i] = b.ops[name].desc
	}
	return out
}

// Describe returns the descriptor of one operation.
func (b *Base) Describe(op string) (Descriptor, bool) {
	o, ok := b.ops[op]
	if !ok {
		return Descriptor{}, false
	}
	return o.desc, true
}

// Call invokes op and waits for its result. Serial operations wait for
// every serial call issued before them. If ctx ends while a serial call
// is still queued or running, Call returns ctx.Err() and the call still
// runs in its turn. A serial Call made with the context of a running
// serial task of the same queue returns queue.ErrReentrant.
func (b *Base) Call(ctx context.Context, op string, args ...any) (any, error) {
	o, err := b.lookup(op)
	if err != nil {
		return nil, err
	}
	if o.desc.Serial {
		if ctx != nil && b.queue.InTask(ctx) {
			return nil, queue.ErrReentrant
		}
		return b.submit(ctx, o, args).Wait(ctx)
	}
	return o.wrapped(ctx, pipeline.Args(args))
}

// Go invokes an async op without waiting. Serial operations are queued
// before Go returns, so the order of Go calls is the order of execution.
// Calling Go on a sync operation settles the Future with an error.
func (b *Base) Go(ctx context.Context, op string, args ...any) *queue.Future {
	o, err := b.lookup(op)
	if err != nil {
		return queue.Resolved(nil, err)
	}
	if !o.desc.Async {
		return queue.Resolved(nil, fmt.Errorf("service %s: operation %q is sync; use Call", b.name, op))
	}
	if o.desc.Serial {
		return b.submit(ctx, o, args)
	}
	return queue.Go(ctx, b.task(o, args))
}

// Method returns op bound to Call. It fails for undeclared names.
func (b *Base) Method(op string) (Method, error) {
	if _, ok := b.ops[op]; !ok {
		return nil, pipeline.NewError(pipeline.ErrCodeUnknownOperation, op, "operation not declared")
	}
	return func(ctx context.Context, args ...any) (any, error) {
		return b.Call(ctx, op, args...)
	}, nil
}

// UsePlugin registers before/after hooks by hook name, e.g. "beforeSelect".
// See pipeline.Registry.UsePlugin.
func (b *Base) UsePlugin(p pipeline.Plugin) error {
	return b.registry.UsePlugin(p)
}

// Use registers middleware by operation name.
func (b *Base) Use(middleware map[string]pipeline.Middleware) error {
	return b.registry.Use(middleware)
}

// RemoveAllPlugins clears every hook and middleware. Operations keep
// working with their plain implementation.
func (b *Base) RemoveAllPlugins() {
	b.registry.RemoveAll()
}

// Close rejects further calls, waits for this service's queued serial
// calls, then clears all hooks and middleware. An owned queue is closed; a
// shared one stays open for its other services. If ctx ends first, Close
// returns ctx.Err() and clears the hooks anyway, so serial calls still
// queued run with their plain implementation. Close must not be called
// from a serial task of this service.
func (b *Base) Close(ctx context.Context) error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if b.ownQueue {
		err = b.queue.Close(ctx)
	}
	if err == nil {
		err = b.inflight.wait(ctx)
	}
	b.registry.RemoveAll()
	b.logger.Debug("service closed", "service", b.name)
	return err
}

func (b *Base) lookup(op string) (*operation, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	o, ok := b.ops[op]
	if !ok {
		return nil, pipeline.NewError(pipeline.ErrCodeUnknownOperation, op, "operation not declared")
	}
	return o, nil
}

// submit queues a serial call and counts it until it has run.
func (b *Base) submit(ctx context.Context, o *operation, args []any) *queue.Future {
	b.inflight.add()
	var once sync.Once
	release := func() { once.Do(b.inflight.done) }
	task := b.task(o, args)
	f := b.queue.Submit(ctx, func(ctx context.Context) (any, error) {
		defer release()
		return task(ctx)
	})
	// A closed queue settles the Future without running the task.
	select {
	case <-f.Done():
		if _, err := f.Wait(context.Background()); errors.Is(err, queue.ErrClosed) {
			release()
		}
	default:
	}
	return f
}

func (b *Base) task(o *operation, args []any) queue.Task {
	return func(ctx context.Context) (any, error) {
		return o.wrapped(ctx, pipeline.Args(args))
	}
}

// inflight counts serial calls submitted but not yet run.
type inflight struct {
	mu   sync.Mutex
	n    int
	idle chan struct{} // closed while n is zero
}

func newInflight() *inflight {
	idle := make(chan struct{})
	close(idle)
	return &inflight{idle: idle}
}

func (c *inflight) add() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == 0 {
		c.idle = make(chan struct{})
	}
	c.n++
}

func (c *inflight) done() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n--
	if c.n == 0 {
		close(c.idle)
	}
}

func (c *inflight) wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
