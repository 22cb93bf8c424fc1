// Package queue runs submitted tasks one at a time in submission order.
//
// A Queue has at most one worker goroutine. The worker is started when a
// task arrives at an idle queue and exits as soon as the queue is empty
// again, so an idle Queue holds no goroutine and needs no Close to avoid
// leaks. Each task's outcome is delivered through its own Future; a task
// that fails or panics settles only its own Future and the worker moves
// on to the next task.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

var (
	// ErrClosed settles tasks submitted after Close.
	ErrClosed = errors.New("queue: closed")

	// ErrReentrant is returned by Do and Future.Wait when a task waits on
	// another task of its own queue. The waiting task holds the worker, so
	// the awaited one could never run. Submitting without waiting is fine.
	ErrReentrant = errors.New("queue: task waits on a task of the same queue")
)

// PanicError settles the Future of a task that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("queue: task panicked: %v", e.Value)
}

// IsPanic reports whether err comes from a panicking task.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}

// Task is one unit of serialized work. It receives the context given to
// Submit, extended with a marker for the running queue.
type Task func(ctx context.Context) (any, error)

type item struct {
	ctx    context.Context
	task   Task
	future *Future
}

type runningKey struct{}

// execution marks the context of one running task.
type execution struct {
	q *Queue
}

// Queue is an unbounded FIFO of tasks with a single worker.
//
// Submit is safe from any goroutine.
type Queue struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	items   []item
	closed  bool
	running bool
	current *execution    // task on the worker, nil between tasks
	idle    chan struct{} // closed while no worker is running
}

// Option configures a Queue.
type Option func(*Queue)

// WithName labels the queue in log output.
func WithName(name string) Option {
	return func(q *Queue) {
		q.name = name
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// New creates an empty, idle queue.
func New(opts ...Option) *Queue {
	idle := make(chan struct{})
	close(idle)
	q := &Queue{
		logger: slog.Default(),
		items:  make([]item, 0, 16),
		idle:   idle,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit appends task to the queue and returns its Future. The task runs
// after every task submitted before it has settled.
//
// Cancelling ctx does not remove the task; it still runs in its turn with
// ctx, and it is up to the task to honor cancellation.
func (q *Queue) Submit(ctx context.Context, task Task) *Future {
	if ctx == nil {
		ctx = context.Background()
	}
	f := newFuture()
	f.q = q

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		f.resolve(nil, ErrClosed)
		return f
	}
	q.items = append(q.items, item{ctx: ctx, task: task, future: f})
	start := !q.running
	if start {
		q.running = true
		q.idle = make(chan struct{})
	}
	q.mu.Unlock()

	if start {
		go q.drain()
	}
	return f
}

// Do submits task and waits for its outcome. Called from a task running
// on q it returns ErrReentrant without submitting.
func (q *Queue) Do(ctx context.Context, task Task) (any, error) {
	if ctx != nil && q.InTask(ctx) {
		return nil, ErrReentrant
	}
	return q.Submit(ctx, task).Wait(ctx)
}

// InTask reports whether ctx belongs to the task currently on q's worker.
// A context kept past the end of its task no longer matches.
func (q *Queue) InTask(ctx context.Context) bool {
	e, ok := ctx.Value(runningKey{}).(*execution)
	if !ok || e.q != q {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current == e
}

// Len returns the number of tasks waiting to run, excluding a running one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting tasks and waits until every queued task has run.
// It returns ctx.Err() if ctx ends first; the remaining tasks still run.
// Close is idempotent.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.logger.Debug("queue closing", "queue", q.name, "pending", len(q.items))
	}
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain is the worker loop. It exits when the queue is empty.
func (q *Queue) drain() {
	q.logger.Debug("queue worker started", "queue", q.name)
	for {
		it, ok := q.tryDequeue()
		if !ok {
			q.logger.Debug("queue worker idle", "queue", q.name)
			return
		}
		it.future.resolve(q.execute(it))
	}
}

// tryDequeue pops the head. On an empty queue it marks the worker as
// stopped under the same lock, so a concurrent Submit starts a new one.
func (q *Queue) tryDequeue() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		q.running = false
		close(q.idle)
		return item{}, false
	}

	it := q.items[0]
	// Clear the slot so the backing array does not pin the task.
	q.items[0] = item{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return it, true
}

func (q *Queue) execute(it item) (any, error) {
	e := &execution{q: q}
	q.mu.Lock()
	q.current = e
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.current = nil
		q.mu.Unlock()
	}()
	return run(context.WithValue(it.ctx, runningKey{}, e), it.task)
}

// run calls task, turning a panic into a *PanicError.
func run(ctx context.Context, task Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return task(ctx)
}
