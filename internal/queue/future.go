package queue

import "context"

// Future is the eventual outcome of one submitted task.
type Future struct {
	done   chan struct{}
	result any
	err    error
	q      *Queue // owning queue, nil outside any queue
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolve must be called exactly once.
func (f *Future) resolve(result any, err error) {
	f.result, f.err = result, err
	close(f.done)
}

// Done is closed once the task has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task settles or ctx ends. Giving up on the wait
// does not cancel the task. Waiting from a running task of the same
// queue on a task that has not settled returns ErrReentrant.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	default:
	}
	if f.q != nil && f.q.InTask(ctx) {
		return nil, ErrReentrant
	}
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolved returns an already settled Future.
func Resolved(result any, err error) *Future {
	f := newFuture()
	f.resolve(result, err)
	return f
}

// Go runs task on its own goroutine, outside any queue, and returns its
// Future. A panic settles the Future with a *PanicError.
func Go(ctx context.Context, task Task) *Future {
	if ctx == nil {
		ctx = context.Background()
	}
	f := newFuture()
	go func() {
		f.resolve(run(ctx, task))
	}()
	return f
}
