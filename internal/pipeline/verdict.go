package pipeline

// Args is the ordered positional argument list of one operation call.
type Args []any

// Get returns the i-th argument, or nil when the call had fewer arguments.
func (a Args) Get(i int) any {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}

// Clone returns a shallow copy, so a hook can rewrite positions without
// touching the caller's slice.
func (a Args) Clone() Args {
	if a == nil {
		return nil
	}
	out := make(Args, len(a))
	copy(out, a)
	return out
}

// Arg converts the i-th argument to T. A missing or nil argument yields the zero T.
func Arg[T any](args Args, i int) (T, error) {
	return As[T](args.Get(i))
}

type verdictKind uint8

const (
	verdictPass verdictKind = iota
	verdictContinue
	verdictAbort
)

// Verdict is what a hook returns to steer the pipeline. The zero value
// passes: the current arguments (or result) are kept unchanged.
type Verdict[T any] struct {
	kind  verdictKind
	value T
	err   error
}

// Continue replaces the current value with v and moves on to the next step.
func Continue[T any](v T) Verdict[T] {
	return Verdict[T]{kind: verdictContinue, value: v}
}

// Pass keeps the current value.
func Pass[T any]() Verdict[T] {
	return Verdict[T]{}
}

// Abort stops the pipeline; the caller receives err exactly as given.
// A nil err aborts with ErrAborted.
func Abort[T any](err error) Verdict[T] {
	if err == nil {
		err = ErrAborted
	}
	return Verdict[T]{kind: verdictAbort, err: err}
}

// With continues with xs as the new argument list. With(v) makes v the
// single positional argument.
func With(xs ...any) Verdict[Args] {
	return Continue(Args(xs))
}

// Replace continues with v as the new result of an after-hook chain.
func Replace(v any) Verdict[any] {
	return Continue(v)
}

// Aborted reports whether the verdict stops the pipeline.
func (v Verdict[T]) Aborted() bool {
	return v.kind == verdictAbort
}

// Err returns the abort error, or nil for a non-aborting verdict.
func (v Verdict[T]) Err() error {
	return v.err
}

// Value returns the replacement value and whether there is one.
func (v Verdict[T]) Value() (T, bool) {
	return v.value, v.kind == verdictContinue
}

// apply folds the verdict into current.
func (v Verdict[T]) apply(current T) (T, error) {
	switch v.kind {
	case verdictAbort:
		return current, v.err
	case verdictContinue:
		return v.value, nil
	default:
		return current, nil
	}
}
