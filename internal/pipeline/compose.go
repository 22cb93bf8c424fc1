package pipeline

import (
	"context"
	"slices"
	"sync/atomic"
)

// Compose builds an onion from middleware with terminal as the innermost
// link. Middleware run in slice order; each reaches the next link only
// through its next argument.
//
// A middleware that returns without calling next short-circuits the
// chain: later links never run and its own return value is the result.
// Calling next twice fails with ErrNextCalledMultipleTimes.
//
// A nil terminal behaves as an implementation returning (nil, nil).
func Compose(middleware []Middleware, terminal Func) Func {
	chain := slices.Clone(middleware)
	return func(ctx context.Context, args Args) (any, error) {
		var dispatch func(ctx context.Context, i int) (any, error)
		dispatch = func(ctx context.Context, i int) (any, error) {
			if i == len(chain) {
				if terminal == nil {
					return nil, nil
				}
				return terminal(ctx, args)
			}
			var called atomic.Bool
			next := func(ctx context.Context) (any, error) {
				if !called.CompareAndSwap(false, true) {
					return nil, NewError(ErrCodeNextCalledMultipleTimes, "", "next() called multiple times")
				}
				return dispatch(ctx, i+1)
			}
			return chain[i](ctx, args, next)
		}
		return dispatch(ctx, 0)
	}
}
