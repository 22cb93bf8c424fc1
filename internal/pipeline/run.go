package pipeline

import "context"

// Run executes one call of impl under hooks: before-hooks, then the
// middleware chain around impl, then after-hooks.
//
// Errors returned by any step propagate unchanged. An abort verdict
// returns its error unchanged too, skipping every later step; an abort
// in an after-hook does not roll back what impl already did.
func Run(ctx context.Context, hooks Hooks, impl Func, args Args) (any, error) {
	current := args
	for _, hook := range hooks.Before {
		verdict, err := hook(ctx, current)
		if err != nil {
			return nil, err
		}
		if current, err = verdict.apply(current); err != nil {
			return nil, err
		}
	}

	result, err := Compose(hooks.Middleware, impl)(ctx, current)
	if err != nil {
		return nil, err
	}

	for _, hook := range hooks.After {
		verdict, err := hook(ctx, result, current)
		if err != nil {
			return nil, err
		}
		if result, err = verdict.apply(result); err != nil {
			return nil, err
		}
	}
	return result, nil
}
