package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

type entry struct {
	before     []BeforeHook
	after      []AfterHook
	middleware []Middleware
}

// Registry owns the hook and middleware lists of one service's declared
// operations. The set of operations is fixed at construction; lists only
// grow until RemoveAll clears them.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	ops    map[string]*entry
	order  []string
	byHook map[string]string // hook name -> operation
	byKind map[string]HookKind
}

// NewRegistry declares ops. Duplicate or empty names are an error.
func NewRegistry(ops ...string) (*Registry, error) {
	r := &Registry{
		ops:    make(map[string]*entry, len(ops)),
		byHook: make(map[string]string, 2*len(ops)),
		byKind: make(map[string]HookKind, 2*len(ops)),
	}
	for _, op := range ops {
		if op == "" {
			return nil, fmt.Errorf("declare operation: empty name")
		}
		if _, dup := r.ops[op]; dup {
			return nil, fmt.Errorf("declare operation %q: duplicate name", op)
		}
		r.ops[op] = &entry{}
		r.order = append(r.order, op)
		for _, kind := range []HookKind{KindBefore, KindAfter} {
			name := HookName(kind, op)
			if other, clash := r.byHook[name]; clash {
				return nil, fmt.Errorf("declare operation %q: hook name %s already used by %q", op, name, other)
			}
			r.byHook[name] = op
			r.byKind[name] = kind
		}
	}
	return r, nil
}

// Operations returns the declared names in declaration order.
func (r *Registry) Operations() []string {
	return slices.Clone(r.order)
}

// Declared reports whether op was declared.
func (r *Registry) Declared(op string) bool {
	_, ok := r.ops[op]
	return ok
}

// Hooks returns a copy of everything currently registered for op.
func (r *Registry) Hooks(op string) (Hooks, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.ops[op]
	if !ok {
		return Hooks{}, false
	}
	return Hooks{
		Before:     slices.Clone(e.before),
		After:      slices.Clone(e.after),
		Middleware: slices.Clone(e.middleware),
	}, true
}

// UsePlugin appends each hook of p to the list its name selects.
// Nil hooks are skipped. Names that match no declared operation, and
// hooks whose kind contradicts their name, are reported together in the
// returned error; every other hook is still registered.
func (r *Registry) UsePlugin(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, name := range sortedKeys(p) {
		hook := p[name]
		op, ok := r.byHook[name]
		if !ok {
			errs = append(errs, NewError(ErrCodeUnknownHook, name, "no operation for hook"))
			continue
		}
		want := r.byKind[name]
		switch h := hook.(type) {
		case nil:
			continue
		case BeforeHook:
			if h == nil {
				continue
			}
			if want != KindBefore {
				errs = append(errs, NewError(ErrCodeHookKindMismatch, name, "before hook registered under an after name"))
				continue
			}
			r.ops[op].before = append(r.ops[op].before, h)
		case AfterHook:
			if h == nil {
				continue
			}
			if want != KindAfter {
				errs = append(errs, NewError(ErrCodeHookKindMismatch, name, "after hook registered under a before name"))
				continue
			}
			r.ops[op].after = append(r.ops[op].after, h)
		default:
			errs = append(errs, NewError(ErrCodeHookKindMismatch, name, fmt.Sprintf("unsupported hook type %T", hook)))
		}
	}
	return errors.Join(errs...)
}

// Use appends middleware per operation name. Undeclared names are
// reported in the returned error; the rest are registered.
func (r *Registry) Use(middleware map[string]Middleware) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, op := range sortedKeys(middleware) {
		mw := middleware[op]
		e, ok := r.ops[op]
		if !ok {
			errs = append(errs, NewError(ErrCodeUnknownOperation, op, "operation not declared"))
			continue
		}
		if mw == nil {
			continue
		}
		e.middleware = append(e.middleware, mw)
	}
	return errors.Join(errs...)
}

// RemoveAll clears every list of every operation. Declarations stay, so
// operations keep working with their plain implementation.
func (r *Registry) RemoveAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.ops {
		e.before = nil
		e.after = nil
		e.middleware = nil
	}
}

// Wrap returns impl extended with whatever is registered for op at the
// time of each call.
func (r *Registry) Wrap(op string, impl Func) (Func, error) {
	if !r.Declared(op) {
		return nil, NewError(ErrCodeUnknownOperation, op, "operation not declared")
	}
	return func(ctx context.Context, args Args) (any, error) {
		hooks, _ := r.Hooks(op)
		return Run(ctx, hooks, impl, args)
	}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
