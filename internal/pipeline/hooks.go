package pipeline

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Func is an operation implementation: the innermost link of the chain.
type Func func(ctx context.Context, args Args) (any, error)

// Next delegates to the next link of a middleware chain. It may be called
// at most once per middleware invocation.
type Next func(ctx context.Context) (any, error)

// Middleware wraps the rest of the chain. It sees the final before-hook
// arguments and decides whether and when to call next.
type Middleware func(ctx context.Context, args Args, next Next) (any, error)

// BeforeHook runs ahead of the middleware chain and may rewrite the
// arguments or abort the call.
type BeforeHook func(ctx context.Context, args Args) (Verdict[Args], error)

// AfterHook runs after the middleware chain with the result so far and
// the final before-hook arguments. It may replace the result or abort.
type AfterHook func(ctx context.Context, result any, args Args) (Verdict[any], error)

// HookKind says whether a hook runs before or after an operation.
type HookKind string

const (
	KindBefore HookKind = "before"
	KindAfter  HookKind = "after"
)

// Hook is implemented by BeforeHook and AfterHook.
type Hook interface {
	Kind() HookKind
}

// Kind implements Hook.
func (BeforeHook) Kind() HookKind { return KindBefore }

// Kind implements Hook.
func (AfterHook) Kind() HookKind { return KindAfter }

// Plugin maps hook names (see HookName) to hooks. One plugin may extend
// several operations at once.
type Plugin map[string]Hook

// Hooks is a point-in-time copy of everything registered for one operation.
type Hooks struct {
	Before     []BeforeHook
	After      []AfterHook
	Middleware []Middleware
}

// Empty reports whether nothing is registered.
func (h Hooks) Empty() bool {
	return len(h.Before) == 0 && len(h.After) == 0 && len(h.Middleware) == 0
}

var upper = cases.Upper(language.Und)

// HookName returns the plugin key for an operation: the kind followed by
// the operation name with its first letter upper-cased.
//
//	HookName(KindBefore, "select") == "beforeSelect"
func HookName(kind HookKind, op string) string {
	if op == "" {
		return string(kind)
	}
	r, size := utf8.DecodeRuneInString(op)
	var b strings.Builder
	b.WriteString(string(kind))
	b.WriteString(upper.String(string(r)))
	b.WriteString(op[size:])
	return b.String()
}
