// Package pipeline turns a plain operation implementation into an
// extensible one.
//
// A wrapped call runs, in order:
//
//  1. before-hooks, each receiving the argument list produced by the
//     previous hook and returning a Verdict (continue with new args,
//     keep the current args, or abort)
//  2. the middleware chain (onion model) with the implementation as its
//     innermost link; each middleware delegates through an explicit next
//  3. after-hooks, each receiving the result so far plus the final
//     before-hook arguments and returning a Verdict over the result
//
// Aborting is a returned value, not an error: a hook that returns
// Abort(err) stops the pipeline and the caller receives err unchanged.
// An error returned in the ordinary way also stops the pipeline and is
// propagated unchanged. An abort from an after-hook does not undo the
// side effects of the implementation or of earlier after-hooks.
//
// Hook and middleware lists live in a Registry owned by one service. The
// lists are read once per call, so registrations and RemoveAll take
// effect for calls that start afterwards.
package pipeline
