// Package journal records operation calls and history steps into a store.
//
// A Recorder installs a middleware on every operation of a service.Base.
// Each call is written as an invocation before the rest of the chain runs
// and as a completion after it returns. Records carry a flow token, taken
// from the context or generated for top-level calls, and a seq from a
// logical clock, so a flow reads back in execution order.
//
// Journaling never changes the outcome of a call: write failures are
// logged and dropped.
package journal
