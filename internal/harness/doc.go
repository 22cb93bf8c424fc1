// Package harness runs conformance scenarios against scripted services.
//
// A scenario declares a service whose operations are scripted (echo an
// argument, return a value, fail, sleep), installs scripted plugins and
// middleware on it, issues calls and asserts on what happened. Every
// operation, hook and middleware step is recorded in a trace, and every
// call is journaled, so ordering guarantees of the pipeline and the
// serial queue can be checked from YAML.
//
// # Scenario Format
//
//	name: serial_order
//	description: "Serial calls run in submission order"
//	flow_token: flow-serial
//	service:
//	  name: editor
//	  manifest: ../manifests/editor.cue   # optional CUE declarations
//	  operations:
//	    - name: save
//	      async: true
//	      serial: true
//	      sleep_ms: 5
//	plugins:
//	  - hook: beforeSave
//	    action: rewrite
//	    args: ["draft"]
//	middleware:
//	  - operation: save
//	    name: timing
//	calls:
//	  - id: first
//	    call: save
//	    args: ["a"]
//	    detach: true
//	assertions:
//	  - type: trace_order
//	    events: ["timing:before", "save:start", "save:end", "timing:after"]
//	  - type: call_result
//	    call: first
//	    expect: "draft"
//
// # Trace Events
//
//   - <op>:start, <op>:end, <op>:error: a scripted operation ran
//   - <hookName>: a plugin hook fired (data is its arguments or result)
//   - <name>:before, <name>:after, <name>:error: a middleware ran
//
// # Assertion Types
//
//   - trace_contains: an event appears, optionally with matching data
//   - trace_order: events appear in order (gaps allowed)
//   - trace_count: an event appears exactly N times
//   - call_result: a call returned the expected value
//   - call_error: a call failed, optionally with a substring in the message
//   - journal_order: the journaled operations, in seq order
//
// # Deterministic Testing
//
// Each run uses a fixed flow token, a deterministic trace clock and an
// in-memory SQLite journal, so sequential and serial scenarios produce
// byte-identical golden snapshots. Detached calls to non-serial
// operations interleave freely and should not be golden-tested.
package harness
