package harness

import (
	"sync"

	"github.com/roach88/opline/internal/ir"
	"github.com/roach88/opline/internal/journal"
)

// TraceEvent is one step observed while running a scenario: an operation
// starting or ending, a hook firing, or a middleware entering or leaving.
type TraceEvent struct {
	Seq   int64      `json:"seq"`
	Event string     `json:"event"`
	Data  ir.IRValue `json:"data,omitempty"`
}

// CallOutcome is how one scenario call settled.
type CallOutcome struct {
	ID     string     `json:"id"`
	Call   string     `json:"call"`
	Result ir.IRValue `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion held.
	Pass bool `json:"pass"`

	// Trace contains every observed event in order.
	Trace []TraceEvent `json:"trace"`

	// Calls holds the outcome of each call, in call order.
	Calls []CallOutcome `json:"calls"`

	// Journal lists the journaled operations ("service.op") in seq order.
	Journal []string `json:"journal"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Calls:   []CallOutcome{},
		Journal: []string{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Outcome returns the outcome of the call with the given ID.
func (r *Result) Outcome(id string) (CallOutcome, bool) {
	for _, c := range r.Calls {
		if c.ID == id {
			return c, true
		}
	}
	return CallOutcome{}, false
}

// tracer collects trace events from concurrently running operations.
type tracer struct {
	mu     sync.Mutex
	clock  *journal.Clock
	events []TraceEvent
}

func newTracer() *tracer {
	return &tracer{clock: journal.NewClock(), events: []TraceEvent{}}
}

// add stamps and appends an event under one lock, so seq order is
// append order.
func (t *tracer) add(event string, data ir.IRValue) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, TraceEvent{Seq: t.clock.Next(), Event: event, Data: data})
}

func (t *tracer) snapshot() []TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEvent, len(t.events))
	copy(out, t.events)
	return out
}
