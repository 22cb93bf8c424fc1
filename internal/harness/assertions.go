package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/opline/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Event, render(event.Data))
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns
// the failure messages, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertCallResult:
		return assertCallResult(result, a)
	case AssertCallError:
		return assertCallError(result, a)
	case AssertJournalOrder:
		return assertJournalOrder(result.Journal, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertTraceContains checks if the trace contains the event, with data
// matching a.Data when it is set (subset match for objects).
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	var expected ir.IRValue
	if a.Data != nil {
		expected = ir.FromGo(a.Data)
	}
	for _, event := range trace {
		if event.Event == a.Event && (expected == nil || matchValue(event.Data, expected)) {
			return nil
		}
	}

	want := a.Event
	if expected != nil {
		want = fmt.Sprintf("%s with data %s", a.Event, render(expected))
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: want,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if events appear in the specified order.
// Events don't need to be consecutive (intervening events are allowed).
// Each expected event matches its first occurrence after the previous
// match, so a name may be listed more than once.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	pos := 0 // 1-indexed position of the previous match
	for _, want := range a.Events {
		next := 0
		for i := pos; i < len(trace); i++ {
			if trace[i].Event == want {
				next = i + 1
				break
			}
		}
		if next == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual:   fmt.Sprintf("%s not found after position %d", want, pos),
				Trace:    trace,
			}
		}
		pos = next
	}
	return nil
}

// assertTraceCount checks if the event appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Event == a.Event {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertCallResult checks that the call succeeded with exactly a.Expect.
func assertCallResult(result *Result, a Assertion) error {
	outcome, ok := result.Outcome(a.Call)
	if !ok {
		return fmt.Errorf("unknown call id %q", a.Call)
	}
	expected := ir.FromGo(a.Expect)
	if outcome.Error != "" {
		return &AssertionError{
			Type:     AssertCallResult,
			Expected: fmt.Sprintf("%s to return %s", a.Call, render(expected)),
			Actual:   fmt.Sprintf("error: %s", outcome.Error),
		}
	}
	if !reflect.DeepEqual(normalize(outcome.Result), expected) {
		return &AssertionError{
			Type:     AssertCallResult,
			Expected: fmt.Sprintf("%s to return %s", a.Call, render(expected)),
			Actual:   render(outcome.Result),
		}
	}
	return nil
}

// assertCallError checks that the call failed, with a.Contains in the
// message when it is set.
func assertCallError(result *Result, a Assertion) error {
	outcome, ok := result.Outcome(a.Call)
	if !ok {
		return fmt.Errorf("unknown call id %q", a.Call)
	}
	want := fmt.Sprintf("%s to fail", a.Call)
	if a.Contains != "" {
		want = fmt.Sprintf("%s to fail with %q", a.Call, a.Contains)
	}
	if outcome.Error == "" {
		return &AssertionError{
			Type:     AssertCallError,
			Expected: want,
			Actual:   fmt.Sprintf("returned %s", render(outcome.Result)),
		}
	}
	if !strings.Contains(outcome.Error, a.Contains) {
		return &AssertionError{
			Type:     AssertCallError,
			Expected: want,
			Actual:   fmt.Sprintf("error: %s", outcome.Error),
		}
	}
	return nil
}

// assertJournalOrder checks the journaled operations equal a.Operations.
func assertJournalOrder(journal []string, a Assertion) error {
	if !reflect.DeepEqual(journal, a.Operations) {
		return &AssertionError{
			Type:     AssertJournalOrder,
			Expected: fmt.Sprintf("%v", a.Operations),
			Actual:   fmt.Sprintf("%v", journal),
		}
	}
	return nil
}

// matchValue checks if actual matches expected. Objects match when every
// expected key matches (extra keys in actual are ignored), arrays match
// element-wise, and everything else must be equal.
func matchValue(actual, expected ir.IRValue) bool {
	switch exp := expected.(type) {
	case ir.IRObject:
		act, ok := actual.(ir.IRObject)
		if !ok {
			return false
		}
		for k, v := range exp {
			got, exists := act[k]
			if !exists || !matchValue(got, v) {
				return false
			}
		}
		return true
	case ir.IRArray:
		act, ok := actual.(ir.IRArray)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !matchValue(act[i], exp[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(normalize(actual), expected)
	}
}

func normalize(v ir.IRValue) ir.IRValue {
	if v == nil {
		return ir.IRNull{}
	}
	return v
}

func render(v ir.IRValue) string {
	data, err := ir.MarshalIRValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
