package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/opline/internal/ir"
)

// TraceSnapshot captures the complete observable outcome of a scenario.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string        `json:"scenario_name"`
	FlowToken    string        `json:"flow_token,omitempty"`
	Trace        []TraceEvent  `json:"trace"`
	Calls        []CallOutcome `json:"calls"`
	Journal      []string      `json:"journal"`
}

// toCanonicalMap converts a TraceSnapshot to an IRObject for canonical JSON serialization.
func (s *TraceSnapshot) toCanonicalMap() ir.IRObject {
	trace := make(ir.IRArray, len(s.Trace))
	for i, event := range s.Trace {
		obj := ir.IRObject{
			"seq":   ir.IRInt(event.Seq),
			"event": ir.IRString(event.Event),
		}
		if event.Data != nil {
			obj["data"] = event.Data
		}
		trace[i] = obj
	}

	calls := make(ir.IRArray, len(s.Calls))
	for i, c := range s.Calls {
		obj := ir.IRObject{
			"id":   ir.IRString(c.ID),
			"call": ir.IRString(c.Call),
		}
		if c.Error != "" {
			obj["error"] = ir.IRString(c.Error)
		} else {
			obj["result"] = normalize(c.Result)
		}
		calls[i] = obj
	}

	journal := make(ir.IRArray, len(s.Journal))
	for i, op := range s.Journal {
		journal[i] = ir.IRString(op)
	}

	result := ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"trace":         trace,
		"calls":         calls,
		"journal":       journal,
	}
	if s.FlowToken != "" {
		result["flow_token"] = ir.IRString(s.FlowToken)
	}
	return result
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	data, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}
	golden(t).Assert(t, scenario.Name, data)
	return nil
}

// AssertGolden compares the given result against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Calls:        result.Calls,
		Journal:      result.Journal,
	}
	return assertSnapshot(t, scenarioName, snapshot)
}

// Snapshot returns the canonical JSON golden files hold for a run of scenario.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		FlowToken:    scenario.FlowToken,
		Trace:        result.Trace,
		Calls:        result.Calls,
		Journal:      result.Journal,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

func assertSnapshot(t *testing.T, name string, snapshot TraceSnapshot) error {
	t.Helper()

	data, err := ir.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	golden(t).Assert(t, name, data)
	return nil
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}
