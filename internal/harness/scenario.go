package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// A scenario declares a scripted service, installs scripted plugins and
// middleware on it, issues calls, and asserts on the resulting trace.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// FlowToken is the flow every call is journaled under.
	// If empty, defaults to "test-flow-default" for deterministic golden file comparison.
	FlowToken string `yaml:"flow_token,omitempty"`

	// Service declares the scripted service under test.
	Service ServiceDef `yaml:"service"`

	// Plugins are registered in order with UsePlugin, one hook per entry.
	Plugins []PluginStep `yaml:"plugins,omitempty"`

	// Middleware is registered in order with Use; the first entry is outermost.
	Middleware []MiddlewareStep `yaml:"middleware,omitempty"`

	// Calls are issued in order. Detached calls are fired without waiting.
	Calls []CallStep `yaml:"calls"`

	// Assertions validate the final trace, call outcomes and journal.
	Assertions []Assertion `yaml:"assertions"`
}

// ServiceDef declares the service under test.
type ServiceDef struct {
	// Name is the service name, used in hook names and journal records.
	Name string `yaml:"name"`

	// Manifest is an optional CUE manifest. When set, declarations are
	// read from service.<Name> and Operations only script behavior.
	// Relative paths are resolved against the scenario file.
	Manifest string `yaml:"manifest,omitempty"`

	// Operations declares (without a manifest) and scripts each operation.
	Operations []OperationScript `yaml:"operations,omitempty"`
}

// OperationScript scripts what one operation does when called.
type OperationScript struct {
	Name   string `yaml:"name"`
	Async  bool   `yaml:"async,omitempty"`
	Serial bool   `yaml:"serial,omitempty"`

	// SleepMS delays the operation between its start and end events.
	SleepMS int `yaml:"sleep_ms,omitempty"`

	// Result is returned on success. When unset the first argument is echoed.
	Result any `yaml:"result,omitempty"`

	// Error makes the operation fail with this message.
	Error string `yaml:"error,omitempty"`
}

// PluginStep scripts one before or after hook.
type PluginStep struct {
	// Hook is the hook name, e.g. "beforeSelect" or "afterUpdate".
	Hook string `yaml:"hook"`

	// Action is one of pass, rewrite, abort, fail (before hooks) or
	// pass, replace, abort (after hooks).
	Action string `yaml:"action"`

	// Args replace the arguments (rewrite).
	Args []any `yaml:"args,omitempty"`

	// Value replaces the result (replace).
	Value any `yaml:"value,omitempty"`

	// Error is the message of abort and fail. Defaults to "<hook> aborted".
	Error string `yaml:"error,omitempty"`
}

// MiddlewareStep scripts one middleware.
type MiddlewareStep struct {
	// Operation is the operation the middleware wraps.
	Operation string `yaml:"operation"`

	// Name labels the middleware's trace events ("<name>:before", "<name>:after").
	Name string `yaml:"name"`

	// CallNext controls whether next is called. Defaults to true.
	CallNext *bool `yaml:"call_next,omitempty"`

	// Twice calls next a second time after the first returns.
	Twice bool `yaml:"twice,omitempty"`

	// Result is returned when next is not called.
	Result any `yaml:"result,omitempty"`
}

// CallStep issues one call.
type CallStep struct {
	// ID names the call in call_result and call_error assertions.
	// Defaults to "#<index>".
	ID string `yaml:"id,omitempty"`

	// Call is the operation name.
	Call string `yaml:"call"`

	// Args are the positional arguments.
	Args []any `yaml:"args,omitempty"`

	// Detach fires the call with Go and collects its outcome at the end.
	Detach bool `yaml:"detach,omitempty"`
}

// Assertion validates trace, call outcomes or journal.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": event appears in the trace, optionally with data
	// - "trace_order": events appear in order
	// - "trace_count": event appears exactly Count times
	// - "call_result": call succeeded with Expect
	// - "call_error": call failed, optionally with Contains in the message
	// - "journal_order": journaled operations appear in order
	Type string `yaml:"type"`

	// Event is the trace event name (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Data is the expected event data (trace_contains). Unset matches any.
	Data any `yaml:"data,omitempty"`

	// Events is the expected event order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Call is the call ID (call_result, call_error).
	Call string `yaml:"call,omitempty"`

	// Expect is the expected result (call_result).
	Expect any `yaml:"expect,omitempty"`

	// Contains is a substring of the expected error (call_error).
	Contains string `yaml:"contains,omitempty"`

	// Operations is the expected "service.op" order (journal_order).
	Operations []string `yaml:"operations,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertCallResult    = "call_result"
	AssertCallError     = "call_error"
	AssertJournalOrder  = "journal_order"
)

// Plugin actions.
const (
	ActionPass    = "pass"
	ActionRewrite = "rewrite"
	ActionReplace = "replace"
	ActionAbort   = "abort"
	ActionFail    = "fail"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative manifest path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the manifest path relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if m := scenario.Service.Manifest; m != "" && !filepath.IsAbs(m) && basePath != "" {
		scenario.Service.Manifest = filepath.Join(basePath, m)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes a scenario without validating it.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	for i := range scenario.Calls {
		if scenario.Calls[i].ID == "" {
			scenario.Calls[i].ID = fmt.Sprintf("#%d", i)
		}
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Service.Name == "" {
		return fmt.Errorf("service.name is required")
	}

	if s.Service.Manifest != "" {
		if _, err := os.Stat(s.Service.Manifest); os.IsNotExist(err) {
			return fmt.Errorf("manifest file not found: %s", s.Service.Manifest)
		}
	} else if len(s.Service.Operations) == 0 {
		return fmt.Errorf("service.operations is required without a manifest")
	}

	for i, op := range s.Service.Operations {
		if op.Name == "" {
			return fmt.Errorf("service.operations[%d]: name is required", i)
		}
		if op.SleepMS < 0 {
			return fmt.Errorf("service.operations[%d]: sleep_ms must be non-negative", i)
		}
	}

	for i, p := range s.Plugins {
		if err := validatePlugin(i, p); err != nil {
			return err
		}
	}

	for i, m := range s.Middleware {
		if m.Operation == "" {
			return fmt.Errorf("middleware[%d]: operation is required", i)
		}
		if m.Name == "" {
			return fmt.Errorf("middleware[%d]: name is required", i)
		}
	}

	if len(s.Calls) == 0 {
		return fmt.Errorf("calls list is required and must be non-empty")
	}
	ids := make(map[string]bool, len(s.Calls))
	for i, c := range s.Calls {
		if c.Call == "" {
			return fmt.Errorf("calls[%d]: call is required", i)
		}
		if ids[c.ID] {
			return fmt.Errorf("calls[%d]: duplicate id %q", i, c.ID)
		}
		ids[c.ID] = true
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], ids); err != nil {
			return err
		}
	}

	return nil
}

func validatePlugin(index int, p PluginStep) error {
	var allowed []string
	switch {
	case strings.HasPrefix(p.Hook, "before"):
		allowed = []string{ActionPass, ActionRewrite, ActionAbort, ActionFail}
	case strings.HasPrefix(p.Hook, "after"):
		allowed = []string{ActionPass, ActionReplace, ActionAbort}
	default:
		return fmt.Errorf("plugins[%d]: hook %q must start with before or after", index, p.Hook)
	}
	for _, a := range allowed {
		if p.Action == a {
			return nil
		}
	}
	return fmt.Errorf("plugins[%d]: action %q not allowed for %s (want one of %s)",
		index, p.Action, p.Hook, strings.Join(allowed, ", "))
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, calls map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertCallResult, AssertCallError:
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for %s", index, a.Type)
		}
		if !calls[a.Call] {
			return fmt.Errorf("assertions[%d]: unknown call id %q", index, a.Call)
		}
	case AssertJournalOrder:
		if len(a.Operations) == 0 {
			return fmt.Errorf("assertions[%d]: operations list is required for journal_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
