package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opline/internal/ir"
)

func editorScenario(name string, ops ...OperationScript) *Scenario {
	if len(ops) == 0 {
		ops = []OperationScript{{Name: "select"}}
	}
	return &Scenario{
		Name:        name,
		Description: "test scenario " + name,
		FlowToken:   "flow-" + name,
		Service:     ServiceDef{Name: "editor", Operations: ops},
		Calls:       []CallStep{{ID: "a", Call: "select", Args: []any{"node-1"}}},
	}
}

func events(trace []TraceEvent) []string {
	out := make([]string, len(trace))
	for i, e := range trace {
		out[i] = e.Event
	}
	return out
}

func TestRun_EchoesFirstArgument(t *testing.T) {
	scenario := editorScenario("echo")
	scenario.Assertions = []Assertion{
		{Type: AssertTraceOrder, Events: []string{"select:start", "select:end"}},
		{Type: AssertCallResult, Call: "a", Expect: "node-1"},
		{Type: AssertJournalOrder, Operations: []string{"editor.select"}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, int64(1), result.Trace[0].Seq)
	assert.Equal(t, ir.IRArray{ir.IRString("node-1")}, result.Trace[0].Data)
	assert.Equal(t, ir.IRString("node-1"), result.Trace[1].Data)
}

func TestRun_DefaultFlowToken(t *testing.T) {
	scenario := editorScenario("no-flow")
	scenario.FlowToken = ""
	scenario.Calls = append(scenario.Calls, CallStep{ID: "b", Call: "select", Args: []any{"node-2"}})
	scenario.Assertions = []Assertion{
		{Type: AssertJournalOrder, Operations: []string{"editor.select", "editor.select"}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, []string{"editor.select", "editor.select"}, result.Journal)
}

func TestRun_ScriptedResult(t *testing.T) {
	scenario := editorScenario("scripted", OperationScript{Name: "select", Result: map[string]any{"id": "node-1", "depth": 2}})

	result, err := Run(scenario)
	require.NoError(t, err)

	outcome, ok := result.Outcome("a")
	require.True(t, ok)
	assert.Equal(t, ir.IRObject{"id": ir.IRString("node-1"), "depth": ir.IRInt(2)}, outcome.Result)
}

func TestRun_OperationError(t *testing.T) {
	scenario := editorScenario("failing", OperationScript{Name: "select", Error: "page is read-only"})
	scenario.Assertions = []Assertion{
		{Type: AssertCallError, Call: "a", Contains: "read-only"},
		{Type: AssertTraceContains, Event: "select:error"},
		{Type: AssertTraceCount, Event: "select:end", Count: 0},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	outcome, _ := result.Outcome("a")
	assert.Equal(t, "page is read-only", outcome.Error)
	assert.Nil(t, outcome.Result)
	assert.Equal(t, []string{"editor.select"}, result.Journal)
}

func TestRun_BeforeHookRewritesArgs(t *testing.T) {
	scenario := editorScenario("rewrite")
	scenario.Plugins = []PluginStep{{Hook: "beforeSelect", Action: ActionRewrite, Args: []any{"node-2"}}}
	scenario.Assertions = []Assertion{
		{Type: AssertTraceContains, Event: "beforeSelect", Data: []any{"node-1"}},
		{Type: AssertTraceContains, Event: "select:start", Data: []any{"node-2"}},
		{Type: AssertCallResult, Call: "a", Expect: "node-2"},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, []string{"beforeSelect", "select:start", "select:end"}, events(result.Trace))
}

func TestRun_BeforeHookAbortSkipsOperation(t *testing.T) {
	scenario := editorScenario("abort")
	scenario.Plugins = []PluginStep{
		{Hook: "beforeSelect", Action: ActionAbort, Error: "selection locked"},
		{Hook: "beforeSelect", Action: ActionPass},
	}
	scenario.Assertions = []Assertion{
		{Type: AssertCallError, Call: "a", Contains: "selection locked"},
		{Type: AssertTraceCount, Event: "beforeSelect", Count: 1},
		{Type: AssertTraceCount, Event: "select:start", Count: 0},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	// Before hooks run outside every middleware, the journal included.
	assert.Empty(t, result.Journal)
}

func TestRun_BeforeHookFailDefaultMessage(t *testing.T) {
	scenario := editorScenario("fail")
	scenario.Plugins = []PluginStep{{Hook: "beforeSelect", Action: ActionFail}}

	result, err := Run(scenario)
	require.NoError(t, err)

	outcome, _ := result.Outcome("a")
	assert.Equal(t, "beforeSelect aborted", outcome.Error)
}

func TestRun_AfterHookReplacesResult(t *testing.T) {
	scenario := editorScenario("replace")
	scenario.Plugins = []PluginStep{
		{Hook: "afterSelect", Action: ActionReplace, Value: "replaced"},
		{Hook: "afterSelect", Action: ActionPass},
	}
	scenario.Assertions = []Assertion{
		{Type: AssertTraceOrder, Events: []string{"select:end", "afterSelect", "afterSelect"}},
		{Type: AssertCallResult, Call: "a", Expect: "replaced"},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	// The second hook sees the first hook's replacement.
	require.Len(t, result.Trace, 4)
	assert.Equal(t, ir.IRString("node-1"), result.Trace[2].Data)
	assert.Equal(t, ir.IRString("replaced"), result.Trace[3].Data)
}

func TestRun_MiddlewareOnionOrder(t *testing.T) {
	scenario := editorScenario("onion")
	scenario.Middleware = []MiddlewareStep{
		{Operation: "select", Name: "outer"},
		{Operation: "select", Name: "inner"},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"outer:before", "inner:before", "select:start", "select:end", "inner:after", "outer:after",
	}, events(result.Trace))
}

func TestRun_MiddlewareShortCircuit(t *testing.T) {
	skip := false
	scenario := editorScenario("short_circuit")
	scenario.Middleware = []MiddlewareStep{{Operation: "select", Name: "cache", CallNext: &skip, Result: "cached"}}
	scenario.Assertions = []Assertion{
		{Type: AssertTraceCount, Event: "select:start", Count: 0},
		{Type: AssertCallResult, Call: "a", Expect: "cached"},
		{Type: AssertJournalOrder, Operations: []string{"editor.select"}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_MiddlewareCallingNextTwice(t *testing.T) {
	scenario := editorScenario("twice")
	scenario.Middleware = []MiddlewareStep{{Operation: "select", Name: "retry", Twice: true}}
	scenario.Assertions = []Assertion{
		{Type: AssertCallError, Call: "a", Contains: "NEXT_CALLED_MULTIPLE_TIMES"},
		{Type: AssertTraceCount, Event: "select:start", Count: 1},
		{Type: AssertTraceContains, Event: "retry:error"},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_SerialCallsRunInSubmissionOrder(t *testing.T) {
	scenario := &Scenario{
		Name:        "serial",
		Description: "serial calls do not interleave",
		FlowToken:   "flow-serial",
		Service: ServiceDef{Name: "editor", Operations: []OperationScript{
			{Name: "save", Async: true, Serial: true, SleepMS: 5},
		}},
		Calls: []CallStep{
			{ID: "first", Call: "save", Args: []any{1}, Detach: true},
			{ID: "second", Call: "save", Args: []any{2}, Detach: true},
			{ID: "third", Call: "save", Args: []any{3}, Detach: true},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"save:start", "save:end", "save:start", "save:end", "save:start", "save:end",
	}, events(result.Trace))
	for i, want := range []int64{1, 1, 2, 2, 3, 3} {
		if i%2 == 0 {
			assert.Equal(t, ir.IRArray{ir.IRInt(want)}, result.Trace[i].Data)
		} else {
			assert.Equal(t, ir.IRInt(want), result.Trace[i].Data)
		}
	}

	ids := make([]string, len(result.Calls))
	for i, c := range result.Calls {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"first", "second", "third"}, ids)
	assert.Equal(t, []string{"editor.save", "editor.save", "editor.save"}, result.Journal)
}

func TestRun_DetachedSyncCallFails(t *testing.T) {
	scenario := editorScenario("detached_sync")
	scenario.Calls[0].Detach = true

	result, err := Run(scenario)
	require.NoError(t, err)

	outcome, _ := result.Outcome("a")
	assert.Contains(t, outcome.Error, "is sync")
	assert.Empty(t, result.Trace)
}

func TestRun_FailedAssertionsReported(t *testing.T) {
	scenario := editorScenario("failed_assertions")
	scenario.Assertions = []Assertion{
		{Type: AssertCallResult, Call: "a", Expect: "node-9"},
		{Type: AssertTraceCount, Event: "select:start", Count: 1},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "assertions[0]")
	assert.Contains(t, result.Errors[0], `"node-9"`)
}

func TestRun_InvalidServiceDeclaration(t *testing.T) {
	scenario := editorScenario("invalid", OperationScript{Name: "save", Serial: true})

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid service")
}

func TestRun_Manifest(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "editor.cue")
	require.NoError(t, os.WriteFile(manifest, []byte(`
service: editor: {
	operations: {
		select: {}
		save: {async: true, serial: true}
	}
}
`), 0o644))

	scenario := editorScenario("manifest", OperationScript{Name: "save", Result: "saved"})
	scenario.Service.Manifest = manifest
	scenario.Calls = append(scenario.Calls, CallStep{ID: "b", Call: "save", Args: []any{"doc"}, Detach: true})
	scenario.Assertions = []Assertion{
		{Type: AssertCallResult, Call: "a", Expect: "node-1"},
		{Type: AssertCallResult, Call: "b", Expect: "saved"},
		{Type: AssertJournalOrder, Operations: []string{"editor.select", "editor.save"}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_ManifestRejectsUndeclaredScript(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "editor.cue")
	require.NoError(t, os.WriteFile(manifest, []byte(`service: editor: operations: select: {}`), 0o644))

	scenario := editorScenario("undeclared", OperationScript{Name: "publish"})
	scenario.Service.Manifest = manifest

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"publish"`)
}

func TestRun_ManifestMissingService(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "other.cue")
	require.NoError(t, os.WriteFile(manifest, []byte(`service: viewer: operations: open: {}`), 0o644))

	scenario := editorScenario("missing")
	scenario.Service.Manifest = manifest

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `does not declare service "editor"`)
}
