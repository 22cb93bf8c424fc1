package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opline/internal/ir"
)

func compile(t *testing.T, src string) cue.Value {
	t.Helper()
	v := cuecontext.New().CompileString(src, cue.Filename("manifest.cue"))
	require.NoError(t, v.Err())
	return v
}

func TestCompileServiceBasic(t *testing.T) {
	v := compile(t, `
		service: editor: operations: {
			select: {async: true, serial: true}
			update: {async: true, serial: true}
			highlight: {async: false}
			blur: {}
		}
	`)

	spec, err := CompileService(v.LookupPath(cue.ParsePath("service.editor")))
	require.NoError(t, err)

	assert.Equal(t, &ir.ServiceSpec{
		Name: "editor",
		Operations: []ir.OperationSpec{
			{Name: "select", Async: true, Serial: true},
			{Name: "update", Async: true, Serial: true},
			{Name: "highlight"},
			{Name: "blur"},
		},
	}, spec)
	assert.Equal(t, []string{"select", "update"}, spec.SerialNames())
}

func TestCompileServiceMissingOperations(t *testing.T) {
	v := compile(t, `service: empty: {}`)

	_, err := CompileService(v.LookupPath(cue.ParsePath("service.empty")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operations are required")
}

func TestCompileServiceNoOperations(t *testing.T) {
	v := compile(t, `service: empty: operations: {}`)

	_, err := CompileService(v.LookupPath(cue.ParsePath("service.empty")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one operation")
}

func TestCompileServiceUnknownField(t *testing.T) {
	v := compile(t, `
service: editor: operations: {
	select: {asink: true}
}
`)

	_, err := CompileService(v.LookupPath(cue.ParsePath("service.editor")))
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "operations.select.asink", ce.Field)
	assert.Contains(t, ce.Message, `unknown field "asink"`)
	assert.Contains(t, err.Error(), "manifest.cue:3:")
}

func TestCompileServiceNonBool(t *testing.T) {
	v := compile(t, `service: editor: operations: select: async: "yes"`)

	_, err := CompileService(v.LookupPath(cue.ParsePath("service.editor")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operations.select.async")
	assert.Contains(t, err.Error(), "must be a bool")
}

func TestCompileServiceOperationNotStruct(t *testing.T) {
	v := compile(t, `service: editor: operations: select: true`)

	_, err := CompileService(v.LookupPath(cue.ParsePath("service.editor")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operation must be a struct")
}

func TestCompileHistory(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		want    int
		wantErr string
	}{
		{"explicit size", `history: max_size: 50`, 50, ""},
		{"default size", `history: {}`, 0, ""},
		{"float forbidden", `history: max_size: 1.5`, 0, "float values are forbidden"},
		{"wrong kind", `history: max_size: "big"`, 0, "must be an int"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := compile(t, tt.src)
			spec, err := CompileHistory(v.LookupPath(cue.ParsePath("history")))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, spec.MaxSize)
		})
	}
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "operations", Message: "at least one operation is required"}
	assert.Equal(t, "operations: at least one operation is required", err.Error())
}
