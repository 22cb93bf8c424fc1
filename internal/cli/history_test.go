package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opline/internal/ir"
)

func runHistoryCmd(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewHistoryCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestHistoryRequiresDoc(t *testing.T) {
	dbPath := seedJournal(t)

	_, err := runHistoryCmd(t, &RootOptions{Format: "text"}, "--db", dbPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestHistoryNonExistentDatabase(t *testing.T) {
	_, err := runHistoryCmd(t, &RootOptions{Format: "text"},
		"--db", filepath.Join(t.TempDir(), "missing.db"), "--doc", "page-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestHistoryUnknownDocument(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := runHistoryCmd(t, &RootOptions{Format: "text"}, "--db", dbPath, "--doc", "page-9")
	require.NoError(t, err)
	assert.Equal(t, "No history recorded for document: page-9\n", out)
}

func TestHistoryText(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := runHistoryCmd(t, &RootOptions{Format: "text"}, "--db", dbPath, "--doc", "page-1")
	require.NoError(t, err)

	hash, err := ir.SnapshotHash(ir.IRObject{"id": ir.IRString("node-1")})
	require.NoError(t, err)

	assert.Contains(t, out, "History for Document: page-1")
	assert.Contains(t, out, "  [2] push "+truncateID(hash)+"\n")
	assert.Contains(t, out, "  [7] undo - (nothing to return)")
	assert.Contains(t, out, "Pushes: 1  Undos: 1  Redos: 0  Misses: 1")
	assert.NotContains(t, out, "Snapshot:")
}

func TestHistoryVerboseShowsSnapshots(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := runHistoryCmd(t, &RootOptions{Format: "text", Verbose: true}, "--db", dbPath, "--doc", "page-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Flow: flow-1")
	assert.Contains(t, out, `Snapshot: {"id":"node-1"}`)
	assert.Contains(t, out, "Flow: flow-2")
}

func TestHistoryJSON(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := runHistoryCmd(t, &RootOptions{Format: "json"}, "--db", dbPath, "--doc", "page-1")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   HistoryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "page-1", resp.Data.DocKey)
	assert.Equal(t, HistoryStats{Pushes: 1, Undos: 1, Misses: 1}, resp.Data.Stats)

	require.Len(t, resp.Data.Steps, 2)
	assert.Equal(t, ir.StepPush, resp.Data.Steps[0].Kind)
	assert.Equal(t, ir.IRObject{"id": ir.IRString("node-1")}, resp.Data.Steps[0].Snapshot)
	assert.Equal(t, "flow-2", resp.Data.Steps[1].FlowToken)
	assert.False(t, resp.Data.Steps[1].Found)
}
