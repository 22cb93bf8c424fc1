package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/opline/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestInvocation creates a test invocation with minimal required fields.
func createTestInvocation(id, flowToken, operation string, seq int64) ir.Invocation {
	return ir.Invocation{
		ID:        id,
		FlowToken: flowToken,
		Operation: ir.OperationRef(operation),
		Args:      ir.IRArray{},
		Seq:       seq,
	}
}

// createTestCompletion creates a test completion with minimal required fields.
func createTestCompletion(id, invocationID, outcome string, seq int64) ir.Completion {
	return ir.Completion{
		ID:           id,
		InvocationID: invocationID,
		Outcome:      outcome,
		Result:       ir.IRNull{},
		Seq:          seq,
	}
}
