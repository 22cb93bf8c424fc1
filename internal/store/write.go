package store

import (
	"context"
	"fmt"

	"github.com/roach88/opline/internal/ir"
)

// WriteInvocation inserts an invocation record into the store.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
// Other constraint violations (e.g., NOT NULL) will still return errors.
//
// Args are serialized to canonical JSON per RFC 8785.
func (s *Store) WriteInvocation(ctx context.Context, inv ir.Invocation) error {
	argsJSON, err := marshalArgs(inv.Args)
	if err != nil {
		return fmt.Errorf("write invocation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invocations
		(id, flow_token, operation, args, seq, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		inv.ID,
		inv.FlowToken,
		string(inv.Operation),
		argsJSON,
		inv.Seq,
		ir.EngineVersion,
		ir.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write invocation: %w", err)
	}

	return nil
}

// WriteCompletion inserts a completion record into the store.
// Uses ON CONFLICT DO NOTHING for idempotency - duplicate writes are silently ignored.
// Each invocation can have exactly ONE completion (UNIQUE constraint on invocation_id).
//
// Note: The invocation referenced by InvocationID must exist (foreign key constraint).
func (s *Store) WriteCompletion(ctx context.Context, comp ir.Completion) error {
	resultJSON, err := marshalValue(comp.Result)
	if err != nil {
		return fmt.Errorf("write completion: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO completions
		(id, invocation_id, outcome, result, error, seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		comp.ID,
		comp.InvocationID,
		comp.Outcome,
		resultJSON,
		comp.Error,
		comp.Seq,
	)
	if err != nil {
		return fmt.Errorf("write completion: %w", err)
	}

	return nil
}

// WriteHistoryStep appends a history step and returns its row ID.
func (s *Store) WriteHistoryStep(ctx context.Context, step ir.HistoryStep) (int64, error) {
	snapshotJSON, err := marshalSnapshot(step.Snapshot)
	if err != nil {
		return 0, fmt.Errorf("write history step: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO history_steps
		(flow_token, doc_key, kind, found, entry_hash, snapshot, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		step.FlowToken,
		step.DocKey,
		step.Kind,
		step.Found,
		step.EntryHash,
		snapshotJSON,
		step.Seq,
	)
	if err != nil {
		return 0, fmt.Errorf("write history step: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("write history step: last insert id: %w", err)
	}
	return id, nil
}
