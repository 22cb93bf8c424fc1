package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/opline/internal/ir"
)

// FlowSummary describes one flow in the journal.
type FlowSummary struct {
	FlowToken   string `json:"flow_token"`
	Invocations int    `json:"invocations"`
	FirstSeq    int64  `json:"first_seq"`
	LastSeq     int64  `json:"last_seq"`
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// ReadFlow returns all invocations and completions for a flow token.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns empty slices (not nil) if no records exist for the flow token.
func (s *Store) ReadFlow(ctx context.Context, flowToken string) ([]ir.Invocation, []ir.Completion, error) {
	invocations, err := s.readFlowInvocations(ctx, flowToken)
	if err != nil {
		return nil, nil, err
	}

	completions, err := s.readFlowCompletions(ctx, flowToken)
	if err != nil {
		return nil, nil, err
	}

	return invocations, completions, nil
}

func (s *Store) readFlowInvocations(ctx context.Context, flowToken string) ([]ir.Invocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, flow_token, operation, args, seq
		FROM invocations
		WHERE flow_token = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, flowToken)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	invocations := []ir.Invocation{}
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		invocations = append(invocations, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocations: %w", err)
	}
	return invocations, nil
}

func (s *Store) readFlowCompletions(ctx context.Context, flowToken string) ([]ir.Completion, error) {
	// Join with invocations to filter by flow_token
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.invocation_id, c.outcome, c.result, c.error, c.seq
		FROM completions c
		JOIN invocations i ON c.invocation_id = i.id
		WHERE i.flow_token = ?
		ORDER BY c.seq ASC, c.id COLLATE BINARY ASC
	`, flowToken)
	if err != nil {
		return nil, fmt.Errorf("query completions: %w", err)
	}
	defer rows.Close()

	completions := []ir.Completion{}
	for rows.Next() {
		comp, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		completions = append(completions, comp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completions: %w", err)
	}
	return completions, nil
}

// ReadInvocation retrieves a single invocation by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadInvocation(ctx context.Context, id string) (ir.Invocation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, flow_token, operation, args, seq
		FROM invocations
		WHERE id = ?
	`, id)
	return scanInvocation(row)
}

// ReadCompletion retrieves a single completion by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadCompletion(ctx context.Context, id string) (ir.Completion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, invocation_id, outcome, result, error, seq
		FROM completions
		WHERE id = ?
	`, id)
	return scanCompletion(row)
}

// ListFlows summarizes every flow that has invocations, oldest first.
func (s *Store) ListFlows(ctx context.Context) ([]FlowSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT flow_token, COUNT(*), MIN(seq), MAX(seq)
		FROM invocations
		GROUP BY flow_token
		ORDER BY MIN(seq) ASC, flow_token COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query flows: %w", err)
	}
	defer rows.Close()

	flows := []FlowSummary{}
	for rows.Next() {
		var f FlowSummary
		if err := rows.Scan(&f.FlowToken, &f.Invocations, &f.FirstSeq, &f.LastSeq); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		flows = append(flows, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flows: %w", err)
	}
	return flows, nil
}

// ReadHistory returns the history steps recorded for a document, in order.
func (s *Store) ReadHistory(ctx context.Context, docKey string) ([]ir.HistoryStep, error) {
	return s.readHistory(ctx, `
		SELECT flow_token, doc_key, kind, found, entry_hash, snapshot, seq
		FROM history_steps
		WHERE doc_key = ?
		ORDER BY seq ASC, id ASC
	`, docKey)
}

// ReadFlowHistory returns the history steps recorded under a flow token, in order.
func (s *Store) ReadFlowHistory(ctx context.Context, flowToken string) ([]ir.HistoryStep, error) {
	return s.readHistory(ctx, `
		SELECT flow_token, doc_key, kind, found, entry_hash, snapshot, seq
		FROM history_steps
		WHERE flow_token = ?
		ORDER BY seq ASC, id ASC
	`, flowToken)
}

func (s *Store) readHistory(ctx context.Context, query string, arg string) ([]ir.HistoryStep, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query history steps: %w", err)
	}
	defer rows.Close()

	steps := []ir.HistoryStep{}
	for rows.Next() {
		var step ir.HistoryStep
		var snapshotJSON string
		if err := rows.Scan(
			&step.FlowToken, &step.DocKey, &step.Kind, &step.Found,
			&step.EntryHash, &snapshotJSON, &step.Seq,
		); err != nil {
			return nil, fmt.Errorf("scan history step: %w", err)
		}
		snapshot, err := unmarshalSnapshot(snapshotJSON)
		if err != nil {
			return nil, err
		}
		step.Snapshot = snapshot
		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history steps: %w", err)
	}
	return steps, nil
}

// scanInvocation scans a row into an Invocation struct.
func scanInvocation(row scanner) (ir.Invocation, error) {
	var inv ir.Invocation
	var operation, argsJSON string

	if err := row.Scan(&inv.ID, &inv.FlowToken, &operation, &argsJSON, &inv.Seq); err != nil {
		return ir.Invocation{}, err
	}
	inv.Operation = ir.OperationRef(operation)

	args, err := unmarshalArgs(argsJSON)
	if err != nil {
		return ir.Invocation{}, err
	}
	inv.Args = args
	return inv, nil
}

// scanCompletion scans a row into a Completion struct.
func scanCompletion(row scanner) (ir.Completion, error) {
	var comp ir.Completion
	var resultJSON string

	if err := row.Scan(
		&comp.ID, &comp.InvocationID, &comp.Outcome, &resultJSON, &comp.Error, &comp.Seq,
	); err != nil {
		return ir.Completion{}, err
	}

	result, err := unmarshalValue(resultJSON)
	if err != nil {
		return ir.Completion{}, err
	}
	comp.Result = result
	return comp, nil
}

var _ scanner = (*sql.Row)(nil)
