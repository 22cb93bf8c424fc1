package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/opline/internal/ir"
	"github.com/roach88/opline/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	FlowToken string // optional - list flows when empty
}

// TraceEvent is a single journal record in the timeline of a flow.
type TraceEvent struct {
	Seq       int64      `json:"seq"`
	Type      string     `json:"type"` // "invocation", "completion" or "history"
	ID        string     `json:"id,omitempty"`
	Operation string     `json:"operation,omitempty"`
	Args      ir.IRArray `json:"args,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
	Result    ir.IRValue `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	DocKey    string     `json:"doc_key,omitempty"`
	Kind      string     `json:"kind,omitempty"`
	Found     *bool      `json:"found,omitempty"`
}

// TraceResult holds the complete trace output for one flow.
type TraceResult struct {
	FlowToken string       `json:"flow_token"`
	Timeline  []TraceEvent `json:"timeline"`
	Stats     TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents  int  `json:"total_events"`
	Invocations  int  `json:"invocations"`
	Completions  int  `json:"completions"`
	Errors       int  `json:"errors"`
	HistorySteps int  `json:"history_steps"`
	IsComplete   bool `json:"is_complete"` // every invocation has a completion
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journal of a flow",
		Long: `Show what the journal recorded for a flow.

Without --flow, lists every flow in the database. With --flow, prints the
timeline of the flow in seq order: each invocation, its completion, and
any history steps the flow caused.

Examples:
  opline trace --db ./opline.db
  opline trace --db ./opline.db --flow 0190c1d2-...
  opline trace --db ./opline.db --flow 0190c1d2-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.FlowToken, "flow", "", "flow token to trace (lists flows when omitted)")

	return cmd
}

// openJournal opens an existing journal database. Unlike store.Open it
// never creates a new file.
func openJournal(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openJournal(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.FlowToken == "" {
		flows, err := st.ListFlows(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list flows", err)
		}
		if formatter.JSON() {
			return formatter.Success(flows)
		}
		outputFlowsText(formatter.Writer, flows)
		return nil
	}

	invocations, completions, err := st.ReadFlow(ctx, opts.FlowToken)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read flow", err)
	}
	steps, err := st.ReadFlowHistory(ctx, opts.FlowToken)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read history steps", err)
	}

	result := TraceResult{
		FlowToken: opts.FlowToken,
		Timeline:  buildTimeline(invocations, completions, steps),
		Stats: TraceStats{
			Invocations:  len(invocations),
			Completions:  len(completions),
			HistorySteps: len(steps),
			IsComplete:   len(invocations) == len(completions),
		},
	}
	result.Stats.TotalEvents = len(result.Timeline)
	for _, c := range completions {
		if c.Outcome == ir.OutcomeError {
			result.Stats.Errors++
		}
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	if len(result.Timeline) == 0 {
		formatter.Printf("No events found for flow: %s\n", opts.FlowToken)
		return nil
	}
	outputTraceText(formatter.Writer, result, opts.Verbose)
	return nil
}

// buildTimeline merges the records of a flow into one list ordered by seq.
// Records with equal seq keep the order invocation, completion, history.
func buildTimeline(invocations []ir.Invocation, completions []ir.Completion, steps []ir.HistoryStep) []TraceEvent {
	ops := make(map[string]string, len(invocations))
	timeline := make([]TraceEvent, 0, len(invocations)+len(completions)+len(steps))

	for _, inv := range invocations {
		ops[inv.ID] = string(inv.Operation)
		timeline = append(timeline, TraceEvent{
			Seq:       inv.Seq,
			Type:      "invocation",
			ID:        inv.ID,
			Operation: string(inv.Operation),
			Args:      inv.Args,
		})
	}
	for _, c := range completions {
		timeline = append(timeline, TraceEvent{
			Seq:       c.Seq,
			Type:      "completion",
			ID:        c.ID,
			Operation: ops[c.InvocationID],
			Outcome:   c.Outcome,
			Result:    c.Result,
			Error:     c.Error,
		})
	}
	for _, s := range steps {
		found := s.Found
		timeline = append(timeline, TraceEvent{
			Seq:    s.Seq,
			Type:   "history",
			DocKey: s.DocKey,
			Kind:   s.Kind,
			Found:  &found,
		})
	}

	slices.SortStableFunc(timeline, func(a, b TraceEvent) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return timeline
}

func outputFlowsText(w io.Writer, flows []store.FlowSummary) {
	if len(flows) == 0 {
		fmt.Fprintln(w, "No flows recorded.")
		return
	}
	fmt.Fprintf(w, "%-40s %11s  %s\n", "FLOW", "INVOCATIONS", "SEQ")
	for _, f := range flows {
		fmt.Fprintf(w, "%-40s %11d  %d-%d\n", f.FlowToken, f.Invocations, f.FirstSeq, f.LastSeq)
	}
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for Flow: %s\n", result.FlowToken)
	fmt.Fprintf(w, "Status: %s\n", completeStatus(result.Stats.IsComplete))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	for _, event := range result.Timeline {
		formatTimelineEvent(w, event, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events:  %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Invocations:   %d\n", result.Stats.Invocations)
	fmt.Fprintf(w, "  Completions:   %d\n", result.Stats.Completions)
	fmt.Fprintf(w, "  Errors:        %d\n", result.Stats.Errors)
	fmt.Fprintf(w, "  History Steps: %d\n", result.Stats.HistorySteps)
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	switch event.Type {
	case "invocation":
		fmt.Fprintf(w, "  [%d] INV  %s %s\n", event.Seq, event.Operation, formatValue(event.Args))
		if verbose {
			fmt.Fprintf(w, "       ID: %s\n", truncateID(event.ID))
		}

	case "completion":
		if event.Outcome == ir.OutcomeError {
			fmt.Fprintf(w, "  [%d] ERR  %s %s\n", event.Seq, event.Operation, event.Error)
		} else {
			fmt.Fprintf(w, "  [%d] OK   %s -> %s\n", event.Seq, event.Operation, formatValue(event.Result))
		}
		if verbose {
			fmt.Fprintf(w, "       ID: %s\n", truncateID(event.ID))
		}

	case "history":
		found := event.Found != nil && *event.Found
		fmt.Fprintf(w, "  [%d] HIST %s %s%s\n", event.Seq, event.DocKey, event.Kind, foundSuffix(found))
	}
}

func foundSuffix(found bool) string {
	if found {
		return ""
	}
	return " (nothing to return)"
}

// formatValue renders an IR value as compact JSON with sorted keys.
func formatValue(v ir.IRValue) string {
	data, err := ir.MarshalIRValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

// completeStatus returns a human-readable completion status.
func completeStatus(isComplete bool) string {
	if isComplete {
		return "Complete"
	}
	return "Incomplete (calls without completion)"
}
