package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/opline/internal/ir"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	DocKey   string
}

// HistoryResult is the journaled history of one document.
type HistoryResult struct {
	DocKey string           `json:"doc_key"`
	Steps  []ir.HistoryStep `json:"steps"`
	Stats  HistoryStats     `json:"stats"`
}

// HistoryStats counts steps by kind. Misses are undo/redo steps that
// found nothing to return.
type HistoryStats struct {
	Pushes int `json:"pushes"`
	Undos  int `json:"undos"`
	Redos  int `json:"redos"`
	Misses int `json:"misses"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the journaled undo/redo history of a document",
		Long: `Show every push, undo and redo the journal recorded for a document,
in seq order across all flows.

Examples:
  opline history --db ./opline.db --doc page-1
  opline history --db ./opline.db --doc page-1 --verbose
  opline history --db ./opline.db --doc page-1 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.DocKey, "doc", "", "document key (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("doc")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
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

	steps, err := st.ReadHistory(ctx, opts.DocKey)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}
	opts.logger().Debug("history loaded", "doc", opts.DocKey, "steps", len(steps))

	result := HistoryResult{DocKey: opts.DocKey, Steps: steps}
	for _, s := range steps {
		switch s.Kind {
		case ir.StepPush:
			result.Stats.Pushes++
		case ir.StepUndo:
			result.Stats.Undos++
		case ir.StepRedo:
			result.Stats.Redos++
		}
		if !s.Found {
			result.Stats.Misses++
		}
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	if len(steps) == 0 {
		formatter.Printf("No history recorded for document: %s\n", opts.DocKey)
		return nil
	}
	outputHistoryText(formatter.Writer, result, opts.Verbose)
	return nil
}

func outputHistoryText(w io.Writer, result HistoryResult, verbose bool) {
	fmt.Fprintf(w, "History for Document: %s\n\n", result.DocKey)
	for _, s := range result.Steps {
		entry := "-"
		if s.Found {
			entry = truncateID(s.EntryHash)
		}
		fmt.Fprintf(w, "  [%d] %-4s %s%s\n", s.Seq, s.Kind, entry, foundSuffix(s.Found))
		if verbose {
			fmt.Fprintf(w, "       Flow: %s\n", s.FlowToken)
			if s.Found {
				fmt.Fprintf(w, "       Snapshot: %s\n", formatValue(s.Snapshot))
			}
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Pushes: %d  Undos: %d  Redos: %d  Misses: %d\n",
		result.Stats.Pushes, result.Stats.Undos, result.Stats.Redos, result.Stats.Misses)
}
