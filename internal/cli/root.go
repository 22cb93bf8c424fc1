package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/opline/internal/ir"
	"github.com/roach88/opline/internal/telemetry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	TraceStdout bool   // export a span per operation call to stderr

	// Logger is configured by the root command before any subcommand runs.
	Logger *slog.Logger

	shutdown func(context.Context) error
}

// logger returns the configured logger, or one that discards everything
// when a subcommand runs without the root command (tests).
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the opline CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "opline",
		Short:   "opline - hookable operations with serial execution and history",
		Long:    "Validate service manifests, run conformance scenarios and inspect the operation journal.",
		Version: ir.EngineVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}

			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			opts.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			if opts.TraceStdout {
				shutdown, err := telemetry.Init(cmd.Context(), telemetry.Config{
					UseStdout: true,
					Writer:    cmd.ErrOrStderr(),
				})
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to initialize tracing", err)
				}
				opts.shutdown = shutdown
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.shutdown == nil {
				return nil
			}
			return opts.shutdown(context.WithoutCancel(cmd.Context()))
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVar(&opts.TraceStdout, "trace-stdout", false, "print OpenTelemetry spans to stderr")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
