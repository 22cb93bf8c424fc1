package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/opline/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Services []string                   `json:"services,omitempty"`
	MaxSize  int                        `json:"history_max_size,omitempty"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest-dir>",
		Short: "Validate service manifests",
		Long: `Validate the CUE service manifests in a directory.

Every service.<name> block is compiled and checked: identifiers, duplicate
or clashing hook names, and serial operations that are not async. The
optional history block is checked too.

Examples:
  opline validate ./manifests
  opline validate ./manifests --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, loadErrs := LoadManifests(dir)
	if loaded == nil {
		code, message := ErrCodeGeneric, loadErrs[0].Error()
		var loadErr *LoadError
		if errors.As(loadErrs[0], &loadErr) {
			code, message = loadErr.Code, loadErr.Message
		}
		_ = formatter.Error(code, message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, dir)

	result := ValidationResult{Valid: true}
	for _, err := range loadErrs {
		ve := compiler.ValidationError{Field: "load", Message: err.Error(), Code: ErrCodeGeneric}
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			ve.Message, ve.Code, ve.Line = loadErr.Message, loadErr.Code, loadErr.Line()
		}
		result.Errors = append(result.Errors, ve)
	}

	for _, spec := range loaded.Services {
		formatter.VerboseLog("Validating service: %s (%d operations)", spec.Name, len(spec.Operations))
		result.Services = append(result.Services, spec.Name)
		result.Errors = append(result.Errors, compiler.Validate(spec)...)
	}
	if loaded.History != nil {
		formatter.VerboseLog("Validating history: max_size=%d", loaded.History.MaxSize)
		result.MaxSize = loaded.History.MaxSize
		result.Errors = append(result.Errors, compiler.Validate(*loaded.History)...)
	}

	if len(result.Errors) > 0 {
		result.Valid = false
		return outputValidationErrors(formatter, result)
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	formatter.Printf("✓ All manifests valid (%d service(s))\n", len(result.Services))
	return nil
}

// outputValidationErrors outputs every validation error and returns the
// ExitFailure error.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.JSON() {
		if err := formatter.Encode(Response{
			Status: "error",
			Data:   result,
			Error:  &ResponseError{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
		return failure
	}

	formatter.Printf("✗ Validation failed\n\n")
	for _, err := range errs {
		if err.Line > 0 {
			formatter.Printf("line %d\n", err.Line)
		}
		formatter.Printf("  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return failure
}
