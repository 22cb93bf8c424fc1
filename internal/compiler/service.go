package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/opline/internal/ir"
)

// Operation fields accepted in a manifest.
const (
	fieldAsync  = "async"
	fieldSerial = "serial"
)

// CompileService parses a CUE value into a ServiceSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the service struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`service: editor: operations: {...}`)
//	spec, err := CompileService(v.LookupPath(cue.ParsePath("service.editor")))
func CompileService(v cue.Value) (*ir.ServiceSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.ServiceSpec{}

	// Service name comes from the struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	opsVal := v.LookupPath(cue.ParsePath("operations"))
	if !opsVal.Exists() {
		return nil, &CompileError{
			Field:   "operations",
			Message: "operations are required",
			Pos:     v.Pos(),
		}
	}

	ops, err := parseOperations(opsVal)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, &CompileError{
			Field:   "operations",
			Message: "at least one operation is required",
			Pos:     opsVal.Pos(),
		}
	}
	spec.Operations = ops

	return spec, nil
}

// parseOperations extracts operation declarations in declaration order.
func parseOperations(v cue.Value) ([]ir.OperationSpec, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var ops []ir.OperationSpec
	for iter.Next() {
		name := iter.Label()
		opVal := iter.Value()
		op := ir.OperationSpec{Name: name}

		fields, err := opVal.Fields()
		if err != nil {
			return nil, &CompileError{
				Field:   "operations." + name,
				Message: "operation must be a struct",
				Pos:     opVal.Pos(),
			}
		}
		for fields.Next() {
			path := fmt.Sprintf("operations.%s.%s", name, fields.Label())
			switch fields.Label() {
			case fieldAsync:
				op.Async, err = parseBool(fields.Value(), path)
			case fieldSerial:
				op.Serial, err = parseBool(fields.Value(), path)
			default:
				err = &CompileError{
					Field:   path,
					Message: fmt.Sprintf("unknown field %q (want %s or %s)", fields.Label(), fieldAsync, fieldSerial),
					Pos:     fields.Value().Pos(),
				}
			}
			if err != nil {
				return nil, err
			}
		}

		ops = append(ops, op)
	}
	return ops, nil
}

func parseBool(v cue.Value, field string) (bool, error) {
	if v.IncompleteKind() != cue.BoolKind {
		return false, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("must be a bool, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
	b, err := v.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// CompileHistory parses the history block of a manifest.
// A missing max_size yields the zero spec (default stack size).
func CompileHistory(v cue.Value) (*ir.HistorySpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.HistorySpec{}
	sizeVal := v.LookupPath(cue.ParsePath("max_size"))
	if !sizeVal.Exists() {
		return spec, nil
	}

	switch sizeVal.IncompleteKind() {
	case cue.IntKind:
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "history.max_size",
			Message: "float values are forbidden - use int instead",
			Pos:     sizeVal.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   "history.max_size",
			Message: fmt.Sprintf("must be an int, got %v", sizeVal.IncompleteKind()),
			Pos:     sizeVal.Pos(),
		}
	}

	n, err := sizeVal.Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.MaxSize = int(n)
	return spec, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
