package compiler

import (
	"fmt"
	"regexp"

	"github.com/roach88/opline/internal/ir"
	"github.com/roach88/opline/internal/pipeline"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// ServiceSpec errors (E101-E109)
	ErrServiceNameInvalid = "E101" // service name must be an identifier
	ErrServiceNoOps       = "E102" // at least one operation required
	ErrOperationName      = "E103" // operation name must be an identifier
	ErrDuplicateName      = "E104" // duplicate operation name
	ErrHookNameClash      = "E105" // two operations share a hook name
	ErrSerialNotAsync     = "E106" // serial operation declared sync

	// HistorySpec errors (E110-E119)
	ErrHistoryMaxSize = "E110" // max_size must not be negative
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled IR against schema rules.
// Returns all errors found (does not fail-fast).
// Supports ServiceSpec and HistorySpec types.
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.ServiceSpec:
		return validateServiceSpec(spec)
	case ir.ServiceSpec:
		return validateServiceSpec(&spec)
	case *ir.HistorySpec:
		return validateHistorySpec(spec)
	case ir.HistorySpec:
		return validateHistorySpec(&spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// validateServiceSpec validates a service declaration. The checks mirror
// what service.New rejects at construction, so a manifest that validates
// always builds.
func validateServiceSpec(spec *ir.ServiceSpec) []ValidationError {
	var errs []ValidationError

	// E101: service name must be an identifier
	if !identifier.MatchString(spec.Name) {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("service name %q must be an identifier", spec.Name),
			Code:    ErrServiceNameInvalid,
		})
	}

	// E102: at least one operation required
	if len(spec.Operations) == 0 {
		errs = append(errs, ValidationError{
			Field:   "operations",
			Message: "at least one operation is required",
			Code:    ErrServiceNoOps,
		})
	}

	names := make(map[string]bool)
	hooks := make(map[string]string)
	for i, op := range spec.Operations {
		field := fmt.Sprintf("operations[%d]", i)

		// E103: operation name must be an identifier
		if !identifier.MatchString(op.Name) {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("operation name %q must be an identifier", op.Name),
				Code:    ErrOperationName,
			})
			continue
		}

		// E104: duplicate operation name
		if names[op.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate operation name: %q", op.Name),
				Code:    ErrDuplicateName,
			})
			continue
		}
		names[op.Name] = true

		// E105: "select" and "Select" both map to beforeSelect
		hook := pipeline.HookName(pipeline.KindBefore, op.Name)
		if other, ok := hooks[hook]; ok {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("operations %q and %q share hook name %q", other, op.Name, hook),
				Code:    ErrHookNameClash,
			})
		}
		hooks[hook] = op.Name

		// E106: serial requires async
		if op.Serial && !op.Async {
			errs = append(errs, ValidationError{
				Field:   field + ".serial",
				Message: fmt.Sprintf("operation %q is serial but not async", op.Name),
				Code:    ErrSerialNotAsync,
			})
		}
	}

	return errs
}

func validateHistorySpec(spec *ir.HistorySpec) []ValidationError {
	if spec.MaxSize < 0 {
		return []ValidationError{{
			Field:   "history.max_size",
			Message: fmt.Sprintf("max_size must not be negative, got %d", spec.MaxSize),
			Code:    ErrHistoryMaxSize,
		}}
	}
	return nil
}
