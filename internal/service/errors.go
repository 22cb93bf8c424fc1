package service

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("service: closed")

// DeclarationError reports an invalid operation declaration at construction.
type DeclarationError struct {
	Service   string
	Operation string
	Message   string
}

// Error implements the error interface.
func (e *DeclarationError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("service %s: operation %q: %s", e.Service, e.Operation, e.Message)
	}
	return fmt.Sprintf("service %s: %s", e.Service, e.Message)
}

// IsDeclarationError reports whether err is a *DeclarationError.
// Uses errors.As to handle wrapped errors.
func IsDeclarationError(err error) bool {
	var de *DeclarationError
	return errors.As(err, &de)
}
