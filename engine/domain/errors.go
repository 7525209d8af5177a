package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure kinds surfaced by the engine.
var (
	ErrInvalidType          = errors.New("invalid node type")
	ErrNotFound             = errors.New("not found")
	ErrSourceInvalid        = errors.New("canonical source invalid")
	ErrGeneratorUnavailable = errors.New("explanation generator unavailable")
	ErrPersistence          = errors.New("persistence failure")
	ErrSpaceMismatch        = errors.New("embedding space mismatch")
)

// Error wraps a sentinel with operation context.
type Error struct {
	Op      string
	Node    string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s (node=%q)", e.Op, e.Wrapped, e.Node)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// NewError creates an Error.
func NewError(op, node string, wrapped error) *Error {
	return &Error{Op: op, Node: node, Wrapped: wrapped}
}
