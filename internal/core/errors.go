package core

import (
	"errors"
	"fmt"
)

// Sentinel errors shared between the pipeline and its collaborators.
var (
	// ErrNotFound is returned by a Repository when no customer has the key.
	ErrNotFound = errors.New("customer not found")

	// ErrDuplicateKey is returned by Repository.Create when the natural key
	// unique constraint rejects the insert.
	ErrDuplicateKey = errors.New("duplicate natural key")

	// ErrStaleVersion is returned by Repository.Update when the stored version
	// no longer matches the expected one.
	ErrStaleVersion = errors.New("customer was modified concurrently")

	// ErrJobNotFound is returned for unknown or expired upload jobs.
	ErrJobNotFound = errors.New("upload not found")

	// ErrEmptyPayload is returned when an upload carries no bytes.
	ErrEmptyPayload = errors.New("empty file")
)

// Validation error kinds, part of the report contract.
const (
	KindColumnCount = "column_count"
	KindEncoding    = "encoding"
	KindRequired    = "required"
	KindLength      = "length"
	KindFormat      = "format"
)

// ValidationError is a row-level, recoverable problem with a single field.
type ValidationError struct {
	Line    int
	Field   string
	Kind    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// StructuralError invalidates the whole upload: unreadable stream, broken
// record framing, or a header without the required columns.
type StructuralError struct {
	Line   int // 0 when the problem is not tied to a line
	Reason string
	Err    error
}

func (e *StructuralError) Error() string {
	msg := e.Reason
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *StructuralError) Unwrap() error { return e.Err }

func structuralf(line int, err error, format string, args ...any) *StructuralError {
	return &StructuralError{Line: line, Reason: fmt.Sprintf(format, args...), Err: err}
}

// ReconciliationError is a row-level storage failure for one record.
type ReconciliationError struct {
	Line int
	Key  string
	Err  error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("line %d: reconcile %q: %v", e.Line, e.Key, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }
