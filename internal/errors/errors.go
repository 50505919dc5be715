// Package errors defines the structured error taxonomy used across the
// clustering and database-remapping pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an error for logging and for callers that decide whether
// to skip, warn, or abort.
type Code string

const (
	// CodeInvalidConfig indicates malformed or inconsistent configuration.
	CodeInvalidConfig Code = "INVALID_CONFIG"
	// CodeMissingSeries indicates a referenced time-series file does not exist.
	CodeMissingSeries Code = "MISSING_SERIES"
	// CodeBadLabel indicates a malformed period or hour label.
	CodeBadLabel Code = "BAD_LABEL"
	// CodeInfeasiblePeriods indicates more forced/extreme periods were
	// requested than the total period count allows.
	CodeInfeasiblePeriods Code = "INFEASIBLE_PERIODS"
	// CodePeriodCollision indicates a forced or extreme period overlapped an
	// algorithmically chosen center.
	CodePeriodCollision Code = "PERIOD_COLLISION"
	// CodeZeroMassGroup indicates a demand-distribution group summed to zero
	// and was filled with a flatline fallback.
	CodeZeroMassGroup Code = "ZERO_MASS_GROUP"
	// CodeSchemaMismatch indicates a database whose schema version no adapter
	// variant claims.
	CodeSchemaMismatch Code = "SCHEMA_MISMATCH"
	// CodeIntegrity indicates foreign-key violations found after a rewrite.
	CodeIntegrity Code = "INTEGRITY_VIOLATION"
	// CodeIO indicates a file or database I/O failure.
	CodeIO Code = "IO_ERROR"
)

// Error is the structured pipeline error.
type Error struct {
	Code    Code
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

// Unwrap returns the wrapped error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given code, operation and message.
func New(code Code, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and operation.
func Wrap(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// Wrapf annotates err with a code, operation and formatted message.
func Wrapf(code Code, op string, err error, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if stderrors.As(err, &e) {
		if e.Code == code {
			return true
		}
		return HasCode(e.Err, code)
	}
	return false
}

// CodeOf returns the code of the outermost *Error in err's chain, or the
// empty string when err carries no code.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}
