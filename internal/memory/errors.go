package memory

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failed store operation for callers of the tool layer.
type ErrorCode string

// Error codes surfaced through the call contract.
const (
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDatabaseError    ErrorCode = "DATABASE_ERROR"
)

// Error is the typed error returned by every Store operation.
//
// Validation problems (missing fields, unknown parents, bad enum values) are
// CodeInvalidParameter. Lookups of unknown ids are CodeNotFound. Everything the
// database itself rejects, including UNIQUE, FOREIGN KEY and CHECK failures,
// is CodeDatabaseError; the sub-cause stays in Err for logging.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the ErrorCode carried by err, or CodeDatabaseError when err
// is not a *Error.
func CodeOf(err error) ErrorCode {
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return CodeDatabaseError
}

// MessageOf returns the caller-facing message of err.
func MessageOf(err error) string {
	var me *Error
	if errors.As(err, &me) {
		return me.Message
	}
	return err.Error()
}

// IsNotFound reports whether err is a NOT_FOUND store error.
func IsNotFound(err error) bool {
	return err != nil && CodeOf(err) == CodeNotFound
}

func invalidParam(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidParameter, Message: fmt.Sprintf(format, args...)}
}

func notFound(entity string, id int64) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %d not found", entity, id)}
}

func dbError(op string, err error) *Error {
	var me *Error
	if errors.As(err, &me) {
		return me
	}
	return &Error{Code: CodeDatabaseError, Message: op + " failed", Err: err}
}
