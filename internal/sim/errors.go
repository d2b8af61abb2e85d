package sim

import (
	"errors"
	"fmt"
)

// Code categorizes facade errors.
type Code string

const (
	// CodeInvalidArgument indicates a malformed config field, an
	// out-of-range throttle or a negative or non-finite dt.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodeInvalidHandle indicates an unknown or destroyed handle.
	CodeInvalidHandle Code = "INVALID_HANDLE"

	// CodeParseFailure indicates a topology script that did not compile.
	// The previous topology stays active.
	CodeParseFailure Code = "PARSE_FAILURE"

	// CodeNotYetAvailable indicates stats requested before the first Advance.
	CodeNotYetAvailable Code = "NOT_YET_AVAILABLE"

	// CodeResourceExhausted indicates Create could not allocate a simulator.
	CodeResourceExhausted Code = "RESOURCE_EXHAUSTED"
)

// Error is returned by every failing facade operation.
type Error struct {
	Code    Code
	Op      string // facade operation, e.g. "Advance"
	Message string
	Err     error // underlying cause, if any
}

// Sentinel values for errors.Is. They match any *Error with the same Code.
var (
	ErrInvalidArgument   = &Error{Code: CodeInvalidArgument}
	ErrInvalidHandle     = &Error{Code: CodeInvalidHandle}
	ErrParseFailure      = &Error{Code: CodeParseFailure}
	ErrNotYetAvailable   = &Error{Code: CodeNotYetAvailable}
	ErrResourceExhausted = &Error{Code: CodeResourceExhausted}
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the Code of err, or "" if err is not a facade error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsInvalidHandle returns true if err rejects a handle.
func IsInvalidHandle(err error) bool { return CodeOf(err) == CodeInvalidHandle }

// IsInvalidArgument returns true if err rejects an argument.
func IsInvalidArgument(err error) bool { return CodeOf(err) == CodeInvalidArgument }

// IsParseFailure returns true if err rejects a topology script.
func IsParseFailure(err error) bool { return CodeOf(err) == CodeParseFailure }

// IsNotYetAvailable returns true if no stats have been published yet.
func IsNotYetAvailable(err error) bool { return CodeOf(err) == CodeNotYetAvailable }

func newError(code Code, op, message string, cause error) *Error {
	return &Error{Code: code, Op: op, Message: message, Err: cause}
}
