package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is returned by Engine operations that reject their input.
// A rejected call never changes simulation state.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Value is the rejected input.
	Value float64
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidTimestep indicates a negative or non-finite dt.
	ErrCodeInvalidTimestep RuntimeErrorCode = "INVALID_TIMESTEP"

	// ErrCodeThrottleRange indicates a throttle outside [0,1].
	ErrCodeThrottleRange RuntimeErrorCode = "THROTTLE_OUT_OF_RANGE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s (value=%v)", e.Code, e.Message, e.Value)
}

// IsInvalidTimestep returns true if err rejects a time step.
// Uses errors.As to handle wrapped errors.
func IsInvalidTimestep(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidTimestep
	}
	return false
}

// IsThrottleRange returns true if err rejects a throttle value.
func IsThrottleRange(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeThrottleRange
	}
	return false
}
