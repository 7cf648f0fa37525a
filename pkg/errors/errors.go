package errors

import (
	"errors"
	"fmt"
)

// Standard errors
var (
	// ErrNotFound is returned when a requested interaction is not found
	ErrNotFound = errors.New("interaction not found")

	// ErrInvalidInput is returned when turn input fails validation (e.g. empty text)
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable is returned when the memory store cannot be reached.
	// Classification degrades to a first-interaction result when this occurs.
	ErrStoreUnavailable = errors.New("memory store unavailable")

	// ErrProviderUnavailable is returned when the embedding provider is
	// unreachable or the circuit breaker is open
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrIndexInconsistent is returned when a secondary index diverges from
	// the primary record set
	ErrIndexInconsistent = errors.New("secondary index inconsistent with primary records")

	// ErrLuaExecution is returned when there's an error executing a Lua hook
	ErrLuaExecution = errors.New("lua script execution error")
)

// New returns an error with the given text.
// This is a convenience function that wraps errors.New
func New(text string) error {
	return errors.New(text)
}

// Wrap wraps an error with additional context
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience function that wraps errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target, and if so, sets
// target to that error value and returns true. Otherwise, it returns false.
// This is a convenience function that wraps errors.As
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
