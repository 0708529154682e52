package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the engine packages. Callers match them with errors.Is.
var (
	// ErrConfiguration covers unknown optimizer names, malformed option values and
	// parameter vectors whose length does not match the kernel arity.
	ErrConfiguration = errors.New("configuration error")

	// ErrExecutorFailure is returned when the quantum kernel executor fails.
	// The run is aborted and marked failed; the cache keeps what was evaluated so far.
	ErrExecutorFailure = errors.New("executor failure")

	// ErrCacheIntegrity signals an attempted second insert for the same parameter vector.
	// It is an internal logic error and never a user-facing condition.
	ErrCacheIntegrity = errors.New("evaluation cache integrity violation")

	// ErrRunInProgress is returned when a driver is asked to execute while a run is active.
	ErrRunInProgress = errors.New("run already in progress")

	// ErrResultConsumed is returned by a second Get on an async handle.
	ErrResultConsumed = errors.New("result already retrieved")

	// ErrNotFound is returned when a run or record does not exist.
	ErrNotFound = errors.New("not found")
)

// ConfigurationError describes which setting was rejected and why.
type ConfigurationError struct {
	Field  string
	Reason string
}

// NewConfigurationError creates a ConfigurationError for the given field.
func NewConfigurationError(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Unwrap makes errors.Is(err, ErrConfiguration) succeed.
func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// ExecutorFailure wraps an error returned by the kernel executor for one observable term.
type ExecutorFailure struct {
	Term string // Rendered basis of the term being measured
	Err  error
}

func (e *ExecutorFailure) Error() string {
	return fmt.Sprintf("executor failure measuring %s: %v", e.Term, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *ExecutorFailure) Unwrap() []error {
	return []error{ErrExecutorFailure, e.Err}
}
