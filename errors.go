// Package ecoguardian - errors.go
// Defines the error taxonomy shared by the bank, bus, capabilities and coordinator.

package ecoguardian

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned on a bank lookup miss or an unknown registry kind.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is returned when an external capability cannot serve the call.
	// The coordinator retries these up to its configured bound.
	ErrUnavailable = errors.New("unavailable")
	// ErrTimeout is returned when an external capability or a parallel branch
	// exceeds its deadline. Retried like ErrUnavailable.
	ErrTimeout = errors.New("timeout")
	// ErrCapacityExceeded is returned when compaction could not bring the bank
	// back under capacity with the requested reduction.
	ErrCapacityExceeded = errors.New("capacity exceeded")
)

// ValidationError marks malformed input. It is never retried; the stage that
// produced it fails immediately.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// AgentError wraps a failure from a specific agent so callers can report which
// unit of the workflow failed.
type AgentError struct {
	AgentID string
	Kind    AgentKind
	Err     error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent %s (%s): %v", e.AgentID, e.Kind, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// retryable reports whether an error should be retried by the coordinator.
// Validation failures are terminal; only capability outages are transient.
func retryable(err error) bool {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return false
	}
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}
