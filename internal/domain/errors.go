package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conflict/not-found taxonomy. Business outcomes
// (no drivers available, candidates exhausted, ETA unavailable) are modeled
// as return values, not errors.
var (
	// ErrStaleResponse marks a driver response that no longer matches the
	// active offer (wrong driver, expired deadline, or non-offered state).
	ErrStaleResponse = errors.New("response does not match the active offer")

	// ErrActiveAssignmentExists marks a duplicate assign attempt for an order
	// that already has a non-terminal assignment.
	ErrActiveAssignmentExists = errors.New("order already has an active assignment")

	// ErrVersionConflict marks an optimistic-concurrency failure when
	// committing an assignment transition.
	ErrVersionConflict = errors.New("assignment was modified concurrently")

	// ErrIllegalTransition marks a state change the transition table forbids,
	// e.g. cancelling a delivered assignment.
	ErrIllegalTransition = errors.New("illegal assignment state transition")

	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrDriverNotFound     = errors.New("driver not found")
	ErrOrderNotFound      = errors.New("order not found")
)

// ValidationError reports malformed caller input. It is distinct from both
// business outcomes and conflicts so transports can map it to a 4xx shape.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
