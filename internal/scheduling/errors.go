package scheduling

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("scheduling: validation failed")
	ErrConflict             = errors.New("scheduling: booking conflict")
	ErrAppointmentNotFound  = errors.New("scheduling: appointment not found")
	ErrInvalidTransition    = errors.New("scheduling: invalid status transition")
	ErrAppointmentFinalized = errors.New("scheduling: appointment is completed or cancelled")
)

// ValidationError reports a malformed request. It matches ErrValidation.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scheduling: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConflictError lists the appointments a booking collides with and whether it
// falls outside the provider's configured hours. It matches ErrConflict.
type ConflictError struct {
	Conflicts           []Conflict `json:"conflicts"`
	OutsideAvailability bool       `json:"outside_availability"`
}

func (e *ConflictError) Error() string {
	switch {
	case len(e.Conflicts) > 0 && e.OutsideAvailability:
		return fmt.Sprintf("scheduling: outside provider availability and overlaps %d appointment(s)", len(e.Conflicts))
	case e.OutsideAvailability:
		return "scheduling: outside provider availability"
	default:
		return fmt.Sprintf("scheduling: overlaps %d appointment(s)", len(e.Conflicts))
	}
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// TransitionError reports a disallowed status change. It matches ErrInvalidTransition.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("scheduling: cannot move appointment from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
