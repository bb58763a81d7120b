package telemedicine

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound        = errors.New("telemedicine: session not found")
	ErrSessionExists          = errors.New("telemedicine: open session already exists for appointment")
	ErrAppointmentNotBookable = errors.New("telemedicine: appointment is completed or cancelled")
	ErrInvalidTransition      = errors.New("telemedicine: invalid session transition")
	ErrSessionClosed          = errors.New("telemedicine: session has ended")
)

// TransitionError reports a disallowed session status change. It matches
// ErrInvalidTransition.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("telemedicine: cannot move session from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
