// Package telemedicine runs video consultation sessions and meters them
// against the clinic's credit balance.
package telemedicine

import "time"

// Status is the session lifecycle state.
type Status string

const (
	StatusWaiting   Status = "WAITING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the session is over.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

const (
	// BillingChunkMinutes is the length of session time one credit pays for.
	BillingChunkMinutes = 30
	// InitiationCost is debited when a session starts.
	InitiationCost = 1

	ReasonInsufficientCredits = "insufficient_credits"
	ReasonCompleted           = "completed"
	ReasonCancelled           = "cancelled"
)

// Session is one video consultation attached to an appointment.
type Session struct {
	ID                string     `json:"id"`
	OrgID             string     `json:"org_id"`
	AppointmentID     string     `json:"appointment_id"`
	RoomName          string     `json:"room_name"`
	MeetingURL        string     `json:"meeting_url"`
	Status            Status     `json:"status"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	DurationMinutes   int        `json:"duration_minutes"`
	CreditsConsumed   int        `json:"credits_consumed"`
	LastCreditCheckAt *time.Time `json:"last_credit_check_at,omitempty"`
	EndReason         string     `json:"end_reason,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ElapsedMinutes returns whole minutes from start to now, 0 if never started.
func (s *Session) ElapsedMinutes(now time.Time) int {
	if s.StartedAt == nil || now.Before(*s.StartedAt) {
		return 0
	}
	return int(now.Sub(*s.StartedAt) / time.Minute)
}

// ExpectedCredits is the total a session of elapsedMinutes must have paid:
// one per started half hour, and never less than the initiation credit.
func ExpectedCredits(elapsedMinutes int) int {
	if elapsedMinutes <= 0 {
		return InitiationCost
	}
	chunks := (elapsedMinutes + BillingChunkMinutes - 1) / BillingChunkMinutes
	return max(InitiationCost, chunks)
}

// CheckResult is the outcome of a credit check.
type CheckResult struct {
	Session    *Session `json:"session"`
	Debited    int      `json:"debited"`
	Terminated bool     `json:"terminated"`
	Reason     string   `json:"reason,omitempty"`
}
