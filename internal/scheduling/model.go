package scheduling

import (
	"strings"
	"time"

	"github.com/matheuspdias/managerclin/internal/calendar"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusScheduled:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// ParseStatus normalizes a status string.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return st, true
	}
	return "", false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Appointment is a booking of a provider and room for a customer.
type Appointment struct {
	ID         string             `json:"id"`
	OrgID      string             `json:"org_id"`
	ProviderID string             `json:"provider_id"`
	RoomID     string             `json:"room_id"`
	CustomerID string             `json:"customer_id"`
	ServiceID  string             `json:"service_id"`
	Date       calendar.Date      `json:"date"`
	Start      calendar.TimeOfDay `json:"start"`
	End        calendar.TimeOfDay `json:"end"`
	Status     Status             `json:"status"`
	Notes      string             `json:"notes,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	CreatedBy  string             `json:"created_by"`
	UpdatedAt  time.Time          `json:"updated_at"`
	UpdatedBy  string             `json:"updated_by"`
	DeletedAt  *time.Time         `json:"deleted_at,omitempty"`
	DeletedBy  string             `json:"deleted_by,omitempty"`
}

// Range returns the appointment's time span.
func (a *Appointment) Range() calendar.Range {
	return calendar.Range{Start: a.Start, End: a.End}
}

// Deleted reports whether the appointment was soft deleted.
func (a *Appointment) Deleted() bool {
	return a.DeletedAt != nil
}

// Blocks reports whether the appointment occupies its provider and room.
func (a *Appointment) Blocks() bool {
	return !a.Deleted() && a.Status != StatusCancelled
}

// Resource is a bookable dimension checked for overlaps.
type Resource string

const (
	ResourceProvider Resource = "provider"
	ResourceRoom     Resource = "room"
)

// Proposal is a prospective booking to check for conflicts.
type Proposal struct {
	Date       calendar.Date      `json:"date"`
	Start      calendar.TimeOfDay `json:"start"`
	End        calendar.TimeOfDay `json:"end"`
	ProviderID string             `json:"provider_id"`
	RoomID     string             `json:"room_id"`
	ExcludeID  string             `json:"exclude_appointment_id,omitempty"`
}

// Range returns the proposed time span.
func (p Proposal) Range() calendar.Range {
	return calendar.Range{Start: p.Start, End: p.End}
}

// Conflict describes an existing appointment that overlaps a proposal.
type Conflict struct {
	AppointmentID string             `json:"appointment_id"`
	CustomerID    string             `json:"customer_id"`
	CustomerName  string             `json:"customer_name"`
	ProviderID    string             `json:"provider_id"`
	RoomID        string             `json:"room_id"`
	Date          calendar.Date      `json:"date"`
	Start         calendar.TimeOfDay `json:"start"`
	End           calendar.TimeOfDay `json:"end"`
	Resources     []Resource         `json:"resources"`
}

// OverlapQuery selects blocking appointments on one resource that intersect a range.
type OverlapQuery struct {
	Resource   Resource
	ResourceID string
	Date       calendar.Date
	Start      calendar.TimeOfDay
	End        calendar.TimeOfDay
	ExcludeID  string
}

// ListFilter narrows appointment listings. Zero values match everything.
type ListFilter struct {
	Date           *calendar.Date
	ProviderID     string
	RoomID         string
	CustomerID     string
	Status         Status
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// CreateRequest books a new appointment.
type CreateRequest struct {
	ProviderID string             `json:"provider_id"`
	RoomID     string             `json:"room_id"`
	CustomerID string             `json:"customer_id"`
	ServiceID  string             `json:"service_id"`
	Date       calendar.Date      `json:"date"`
	Start      calendar.TimeOfDay `json:"start"`
	End        calendar.TimeOfDay `json:"end"`
	Notes      string             `json:"notes,omitempty"`
	Force      bool               `json:"force,omitempty"`
}

// Validate checks required fields and the time range.
func (r CreateRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.ProviderID) == "":
		return &ValidationError{Field: "provider_id", Reason: "is required"}
	case strings.TrimSpace(r.RoomID) == "":
		return &ValidationError{Field: "room_id", Reason: "is required"}
	case strings.TrimSpace(r.CustomerID) == "":
		return &ValidationError{Field: "customer_id", Reason: "is required"}
	case strings.TrimSpace(r.ServiceID) == "":
		return &ValidationError{Field: "service_id", Reason: "is required"}
	case r.Date.IsZero():
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	return validateRange(r.Start, r.End)
}

// UpdateRequest changes an existing appointment. Nil fields are left as is.
type UpdateRequest struct {
	ProviderID *string             `json:"provider_id,omitempty"`
	RoomID     *string             `json:"room_id,omitempty"`
	CustomerID *string             `json:"customer_id,omitempty"`
	ServiceID  *string             `json:"service_id,omitempty"`
	Date       *calendar.Date      `json:"date,omitempty"`
	Start      *calendar.TimeOfDay `json:"start,omitempty"`
	End        *calendar.TimeOfDay `json:"end,omitempty"`
	Notes      *string             `json:"notes,omitempty"`
	Force      bool                `json:"force,omitempty"`
}

func validateRange(start, end calendar.TimeOfDay) error {
	if !start.Valid() || !end.Valid() {
		return &ValidationError{Field: "start", Reason: "must be a time of day"}
	}
	if start >= end {
		return &ValidationError{Field: "end", Reason: "must be after start"}
	}
	return nil
}

// Slot is a candidate booking interval.
type Slot struct {
	Start calendar.TimeOfDay `json:"start"`
	End   calendar.TimeOfDay `json:"end"`
}

// Range returns the slot as an interval.
func (s Slot) Range() calendar.Range {
	return calendar.Range{Start: s.Start, End: s.End}
}
