package availability

import (
	"time"

	"github.com/matheuspdias/managerclin/internal/calendar"
)

// Source describes which rule produced a resolved window.
type Source string

const (
	SourceException Source = "exception"
	SourceRecurring Source = "recurring"
	SourceDefault   Source = "default"
)

// WeeklyRule is a provider's recurring open hours for one weekday. At most
// one rule exists per (org, provider, weekday).
type WeeklyRule struct {
	ID         string             `json:"id"`
	OrgID      string             `json:"org_id"`
	ProviderID string             `json:"provider_id"`
	Weekday    time.Weekday       `json:"weekday"`
	Start      calendar.TimeOfDay `json:"start"`
	End        calendar.TimeOfDay `json:"end"`
	Active     bool               `json:"active"`
	CreatedAt  time.Time          `json:"created_at"`
	CreatedBy  string             `json:"created_by"`
	UpdatedAt  time.Time          `json:"updated_at"`
	UpdatedBy  string             `json:"updated_by"`
}

// Exception overrides the weekly rule for a single date. When Available is
// false the provider is closed all day. When Available is true and no hours
// are set, the weekday's normal hours apply.
type Exception struct {
	ID         string              `json:"id"`
	OrgID      string              `json:"org_id"`
	ProviderID string              `json:"provider_id"`
	Date       calendar.Date       `json:"date"`
	Start      *calendar.TimeOfDay `json:"start,omitempty"`
	End        *calendar.TimeOfDay `json:"end,omitempty"`
	Available  bool                `json:"available"`
	Reason     string              `json:"reason,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	CreatedBy  string              `json:"created_by"`
}

// HasHours reports whether the exception carries its own hours.
func (e *Exception) HasHours() bool {
	return e.Start != nil && e.End != nil
}

// Window is the resolved open interval for a provider on a date.
type Window struct {
	ProviderID          string             `json:"provider_id"`
	Date                calendar.Date      `json:"date"`
	Start               calendar.TimeOfDay `json:"start"`
	End                 calendar.TimeOfDay `json:"end"`
	HasExplicitSchedule bool               `json:"has_explicit_schedule"`
	Source              Source             `json:"source"`
	Reason              string             `json:"reason,omitempty"`
}

// Range returns the window as a half-open interval.
func (w Window) Range() calendar.Range {
	return calendar.Range{Start: w.Start, End: w.End}
}

// IsEmpty reports whether the provider is closed for the day.
func (w Window) IsEmpty() bool {
	return w.Range().IsEmpty()
}

// SetWeeklyRuleRequest creates or replaces the rule for a weekday.
type SetWeeklyRuleRequest struct {
	ProviderID string             `json:"-"`
	Weekday    time.Weekday       `json:"weekday"`
	Start      calendar.TimeOfDay `json:"start"`
	End        calendar.TimeOfDay `json:"end"`
	Active     *bool              `json:"active,omitempty"`
}

// Validate checks the weekday and hours.
func (r SetWeeklyRuleRequest) Validate() error {
	if r.ProviderID == "" {
		return ErrMissingProvider
	}
	if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
		return ErrInvalidWeekday
	}
	return validateHours(r.Start, r.End)
}

// AddExceptionRequest creates or replaces the exception for a date.
type AddExceptionRequest struct {
	ProviderID string              `json:"-"`
	Date       calendar.Date       `json:"date"`
	Start      *calendar.TimeOfDay `json:"start,omitempty"`
	End        *calendar.TimeOfDay `json:"end,omitempty"`
	Available  bool                `json:"available"`
	Reason     string              `json:"reason,omitempty"`
}

// Validate checks the date and optional hours.
func (r AddExceptionRequest) Validate() error {
	if r.ProviderID == "" {
		return ErrMissingProvider
	}
	if r.Date.IsZero() {
		return calendar.ErrInvalidDate
	}
	if !r.Available {
		return nil
	}
	if (r.Start == nil) != (r.End == nil) {
		return ErrInvalidException
	}
	if r.Start != nil {
		return validateHours(*r.Start, *r.End)
	}
	return nil
}

func validateHours(start, end calendar.TimeOfDay) error {
	if !start.Valid() || !end.Valid() || start >= end {
		return ErrInvalidWindow
	}
	return nil
}
