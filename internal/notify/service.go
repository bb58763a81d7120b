package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/matheuspdias/managerclin/internal/directory"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

// ErrNoRecipient is wrapped by DeliveryError when a contact has no email.
var ErrNoRecipient = errors.New("notify: recipient has no email address")

// DeliveryError reports a notice that could not be delivered. Callers log it;
// it never undoes the state change that triggered the notice.
type DeliveryError struct {
	Notice    string
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify: deliver %s to %s: %v", e.Notice, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// JoinLinkNotice invites the customer to a telemedicine room.
type JoinLinkNotice struct {
	OrgID         string
	SessionID     string
	AppointmentID string
	CustomerID    string
	ProviderID    string
	MeetingURL    string
	ScheduledFor  string
}

// SessionEndedNotice tells participants a session is over.
type SessionEndedNotice struct {
	OrgID           string
	SessionID       string
	AppointmentID   string
	CustomerID      string
	ProviderID      string
	Reason          string
	DurationMinutes int
	CreditsConsumed int
	EndedAt         time.Time
}

// Service renders and sends patient-facing notices.
type Service struct {
	email     EmailSender
	directory directory.Directory
	logger    *logging.Logger
}

func NewService(email EmailSender, dir directory.Directory, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if email == nil {
		email = NewStubEmailSender(logger)
	}
	return &Service{email: email, directory: dir, logger: logger}
}

// SendJoinLink emails the meeting link to the customer.
func (s *Service) SendJoinLink(ctx context.Context, n JoinLinkNotice) error {
	customer, err := s.contact(ctx, n.OrgID, directory.KindCustomer, n.CustomerID)
	if err != nil {
		return &DeliveryError{Notice: "join link", Recipient: n.CustomerID, Err: err}
	}
	provider := "your provider"
	if p, err := s.contact(ctx, n.OrgID, directory.KindProvider, n.ProviderID); err == nil && p.Name != "" {
		provider = p.Name
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\n\n", firstNonEmpty(customer.Name, "there"))
	fmt.Fprintf(&body, "Your online consultation with %s is ready.\n", provider)
	if n.ScheduledFor != "" {
		fmt.Fprintf(&body, "Scheduled for: %s\n", n.ScheduledFor)
	}
	fmt.Fprintf(&body, "\nJoin here: %s\n", n.MeetingURL)

	msg := EmailMessage{
		To:      customer.Email,
		ToName:  customer.Name,
		Subject: "Your online consultation link",
		Body:    body.String(),
		HTML:    joinLinkHTML(firstNonEmpty(customer.Name, "there"), provider, n.ScheduledFor, n.MeetingURL),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return &DeliveryError{Notice: "join link", Recipient: n.CustomerID, Err: err}
	}
	s.logger.Info("notify: join link sent", "org_id", n.OrgID, "session_id", n.SessionID, "appointment_id", n.AppointmentID)
	return nil
}

// SendSessionEnded emails both participants. Every recipient is attempted;
// the returned error joins the individual failures.
func (s *Service) SendSessionEnded(ctx context.Context, n SessionEndedNotice) error {
	subject := "Your online consultation has ended"
	reason := "The session was completed."
	if n.Reason == "insufficient_credits" {
		reason = "The session was ended because the clinic ran out of telemedicine credits."
	}
	body := fmt.Sprintf("%s\nDuration: %d minute(s)\nEnded at: %s\n", reason, n.DurationMinutes, n.EndedAt.UTC().Format(time.RFC1123))

	var errs []error
	for _, target := range []struct {
		kind directory.Kind
		id   string
	}{
		{directory.KindCustomer, n.CustomerID},
		{directory.KindProvider, n.ProviderID},
	} {
		if target.id == "" {
			continue
		}
		contact, err := s.contact(ctx, n.OrgID, target.kind, target.id)
		if err == nil {
			err = s.email.Send(ctx, EmailMessage{To: contact.Email, ToName: contact.Name, Subject: subject, Body: body})
		}
		if err != nil {
			errs = append(errs, &DeliveryError{Notice: "session ended", Recipient: target.id, Err: err})
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info("notify: session ended notice sent", "org_id", n.OrgID, "session_id", n.SessionID, "reason", n.Reason)
	return nil
}

func joinLinkHTML(customer, provider, scheduledFor, meetingURL string) string {
	var scheduleRow string
	if scheduledFor != "" {
		scheduleRow = fmt.Sprintf(`<p>Scheduled for: %s</p>`, html.EscapeString(scheduledFor))
	}
	return fmt.Sprintf(`<p>Hello %s,</p><p>Your online consultation with %s is ready.</p>%s<p><a href="%s">Join the consultation</a></p>`,
		html.EscapeString(customer),
		html.EscapeString(provider),
		scheduleRow,
		html.EscapeString(meetingURL),
	)
}

func (s *Service) contact(ctx context.Context, orgID string, kind directory.Kind, id string) (directory.Contact, error) {
	if s.directory == nil {
		return directory.Contact{}, ErrNoRecipient
	}
	c, err := directory.LookupContact(ctx, s.directory, orgID, kind, id)
	if err != nil {
		return directory.Contact{}, err
	}
	if strings.TrimSpace(c.Email) == "" {
		return directory.Contact{}, ErrNoRecipient
	}
	return c, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
