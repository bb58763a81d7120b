package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/matheuspdias/managerclin/pkg/logging"
)

const defaultFromName = "ManagerClin"

var errSenderNotConfigured = errors.New("notify: email transport not configured")

// EmailSender is the outbound mail transport used by Service.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is one notice addressed to one recipient. HTML is optional;
// transports derive it from Body when empty.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
}

// htmlPart returns the HTML alternative for msg. A message without one gets
// its plain body escaped with line breaks kept.
func (m EmailMessage) htmlPart() string {
	if m.HTML != "" {
		return m.HTML
	}
	return strings.ReplaceAll(html.EscapeString(m.Body), "\n", "<br>\n")
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender delivers through the SendGrid v3 mail API.
type SendGridSender struct {
	client *sendgrid.Client
	from   *mail.Email
	logger *logging.Logger
}

// NewSendGridSender yields nil when cfg has no API key, so callers can fall
// through to the next transport.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   mail.NewEmail(firstNonEmpty(cfg.FromName, defaultFromName), cfg.FromEmail),
		logger: logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return errSenderNotConfigured
	}
	to := mail.NewEmail(msg.ToName, msg.To)
	resp, err := s.client.SendWithContext(ctx, mail.NewSingleEmail(s.from, msg.Subject, to, msg.Body, msg.htmlPart()))
	if err != nil {
		return fmt.Errorf("notify: sendgrid: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Error("notify: sendgrid rejected message", "status", resp.StatusCode, "body", resp.Body)
		return fmt.Errorf("notify: sendgrid: status %d", resp.StatusCode)
	}
	s.logger.Info("notify: email delivered", "transport", "sendgrid", "subject", msg.Subject, "status", resp.StatusCode)
	return nil
}

// StubEmailSender only logs. It is the transport when none is configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("notify: email skipped", "transport", "stub", "subject", msg.Subject)
	return nil
}
