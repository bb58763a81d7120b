package notify

import (
	"strings"

	"github.com/matheuspdias/managerclin/pkg/logging"
)

// Email providers accepted by SelectSender.
const (
	ProviderAuto     = "auto"
	ProviderSendGrid = "sendgrid"
	ProviderSES      = "ses"
	ProviderStub     = "stub"
)

// SenderConfig picks and configures the email transport.
type SenderConfig struct {
	Provider       string
	SendGridAPIKey string
	FromEmail      string
	FromName       string
}

// SelectSender returns the configured transport. "auto" prefers SendGrid,
// then SES, and falls back to the stub when neither is usable.
func SelectSender(cfg SenderConfig, ses SESAPI, logger *logging.Logger) EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderAuto
	}

	if provider == ProviderSendGrid || provider == ProviderAuto {
		if cfg.SendGridAPIKey != "" && cfg.FromEmail != "" {
			logger.Info("sendgrid email sender initialized")
			return NewSendGridSender(SendGridConfig{APIKey: cfg.SendGridAPIKey, FromEmail: cfg.FromEmail, FromName: cfg.FromName}, logger)
		}
	}
	if provider == ProviderSES || provider == ProviderAuto {
		if ses != nil && cfg.FromEmail != "" {
			logger.Info("ses email sender initialized")
			return NewSESSender(ses, SESConfig{FromEmail: cfg.FromEmail, FromName: cfg.FromName}, logger)
		}
	}
	if provider != ProviderStub {
		logger.Warn("email notifications disabled, using stub sender", "provider", provider)
	}
	return NewStubEmailSender(logger)
}
