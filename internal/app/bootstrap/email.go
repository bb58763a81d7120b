package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/matheuspdias/managerclin/cmd/mainconfig"
	appconfig "github.com/matheuspdias/managerclin/internal/config"
	"github.com/matheuspdias/managerclin/internal/notify"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

// BuildEmailSender wires the notification transport. An SES client is only
// created when SendGrid is not configured and SES may be selected.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (notify.EmailSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	senderCfg := notify.SenderConfig{
		Provider:       cfg.EmailProvider,
		SendGridAPIKey: cfg.SendGridAPIKey,
		FromEmail:      cfg.EmailFrom,
		FromName:       cfg.EmailFromName,
	}

	var ses notify.SESAPI
	if needsSES(senderCfg) {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		ses = sesv2.NewFromConfig(awsCfg)
		logger.Info("ses client configured", "region", cfg.AWSRegion)
	}
	return notify.SelectSender(senderCfg, ses, logger), nil
}

func needsSES(cfg notify.SenderConfig) bool {
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case notify.ProviderSES:
		return true
	case notify.ProviderAuto, "":
		return cfg.SendGridAPIKey == ""
	default:
		return false
	}
}
