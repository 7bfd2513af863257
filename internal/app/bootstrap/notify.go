package bootstrap

import (
	"fmt"

	appconfig "github.com/wolfman30/partsplit-prereg/internal/config"
	"github.com/wolfman30/partsplit-prereg/internal/notify"
	"github.com/wolfman30/partsplit-prereg/pkg/logging"
)

// BuildEmailSender picks the confirmation email provider. ses needs a client.
func BuildEmailSender(cfg *appconfig.Config, ses notify.SESClient, logger *logging.Logger) (notify.EmailSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.EmailProvider {
	case "ses":
		if ses == nil {
			return nil, fmt.Errorf("bootstrap: ses email provider needs an ses client")
		}
		logger.Info("confirmation email via ses", "from", cfg.EmailFrom)
		return notify.NewSESSender(ses, notify.SESConfig{FromEmail: cfg.EmailFrom, FromName: cfg.EmailFromName}, logger), nil
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender == nil {
			logger.Warn("sendgrid selected but SENDGRID_API_KEY empty; using stub sender")
			return notify.NewStubEmailSender(logger), nil
		}
		logger.Info("confirmation email via sendgrid", "from", cfg.EmailFrom)
		return sender, nil
	case "stub", "":
		return notify.NewStubEmailSender(logger), nil
	case "none", "off":
		return nil, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown email provider %q", cfg.EmailProvider)
	}
}
