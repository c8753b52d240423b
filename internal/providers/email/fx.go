package email

import (
	"strings"

	"github.com/smallbiznis/frostclub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	switch cfg.Email.Provider {
	case config.EmailProviderResend:
		if strings.TrimSpace(cfg.Email.ResendAPIKey) == "" {
			log.Warn("RESEND_API_KEY is empty, emails disabled")
			return &NoOpProvider{}
		}
		return NewResend(cfg.Email.ResendAPIKey, cfg.Email.From)
	case config.EmailProviderSMTP:
		return NewSMTP(Config{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.From,
		})
	default:
		return &NoOpProvider{}
	}
}
