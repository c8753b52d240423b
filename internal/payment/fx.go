package payment

import (
	"github.com/smallbiznis/frostclub/internal/config"
	"github.com/smallbiznis/frostclub/internal/payment/adapters/stripe"
	"github.com/smallbiznis/frostclub/internal/payment/checkout"
	paymentdomain "github.com/smallbiznis/frostclub/internal/payment/domain"
	"github.com/smallbiznis/frostclub/internal/payment/reconcile"
	"github.com/smallbiznis/frostclub/internal/payment/repository"
	"github.com/smallbiznis/frostclub/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewProcessor),
	fx.Provide(checkout.New),
	fx.Provide(reconcile.New),
	fx.Provide(webhook.NewService),
)

func NewProcessor(cfg config.Config, log *zap.Logger) paymentdomain.Processor {
	if cfg.Stripe.SecretKey == "" {
		log.Warn("STRIPE_SECRET_KEY not set, checkout and verification are unavailable")
	}
	if cfg.Stripe.WebhookSecret == "" {
		log.Warn("STRIPE_WEBHOOK_SECRET not set, webhooks will be rejected")
	}
	return stripe.New(stripe.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}, log)
}
