package notification

import (
	"context"

	"github.com/smallbiznis/frostclub/internal/config"
	"github.com/smallbiznis/frostclub/internal/observability/metrics"
	"github.com/smallbiznis/frostclub/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(NewTransport),
	fx.Provide(NewNotifier),
)

// NewTransport wires the configured transport. With amqp, a consumer in this
// process drains the queue into the direct transport.
func NewTransport(lc fx.Lifecycle, cfg config.Config, provider email.Provider, m *metrics.Metrics, log *zap.Logger) (Transport, error) {
	direct := NewDirectTransport(provider, m, log)
	if cfg.Notification.Transport != config.NotifyTransportAMQP {
		return direct, nil
	}

	publisher, err := NewAMQPTransport(cfg.Notification.AMQPURL, cfg.Notification.Exchange, log)
	if err != nil {
		return nil, err
	}
	consumer, err := NewConsumer(cfg.Notification.AMQPURL, cfg.Notification.Exchange, cfg.Notification.Queue, direct, log)
	if err != nil {
		_ = publisher.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return consumer.Start()
		},
		OnStop: func(context.Context) error {
			_ = consumer.Close()
			return publisher.Close()
		},
	})
	return publisher, nil
}
