package notification

import (
	"context"

	"github.com/smallbiznis/frostclub/internal/observability/metrics"
	"github.com/smallbiznis/frostclub/internal/providers/email"
	"go.uber.org/zap"
)

// DirectTransport renders and sends in the caller's goroutine.
type DirectTransport struct {
	provider email.Provider
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewDirectTransport(provider email.Provider, m *metrics.Metrics, log *zap.Logger) *DirectTransport {
	return &DirectTransport{provider: provider, metrics: m, log: log.Named("notification.direct")}
}

func (t *DirectTransport) Deliver(ctx context.Context, msg Message) error {
	err := t.provider.SendTemplate(ctx, msg.To, msg.Template, msg.Data)
	outcome := "sent"
	if err != nil {
		outcome = "failed"
		t.log.Warn("email send failed", zap.String("template", msg.Template), zap.Error(err))
	}
	t.metrics.RecordEmail(ctx, msg.Template, outcome)
	return err
}
