package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/frostclub/internal/clock"
	"github.com/smallbiznis/frostclub/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/frostclub/internal/order/domain"
	paymentdomain "github.com/smallbiznis/frostclub/internal/payment/domain"
	"github.com/smallbiznis/frostclub/internal/payment/reconcile"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxPayloadBytes bounds the webhook body read by the HTTP handler.
const MaxPayloadBytes = 64 << 10

const selfTestEventType = "frostclub.webhook_test"

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      paymentdomain.Repository
	Processor paymentdomain.Processor
	Reconcile *reconcile.Service
	Orders    orderdomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
	Clock     clock.Clock      `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      paymentdomain.Repository
	processor paymentdomain.Processor
	reconcile *reconcile.Service
	orders    orderdomain.Service
	metrics   *metrics.Metrics
	clock     clock.Clock
}

type Status struct {
	Configured bool                     `json:"configured"`
	Events     paymentdomain.EventStats `json:"events"`
}

type SelfTestResult struct {
	Verified  bool                      `json:"verified"`
	EventID   string                    `json:"event_id"`
	EventType string                    `json:"event_type"`
	Kind      paymentdomain.WebhookKind `json:"kind"`
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.webhook"),
		genID:     p.GenID,
		repo:      p.Repo,
		processor: p.Processor,
		reconcile: p.Reconcile,
		orders:    p.Orders,
		metrics:   p.Metrics,
		clock:     clk,
	}
}

// Receive verifies, dedupes and dispatches one webhook delivery. Verification
// failures return before any database access; dispatch failures leave the
// event unprocessed and wrap ErrDispatchFailed.
func (s *Service) Receive(ctx context.Context, payload []byte, signatureHeader string) error {
	if len(payload) > MaxPayloadBytes {
		return paymentdomain.ErrPayloadTooLarge
	}
	event, err := s.processor.ParseWebhook(payload, signatureHeader)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrInvalidSignature) {
			s.log.Warn("webhook signature rejected")
		}
		return err
	}

	log := s.log.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))
	now := s.clock.Now()

	record := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        paymentdomain.ProviderStripe,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, &record)
	if err != nil {
		return fmt.Errorf("%w: %w", paymentdomain.ErrDispatchFailed, err)
	}
	if !inserted {
		stored, err := s.repo.FindEvent(ctx, s.db, paymentdomain.ProviderStripe, event.ID)
		if err != nil {
			return fmt.Errorf("%w: %w", paymentdomain.ErrDispatchFailed, err)
		}
		if stored != nil && stored.ProcessedAt != nil {
			log.Info("duplicate webhook delivery ignored")
			return nil
		}
	} else {
		s.metrics.RecordPaymentEvent(ctx, paymentdomain.ProviderStripe, event.Type)
	}

	if err := s.dispatch(ctx, log, event); err != nil {
		log.Error("webhook dispatch failed, awaiting redelivery", zap.Error(err))
		return fmt.Errorf("%w: %w", paymentdomain.ErrDispatchFailed, err)
	}

	if err := s.repo.MarkEventProcessed(ctx, s.db, paymentdomain.ProviderStripe, event.ID, s.clock.Now()); err != nil {
		return fmt.Errorf("%w: %w", paymentdomain.ErrDispatchFailed, err)
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, log *zap.Logger, event *paymentdomain.WebhookEvent) error {
	switch event.Kind {
	case paymentdomain.KindCheckoutCompleted:
		_, err := s.reconcile.Apply(ctx, event.CheckoutCompleted, paymentdomain.SourceWebhook)
		switch {
		case errors.Is(err, paymentdomain.ErrPaymentNotCompleted):
			log.Info("checkout completed without payment, waiting for async settlement",
				zap.String("session_id", event.CheckoutCompleted.ID))
			return nil
		case errors.Is(err, paymentdomain.ErrUnknownPurchaseType):
			log.Warn("checkout session without purchase type ignored",
				zap.String("session_id", event.CheckoutCompleted.ID))
			return nil
		}
		return err

	case paymentdomain.KindSubscriptionChanged:
		sub := event.SubscriptionChanged
		log.Info("subscription changed",
			zap.String("subscription_id", sub.ID),
			zap.String("customer_id", sub.CustomerID),
			zap.String("status", sub.Status),
			zap.Bool("deleted", sub.Deleted),
		)
		return nil

	case paymentdomain.KindPaymentSucceeded:
		intent := event.PaymentSucceeded
		orderID := intent.Metadata[paymentdomain.MetaOrderID]
		if orderID == "" {
			return nil
		}
		o, changed, err := s.orders.MarkProcessing(ctx, orderID, intent.ID)
		if err != nil {
			if errors.Is(err, orderdomain.ErrNotFound) || errors.Is(err, orderdomain.ErrInvalidID) {
				log.Warn("payment intent references unknown order", zap.String("order_id", orderID))
				return nil
			}
			return err
		}
		log.Info("payment intent applied to order",
			zap.String("order_id", o.ID.String()),
			zap.String("status", string(o.Status)),
			zap.Bool("changed", changed),
		)
		return nil
	}

	log.Debug("webhook event ignored")
	return nil
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	stats, err := s.repo.EventStats(ctx, s.db, paymentdomain.ProviderStripe)
	if err != nil {
		return Status{}, err
	}
	return Status{Configured: s.processor.WebhookConfigured(), Events: stats}, nil
}

// SelfTest signs a synthetic event with the configured secret and runs it
// through verification only. Nothing is persisted.
func (s *Service) SelfTest(ctx context.Context) (SelfTestResult, error) {
	if !s.processor.WebhookConfigured() {
		return SelfTestResult{}, paymentdomain.ErrWebhookNotConfigured
	}
	now := s.clock.Now()
	eventID := "evt_selftest_" + s.genID.Generate().String()
	payload := []byte(fmt.Sprintf(
		`{"id":%q,"object":"event","type":%q,"created":%d,"data":{"object":{}}}`,
		eventID, selfTestEventType, now.Unix(),
	))

	header, err := s.processor.SignPayload(payload, now)
	if err != nil {
		return SelfTestResult{}, err
	}
	event, err := s.processor.ParseWebhook(payload, header)
	if err != nil {
		s.log.Warn("webhook self test failed", zap.Error(err))
		return SelfTestResult{EventID: eventID, EventType: selfTestEventType}, err
	}
	s.log.Info("webhook self test passed", zap.String("event_id", event.ID))
	return SelfTestResult{Verified: true, EventID: event.ID, EventType: event.Type, Kind: event.Kind}, nil
}

