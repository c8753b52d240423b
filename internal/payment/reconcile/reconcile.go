// Package reconcile applies a paid checkout session to local state. The same
// function serves the webhook, the verification endpoint and the scheduler.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/frostclub/internal/audit/domain"
	bookingdomain "github.com/smallbiznis/frostclub/internal/booking/domain"
	"github.com/smallbiznis/frostclub/internal/clock"
	"github.com/smallbiznis/frostclub/internal/config"
	eventdomain "github.com/smallbiznis/frostclub/internal/event/domain"
	"github.com/smallbiznis/frostclub/internal/notification"
	"github.com/smallbiznis/frostclub/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/frostclub/internal/order/domain"
	paymentdomain "github.com/smallbiznis/frostclub/internal/payment/domain"
	profiledomain "github.com/smallbiznis/frostclub/internal/profile/domain"
	"github.com/smallbiznis/frostclub/internal/ratelimit"
	"github.com/smallbiznis/frostclub/internal/tier"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutcomeSlotConflict marks a paid booking whose slot was rebooked after the
// sweep abandoned it.
const OutcomeSlotConflict = "slot_conflict"

// OutcomeMembershipSuperseded marks a membership session older than the one
// that set the member's current tier.
const OutcomeMembershipSuperseded = "membership_superseded"

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Cfg       config.Config
	Repo      paymentdomain.Repository
	Processor paymentdomain.Processor
	Profiles  profiledomain.Service
	Orders    orderdomain.Service
	Bookings  bookingdomain.Service
	Events    eventdomain.Service
	Tiers     *tier.Catalog
	Notifier  notification.Notifier `optional:"true"`
	Limiter   *ratelimit.Limiter    `optional:"true"`
	Metrics   *metrics.Metrics      `optional:"true"`
	Clock     clock.Clock           `optional:"true"`
	AuditSvc  auditdomain.Service   `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	baseURL   string
	repo      paymentdomain.Repository
	processor paymentdomain.Processor
	profiles  profiledomain.Service
	orders    orderdomain.Service
	bookings  bookingdomain.Service
	events    eventdomain.Service
	tiers     *tier.Catalog
	notifier  notification.Notifier
	limiter   *ratelimit.Limiter
	metrics   *metrics.Metrics
	clock     clock.Clock
	auditSvc  auditdomain.Service
}

func New(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.reconcile"),
		genID:     p.GenID,
		baseURL:   strings.TrimRight(p.Cfg.PublicBaseURL, "/"),
		repo:      p.Repo,
		processor: p.Processor,
		profiles:  p.Profiles,
		orders:    p.Orders,
		bookings:  p.Bookings,
		events:    p.Events,
		tiers:     p.Tiers,
		notifier:  p.Notifier,
		limiter:   p.Limiter,
		metrics:   p.Metrics,
		clock:     clk,
		auditSvc:  p.AuditSvc,
	}
}

// Verify fetches the session from the processor and applies it when paid.
func (s *Service) Verify(ctx context.Context, sessionID string, source string) (*paymentdomain.ReconcileResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, paymentdomain.ErrInvalidSessionID
	}
	session, err := s.processor.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Apply(ctx, session, source)
}

// Apply is idempotent per session id: a processed marker short-circuits with
// the stored result, and every effect is a conditional update.
func (s *Service) Apply(ctx context.Context, session *paymentdomain.CheckoutSession, source string) (*paymentdomain.ReconcileResult, error) {
	if session == nil || strings.TrimSpace(session.ID) == "" {
		return nil, paymentdomain.ErrInvalidSessionID
	}
	purchaseType, ok := session.PurchaseType()
	if !ok {
		return nil, paymentdomain.ErrUnknownPurchaseType
	}
	if !session.Paid() {
		return nil, paymentdomain.ErrPaymentNotCompleted
	}

	log := s.log.With(
		zap.String("session_id", session.ID),
		zap.String("purchase_type", string(purchaseType)),
		zap.String("source", source),
	)

	token, locked, err := s.limiter.LockSession(ctx, session.ID)
	if err != nil {
		log.Warn("reconcile lock unavailable, relying on marker", zap.Error(err))
		locked, token = true, ""
	}
	if !locked {
		s.metrics.RecordReconciliation(ctx, string(purchaseType), source, "locked")
		return nil, paymentdomain.ErrReconcileInProgress
	}
	if token != "" {
		defer func() {
			if err := s.limiter.UnlockSession(context.WithoutCancel(ctx), session.ID, token); err != nil {
				log.Warn("failed to release reconcile lock", zap.Error(err))
			}
		}()
	}

	stored, first, err := s.claim(ctx, session.ID, purchaseType, source)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		s.metrics.RecordReconciliation(ctx, string(purchaseType), source, "already_processed")
		return stored, nil
	}

	result := &paymentdomain.ReconcileResult{SessionID: session.ID, PurchaseType: purchaseType}
	switch purchaseType {
	case paymentdomain.PurchaseMembership:
		err = s.applyMembership(ctx, session, result)
	case paymentdomain.PurchaseStore:
		err = s.applyStore(ctx, session, first, result)
	case paymentdomain.PurchaseEvent:
		err = s.applyEvent(ctx, session, result)
	case paymentdomain.PurchaseSession:
		err = s.applySession(ctx, session, result)
	}
	if err != nil {
		s.metrics.RecordReconciliation(ctx, string(purchaseType), source, "error")
		log.Error("reconciliation failed", zap.Error(err))
		return nil, err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.MarkMarkerProcessed(ctx, s.db, session.ID, encoded, s.clock.Now()); err != nil {
		return nil, err
	}

	s.metrics.RecordReconciliation(ctx, string(purchaseType), source, "applied")
	log.Info("checkout session reconciled", zap.String("outcome", result.Outcome))
	s.audit(ctx, session.ID, source, result)
	return result, nil
}

// claim inserts the marker. It returns the stored result when the session was
// already processed, and nil when effects still need applying; first is set
// when this call created the marker.
func (s *Service) claim(ctx context.Context, sessionID string, purchaseType paymentdomain.PurchaseType, source string) (*paymentdomain.ReconcileResult, bool, error) {
	inserted, err := s.repo.InsertMarker(ctx, s.db, &paymentdomain.Reconciliation{
		ID:           s.genID.Generate(),
		SessionID:    sessionID,
		PurchaseType: purchaseType,
		Source:       source,
		Status:       paymentdomain.ReconciliationReceived,
		ReceivedAt:   s.clock.Now(),
	})
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return nil, true, nil
	}

	marker, err := s.repo.FindMarker(ctx, s.db, sessionID)
	if err != nil {
		return nil, false, err
	}
	if marker == nil || marker.Status != paymentdomain.ReconciliationProcessed {
		// A previous attempt stopped half way; its effects are safe to re-run.
		return nil, false, nil
	}

	stored := &paymentdomain.ReconcileResult{SessionID: sessionID, PurchaseType: marker.PurchaseType}
	if len(marker.Result) > 0 {
		if err := json.Unmarshal(marker.Result, stored); err != nil {
			return nil, false, err
		}
	}
	stored.AlreadyProcessed = true
	return stored, false, nil
}

func (s *Service) applyMembership(ctx context.Context, session *paymentdomain.CheckoutSession, result *paymentdomain.ReconcileResult) error {
	email := session.Metadata[paymentdomain.MetaEmail]
	if email == "" {
		email = session.CustomerEmail
	}
	tierID := session.Metadata[paymentdomain.MetaTier]
	t, err := s.tiers.Lookup(tierID)
	if err != nil {
		return paymentdomain.ErrInvalidTier
	}

	p, created, err := s.profiles.ApplyMembership(ctx, email, t.ID, session.CustomerID, session.Created)
	if errors.Is(err, profiledomain.ErrStaleMembership) {
		current, lookupErr := s.profiles.GetByEmail(ctx, email)
		if lookupErr != nil {
			return lookupErr
		}
		s.log.Warn("membership session superseded by a newer one",
			zap.String("session_id", session.ID),
			zap.String("profile_id", current.ID),
			zap.String("session_tier", t.ID),
			zap.String("current_tier", current.Tier),
		)
		result.Email = current.Email
		result.ProfileID = current.ID
		result.Tier = current.Tier
		result.Outcome = OutcomeMembershipSuperseded
		return nil
	}
	if err != nil {
		return err
	}
	result.Email = p.Email
	result.ProfileID = p.ID
	result.Tier = p.Tier
	result.Outcome = "tier_applied"

	if created {
		result.Outcome = "profile_created"
		s.notify(ctx, "welcome", func(n notification.Notifier) error {
			return n.Welcome(ctx, notification.WelcomeData{
				Email:    p.Email,
				TierName: t.Name,
				LoginURL: s.baseURL + "/login",
			})
		})
	}
	return nil
}

// applyStore sends the confirmation on the first claim too, since
// payment_intent.succeeded may have moved the order out of pending already.
func (s *Service) applyStore(ctx context.Context, session *paymentdomain.CheckoutSession, first bool, result *paymentdomain.ReconcileResult) error {
	orderID := session.Metadata[paymentdomain.MetaOrderID]
	if orderID == "" {
		o, err := s.orders.GetBySessionID(ctx, session.ID)
		if err != nil {
			return err
		}
		orderID = o.ID.String()
	}

	o, changed, err := s.orders.MarkProcessing(ctx, orderID, session.PaymentIntentID)
	if err != nil {
		return err
	}
	result.OrderID = o.ID.String()
	result.Email = o.Email
	result.ProfileID = o.UserID
	result.Outcome = string(o.Status)
	if !changed && !(first && o.Status == orderdomain.StatusProcessing) {
		return nil
	}

	lines := make([]notification.OrderLine, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, notification.OrderLine{Name: item.Name, Quantity: item.Quantity, Amount: item.Amount()})
	}
	s.notify(ctx, "order_confirmed", func(n notification.Notifier) error {
		return n.OrderConfirmed(ctx, notification.OrderData{
			Email:    o.Email,
			OrderID:  result.OrderID,
			Items:    lines,
			Subtotal: o.Subtotal,
			Shipping: o.Shipping,
			Total:    o.Total,
			Currency: o.Currency,
		})
	})
	return nil
}

func (s *Service) applyEvent(ctx context.Context, session *paymentdomain.CheckoutSession, result *paymentdomain.ReconcileResult) error {
	regID := session.Metadata[paymentdomain.MetaRegistrationID]
	if regID == "" {
		r, err := s.events.GetRegistrationBySessionID(ctx, session.ID)
		if err != nil {
			return err
		}
		regID = r.ID.String()
	}

	reg, outcome, err := s.events.ConfirmRegistration(ctx, regID)
	if err != nil {
		return err
	}
	result.RegistrationID = reg.ID.String()
	result.Email = reg.Email
	result.ProfileID = reg.UserID
	result.Outcome = string(reg.Status)
	if outcome == eventdomain.OutcomeUnchanged {
		return nil
	}

	data := notification.TicketData{
		Email:          reg.Email,
		RegistrationID: result.RegistrationID,
		Quantity:       reg.Quantity,
		Amount:         reg.Amount,
		Currency:       reg.Currency,
		Waitlisted:     outcome == eventdomain.OutcomeWaitlisted,
	}
	if ev, err := s.events.Get(ctx, reg.EventID.String(), ""); err == nil {
		data.EventTitle = ev.Title
		data.StartsAt = ev.StartsAt.UTC().Format("Mon 2 Jan 2006 15:04 MST")
		if ev.Venue != nil {
			data.Venue = *ev.Venue
		}
	} else {
		s.log.Warn("event lookup for ticket email failed", zap.String("event_id", reg.EventID.String()), zap.Error(err))
	}
	s.notify(ctx, "ticket_confirmed", func(n notification.Notifier) error {
		return n.TicketConfirmed(ctx, data)
	})
	return nil
}

func (s *Service) applySession(ctx context.Context, session *paymentdomain.CheckoutSession, result *paymentdomain.ReconcileResult) error {
	bookingID := session.Metadata[paymentdomain.MetaBookingID]
	if bookingID == "" {
		b, err := s.bookings.GetBySessionID(ctx, session.ID)
		if err != nil {
			return err
		}
		bookingID = b.ID.String()
	}

	b, changed, err := s.bookings.Confirm(ctx, bookingID)
	if errors.Is(err, bookingdomain.ErrSlotTaken) {
		// Paid after the sweep released the slot to someone else; the
		// booking stays abandoned and needs a refund.
		lost, getErr := s.bookings.Get(ctx, bookingID)
		if getErr != nil {
			return getErr
		}
		s.log.Error("paid booking lost its slot",
			zap.String("session_id", session.ID),
			zap.String("booking_id", bookingID),
		)
		result.BookingID = lost.ID.String()
		result.Email = lost.Email
		result.ProfileID = lost.UserID
		result.Outcome = OutcomeSlotConflict
		return nil
	}
	if err != nil {
		return err
	}
	result.BookingID = b.ID.String()
	result.Email = b.Email
	result.ProfileID = b.UserID
	result.Outcome = string(b.Status)
	if !changed {
		return nil
	}

	notes := ""
	if b.Notes != nil {
		notes = *b.Notes
	}
	s.notify(ctx, "booking_confirmed", func(n notification.Notifier) error {
		return n.BookingConfirmed(ctx, notification.BookingData{
			Email:           b.Email,
			BookingID:       result.BookingID,
			SessionDate:     b.SessionDate.UTC().Format("Mon 2 Jan 2006 15:04 MST"),
			DurationMinutes: b.DurationMinutes,
			Notes:           notes,
			Amount:          b.Price,
			Currency:        b.Currency,
		})
	})
	return nil
}

// notify never fails reconciliation; a lost email is logged.
func (s *Service) notify(ctx context.Context, template string, send func(notification.Notifier) error) {
	if s.notifier == nil {
		return
	}
	if err := send(s.notifier); err != nil {
		s.log.Warn("confirmation email failed", zap.String("template", template), zap.Error(err))
	}
}

func (s *Service) audit(ctx context.Context, sessionID, source string, result *paymentdomain.ReconcileResult) {
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{
		"purchase_type": string(result.PurchaseType),
		"source":        source,
		"outcome":       result.Outcome,
	}
	for key, value := range map[string]string{
		"profile_id":      result.ProfileID,
		"tier":            result.Tier,
		"order_id":        result.OrderID,
		"booking_id":      result.BookingID,
		"registration_id": result.RegistrationID,
	} {
		if value != "" {
			metadata[key] = value
		}
	}
	if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeSystem), nil, "payment.reconciled", "checkout_session", &sessionID, metadata); err != nil {
		s.log.Warn("audit reconciliation failed", zap.Error(err))
	}
}

// Marker exposes the stored marker, mainly for diagnostics.
func (s *Service) Marker(ctx context.Context, sessionID string) (*paymentdomain.Reconciliation, error) {
	return s.repo.FindMarker(ctx, s.db, sessionID)
}
