package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	bookingdomain "github.com/smallbiznis/frostclub/internal/booking/domain"
	eventdomain "github.com/smallbiznis/frostclub/internal/event/domain"
	orderdomain "github.com/smallbiznis/frostclub/internal/order/domain"
	"github.com/smallbiznis/frostclub/internal/payment/checkout"
	paymentdomain "github.com/smallbiznis/frostclub/internal/payment/domain"
	"github.com/smallbiznis/frostclub/internal/payment/paymenttest"
	"github.com/smallbiznis/frostclub/internal/payment/reconcile"
	profiledomain "github.com/smallbiznis/frostclub/internal/profile/domain"
	"github.com/smallbiznis/frostclub/internal/providers/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func membershipSession(t *testing.T, h *paymenttest.Harness, addr, tierID string) string {
	t.Helper()
	res, err := h.Checkout.CreateMembershipCheckout(context.Background(), checkout.MembershipRequest{Email: addr, Tier: tierID})
	require.NoError(t, err)
	return res.SessionID
}

func TestVerifyRejectsUnpaidSession(t *testing.T) {
	h := paymenttest.NewHarness(t)
	sessionID := membershipSession(t, h, "a@b.com", "frost_fan")

	_, err := h.Reconcile.Verify(context.Background(), sessionID, paymentdomain.SourceVerify)
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentNotCompleted)
	assert.Equal(t, int64(0), h.Count(t, "SELECT COUNT(*) FROM payment_reconciliations"))
	assert.Equal(t, int64(0), h.Count(t, "SELECT COUNT(*) FROM profiles"))
}

func TestVerifyUnknownSession(t *testing.T) {
	h := paymenttest.NewHarness(t)

	_, err := h.Reconcile.Verify(context.Background(), "cs_missing", paymentdomain.SourceVerify)
	assert.ErrorIs(t, err, paymentdomain.ErrSessionNotFound)

	_, err = h.Reconcile.Verify(context.Background(), "  ", paymentdomain.SourceVerify)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSessionID)
}

func TestMembershipReconcileIsIdempotent(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	sessionID := membershipSession(t, h, "a@b.com", "frost_fan")
	h.Processor.Complete(sessionID)

	first, err := h.Reconcile.Verify(ctx, sessionID, paymentdomain.SourceVerify)
	require.NoError(t, err)
	assert.False(t, first.AlreadyProcessed)
	assert.Equal(t, "frost_fan", first.Tier)
	assert.Equal(t, "profile_created", first.Outcome)

	second, err := h.Reconcile.Verify(ctx, sessionID, paymentdomain.SourceVerify)
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, first.ProfileID, second.ProfileID)

	p, err := h.Profiles.GetByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "frost_fan", p.Tier)
	require.NotNil(t, p.StripeCustomerID)
	assert.Equal(t, h.Processor.Customers["a@b.com"], *p.StripeCustomerID)

	assert.Equal(t, []string{email.TemplateWelcome}, h.Outbox.Templates())
	assert.Equal(t, int64(1), h.Count(t, "SELECT COUNT(*) FROM payment_reconciliations WHERE status = 'processed'"))
	assert.Equal(t, int64(1), h.Count(t, "SELECT COUNT(*) FROM audit_logs WHERE action = 'payment.reconciled'"))
}

func TestOlderMembershipSessionDoesNotOverwriteNewerTier(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	older := membershipSession(t, h, "a@b.com", "avalanche_backstage")
	h.Clock.Advance(5 * time.Minute)
	newer := membershipSession(t, h, "a@b.com", "frost_fan")
	h.Processor.Complete(older)
	h.Processor.Complete(newer)

	res, err := h.Reconcile.Verify(ctx, newer, paymentdomain.SourceVerify)
	require.NoError(t, err)
	assert.Equal(t, "frost_fan", res.Tier)

	res, err = h.Reconcile.Verify(ctx, older, paymentdomain.SourceWebhook)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeMembershipSuperseded, res.Outcome)
	assert.Equal(t, "frost_fan", res.Tier)

	p, err := h.Profiles.GetByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "frost_fan", p.Tier)
	assert.Equal(t, int64(2), h.Count(t, "SELECT COUNT(*) FROM payment_reconciliations WHERE status = 'processed'"))
	assert.Equal(t, []string{email.TemplateWelcome}, h.Outbox.Templates())

	// Replaying the older session stays a no-op.
	res, err = h.Reconcile.Verify(ctx, older, paymentdomain.SourceVerify)
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)
}

func TestMembershipUpgradeSkipsWelcome(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	h.Member(t, "fan@example.com", "frost_fan")

	sessionID := membershipSession(t, h, "fan@example.com", "avalanche_backstage")
	h.Processor.Complete(sessionID)

	res, err := h.Reconcile.Verify(ctx, sessionID, paymentdomain.SourceVerify)
	require.NoError(t, err)
	assert.Equal(t, "avalanche_backstage", res.Tier)
	assert.Equal(t, "tier_applied", res.Outcome)
	assert.Empty(t, h.Outbox.Templates())
	assert.Equal(t, int64(1), h.Count(t, "SELECT COUNT(*) FROM profiles"))
}

// Both entry points must leave identical state behind for the same session.
func TestVerifyAndWebhookProduceSameState(t *testing.T) {
	ctx := context.Background()
	type state struct {
		Tier     string
		Customer string
		Count    int64
	}
	run := func(viaWebhook bool) state {
		h := paymenttest.NewHarness(t)
		sessionID := membershipSession(t, h, "a@b.com", "blizzard_vip")
		session := h.Processor.Complete(sessionID)

		if viaWebhook {
			payload, sig := paymenttest.CheckoutCompletedPayload("evt_1", session)
			require.NoError(t, h.Webhook.Receive(ctx, payload, sig))
		} else {
			_, err := h.Reconcile.Verify(ctx, sessionID, paymentdomain.SourceVerify)
			require.NoError(t, err)
		}

		p, err := h.Profiles.GetByEmail(ctx, "a@b.com")
		require.NoError(t, err)
		require.NotNil(t, p.StripeCustomerID)
		return state{Tier: p.Tier, Customer: *p.StripeCustomerID, Count: h.Count(t, "SELECT COUNT(*) FROM profiles")}
	}

	assert.Equal(t, run(false), run(true))
}

func TestStoreReconcileMovesOrderToProcessing(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	member := h.Member(t, "fan@example.com", "frost_fan")
	tee := h.Product(t, "Tee", 1000)

	res, err := h.Checkout.CreateStoreCheckout(ctx, checkout.StoreRequest{
		Profile: member,
		Items:   []checkout.ItemRequest{{ProductID: tee.ID.String(), Quantity: 2}},
	})
	require.NoError(t, err)
	session := h.Processor.Complete(res.SessionID)

	out, err := h.Reconcile.Apply(ctx, session, paymentdomain.SourceWebhook)
	require.NoError(t, err)
	assert.Equal(t, res.OrderID, out.OrderID)
	assert.Equal(t, string(orderdomain.StatusProcessing), out.Outcome)

	order, err := h.Orders.Get(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusProcessing, order.Status)
	require.NotNil(t, order.StripePaymentIntentID)
	assert.Equal(t, session.PaymentIntentID, *order.StripePaymentIntentID)

	_, err = h.Reconcile.Verify(ctx, res.SessionID, paymentdomain.SourceVerify)
	require.NoError(t, err)
	assert.Equal(t, []string{email.TemplateOrderConfirmed}, h.Outbox.Templates())
}

func TestStoreConfirmationSentWhenPaymentIntentArrivedFirst(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	member := h.Member(t, "fan@example.com", "frost_fan")
	tee := h.Product(t, "Tee", 1000)

	res, err := h.Checkout.CreateStoreCheckout(ctx, checkout.StoreRequest{
		Profile: member,
		Items:   []checkout.ItemRequest{{ProductID: tee.ID.String(), Quantity: 1}},
	})
	require.NoError(t, err)
	session := h.Processor.Complete(res.SessionID)

	_, changed, err := h.Orders.MarkProcessing(ctx, res.OrderID, session.PaymentIntentID)
	require.NoError(t, err)
	require.True(t, changed)

	_, err = h.Reconcile.Apply(ctx, session, paymentdomain.SourceWebhook)
	require.NoError(t, err)
	assert.Equal(t, []string{email.TemplateOrderConfirmed}, h.Outbox.Templates())
}

func TestEventReconcileWaitlistsWhenFull(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	first := h.Member(t, "one@example.com", "frost_fan")
	second := h.Member(t, "two@example.com", "frost_fan")
	ev := h.Event(t, "Acoustic Set", 1, 2000, "")

	resA, err := h.Checkout.CreateEventCheckout(ctx, checkout.EventRequest{Profile: first, EventID: ev.ID.String()})
	require.NoError(t, err)
	resB, err := h.Checkout.CreateEventCheckout(ctx, checkout.EventRequest{Profile: second, EventID: ev.ID.String()})
	require.NoError(t, err)
	h.Processor.Complete(resA.SessionID)
	h.Processor.Complete(resB.SessionID)

	outA, err := h.Reconcile.Verify(ctx, resA.SessionID, paymentdomain.SourceVerify)
	require.NoError(t, err)
	assert.Equal(t, string(eventdomain.RegistrationConfirmed), outA.Outcome)

	outB, err := h.Reconcile.Verify(ctx, resB.SessionID, paymentdomain.SourceScheduler)
	require.NoError(t, err)
	assert.Equal(t, string(eventdomain.RegistrationWaitlisted), outB.Outcome)

	view, err := h.Events.Get(ctx, ev.ID.String(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, view.RegisteredCount)

	require.Len(t, h.Outbox.Messages, 2)
	assert.Equal(t, false, h.Outbox.Messages[0].Data["waitlisted"])
	assert.Equal(t, true, h.Outbox.Messages[1].Data["waitlisted"])
	assert.Equal(t, "Acoustic Set", h.Outbox.Messages[1].Data["event_title"])
	assert.Equal(t, int64(1), h.Count(t, "SELECT COUNT(*) FROM audit_logs WHERE action = 'event.registration_waitlisted'"))
}

func TestSessionReconcileConfirmsBooking(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	member := h.Member(t, "fan@example.com", "blizzard_vip")

	res, err := h.Checkout.CreateSessionCheckout(ctx, checkout.SessionRequest{
		Profile:         member,
		SessionDate:     "2026-04-20T18:00:00Z",
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	h.Processor.Complete(res.SessionID)

	out, err := h.Reconcile.Verify(ctx, res.SessionID, paymentdomain.SourceVerify)
	require.NoError(t, err)
	assert.Equal(t, res.BookingID, out.BookingID)

	booking, err := h.Bookings.Get(ctx, res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, bookingdomain.StatusConfirmed, booking.Status)
	assert.Equal(t, []string{email.TemplateBookingConfirmed}, h.Outbox.Templates())
}

func TestEmailFailureDoesNotFailReconciliation(t *testing.T) {
	h := paymenttest.NewHarness(t)
	h.Outbox.Fail = errors.New("smtp down")
	sessionID := membershipSession(t, h, "a@b.com", "frost_fan")
	h.Processor.Complete(sessionID)

	res, err := h.Reconcile.Verify(context.Background(), sessionID, paymentdomain.SourceVerify)
	require.NoError(t, err)
	assert.Equal(t, "frost_fan", res.Tier)
	assert.Equal(t, int64(1), h.Count(t, "SELECT COUNT(*) FROM payment_reconciliations WHERE status = 'processed'"))
}

func TestApplyRejectsSessionWithoutPurchaseType(t *testing.T) {
	h := paymenttest.NewHarness(t)
	_, err := h.Reconcile.Apply(context.Background(), &paymentdomain.CheckoutSession{
		ID:            "cs_foreign",
		PaymentStatus: "paid",
		Metadata:      map[string]string{},
	}, paymentdomain.SourceWebhook)
	assert.ErrorIs(t, err, paymentdomain.ErrUnknownPurchaseType)
}

func TestPaymentAfterSweepRevivesAbandonedOrder(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	member := h.Member(t, "fan@example.com", "frost_fan")
	tee := h.Product(t, "Tee", 1000)

	res, err := h.Checkout.CreateStoreCheckout(ctx, checkout.StoreRequest{
		Profile: member,
		Items:   []checkout.ItemRequest{{ProductID: tee.ID.String(), Quantity: 1}},
	})
	require.NoError(t, err)
	require.Len(t, h.Processor.Created, 1)
	assert.Equal(t, paymenttest.Start.Add(time.Hour), h.Processor.Created[0].ExpiresAt)

	h.Clock.Advance(24*time.Hour + time.Minute)
	n, err := h.Orders.ExpirePending(ctx, h.Clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	h.Processor.Complete(res.SessionID)
	out, err := h.Reconcile.Verify(ctx, res.SessionID, paymentdomain.SourceVerify)
	require.NoError(t, err)
	assert.Equal(t, string(orderdomain.StatusProcessing), out.Outcome)

	order, err := h.Orders.Get(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusProcessing, order.Status)
	assert.Equal(t, []string{email.TemplateOrderConfirmed}, h.Outbox.Templates())
}

func TestPaymentAfterSweepWithRebookedSlot(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	late := h.Member(t, "late@example.com", "blizzard_vip")
	other := h.Member(t, "other@example.com", "blizzard_vip")
	request := func(p *profiledomain.Profile) checkout.SessionRequest {
		return checkout.SessionRequest{Profile: p, SessionDate: "2026-04-20T18:00:00Z", DurationMinutes: 30}
	}

	res, err := h.Checkout.CreateSessionCheckout(ctx, request(late))
	require.NoError(t, err)
	h.Clock.Advance(25 * time.Hour)
	_, err = h.Bookings.ExpirePending(ctx, h.Clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	_, err = h.Checkout.CreateSessionCheckout(ctx, request(other))
	require.NoError(t, err)

	h.Processor.Complete(res.SessionID)
	out, err := h.Reconcile.Verify(ctx, res.SessionID, paymentdomain.SourceVerify)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeSlotConflict, out.Outcome)
	assert.Equal(t, res.BookingID, out.BookingID)

	booking, err := h.Bookings.Get(ctx, res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, bookingdomain.StatusAbandoned, booking.Status)
	assert.Empty(t, h.Outbox.Templates())
	assert.Equal(t, int64(1), h.Count(t, "SELECT COUNT(*) FROM audit_logs WHERE action = 'payment.reconciled'"))
}
