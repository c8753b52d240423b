package checkout_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	bookingdomain "github.com/smallbiznis/frostclub/internal/booking/domain"
	"github.com/smallbiznis/frostclub/internal/config"
	eventdomain "github.com/smallbiznis/frostclub/internal/event/domain"
	"github.com/smallbiznis/frostclub/internal/payment/checkout"
	paymentdomain "github.com/smallbiznis/frostclub/internal/payment/domain"
	"github.com/smallbiznis/frostclub/internal/payment/paymenttest"
	productdomain "github.com/smallbiznis/frostclub/internal/product/domain"
	"github.com/smallbiznis/frostclub/internal/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMembershipCheckoutCreatesCustomer(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()

	res, err := h.Checkout.CreateMembershipCheckout(ctx, checkout.MembershipRequest{
		Email: "a@b.com",
		Tier:  "frost_fan",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.SessionID)
	assert.Contains(t, res.URL, res.SessionID)
	assert.Equal(t, paymentdomain.PurchaseMembership, res.PurchaseType)

	require.Len(t, h.Processor.CreatedCustomers, 1)
	assert.Equal(t, "a@b.com", h.Processor.CreatedCustomers[0].Email)
	assert.Equal(t, "frost_fan", h.Processor.CreatedCustomers[0].Metadata[paymentdomain.MetaTier])

	require.Len(t, h.Processor.Created, 1)
	params := h.Processor.Created[0]
	assert.Equal(t, paymentdomain.ModeSubscription, params.Mode)
	assert.Equal(t, h.Processor.Customers["a@b.com"], params.CustomerID)
	assert.Equal(t, "membership", params.Metadata[paymentdomain.MetaPurchaseType])
	assert.Equal(t, "frost_fan", params.Metadata[paymentdomain.MetaTier])
	assert.Equal(t, "a@b.com", params.Metadata[paymentdomain.MetaEmail])
	assert.Equal(t, "http://localhost:3000/success?session_id={CHECKOUT_SESSION_ID}&type=membership", params.SuccessURL)

	require.Len(t, params.LineItems, 1)
	item := params.LineItems[0]
	assert.Equal(t, int64(999), item.UnitAmount)
	assert.Equal(t, "month", item.Interval)
	assert.Equal(t, "usd", item.Currency)

	// Membership writes nothing until reconciliation.
	assert.Equal(t, int64(0), h.Count(t, "SELECT COUNT(*) FROM profiles"))
}

func TestMembershipCheckoutCurrencyFallback(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()

	_, err := h.Checkout.CreateMembershipCheckout(ctx, checkout.MembershipRequest{Email: "a@b.com", Tier: "blizzard_vip", Currency: "JPY"})
	require.NoError(t, err)
	_, err = h.Checkout.CreateMembershipCheckout(ctx, checkout.MembershipRequest{Email: "a@b.com", Tier: "blizzard_vip", Currency: "EUR"})
	require.NoError(t, err)

	require.Len(t, h.Processor.Created, 2)
	assert.Equal(t, "usd", h.Processor.Created[0].LineItems[0].Currency)
	// No eur amount is configured, so the usd price is charged in usd.
	eur := h.Processor.Created[1].LineItems[0]
	assert.Equal(t, "usd", eur.Currency)
	assert.Equal(t, int64(2499), eur.UnitAmount)
	// The customer found on the second call is reused.
	assert.Len(t, h.Processor.CreatedCustomers, 1)
}

func TestMembershipCheckoutChargesConfiguredCurrencyPrice(t *testing.T) {
	h := paymenttest.NewHarness(t)
	storeCfg := config.DefaultStoreConfig()
	storeCfg.Tiers[1].Prices = map[string]int64{"eur": 2299}
	store := config.NewStaticStoreConfig(storeCfg)
	svc := checkout.New(checkout.Params{
		Log:       zap.NewNop(),
		Cfg:       h.Config,
		Store:     store,
		Tiers:     tier.NewCatalog(store),
		Processor: h.Processor,
		Profiles:  h.Profiles,
		Products:  h.Products,
		Orders:    h.Orders,
		Bookings:  h.Bookings,
		Events:    h.Events,
		Cart:      h.Cart,
		Clock:     h.Clock,
	})

	_, err := svc.CreateMembershipCheckout(context.Background(), checkout.MembershipRequest{Email: "a@b.com", Tier: "blizzard_vip", Currency: "EUR"})
	require.NoError(t, err)
	item := h.Processor.Created[0].LineItems[0]
	assert.Equal(t, "eur", item.Currency)
	assert.Equal(t, int64(2299), item.UnitAmount)
}

func TestMembershipCheckoutValidation(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()

	_, err := h.Checkout.CreateMembershipCheckout(ctx, checkout.MembershipRequest{Email: "not-an-email", Tier: "frost_fan"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEmail)

	_, err = h.Checkout.CreateMembershipCheckout(ctx, checkout.MembershipRequest{Email: "a@b.com", Tier: "platinum"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidTier)

	assert.Empty(t, h.Processor.Created)
	assert.Empty(t, h.Processor.CreatedCustomers)
}

func TestMembershipCheckoutStoresCustomerOnExistingProfile(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	member := h.Member(t, "fan@example.com", "")

	_, err := h.Checkout.CreateMembershipCheckout(ctx, checkout.MembershipRequest{
		Email:     "  Fan@Example.com ",
		Tier:      "avalanche_backstage",
		ProfileID: member.ID,
	})
	require.NoError(t, err)

	updated, err := h.Profiles.GetByID(ctx, member.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.StripeCustomerID)
	assert.Equal(t, h.Processor.Customers["fan@example.com"], *updated.StripeCustomerID)
	assert.Equal(t, member.ID, h.Processor.Created[0].Metadata[paymentdomain.MetaProfileID])

	// A stored customer id skips the processor search entirely.
	_, err = h.Checkout.CreateMembershipCheckout(ctx, checkout.MembershipRequest{Email: "fan@example.com", Tier: "frost_fan"})
	require.NoError(t, err)
	assert.Len(t, h.Processor.CreatedCustomers, 1)
	assert.Equal(t, *updated.StripeCustomerID, h.Processor.Created[1].CustomerID)
}

func TestMembershipCheckoutUsesConfiguredPrice(t *testing.T) {
	h := paymenttest.NewHarness(t)
	cfg := h.Config
	cfg.Stripe.PriceIDs = map[string]string{"frost_fan": "price_frost_fan"}
	svc := checkout.New(checkout.Params{
		Log:       zap.NewNop(),
		Cfg:       cfg,
		Store:     h.Store,
		Tiers:     h.Tiers,
		Processor: h.Processor,
		Profiles:  h.Profiles,
		Products:  h.Products,
		Orders:    h.Orders,
		Bookings:  h.Bookings,
		Events:    h.Events,
		Cart:      h.Cart,
		Clock:     h.Clock,
	})

	_, err := svc.CreateMembershipCheckout(context.Background(), checkout.MembershipRequest{Email: "a@b.com", Tier: "frost_fan"})
	require.NoError(t, err)
	item := h.Processor.Created[0].LineItems[0]
	assert.Equal(t, "price_frost_fan", item.PriceID)
	assert.Zero(t, item.UnitAmount)
}

func TestStoreCheckoutPricesFromCatalog(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	member := h.Member(t, "fan@example.com", "frost_fan")
	tee := h.Product(t, "Tee", 1000)
	pin := h.Product(t, "Pin", 500)

	res, err := h.Checkout.CreateStoreCheckout(ctx, checkout.StoreRequest{
		Profile: member,
		Items: []checkout.ItemRequest{
			{ProductID: tee.ID.String(), Quantity: 2},
			{ProductID: pin.ID.String(), Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.OrderID)

	order, err := h.Orders.Get(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), order.Subtotal)
	assert.Equal(t, int64(999), order.Shipping)
	assert.Equal(t, int64(3499), order.Total)
	require.NotNil(t, order.StripeSessionID)
	assert.Equal(t, res.SessionID, *order.StripeSessionID)

	params := h.Processor.Created[0]
	assert.Equal(t, paymentdomain.ModePayment, params.Mode)
	require.Len(t, params.LineItems, 3)
	assert.Equal(t, "Shipping", params.LineItems[2].Name)
	assert.Equal(t, int64(999), params.LineItems[2].UnitAmount)
	assert.Equal(t, res.OrderID, params.Metadata[paymentdomain.MetaOrderID])
	assert.Equal(t, res.OrderID, params.PaymentIntentMetadata[paymentdomain.MetaOrderID])

	var total int64
	for _, li := range params.LineItems {
		total += li.UnitAmount * li.Quantity
	}
	assert.Equal(t, order.Total, total)
}

func TestStoreCheckoutFromSavedCart(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	member := h.Member(t, "fan@example.com", "frost_fan")
	hoodie := h.Product(t, "Hoodie", 6000)

	_, err := h.Cart.AddItem(ctx, member.ID, member.Tier, hoodie.ID.String(), 1)
	require.NoError(t, err)

	res, err := h.Checkout.CreateStoreCheckout(ctx, checkout.StoreRequest{Profile: member})
	require.NoError(t, err)

	order, err := h.Orders.Get(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), order.Total)
	assert.Zero(t, order.Shipping)

	view, err := h.Cart.Get(ctx, member.ID)
	require.NoError(t, err)
	assert.Zero(t, view.ItemCount)

	_, err = h.Checkout.CreateStoreCheckout(ctx, checkout.StoreRequest{Profile: member})
	assert.ErrorIs(t, err, paymentdomain.ErrEmptyCart)
}

func TestStoreCheckoutChargesInProductCurrency(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	member := h.Member(t, "fan@example.com", "frost_fan")
	scarf := h.EURProduct(t, "Scarf", 4000)

	_, err := h.Cart.AddItem(ctx, member.ID, member.Tier, scarf.ID.String(), 1)
	require.NoError(t, err)

	res, err := h.Checkout.CreateStoreCheckout(ctx, checkout.StoreRequest{Profile: member, Currency: "usd"})
	require.NoError(t, err)

	order, err := h.Orders.Get(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "eur", order.Currency)
	for _, li := range h.Processor.Created[0].LineItems {
		assert.Equal(t, "eur", li.Currency, li.Name)
	}
}

func TestStoreCheckoutRejectsMixedCurrencies(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	member := h.Member(t, "fan@example.com", "frost_fan")
	scarf := h.EURProduct(t, "Scarf", 4000)
	tee := h.Product(t, "Tee", 1000)

	_, err := h.Checkout.CreateStoreCheckout(ctx, checkout.StoreRequest{
		Profile: member,
		Items: []checkout.ItemRequest{
			{ProductID: tee.ID.String(), Quantity: 1},
			{ProductID: scarf.ID.String(), Quantity: 1},
		},
	})
	assert.ErrorIs(t, err, paymentdomain.ErrMixedCurrencies)
	assert.Equal(t, int64(0), h.Count(t, "SELECT COUNT(*) FROM orders"))
	assert.Empty(t, h.Processor.Created)
}

func TestStoreCheckoutRejectsHiddenAndInvalidItems(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	member := h.Member(t, "fan@example.com", "frost_fan")
	vip := h.Product(t, "VIP Lanyard", 1500, "blizzard_vip")
	tee := h.Product(t, "Tee", 1000)

	_, err := h.Checkout.CreateStoreCheckout(ctx, checkout.StoreRequest{
		Profile: member,
		Items:   []checkout.ItemRequest{{ProductID: vip.ID.String(), Quantity: 1}},
	})
	assert.ErrorIs(t, err, productdomain.ErrNotVisible)

	_, err = h.Checkout.CreateStoreCheckout(ctx, checkout.StoreRequest{
		Profile: member,
		Items:   []checkout.ItemRequest{{ProductID: tee.ID.String(), Quantity: 0}},
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidQuantity)

	_, err = h.Checkout.CreateStoreCheckout(ctx, checkout.StoreRequest{
		Profile: member,
		Items:   []checkout.ItemRequest{{ProductID: "12345", Quantity: 1}},
	})
	assert.ErrorIs(t, err, productdomain.ErrNotFound)

	assert.Equal(t, int64(0), h.Count(t, "SELECT COUNT(*) FROM orders"))
	assert.Empty(t, h.Processor.Created)
}

func TestStoreCheckoutProcessorFailureLeavesPendingOrder(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	member := h.Member(t, "fan@example.com", "frost_fan")
	tee := h.Product(t, "Tee", 1000)
	h.Processor.FailCreate = errors.New("processor down")

	_, err := h.Checkout.CreateStoreCheckout(ctx, checkout.StoreRequest{
		Profile: member,
		Items:   []checkout.ItemRequest{{ProductID: tee.ID.String(), Quantity: 1}},
	})
	require.Error(t, err)
	assert.Equal(t, int64(1), h.Count(t, "SELECT COUNT(*) FROM orders WHERE status = 'pending' AND stripe_session_id IS NULL"))
}

func TestEventCheckoutAppliesMemberDiscount(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	member := h.Member(t, "vip@example.com", "avalanche_backstage")
	ev := h.Event(t, "Ice Palace Night", 10, 4000, "blizzard_vip")

	res, err := h.Checkout.CreateEventCheckout(ctx, checkout.EventRequest{
		Profile:  member,
		EventID:  ev.ID.String(),
		Quantity: 2,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.RegistrationID)

	reg, err := h.Events.GetRegistration(ctx, res.RegistrationID)
	require.NoError(t, err)
	assert.Equal(t, int64(6400), reg.Amount)
	assert.Equal(t, eventdomain.RegistrationPending, reg.Status)
	require.NotNil(t, reg.StripeSessionID)

	item := h.Processor.Created[0].LineItems[0]
	assert.Equal(t, int64(3200), item.UnitAmount)
	assert.Equal(t, int64(2), item.Quantity)
	assert.Equal(t, ev.ID.String(), h.Processor.Created[0].Metadata[paymentdomain.MetaEventID])

	// Seats are only reserved at reconciliation.
	view, err := h.Events.Get(ctx, ev.ID.String(), member.Tier)
	require.NoError(t, err)
	assert.Equal(t, 0, view.RegisteredCount)

	_, err = h.Checkout.CreateEventCheckout(ctx, checkout.EventRequest{Profile: member, EventID: ev.ID.String()})
	assert.ErrorIs(t, err, eventdomain.ErrAlreadyRegistered)
}

func TestEventCheckoutGating(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	fan := h.Member(t, "fan@example.com", "frost_fan")
	backstage := h.Event(t, "Backstage Pass", 10, 9000, "avalanche_backstage")
	small := h.Event(t, "Listening Party", 1, 1500, "")

	_, err := h.Checkout.CreateEventCheckout(ctx, checkout.EventRequest{Profile: fan, EventID: backstage.ID.String()})
	assert.ErrorIs(t, err, paymentdomain.ErrTierRequired)

	_, err = h.Checkout.CreateEventCheckout(ctx, checkout.EventRequest{Profile: fan, EventID: small.ID.String(), Quantity: 2})
	assert.ErrorIs(t, err, eventdomain.ErrEventFull)

	_, err = h.Checkout.CreateEventCheckout(ctx, checkout.EventRequest{Profile: fan, EventID: "404"})
	assert.ErrorIs(t, err, eventdomain.ErrNotFound)
}

func TestSessionCheckout(t *testing.T) {
	h := paymenttest.NewHarness(t)
	ctx := context.Background()
	member := h.Member(t, "fan@example.com", "frost_fan")

	res, err := h.Checkout.CreateSessionCheckout(ctx, checkout.SessionRequest{
		Profile:         member,
		SessionDate:     "2026-04-10T15:00:00Z",
		DurationMinutes: 30,
		Notes:           "Talk about the tour",
	})
	require.NoError(t, err)

	booking, err := h.Bookings.Get(ctx, res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), booking.Price)
	assert.Equal(t, "usd", h.Processor.Created[0].LineItems[0].Currency)
	assert.Equal(t, bookingdomain.StatusPending, booking.Status)
	assert.True(t, strings.HasSuffix(h.Processor.Created[0].SuccessURL, "type=session"))

	_, err = h.Checkout.CreateSessionCheckout(ctx, checkout.SessionRequest{Profile: member, SessionDate: "2026-04-10T15:00:00Z", DurationMinutes: 60})
	assert.ErrorIs(t, err, bookingdomain.ErrSlotTaken)

	_, err = h.Checkout.CreateSessionCheckout(ctx, checkout.SessionRequest{Profile: member, SessionDate: "2026-03-01T15:00:00Z", DurationMinutes: 30})
	assert.ErrorIs(t, err, bookingdomain.ErrSessionInPast)

	_, err = h.Checkout.CreateSessionCheckout(ctx, checkout.SessionRequest{Profile: member, SessionDate: "2026-04-12T15:00:00Z", DurationMinutes: 45})
	assert.ErrorIs(t, err, bookingdomain.ErrInvalidDuration)

	_, err = h.Checkout.CreateSessionCheckout(ctx, checkout.SessionRequest{Profile: member, SessionDate: "next tuesday", DurationMinutes: 30})
	assert.ErrorIs(t, err, bookingdomain.ErrInvalidDate)
}
