// Package checkout turns purchase intents into hosted checkout sessions.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/frostclub/internal/booking/domain"
	"github.com/smallbiznis/frostclub/internal/cart"
	"github.com/smallbiznis/frostclub/internal/clock"
	"github.com/smallbiznis/frostclub/internal/config"
	eventdomain "github.com/smallbiznis/frostclub/internal/event/domain"
	"github.com/smallbiznis/frostclub/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/frostclub/internal/order/domain"
	paymentdomain "github.com/smallbiznis/frostclub/internal/payment/domain"
	productdomain "github.com/smallbiznis/frostclub/internal/product/domain"
	profiledomain "github.com/smallbiznis/frostclub/internal/profile/domain"
	"github.com/smallbiznis/frostclub/internal/tier"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type MembershipRequest struct {
	Email     string `json:"email"`
	Tier      string `json:"tier"`
	Currency  string `json:"currency"`
	ProfileID string `json:"-"`
}

type ItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// StoreRequest checks out Items, or the buyer's saved cart when Items is empty.
type StoreRequest struct {
	Profile  *profiledomain.Profile `json:"-"`
	Items    []ItemRequest          `json:"items"`
	Currency string                 `json:"currency"`
}

type EventRequest struct {
	Profile  *profiledomain.Profile `json:"-"`
	EventID  string                 `json:"event_id"`
	Quantity int                    `json:"quantity"`
	Currency string                 `json:"currency"`
}

type SessionRequest struct {
	Profile         *profiledomain.Profile `json:"-"`
	SessionDate     string                 `json:"session_date"`
	DurationMinutes int                    `json:"duration_minutes"`
	Notes           string                 `json:"notes"`
	Currency        string                 `json:"currency"`
}

type Result struct {
	SessionID      string                     `json:"session_id"`
	URL            string                     `json:"url"`
	PurchaseType   paymentdomain.PurchaseType `json:"purchase_type"`
	OrderID        string                     `json:"order_id,omitempty"`
	BookingID      string                     `json:"booking_id,omitempty"`
	RegistrationID string                     `json:"registration_id,omitempty"`
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Cfg       config.Config
	Store     *config.StoreConfigHolder
	Tiers     *tier.Catalog
	Processor paymentdomain.Processor
	Profiles  profiledomain.Service
	Products  productdomain.Service
	Orders    orderdomain.Service
	Bookings  bookingdomain.Service
	Events    eventdomain.Service
	Cart      *cart.Service
	Metrics   *metrics.Metrics `optional:"true"`
	Clock     clock.Clock      `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	baseURL    string
	sessionTTL time.Duration
	priceIDs   map[string]string
	store      *config.StoreConfigHolder
	tiers      *tier.Catalog
	processor  paymentdomain.Processor
	profiles   profiledomain.Service
	products   productdomain.Service
	orders     orderdomain.Service
	bookings   bookingdomain.Service
	events     eventdomain.Service
	cart       *cart.Service
	metrics    *metrics.Metrics
	clock      clock.Clock
}

func New(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:        p.Log.Named("payment.checkout"),
		baseURL:    strings.TrimRight(p.Cfg.PublicBaseURL, "/"),
		sessionTTL: p.Cfg.CheckoutSessionTTL(),
		priceIDs:   p.Cfg.Stripe.PriceIDs,
		store:      p.Store,
		tiers:      p.Tiers,
		processor:  p.Processor,
		profiles:   p.Profiles,
		products:   p.Products,
		orders:     p.Orders,
		bookings:   p.Bookings,
		events:     p.Events,
		cart:       p.Cart,
		metrics:    p.Metrics,
		clock:      clk,
	}
}

func (s *Service) CreateMembershipCheckout(ctx context.Context, req MembershipRequest) (*Result, error) {
	email, err := profiledomain.NormalizeEmail(req.Email)
	if err != nil {
		return nil, paymentdomain.ErrInvalidEmail
	}
	t, err := s.tiers.Lookup(req.Tier)
	if err != nil {
		return nil, paymentdomain.ErrInvalidTier
	}
	cfg := s.store.Get()
	currency := cfg.ResolveCurrency(req.Currency)

	existing, err := s.existingProfile(ctx, req.ProfileID, email)
	if err != nil {
		return nil, err
	}
	customerID, err := s.resolveCustomer(ctx, email, t.ID, existing)
	if err != nil {
		return nil, err
	}

	item := paymentdomain.LineItem{Quantity: 1}
	if priceID := strings.TrimSpace(s.priceIDs[t.ID]); priceID != "" {
		item.PriceID = priceID
	} else {
		amount, priceCurrency := cfg.PriceIn(t.MonthlyPrice, t.Prices, currency)
		currency = priceCurrency
		item.Name = t.Name + " membership"
		item.UnitAmount = amount
		item.Currency = currency
		item.Interval = "month"
	}

	metadata := map[string]string{
		paymentdomain.MetaPurchaseType: string(paymentdomain.PurchaseMembership),
		paymentdomain.MetaTier:         t.ID,
		paymentdomain.MetaEmail:        email,
	}
	if existing != nil {
		metadata[paymentdomain.MetaProfileID] = existing.ID
	}

	session, err := s.createSession(ctx, paymentdomain.PurchaseMembership, currency, paymentdomain.SessionParams{
		Mode:       paymentdomain.ModeSubscription,
		CustomerID: customerID,
		LineItems:  []paymentdomain.LineItem{item},
		SuccessURL: s.successURL(paymentdomain.PurchaseMembership),
		CancelURL:  s.baseURL + "/membership",
		Metadata:   metadata,
	})
	if err != nil {
		return nil, err
	}
	return &Result{SessionID: session.ID, URL: session.URL, PurchaseType: paymentdomain.PurchaseMembership}, nil
}

func (s *Service) CreateStoreCheckout(ctx context.Context, req StoreRequest) (*Result, error) {
	if req.Profile == nil {
		return nil, profiledomain.ErrNotFound
	}
	requested := req.Items
	fromCart := len(requested) == 0
	if fromCart {
		saved, err := s.cart.Load(ctx, req.Profile.ID)
		if err != nil {
			return nil, err
		}
		if saved.Empty() {
			return nil, paymentdomain.ErrEmptyCart
		}
		for _, item := range saved.Items {
			requested = append(requested, ItemRequest{ProductID: item.ProductID.String(), Quantity: item.Quantity})
		}
	}

	items, currency, err := s.priceItems(ctx, req.Profile.Tier, requested)
	if err != nil {
		return nil, err
	}

	var subtotal int64
	for _, item := range items {
		subtotal += item.Amount()
	}
	cfg := s.store.Get()
	totals := cart.Price(subtotal, cart.Rules{
		ShippingThreshold: cfg.ShippingThreshold,
		ShippingCharge:    cfg.ShippingCharge,
	})
	if currency == "" {
		currency = cfg.ResolveCurrency(req.Currency)
	}

	order, err := s.orders.CreatePending(ctx, orderdomain.CreatePendingRequest{
		UserID:   req.Profile.ID,
		Email:    req.Profile.Email,
		Items:    items,
		Subtotal: totals.Subtotal,
		Shipping: totals.Shipping,
		Total:    totals.Total,
		Currency: currency,
	})
	if err != nil {
		return nil, err
	}
	orderID := order.ID.String()

	lineItems := make([]paymentdomain.LineItem, 0, len(items)+1)
	for _, item := range items {
		lineItems = append(lineItems, paymentdomain.LineItem{
			Name:       item.Name,
			UnitAmount: item.UnitPrice,
			Currency:   currency,
			Quantity:   int64(item.Quantity),
		})
	}
	if totals.Shipping > 0 {
		lineItems = append(lineItems, paymentdomain.LineItem{
			Name:       "Shipping",
			UnitAmount: totals.Shipping,
			Currency:   currency,
			Quantity:   1,
		})
	}

	session, err := s.createSession(ctx, paymentdomain.PurchaseStore, currency, paymentdomain.SessionParams{
		Mode:              paymentdomain.ModePayment,
		CustomerID:        stringValue(req.Profile.StripeCustomerID),
		CustomerEmail:     req.Profile.Email,
		ClientReferenceID: orderID,
		LineItems:         lineItems,
		SuccessURL:        s.successURL(paymentdomain.PurchaseStore),
		CancelURL:         s.baseURL + "/cart",
		Metadata: map[string]string{
			paymentdomain.MetaPurchaseType: string(paymentdomain.PurchaseStore),
			paymentdomain.MetaEmail:        req.Profile.Email,
			paymentdomain.MetaProfileID:    req.Profile.ID,
			paymentdomain.MetaOrderID:      orderID,
		},
		PaymentIntentMetadata: map[string]string{paymentdomain.MetaOrderID: orderID},
	})
	if err != nil {
		return nil, err
	}
	if err := s.orders.AttachSession(ctx, orderID, session.ID); err != nil {
		return nil, err
	}

	if fromCart {
		if _, err := s.cart.Clear(ctx, req.Profile.ID); err != nil {
			s.log.Warn("failed to clear cart after checkout", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	return &Result{SessionID: session.ID, URL: session.URL, PurchaseType: paymentdomain.PurchaseStore, OrderID: orderID}, nil
}

func (s *Service) CreateEventCheckout(ctx context.Context, req EventRequest) (*Result, error) {
	if req.Profile == nil {
		return nil, profiledomain.ErrNotFound
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return nil, eventdomain.ErrInvalidQuantity
	}

	view, err := s.events.Get(ctx, req.EventID, req.Profile.Tier)
	if err != nil {
		return nil, err
	}
	if view.Locked {
		return nil, paymentdomain.ErrTierRequired
	}
	currency := strings.ToLower(strings.TrimSpace(view.Currency))
	if currency == "" {
		currency = s.store.Get().ResolveCurrency(req.Currency)
	}
	amount := view.MemberPrice * int64(quantity)

	reg, err := s.events.CreatePendingRegistration(ctx, eventdomain.CreateRegistrationRequest{
		EventID:  view.ID.String(),
		UserID:   req.Profile.ID,
		Email:    req.Profile.Email,
		Quantity: quantity,
		Amount:   amount,
		Currency: currency,
	})
	if err != nil {
		return nil, err
	}
	regID := reg.ID.String()

	session, err := s.createSession(ctx, paymentdomain.PurchaseEvent, currency, paymentdomain.SessionParams{
		Mode:              paymentdomain.ModePayment,
		CustomerID:        stringValue(req.Profile.StripeCustomerID),
		CustomerEmail:     req.Profile.Email,
		ClientReferenceID: regID,
		LineItems: []paymentdomain.LineItem{{
			Name:       view.Title,
			UnitAmount: view.MemberPrice,
			Currency:   currency,
			Quantity:   int64(quantity),
		}},
		SuccessURL: s.successURL(paymentdomain.PurchaseEvent),
		CancelURL:  s.baseURL + "/events/" + view.Slug,
		Metadata: map[string]string{
			paymentdomain.MetaPurchaseType:   string(paymentdomain.PurchaseEvent),
			paymentdomain.MetaEmail:          req.Profile.Email,
			paymentdomain.MetaProfileID:      req.Profile.ID,
			paymentdomain.MetaEventID:        view.ID.String(),
			paymentdomain.MetaRegistrationID: regID,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := s.events.AttachSession(ctx, regID, session.ID); err != nil {
		return nil, err
	}
	return &Result{SessionID: session.ID, URL: session.URL, PurchaseType: paymentdomain.PurchaseEvent, RegistrationID: regID}, nil
}

func (s *Service) CreateSessionCheckout(ctx context.Context, req SessionRequest) (*Result, error) {
	if req.Profile == nil {
		return nil, profiledomain.ErrNotFound
	}
	date, err := time.Parse(time.RFC3339, strings.TrimSpace(req.SessionDate))
	if err != nil {
		return nil, bookingdomain.ErrInvalidDate
	}
	cfg := s.store.Get()
	price, currency, ok := cfg.SessionPriceIn(req.DurationMinutes, cfg.ResolveCurrency(req.Currency))
	if !ok {
		return nil, bookingdomain.ErrInvalidDuration
	}

	booking, err := s.bookings.CreatePending(ctx, bookingdomain.CreatePendingRequest{
		UserID:          req.Profile.ID,
		Email:           req.Profile.Email,
		SessionDate:     date,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
		Price:           price,
		Currency:        currency,
	})
	if err != nil {
		return nil, err
	}
	bookingID := booking.ID.String()

	session, err := s.createSession(ctx, paymentdomain.PurchaseSession, currency, paymentdomain.SessionParams{
		Mode:              paymentdomain.ModePayment,
		CustomerID:        stringValue(req.Profile.StripeCustomerID),
		CustomerEmail:     req.Profile.Email,
		ClientReferenceID: bookingID,
		LineItems: []paymentdomain.LineItem{{
			Name:        fmt.Sprintf("%d-minute video session", req.DurationMinutes),
			Description: booking.SessionDate.UTC().Format("Mon 2 Jan 2006 15:04 MST"),
			UnitAmount:  price,
			Currency:    currency,
			Quantity:    1,
		}},
		SuccessURL: s.successURL(paymentdomain.PurchaseSession),
		CancelURL:  s.baseURL + "/sessions",
		Metadata: map[string]string{
			paymentdomain.MetaPurchaseType: string(paymentdomain.PurchaseSession),
			paymentdomain.MetaEmail:        req.Profile.Email,
			paymentdomain.MetaProfileID:    req.Profile.ID,
			paymentdomain.MetaBookingID:    bookingID,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := s.bookings.AttachSession(ctx, bookingID, session.ID); err != nil {
		return nil, err
	}
	return &Result{SessionID: session.ID, URL: session.URL, PurchaseType: paymentdomain.PurchaseSession, BookingID: bookingID}, nil
}

func (s *Service) existingProfile(ctx context.Context, profileID, email string) (*profiledomain.Profile, error) {
	if profileID != "" {
		p, err := s.profiles.GetByID(ctx, profileID)
		if err == nil && p.Email == email {
			return p, nil
		}
		if err != nil && !errors.Is(err, profiledomain.ErrNotFound) {
			return nil, err
		}
	}
	p, err := s.profiles.GetByEmail(ctx, email)
	if errors.Is(err, profiledomain.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// resolveCustomer prefers the stored customer id, then a processor search by
// email, then a new processor customer.
func (s *Service) resolveCustomer(ctx context.Context, email, tierID string, existing *profiledomain.Profile) (string, error) {
	if existing != nil {
		if id := stringValue(existing.StripeCustomerID); id != "" {
			return id, nil
		}
	}

	customerID, found, err := s.processor.FindCustomerByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if !found {
		metadata := map[string]string{paymentdomain.MetaTier: tierID}
		if existing != nil {
			metadata[paymentdomain.MetaProfileID] = existing.ID
		}
		customerID, err = s.processor.CreateCustomer(ctx, paymentdomain.CustomerParams{Email: email, Metadata: metadata})
		if err != nil {
			return "", err
		}
		s.log.Info("created processor customer", zap.String("customer_id", customerID))
	}

	if existing != nil {
		if err := s.profiles.SetStripeCustomerID(ctx, existing.ID, customerID); err != nil {
			s.log.Warn("failed to store customer id on profile", zap.String("profile_id", existing.ID), zap.Error(err))
		}
	}
	return customerID, nil
}

// priceItems snapshots catalog prices. The returned currency is the one the
// products are priced in; it is empty only when no product carries one.
func (s *Service) priceItems(ctx context.Context, viewerTier string, requested []ItemRequest) ([]orderdomain.LineItem, string, error) {
	if len(requested) == 0 {
		return nil, "", paymentdomain.ErrInvalidItems
	}
	ids := make([]snowflake.ID, 0, len(requested))
	for _, r := range requested {
		if r.Quantity < 1 {
			return nil, "", paymentdomain.ErrInvalidQuantity
		}
		id, err := snowflake.ParseString(strings.TrimSpace(r.ProductID))
		if err != nil || id == 0 {
			return nil, "", productdomain.ErrInvalidID
		}
		ids = append(ids, id)
	}

	catalog, err := s.products.Lookup(ctx, ids)
	if err != nil {
		return nil, "", err
	}

	currency := ""
	items := make([]orderdomain.LineItem, 0, len(requested))
	for i, r := range requested {
		p, ok := catalog[ids[i]]
		if !ok {
			return nil, "", productdomain.ErrNotFound
		}
		if !tier.Visible(viewerTier, p.TierVisibility) {
			return nil, "", productdomain.ErrNotVisible
		}
		if !p.InStock {
			return nil, "", productdomain.ErrOutOfStock
		}
		if c := strings.ToLower(strings.TrimSpace(p.Currency)); c != "" {
			if currency != "" && currency != c {
				return nil, "", paymentdomain.ErrMixedCurrencies
			}
			currency = c
		}
		items = append(items, orderdomain.LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  r.Quantity,
			ImageURL:  stringValue(p.ImageURL),
		})
	}
	return items, currency, nil
}

func (s *Service) createSession(ctx context.Context, purchaseType paymentdomain.PurchaseType, currency string, params paymentdomain.SessionParams) (*paymentdomain.CheckoutSession, error) {
	params.ExpiresAt = s.clock.Now().Add(s.sessionTTL)
	session, err := s.processor.CreateCheckoutSession(ctx, params)
	if err != nil {
		s.log.Error("failed to create checkout session",
			zap.String("purchase_type", string(purchaseType)),
			zap.Error(err),
		)
		return nil, err
	}
	s.metrics.RecordCheckoutSession(ctx, string(purchaseType), currency)
	s.log.Info("checkout session created",
		zap.String("purchase_type", string(purchaseType)),
		zap.String("session_id", session.ID),
		zap.String("currency", currency),
	)
	return session, nil
}

func (s *Service) successURL(purchaseType paymentdomain.PurchaseType) string {
	return s.baseURL + "/success?session_id={CHECKOUT_SESSION_ID}&type=" + string(purchaseType)
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
