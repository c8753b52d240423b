package paymenttest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/frostclub/internal/audit/domain"
	auditrepo "github.com/smallbiznis/frostclub/internal/audit/repository"
	auditservice "github.com/smallbiznis/frostclub/internal/audit/service"
	bookingdomain "github.com/smallbiznis/frostclub/internal/booking/domain"
	bookingrepo "github.com/smallbiznis/frostclub/internal/booking/repository"
	bookingservice "github.com/smallbiznis/frostclub/internal/booking/service"
	"github.com/smallbiznis/frostclub/internal/cart"
	"github.com/smallbiznis/frostclub/internal/clock"
	"github.com/smallbiznis/frostclub/internal/config"
	eventdomain "github.com/smallbiznis/frostclub/internal/event/domain"
	eventrepo "github.com/smallbiznis/frostclub/internal/event/repository"
	eventservice "github.com/smallbiznis/frostclub/internal/event/service"
	"github.com/smallbiznis/frostclub/internal/notification"
	orderdomain "github.com/smallbiznis/frostclub/internal/order/domain"
	orderrepo "github.com/smallbiznis/frostclub/internal/order/repository"
	orderservice "github.com/smallbiznis/frostclub/internal/order/service"
	"github.com/smallbiznis/frostclub/internal/payment/checkout"
	paymentdomain "github.com/smallbiznis/frostclub/internal/payment/domain"
	"github.com/smallbiznis/frostclub/internal/payment/reconcile"
	paymentrepo "github.com/smallbiznis/frostclub/internal/payment/repository"
	"github.com/smallbiznis/frostclub/internal/payment/webhook"
	productdomain "github.com/smallbiznis/frostclub/internal/product/domain"
	productrepo "github.com/smallbiznis/frostclub/internal/product/repository"
	productservice "github.com/smallbiznis/frostclub/internal/product/service"
	profiledomain "github.com/smallbiznis/frostclub/internal/profile/domain"
	profilerepo "github.com/smallbiznis/frostclub/internal/profile/repository"
	profileservice "github.com/smallbiznis/frostclub/internal/profile/service"
	"github.com/smallbiznis/frostclub/internal/testdb"
	"github.com/smallbiznis/frostclub/internal/tier"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Start is the fake clock's initial time in every harness.
var Start = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// Outbox records notification messages instead of sending them.
type Outbox struct {
	mu       sync.Mutex
	Messages []notification.Message
	Fail     error
}

func (o *Outbox) Deliver(_ context.Context, msg notification.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Fail != nil {
		return o.Fail
	}
	o.Messages = append(o.Messages, msg)
	return nil
}

func (o *Outbox) Templates() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.Messages))
	for _, m := range o.Messages {
		out = append(out, m.Template)
	}
	return out
}

// Harness wires the real services over an in-memory database and the fake
// processor.
type Harness struct {
	DB        *gorm.DB
	Clock     *clock.FakeClock
	GenID     *snowflake.Node
	Config    config.Config
	Store     *config.StoreConfigHolder
	Tiers     *tier.Catalog
	Processor *Processor
	Outbox    *Outbox
	Repo      paymentdomain.Repository

	Audit    auditdomain.Service
	Profiles profiledomain.Service
	Products productdomain.Service
	Orders   orderdomain.Service
	Bookings bookingdomain.Service
	Events   eventdomain.Service
	Cart     *cart.Service

	Checkout  *checkout.Service
	Reconcile *reconcile.Service
	Webhook   *webhook.Service
}

func NewHarness(t testing.TB) *Harness {
	t.Helper()
	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	h := &Harness{
		DB:        testdb.Open(t),
		Clock:     clock.NewFakeClock(Start),
		GenID:     node,
		Store:     config.NewStaticStoreConfig(config.DefaultStoreConfig()),
		Processor: New(),
		Outbox:    &Outbox{},
		Repo:      paymentrepo.Provide(),
		Config: config.Config{
			PublicBaseURL: "http://localhost:3000",
			Stripe:        config.StripeConfig{PriceIDs: map[string]string{}},
		},
	}
	h.Processor.Now = h.Clock.Now
	h.Tiers = tier.NewCatalog(h.Store)
	log := zap.NewNop()

	h.Audit = auditservice.NewService(auditservice.Params{DB: h.DB, Log: log, GenID: node, Repo: auditrepo.Provide(), Clock: h.Clock})
	h.Profiles = profileservice.New(profileservice.Params{DB: h.DB, Log: log, Repo: profilerepo.Provide(), Clock: h.Clock, AuditSvc: h.Audit})
	h.Products = productservice.New(productservice.Params{DB: h.DB, Log: log, GenID: node, Repo: productrepo.Provide(), Store: h.Store, Clock: h.Clock, AuditSvc: h.Audit})
	h.Orders = orderservice.New(orderservice.Params{DB: h.DB, Log: log, GenID: node, Repo: orderrepo.Provide(), Clock: h.Clock, AuditSvc: h.Audit})
	h.Bookings = bookingservice.New(bookingservice.Params{DB: h.DB, Log: log, GenID: node, Repo: bookingrepo.Provide(), Clock: h.Clock, AuditSvc: h.Audit})
	h.Events = eventservice.New(eventservice.Params{DB: h.DB, Log: log, GenID: node, Repo: eventrepo.Provide(), Tiers: h.Tiers, Store: h.Store, Clock: h.Clock, AuditSvc: h.Audit})
	h.Cart = cart.NewService(cart.Params{Log: log, Store: cart.NewMemoryStore(), Products: h.Products, Config: h.Store, Clock: h.Clock})

	h.Checkout = checkout.New(checkout.Params{
		Log:       log,
		Cfg:       h.Config,
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
	h.Reconcile = reconcile.New(reconcile.Params{
		DB:        h.DB,
		Log:       log,
		GenID:     node,
		Cfg:       h.Config,
		Repo:      h.Repo,
		Processor: h.Processor,
		Profiles:  h.Profiles,
		Orders:    h.Orders,
		Bookings:  h.Bookings,
		Events:    h.Events,
		Tiers:     h.Tiers,
		Notifier:  notification.NewNotifier(h.Outbox),
		Clock:     h.Clock,
		AuditSvc:  h.Audit,
	})
	h.Webhook = webhook.NewService(webhook.Params{
		DB:        h.DB,
		Log:       log,
		GenID:     node,
		Repo:      h.Repo,
		Processor: h.Processor,
		Reconcile: h.Reconcile,
		Orders:    h.Orders,
		Clock:     h.Clock,
	})
	return h
}

// Member creates a profile holding the given tier.
func (h *Harness) Member(t testing.TB, email, tierID string) *profiledomain.Profile {
	t.Helper()
	ctx := context.Background()
	if tierID == "" {
		p, _, err := h.Profiles.EnsureByEmail(ctx, email)
		if err != nil {
			t.Fatalf("ensure profile: %v", err)
		}
		return p
	}
	p, _, err := h.Profiles.ApplyMembership(ctx, email, tierID, "", time.Time{})
	if err != nil {
		t.Fatalf("apply membership: %v", err)
	}
	return p
}

func (h *Harness) Product(t testing.TB, name string, price int64, visibility ...string) *productdomain.Product {
	t.Helper()
	return h.product(t, name, price, "usd", visibility)
}

// EURProduct creates a product priced in euros.
func (h *Harness) EURProduct(t testing.TB, name string, price int64) *productdomain.Product {
	t.Helper()
	return h.product(t, name, price, "eur", nil)
}

func (h *Harness) product(t testing.TB, name string, price int64, currency string, visibility []string) *productdomain.Product {
	t.Helper()
	inStock := true
	p, err := h.Products.Create(context.Background(), productdomain.CreateRequest{
		Name:           name,
		Price:          price,
		Currency:       currency,
		Category:       "merch",
		TierVisibility: visibility,
		InStock:        &inStock,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func (h *Harness) Event(t testing.TB, title string, capacity int, price int64, requiredTier string) *eventdomain.Event {
	t.Helper()
	e, err := h.Events.Create(context.Background(), eventdomain.CreateRequest{
		Title:        title,
		StartsAt:     Start.Add(14 * 24 * time.Hour),
		RequiredTier: requiredTier,
		Capacity:     capacity,
		Price:        price,
		Currency:     "usd",
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return e
}

// Count runs a COUNT query against the harness database.
func (h *Harness) Count(t testing.TB, query string, args ...any) int64 {
	t.Helper()
	return testdb.Count(t, h.DB, query, args...)
}
