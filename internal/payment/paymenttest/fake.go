// Package paymenttest provides an in-memory payment processor for tests.
package paymenttest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/frostclub/internal/payment/domain"
)

const Secret = "whsec_fake"

// Processor records every call and keeps created sessions so tests can
// complete them and feed them back through verification or webhooks.
type Processor struct {
	mu sync.Mutex

	Customers map[string]string
	Sessions  map[string]*domain.CheckoutSession
	Created   []domain.SessionParams

	CreatedCustomers []domain.CustomerParams
	FailCreate       error
	FailGet          error

	// Now stamps session creation times; nil uses the wall clock.
	Now func() time.Time

	seq int
}

var _ domain.Processor = (*Processor)(nil)

func New() *Processor {
	return &Processor{
		Customers: map[string]string{},
		Sessions:  map[string]*domain.CheckoutSession{},
	}
}

func (p *Processor) FindCustomerByEmail(_ context.Context, email string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.Customers[email]
	return id, ok, nil
}

func (p *Processor) CreateCustomer(_ context.Context, params domain.CustomerParams) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := fmt.Sprintf("cus_fake_%d", p.seq)
	p.Customers[params.Email] = id
	p.CreatedCustomers = append(p.CreatedCustomers, params)
	return id, nil
}

func (p *Processor) CreateCheckoutSession(_ context.Context, params domain.SessionParams) (*domain.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailCreate != nil {
		return nil, p.FailCreate
	}
	p.seq++
	id := fmt.Sprintf("cs_fake_%d", p.seq)

	var total int64
	currency := ""
	for _, item := range params.LineItems {
		total += item.UnitAmount * item.Quantity
		if currency == "" {
			currency = item.Currency
		}
	}
	metadata := map[string]string{}
	for k, v := range params.Metadata {
		metadata[k] = v
	}

	session := &domain.CheckoutSession{
		ID:            id,
		URL:           "https://checkout.example.test/pay/" + id,
		Mode:          params.Mode,
		Status:        "open",
		PaymentStatus: "unpaid",
		CustomerID:    params.CustomerID,
		CustomerEmail: params.CustomerEmail,
		AmountTotal:   total,
		Currency:      currency,
		Metadata:      metadata,
		Created:       p.now(),
		ExpiresAt:     params.ExpiresAt,
	}
	p.Sessions[id] = session
	p.Created = append(p.Created, params)

	out := *session
	return &out, nil
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) GetCheckoutSession(_ context.Context, sessionID string) (*domain.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailGet != nil {
		return nil, p.FailGet
	}
	s, ok := p.Sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	out := *s
	return &out, nil
}

// Complete marks a session paid the way the hosted checkout would.
func (p *Processor) Complete(sessionID string) *domain.CheckoutSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.Sessions[sessionID]
	if !ok {
		return nil
	}
	s.Status = "complete"
	s.PaymentStatus = "paid"
	if s.PaymentIntentID == "" && s.Mode == domain.ModePayment {
		s.PaymentIntentID = "pi_" + strings.TrimPrefix(sessionID, "cs_")
	}
	if s.CustomerID == "" {
		s.CustomerID = "cus_checkout_" + strings.TrimPrefix(sessionID, "cs_")
	}
	out := *s
	return &out
}

func (p *Processor) WebhookConfigured() bool { return true }

// ParseWebhook accepts events encoded by EventPayload and signed by SignPayload.
func (p *Processor) ParseWebhook(payload []byte, signatureHeader string) (*domain.WebhookEvent, error) {
	if !hmac.Equal([]byte(signatureHeader), []byte(sign(payload))) {
		return nil, domain.ErrInvalidSignature
	}
	var ev fakeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	out := &domain.WebhookEvent{
		ID:      ev.ID,
		Type:    ev.Type,
		Kind:    domain.KindIgnored,
		Created: time.Unix(ev.Created, 0).UTC(),
		Payload: payload,
	}
	switch ev.Type {
	case "checkout.session.completed":
		out.Kind = domain.KindCheckoutCompleted
		out.CheckoutCompleted = ev.Session
	case "customer.subscription.updated", "customer.subscription.deleted":
		out.Kind = domain.KindSubscriptionChanged
		out.SubscriptionChanged = ev.Subscription
	case "payment_intent.succeeded":
		out.Kind = domain.KindPaymentSucceeded
		out.PaymentSucceeded = ev.Intent
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Processor) SignPayload(payload []byte, _ time.Time) (string, error) {
	return sign(payload), nil
}

type fakeEvent struct {
	ID           string                     `json:"id"`
	Type         string                     `json:"type"`
	Created      int64                      `json:"created"`
	Session      *domain.CheckoutSession    `json:"session,omitempty"`
	Subscription *domain.SubscriptionChange `json:"subscription,omitempty"`
	Intent       *domain.PaymentIntent      `json:"intent,omitempty"`
}

// CheckoutCompletedPayload encodes a checkout.session.completed event and its signature.
func CheckoutCompletedPayload(eventID string, session *domain.CheckoutSession) ([]byte, string) {
	return encode(fakeEvent{ID: eventID, Type: "checkout.session.completed", Session: session})
}

func PaymentSucceededPayload(eventID string, intent *domain.PaymentIntent) ([]byte, string) {
	return encode(fakeEvent{ID: eventID, Type: "payment_intent.succeeded", Intent: intent})
}

func EventPayload(eventID string, eventType string) ([]byte, string) {
	return encode(fakeEvent{ID: eventID, Type: eventType})
}

func encode(ev fakeEvent) ([]byte, string) {
	payload, _ := json.Marshal(ev)
	return payload, sign(payload)
}

func sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(Secret))
	_, _ = mac.Write(payload)
	return "v1=" + hex.EncodeToString(mac.Sum(nil))
}
