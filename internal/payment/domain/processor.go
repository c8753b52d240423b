package domain

import (
	"context"
	"time"
)

type LineItem struct {
	// PriceID references a price configured at the processor; when set the
	// inline amount fields are ignored.
	PriceID     string
	Name        string
	Description string
	UnitAmount  int64
	Currency    string
	Quantity    int64
	// Interval makes the inline price recurring ("month").
	Interval string
}

type SessionParams struct {
	Mode                  string
	CustomerID            string
	CustomerEmail         string
	ClientReferenceID     string
	LineItems             []LineItem
	SuccessURL            string
	CancelURL             string
	Metadata              map[string]string
	PaymentIntentMetadata map[string]string
	// ExpiresAt closes the hosted session; zero keeps the processor default.
	ExpiresAt time.Time
}

const (
	ModePayment      = "payment"
	ModeSubscription = "subscription"
)

type CustomerParams struct {
	Email    string
	Metadata map[string]string
}

// Processor is the payment processor as the rest of the system sees it.
type Processor interface {
	FindCustomerByEmail(ctx context.Context, email string) (string, bool, error)
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	CreateCheckoutSession(ctx context.Context, params SessionParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	// ParseWebhook verifies the signature header and converts the payload into a
	// validated WebhookEvent. Signature failures return ErrInvalidSignature.
	ParseWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error)
	WebhookConfigured() bool
	// SignPayload produces a signature header for payload with the configured secret.
	SignPayload(payload []byte, at time.Time) (string, error)
}
