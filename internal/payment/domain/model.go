package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const ProviderStripe = "stripe"

type PurchaseType string

const (
	PurchaseMembership PurchaseType = "membership"
	PurchaseStore      PurchaseType = "store"
	PurchaseEvent      PurchaseType = "event"
	PurchaseSession    PurchaseType = "session"
)

func ParsePurchaseType(raw string) (PurchaseType, bool) {
	switch t := PurchaseType(raw); t {
	case PurchaseMembership, PurchaseStore, PurchaseEvent, PurchaseSession:
		return t, true
	}
	return "", false
}

// Session metadata keys written at checkout and read back at reconciliation.
const (
	MetaPurchaseType   = "purchase_type"
	MetaTier           = "tier"
	MetaEmail          = "email"
	MetaProfileID      = "profile_id"
	MetaOrderID        = "order_id"
	MetaBookingID      = "booking_id"
	MetaRegistrationID = "registration_id"
	MetaEventID        = "event_id"
)

// CheckoutSession is the processor's hosted checkout session reduced to what
// reconciliation needs.
type CheckoutSession struct {
	ID              string            `json:"id"`
	URL             string            `json:"url,omitempty"`
	Mode            string            `json:"mode,omitempty"`
	Status          string            `json:"status,omitempty"`
	PaymentStatus   string            `json:"payment_status,omitempty"`
	CustomerID      string            `json:"customer_id,omitempty"`
	CustomerEmail   string            `json:"customer_email,omitempty"`
	PaymentIntentID string            `json:"payment_intent_id,omitempty"`
	SubscriptionID  string            `json:"subscription_id,omitempty"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Created         time.Time         `json:"created"`
	ExpiresAt       time.Time         `json:"expires_at"`
}

func (s CheckoutSession) Paid() bool {
	return s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required"
}

func (s CheckoutSession) PurchaseType() (PurchaseType, bool) {
	return ParsePurchaseType(s.Metadata[MetaPurchaseType])
}

type WebhookKind string

const (
	KindCheckoutCompleted   WebhookKind = "checkout_completed"
	KindSubscriptionChanged WebhookKind = "subscription_changed"
	KindPaymentSucceeded    WebhookKind = "payment_succeeded"
	KindIgnored             WebhookKind = "ignored"
)

type SubscriptionChange struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	Status     string `json:"status"`
	Deleted    bool   `json:"deleted"`
}

type PaymentIntent struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// WebhookEvent is a verified processor event. Exactly one variant is set,
// matching Kind; ignored events carry none.
type WebhookEvent struct {
	ID      string
	Type    string
	Kind    WebhookKind
	Created time.Time
	Payload json.RawMessage

	CheckoutCompleted   *CheckoutSession
	SubscriptionChanged *SubscriptionChange
	PaymentSucceeded    *PaymentIntent
}

// Validate enforces the required ids of each variant.
func (e *WebhookEvent) Validate() error {
	if e == nil || e.ID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	switch e.Kind {
	case KindCheckoutCompleted:
		if e.CheckoutCompleted == nil || e.CheckoutCompleted.ID == "" {
			return ErrInvalidEvent
		}
	case KindSubscriptionChanged:
		if e.SubscriptionChanged == nil || e.SubscriptionChanged.ID == "" {
			return ErrInvalidEvent
		}
	case KindPaymentSucceeded:
		if e.PaymentSucceeded == nil || e.PaymentSucceeded.ID == "" {
			return ErrInvalidEvent
		}
	case KindIgnored:
	default:
		return ErrInvalidEvent
	}
	return nil
}

type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider"`
	ProviderEventID string         `json:"provider_event_id"`
	EventType       string         `json:"event_type"`
	Payload         datatypes.JSON `json:"payload"`
	ReceivedAt      time.Time      `json:"received_at"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

type EventStats struct {
	Received  int64        `json:"received"`
	Processed int64        `json:"processed"`
	Pending   int64        `json:"pending"`
	Latest    *EventRecord `json:"latest,omitempty"`
}

type ReconciliationStatus string

const (
	ReconciliationReceived  ReconciliationStatus = "received"
	ReconciliationProcessed ReconciliationStatus = "processed"
)

// Source names the caller of reconciliation.
const (
	SourceWebhook   = "webhook"
	SourceVerify    = "verify"
	SourceScheduler = "scheduler"
)

// Reconciliation is the persisted marker that makes applying a session idempotent.
type Reconciliation struct {
	ID           snowflake.ID         `json:"id" gorm:"primaryKey"`
	SessionID    string               `json:"session_id"`
	PurchaseType PurchaseType         `json:"purchase_type"`
	Source       string               `json:"source"`
	Status       ReconciliationStatus `json:"status"`
	Result       datatypes.JSON       `json:"result"`
	ReceivedAt   time.Time            `json:"received_at"`
	ProcessedAt  *time.Time           `json:"processed_at"`
}

func (Reconciliation) TableName() string { return "payment_reconciliations" }

// ReconcileResult is what a reconciled session produced.
type ReconcileResult struct {
	SessionID        string       `json:"session_id"`
	PurchaseType     PurchaseType `json:"purchase_type"`
	AlreadyProcessed bool         `json:"already_processed"`
	Email            string       `json:"email,omitempty"`
	ProfileID        string       `json:"profile_id,omitempty"`
	Tier             string       `json:"tier,omitempty"`
	OrderID          string       `json:"order_id,omitempty"`
	BookingID        string       `json:"booking_id,omitempty"`
	RegistrationID   string       `json:"registration_id,omitempty"`
	Outcome          string       `json:"outcome,omitempty"`
}
