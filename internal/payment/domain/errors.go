package domain

import "errors"

var (
	ErrInvalidSignature     = errors.New("invalid_signature")
	ErrInvalidPayload       = errors.New("invalid_payload")
	ErrInvalidEvent         = errors.New("invalid_event")
	ErrWebhookNotConfigured = errors.New("webhook_not_configured")
	ErrPayloadTooLarge      = errors.New("payload_too_large")
	// ErrDispatchFailed wraps handler failures so they surface as 5xx and the
	// processor redelivers.
	ErrDispatchFailed = errors.New("webhook_dispatch_failed")

	ErrPaymentNotCompleted    = errors.New("payment_not_completed")
	ErrSessionNotFound        = errors.New("checkout_session_not_found")
	ErrInvalidSessionID       = errors.New("invalid_session_id")
	ErrUnknownPurchaseType    = errors.New("unknown_purchase_type")
	ErrReconcileInProgress    = errors.New("reconciliation_in_progress")
	ErrProcessorUnavailable   = errors.New("payment_processor_unavailable")
	ErrProcessorNotConfigured = errors.New("payment_processor_not_configured")

	ErrInvalidEmail    = errors.New("invalid_email")
	ErrInvalidTier     = errors.New("invalid_tier")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrInvalidItems    = errors.New("invalid_items")
	ErrEmptyCart       = errors.New("cart_empty")
	ErrTierRequired    = errors.New("tier_required")
	ErrMixedCurrencies = errors.New("mixed_currencies")
)
