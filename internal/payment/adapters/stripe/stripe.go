package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/frostclub/internal/payment/domain"
	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// SignatureTolerance bounds the age of a signed webhook timestamp.
const SignatureTolerance = 5 * time.Minute

type Config struct {
	SecretKey     string
	WebhookSecret string
	// Backends overrides the API endpoint; nil uses the processor's production API.
	Backends *stripego.Backends
}

// Adapter implements paymentdomain.Processor over the stripe-go client.
type Adapter struct {
	api           *client.API
	secretKey     string
	webhookSecret string
	log           *zap.Logger
}

var _ paymentdomain.Processor = (*Adapter)(nil)

func New(cfg Config, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	key := strings.TrimSpace(cfg.SecretKey)
	return &Adapter{
		api:           client.New(key, cfg.Backends),
		secretKey:     key,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		log:           log.Named("payment.stripe"),
	}
}

func (a *Adapter) WebhookConfigured() bool {
	return a.webhookSecret != ""
}

func (a *Adapter) FindCustomerByEmail(ctx context.Context, email string) (string, bool, error) {
	if a.secretKey == "" {
		return "", false, paymentdomain.ErrProcessorNotConfigured
	}
	params := &stripego.CustomerListParams{Email: stripego.String(email)}
	params.Context = ctx
	params.Limit = stripego.Int64(1)

	iter := a.api.Customers.List(params)
	for iter.Next() {
		if c := iter.Customer(); c != nil && c.ID != "" {
			return c.ID, true, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", false, a.wrap("customer.list", err)
	}
	return "", false, nil
}

func (a *Adapter) CreateCustomer(ctx context.Context, in paymentdomain.CustomerParams) (string, error) {
	if a.secretKey == "" {
		return "", paymentdomain.ErrProcessorNotConfigured
	}
	params := &stripego.CustomerParams{Email: stripego.String(in.Email)}
	params.Context = ctx
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	c, err := a.api.Customers.New(params)
	if err != nil {
		return "", a.wrap("customer.create", err)
	}
	return c.ID, nil
}

func (a *Adapter) CreateCheckoutSession(ctx context.Context, in paymentdomain.SessionParams) (*paymentdomain.CheckoutSession, error) {
	if a.secretKey == "" {
		return nil, paymentdomain.ErrProcessorNotConfigured
	}
	params := &stripego.CheckoutSessionParams{
		Mode:       stripego.String(in.Mode),
		SuccessURL: stripego.String(in.SuccessURL),
		CancelURL:  stripego.String(in.CancelURL),
	}
	params.Context = ctx
	if in.CustomerID != "" {
		params.Customer = stripego.String(in.CustomerID)
	} else if in.CustomerEmail != "" {
		params.CustomerEmail = stripego.String(in.CustomerEmail)
	}
	if in.ClientReferenceID != "" {
		params.ClientReferenceID = stripego.String(in.ClientReferenceID)
	}
	if !in.ExpiresAt.IsZero() {
		params.ExpiresAt = stripego.Int64(in.ExpiresAt.Unix())
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	if len(in.PaymentIntentMetadata) > 0 && in.Mode == paymentdomain.ModePayment {
		params.PaymentIntentData = &stripego.CheckoutSessionPaymentIntentDataParams{
			Metadata: in.PaymentIntentMetadata,
		}
	}
	for _, item := range in.LineItems {
		params.LineItems = append(params.LineItems, lineItemParams(item))
	}

	s, err := a.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, a.wrap("checkout_session.create", err)
	}
	return toCheckoutSession(s), nil
}

func (a *Adapter) GetCheckoutSession(ctx context.Context, sessionID string) (*paymentdomain.CheckoutSession, error) {
	if a.secretKey == "" {
		return nil, paymentdomain.ErrProcessorNotConfigured
	}
	params := &stripego.CheckoutSessionParams{}
	params.Context = ctx
	s, err := a.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripego.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return nil, paymentdomain.ErrSessionNotFound
		}
		return nil, a.wrap("checkout_session.get", err)
	}
	return toCheckoutSession(s), nil
}

func (a *Adapter) ParseWebhook(payload []byte, signatureHeader string) (*paymentdomain.WebhookEvent, error) {
	if a.webhookSecret == "" {
		return nil, paymentdomain.ErrWebhookNotConfigured
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, paymentdomain.ErrInvalidSignature
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, signatureHeader, a.webhookSecret, SignatureTolerance); err != nil {
		return nil, paymentdomain.ErrInvalidSignature
	}
	return parseEvent(payload)
}

func (a *Adapter) SignPayload(payload []byte, at time.Time) (string, error) {
	if a.webhookSecret == "" {
		return "", paymentdomain.ErrWebhookNotConfigured
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    a.webhookSecret,
		Timestamp: at,
	})
	return signed.Header, nil
}

func (a *Adapter) wrap(op string, err error) error {
	fields := []zap.Field{zap.String("op", op), zap.Error(err)}
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		fields = append(fields,
			zap.String("stripe_type", string(stripeErr.Type)),
			zap.String("stripe_code", string(stripeErr.Code)),
			zap.String("request_id", stripeErr.RequestID),
		)
	}
	a.log.Warn("stripe call failed", fields...)
	return errors.Join(paymentdomain.ErrProcessorUnavailable, err)
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

func parseEvent(payload []byte) (*paymentdomain.WebhookEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	out := &paymentdomain.WebhookEvent{
		ID:      strings.TrimSpace(event.ID),
		Type:    strings.TrimSpace(event.Type),
		Kind:    paymentdomain.KindIgnored,
		Created: timestamp(event.Created),
		Payload: json.RawMessage(payload),
	}

	switch out.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var s stripego.CheckoutSession
		if err := json.Unmarshal(event.Data.Object, &s); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		out.Kind = paymentdomain.KindCheckoutCompleted
		out.CheckoutCompleted = toCheckoutSession(&s)
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripego.Subscription
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		change := &paymentdomain.SubscriptionChange{
			ID:      sub.ID,
			Status:  string(sub.Status),
			Deleted: out.Type == "customer.subscription.deleted",
		}
		if sub.Customer != nil {
			change.CustomerID = sub.Customer.ID
		}
		out.Kind = paymentdomain.KindSubscriptionChanged
		out.SubscriptionChanged = change
	case "payment_intent.succeeded":
		var pi stripego.PaymentIntent
		if err := json.Unmarshal(event.Data.Object, &pi); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		out.Kind = paymentdomain.KindPaymentSucceeded
		out.PaymentSucceeded = &paymentdomain.PaymentIntent{
			ID:       pi.ID,
			Amount:   pi.Amount,
			Currency: string(pi.Currency),
			Metadata: pi.Metadata,
		}
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func lineItemParams(item paymentdomain.LineItem) *stripego.CheckoutSessionLineItemParams {
	quantity := item.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	params := &stripego.CheckoutSessionLineItemParams{Quantity: stripego.Int64(quantity)}
	if item.PriceID != "" {
		params.Price = stripego.String(item.PriceID)
		return params
	}

	product := &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripego.String(item.Name),
	}
	if item.Description != "" {
		product.Description = stripego.String(item.Description)
	}
	params.PriceData = &stripego.CheckoutSessionLineItemPriceDataParams{
		Currency:    stripego.String(item.Currency),
		UnitAmount:  stripego.Int64(item.UnitAmount),
		ProductData: product,
	}
	if item.Interval != "" {
		params.PriceData.Recurring = &stripego.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripego.String(item.Interval),
		}
	}
	return params
}

func toCheckoutSession(s *stripego.CheckoutSession) *paymentdomain.CheckoutSession {
	if s == nil {
		return nil
	}
	out := &paymentdomain.CheckoutSession{
		ID:            s.ID,
		URL:           s.URL,
		Mode:          string(s.Mode),
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		CustomerEmail: s.CustomerEmail,
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		Metadata:      s.Metadata,
	}
	if s.Created > 0 {
		out.Created = time.Unix(s.Created, 0).UTC()
	}
	if s.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(s.ExpiresAt, 0).UTC()
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if out.CustomerEmail == "" && s.CustomerDetails != nil {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	return out
}

func timestamp(value int64) time.Time {
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}
