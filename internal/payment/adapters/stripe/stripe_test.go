package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/frostclub/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

const testSecret = "whsec_test"

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func newWebhookAdapter() *Adapter {
	return New(Config{WebhookSecret: testSecret}, zap.NewNop())
}

func TestParseWebhookRejectsBadSignatures(t *testing.T) {
	adapter := newWebhookAdapter()
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)
	now := time.Now().Unix()

	cases := map[string]string{
		"missing":  "",
		"garbage":  "not-a-signature",
		"wrong":    buildStripeSignatureHeader("whsec_other", payload, now),
		"expired":  buildStripeSignatureHeader(testSecret, payload, now-int64((10*time.Minute).Seconds())),
		"tampered": buildStripeSignatureHeader(testSecret, []byte(`{"id":"evt_2"}`), now),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := adapter.ParseWebhook(payload, header)
			assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
		})
	}
}

func TestParseWebhookRequiresSecret(t *testing.T) {
	adapter := New(Config{}, zap.NewNop())
	assert.False(t, adapter.WebhookConfigured())

	_, err := adapter.ParseWebhook([]byte(`{}`), "t=1,v1=abc")
	assert.ErrorIs(t, err, paymentdomain.ErrWebhookNotConfigured)
}

func TestParseWebhookVariants(t *testing.T) {
	adapter := newWebhookAdapter()
	now := time.Now().Unix()

	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, ev *paymentdomain.WebhookEvent)
	}{
		{
			name: "checkout completed",
			payload: `{"id":"evt_cs","type":"checkout.session.completed","created":1767225600,"data":{"object":{
				"id":"cs_test_1","object":"checkout.session","created":1767225000,"mode":"subscription","payment_status":"paid",
				"customer":"cus_1","customer_details":{"email":"a@b.com"},"amount_total":999,"currency":"usd",
				"metadata":{"purchase_type":"membership","tier":"frost_fan"}}}}`,
			check: func(t *testing.T, ev *paymentdomain.WebhookEvent) {
				require.Equal(t, paymentdomain.KindCheckoutCompleted, ev.Kind)
				s := ev.CheckoutCompleted
				require.NotNil(t, s)
				assert.Equal(t, "cs_test_1", s.ID)
				assert.Equal(t, "cus_1", s.CustomerID)
				assert.Equal(t, "a@b.com", s.CustomerEmail)
				assert.Equal(t, time.Unix(1767225000, 0).UTC(), s.Created)
				assert.True(t, s.Paid())
				pt, ok := s.PurchaseType()
				assert.True(t, ok)
				assert.Equal(t, paymentdomain.PurchaseMembership, pt)
				assert.Equal(t, time.Unix(1767225600, 0).UTC(), ev.Created)
			},
		},
		{
			name:    "subscription deleted",
			payload: `{"id":"evt_sub","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_9","status":"canceled"}}}`,
			check: func(t *testing.T, ev *paymentdomain.WebhookEvent) {
				require.Equal(t, paymentdomain.KindSubscriptionChanged, ev.Kind)
				assert.Equal(t, "sub_1", ev.SubscriptionChanged.ID)
				assert.Equal(t, "cus_9", ev.SubscriptionChanged.CustomerID)
				assert.True(t, ev.SubscriptionChanged.Deleted)
			},
		},
		{
			name:    "payment intent succeeded",
			payload: `{"id":"evt_pi","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent","amount":3499,"currency":"usd","metadata":{"order_id":"42"}}}}`,
			check: func(t *testing.T, ev *paymentdomain.WebhookEvent) {
				require.Equal(t, paymentdomain.KindPaymentSucceeded, ev.Kind)
				assert.Equal(t, "pi_1", ev.PaymentSucceeded.ID)
				assert.Equal(t, int64(3499), ev.PaymentSucceeded.Amount)
				assert.Equal(t, "42", ev.PaymentSucceeded.Metadata["order_id"])
			},
		},
		{
			name:    "unknown type ignored",
			payload: `{"id":"evt_x","type":"invoice.created","data":{"object":{"id":"in_1"}}}`,
			check: func(t *testing.T, ev *paymentdomain.WebhookEvent) {
				assert.Equal(t, paymentdomain.KindIgnored, ev.Kind)
				assert.Nil(t, ev.CheckoutCompleted)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := []byte(tt.payload)
			ev, err := adapter.ParseWebhook(payload, buildStripeSignatureHeader(testSecret, payload, now))
			require.NoError(t, err)
			tt.check(t, ev)
		})
	}
}

func TestParseWebhookValidatesVariantIDs(t *testing.T) {
	adapter := newWebhookAdapter()
	payload := []byte(`{"id":"evt_cs","type":"checkout.session.completed","data":{"object":{"object":"checkout.session"}}}`)

	_, err := adapter.ParseWebhook(payload, buildStripeSignatureHeader(testSecret, payload, time.Now().Unix()))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)

	missingID := []byte(`{"type":"invoice.created","data":{"object":{}}}`)
	_, err = adapter.ParseWebhook(missingID, buildStripeSignatureHeader(testSecret, missingID, time.Now().Unix()))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)
}

func TestSignPayloadRoundTrip(t *testing.T) {
	adapter := newWebhookAdapter()
	payload := []byte(`{"id":"evt_self","type":"frostclub.webhook_test","data":{"object":{}}}`)

	header, err := adapter.SignPayload(payload, time.Now())
	require.NoError(t, err)

	ev, err := adapter.ParseWebhook(payload, header)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.KindIgnored, ev.Kind)
	assert.Equal(t, "evt_self", ev.ID)
}

func newAPIAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	backend := stripego.GetBackendWithConfig(stripego.APIBackend, &stripego.BackendConfig{
		URL:               stripego.String(server.URL),
		HTTPClient:        server.Client(),
		MaxNetworkRetries: stripego.Int64(0),
	})
	return New(Config{
		SecretKey:     "sk_test_123",
		WebhookSecret: testSecret,
		Backends:      &stripego.Backends{API: backend, Connect: backend, Uploads: backend},
	}, zap.NewNop())
}

func TestCreateCheckoutSessionSendsParams(t *testing.T) {
	var form map[string]string
	adapter := newAPIAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k, v := range r.PostForm {
			form[k] = v[0]
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_abc","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_abc","mode":"subscription","expires_at":1893456000}`))
	})

	session, err := adapter.CreateCheckoutSession(context.Background(), paymentdomain.SessionParams{
		Mode:       paymentdomain.ModeSubscription,
		CustomerID: "cus_1",
		LineItems: []paymentdomain.LineItem{{
			Name:       "Frost Fan",
			UnitAmount: 999,
			Currency:   "usd",
			Quantity:   1,
			Interval:   "month",
		}},
		SuccessURL: "http://localhost:3000/success?session_id={CHECKOUT_SESSION_ID}&type=membership",
		CancelURL:  "http://localhost:3000/membership",
		Metadata:   map[string]string{paymentdomain.MetaPurchaseType: "membership"},
		ExpiresAt:  time.Unix(1893456000, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_abc", session.ID)
	assert.Equal(t, int64(1893456000), session.ExpiresAt.Unix())
	assert.Contains(t, session.URL, "cs_test_abc")

	assert.Equal(t, "subscription", form["mode"])
	assert.Equal(t, "cus_1", form["customer"])
	assert.Equal(t, "membership", form["metadata[purchase_type]"])
	assert.Equal(t, "999", form["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, "month", form["line_items[0][price_data][recurring][interval]"])
	assert.Equal(t, "1893456000", form["expires_at"])
}

func TestFindCustomerByEmailEmptyList(t *testing.T) {
	adapter := newAPIAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/customers", r.URL.Path)
		assert.Equal(t, "a@b.com", r.URL.Query().Get("email"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[],"has_more":false,"url":"/v1/customers"}`))
	})

	id, found, err := adapter.FindCustomerByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, id)
}

func TestGetCheckoutSessionNotFound(t *testing.T) {
	adapter := newAPIAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such checkout.session"}}`))
	})

	_, err := adapter.GetCheckoutSession(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, paymentdomain.ErrSessionNotFound)
}

func TestCallsRequireSecretKey(t *testing.T) {
	adapter := newWebhookAdapter()
	_, err := adapter.CreateCheckoutSession(context.Background(), paymentdomain.SessionParams{})
	assert.ErrorIs(t, err, paymentdomain.ErrProcessorNotConfigured)
	_, _, err = adapter.FindCustomerByEmail(context.Background(), "a@b.com")
	assert.ErrorIs(t, err, paymentdomain.ErrProcessorNotConfigured)
}
