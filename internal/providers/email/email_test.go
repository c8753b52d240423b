package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/smallbiznis/frostclub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRenderTemplates(t *testing.T) {
	subject, body, err := Render(TemplateOrderConfirmed, map[string]any{
		"order_id": "1234",
		"currency": "usd",
		"items": []map[string]any{
			{"name": "Tour Tee", "quantity": 2, "amount": int64(2000)},
		},
		"shipping": int64(999),
		"total":    float64(2999),
	})
	require.NoError(t, err)
	assert.Equal(t, "Your Frost Club order is confirmed", subject)
	assert.Contains(t, body, "Tour Tee")
	assert.Contains(t, body, "20.00 USD")
	assert.Contains(t, body, "29.99 USD")

	subject, body, err = Render(TemplateTicketConfirmed, map[string]any{
		"subject":         "Waitlisted",
		"waitlisted":      true,
		"event_title":     "Opener",
		"quantity":        2,
		"registration_id": "r1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Waitlisted", subject)
	assert.Contains(t, body, "waitlist")

	_, _, err = Render("missing", nil)
	assert.Error(t, err)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "34.99 USD", FormatMoney(int64(3499), "usd"))
	assert.Equal(t, "0.05 EUR", FormatMoney(5, "eur"))
	assert.Equal(t, "-1.50 GBP", FormatMoney(float64(-150), "gbp"))
}

func TestSMTPSendBuildsMessage(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 1025, From: "Frost Club <hello@frostclub.local>"})
	var gotAddr, gotFrom string
	var gotMsg []byte
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotMsg = addr, from, msg
		return nil
	}

	require.NoError(t, p.SendTemplate(context.Background(), []string{"fan@example.com"}, TemplateWelcome, map[string]any{
		"email":     "fan@example.com",
		"tier_name": "Frost Fan",
	}))
	assert.Equal(t, "mail.local:1025", gotAddr)
	assert.Equal(t, "hello@frostclub.local", gotFrom)
	assert.True(t, strings.Contains(string(gotMsg), "Subject: Welcome to Frost Club"))
	assert.Contains(t, string(gotMsg), "Frost Fan")

	assert.ErrorIs(t, p.Send(context.Background(), nil, "s", "b"), ErrNoRecipients)
}

func TestNewFromConfigSelectsProvider(t *testing.T) {
	cfg := config.Config{Email: config.EmailConfig{Provider: config.EmailProviderSMTP}}
	_, ok := NewFromConfig(cfg, zap.NewNop()).(*SMTPProvider)
	assert.True(t, ok)

	cfg.Email.Provider = config.EmailProviderResend
	_, ok = NewFromConfig(cfg, zap.NewNop()).(*NoOpProvider)
	assert.True(t, ok)

	cfg.Email.ResendAPIKey = "re_test"
	_, ok = NewFromConfig(cfg, zap.NewNop()).(*ResendProvider)
	assert.True(t, ok)
}
