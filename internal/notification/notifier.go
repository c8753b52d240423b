// Package notification sends the transactional emails of the club, either
// directly through the email provider or through a message broker.
package notification

import (
	"context"
	"strings"

	"github.com/smallbiznis/frostclub/internal/providers/email"
)

const RoutingKeyEmail = "notification.email"

// Message is the unit handed to a transport. Data stays a plain map so it
// survives a JSON round trip through the broker.
type Message struct {
	Template string         `json:"template"`
	To       []string       `json:"to"`
	Data     map[string]any `json:"data"`
}

type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

type Notifier interface {
	Welcome(ctx context.Context, data WelcomeData) error
	OrderConfirmed(ctx context.Context, data OrderData) error
	BookingConfirmed(ctx context.Context, data BookingData) error
	TicketConfirmed(ctx context.Context, data TicketData) error
}

type WelcomeData struct {
	Email    string
	Name     string
	TierName string
	LoginURL string
}

type OrderLine struct {
	Name     string
	Quantity int
	Amount   int64
}

type OrderData struct {
	Email    string
	OrderID  string
	Items    []OrderLine
	Subtotal int64
	Shipping int64
	Total    int64
	Currency string
}

type BookingData struct {
	Email           string
	BookingID       string
	SessionDate     string
	DurationMinutes int
	Notes           string
	Amount          int64
	Currency        string
}

type TicketData struct {
	Email          string
	RegistrationID string
	EventTitle     string
	StartsAt       string
	Venue          string
	Quantity       int
	Amount         int64
	Currency       string
	Waitlisted     bool
}

type notifier struct {
	transport Transport
}

func NewNotifier(transport Transport) Notifier {
	return &notifier{transport: transport}
}

func (n *notifier) Welcome(ctx context.Context, d WelcomeData) error {
	return n.deliver(ctx, email.TemplateWelcome, d.Email, map[string]any{
		"email":     d.Email,
		"name":      d.Name,
		"tier_name": d.TierName,
		"login_url": d.LoginURL,
	})
}

func (n *notifier) OrderConfirmed(ctx context.Context, d OrderData) error {
	items := make([]map[string]any, 0, len(d.Items))
	for _, line := range d.Items {
		items = append(items, map[string]any{
			"name":     line.Name,
			"quantity": line.Quantity,
			"amount":   line.Amount,
		})
	}
	return n.deliver(ctx, email.TemplateOrderConfirmed, d.Email, map[string]any{
		"order_id": d.OrderID,
		"items":    items,
		"subtotal": d.Subtotal,
		"shipping": d.Shipping,
		"total":    d.Total,
		"currency": d.Currency,
	})
}

func (n *notifier) BookingConfirmed(ctx context.Context, d BookingData) error {
	return n.deliver(ctx, email.TemplateBookingConfirmed, d.Email, map[string]any{
		"booking_id":       d.BookingID,
		"session_date":     d.SessionDate,
		"duration_minutes": d.DurationMinutes,
		"notes":            d.Notes,
		"amount":           d.Amount,
		"currency":         d.Currency,
	})
}

func (n *notifier) TicketConfirmed(ctx context.Context, d TicketData) error {
	data := map[string]any{
		"registration_id": d.RegistrationID,
		"event_title":     d.EventTitle,
		"starts_at":       d.StartsAt,
		"venue":           d.Venue,
		"quantity":        d.Quantity,
		"amount":          d.Amount,
		"currency":        d.Currency,
		"waitlisted":      d.Waitlisted,
	}
	if d.Waitlisted {
		data["subject"] = "You're on the waitlist for " + d.EventTitle
	}
	return n.deliver(ctx, email.TemplateTicketConfirmed, d.Email, data)
}

func (n *notifier) deliver(ctx context.Context, template, to string, data map[string]any) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return email.ErrNoRecipients
	}
	return n.transport.Deliver(ctx, Message{Template: template, To: []string{to}, Data: data})
}
