package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
	StatusCancelled  Status = "cancelled"
)

// transitions is the only authority on order status changes.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusAbandoned, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusAbandoned, StatusCancelled:
		return s, true
	}
	return "", false
}

// LineItem is a price snapshot taken from the catalog at checkout.
type LineItem struct {
	ProductID snowflake.ID `json:"product_id"`
	Name      string       `json:"name"`
	UnitPrice int64        `json:"unit_price"`
	Quantity  int          `json:"quantity"`
	ImageURL  string       `json:"image_url,omitempty"`
}

func (l LineItem) Amount() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

type Order struct {
	ID                    snowflake.ID                  `json:"id" gorm:"primaryKey"`
	UserID                string                        `json:"user_id"`
	Email                 string                        `json:"email"`
	Items                 datatypes.JSONSlice[LineItem] `json:"items"`
	Subtotal              int64                         `json:"subtotal"`
	Shipping              int64                         `json:"shipping"`
	Total                 int64                         `json:"total"`
	Currency              string                        `json:"currency"`
	Status                Status                        `json:"status"`
	StripeSessionID       *string                       `json:"stripe_session_id,omitempty"`
	StripePaymentIntentID *string                       `json:"stripe_payment_intent_id,omitempty"`
	CreatedAt             time.Time                     `json:"created_at"`
	UpdatedAt             time.Time                     `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }
