package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusAbandoned, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
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
	case StatusPending, StatusConfirmed, StatusCompleted, StatusAbandoned, StatusCancelled:
		return s, true
	}
	return "", false
}

// SessionBooking is a paid private video-call slot.
type SessionBooking struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID          string       `json:"user_id"`
	Email           string       `json:"email"`
	SessionDate     time.Time    `json:"session_date"`
	DurationMinutes int          `json:"duration_minutes"`
	Notes           *string      `json:"notes,omitempty"`
	Price           int64        `json:"price"`
	Currency        string       `json:"currency"`
	Status          Status       `json:"status"`
	StripeSessionID *string      `json:"stripe_session_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func (SessionBooking) TableName() string { return "session_bookings" }
