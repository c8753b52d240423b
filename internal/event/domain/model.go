package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Event struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	Slug            string       `json:"slug"`
	Title           string       `json:"title"`
	Description     *string      `json:"description,omitempty"`
	Venue           *string      `json:"venue,omitempty"`
	StartsAt        time.Time    `json:"starts_at"`
	RequiredTier    string       `json:"required_tier"`
	Capacity        int          `json:"capacity"`
	RegisteredCount int          `json:"registered_count"`
	Price           int64        `json:"price"`
	Currency        string       `json:"currency"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func (Event) TableName() string { return "events" }

func (e Event) Remaining() int {
	if left := e.Capacity - e.RegisteredCount; left > 0 {
		return left
	}
	return 0
}

type RegistrationStatus string

const (
	RegistrationPending    RegistrationStatus = "pending"
	RegistrationConfirmed  RegistrationStatus = "confirmed"
	RegistrationWaitlisted RegistrationStatus = "waitlisted"
	RegistrationAbandoned  RegistrationStatus = "abandoned"
	RegistrationCancelled  RegistrationStatus = "cancelled"
)

var registrationTransitions = map[RegistrationStatus][]RegistrationStatus{
	RegistrationPending:   {RegistrationConfirmed, RegistrationWaitlisted, RegistrationAbandoned, RegistrationCancelled},
	RegistrationConfirmed: {RegistrationCancelled},
}

func CanTransition(from, to RegistrationStatus) bool {
	for _, next := range registrationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Registration struct {
	ID              snowflake.ID       `json:"id" gorm:"primaryKey"`
	EventID         snowflake.ID       `json:"event_id"`
	UserID          string             `json:"user_id"`
	Email           string             `json:"email"`
	Quantity        int                `json:"quantity"`
	Amount          int64              `json:"amount"`
	Currency        string             `json:"currency"`
	Status          RegistrationStatus `json:"status"`
	StripeSessionID *string            `json:"stripe_session_id,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func (Registration) TableName() string { return "event_registrations" }

// ConfirmOutcome describes what ConfirmRegistration did.
type ConfirmOutcome string

const (
	OutcomeConfirmed  ConfirmOutcome = "confirmed"
	OutcomeWaitlisted ConfirmOutcome = "waitlisted"
	OutcomeUnchanged  ConfirmOutcome = "unchanged"
)
