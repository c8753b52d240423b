package domain

import (
	"context"
	"errors"
	"time"
)

// View is an event as seen by a particular member.
type View struct {
	Event
	Remaining   int   `json:"remaining"`
	Locked      bool  `json:"locked"`
	MemberPrice int64 `json:"member_price"`
}

type CreateRequest struct {
	Title        string    `json:"title"`
	Slug         string    `json:"slug"`
	Description  *string   `json:"description"`
	Venue        *string   `json:"venue"`
	StartsAt     time.Time `json:"starts_at"`
	RequiredTier string    `json:"required_tier"`
	Capacity     int       `json:"capacity"`
	Price        int64     `json:"price"`
	Currency     string    `json:"currency"`
}

type UpdateRequest struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	Venue        *string    `json:"venue"`
	StartsAt     *time.Time `json:"starts_at"`
	RequiredTier *string    `json:"required_tier"`
	Capacity     *int       `json:"capacity"`
	Price        *int64     `json:"price"`
}

type CreateRegistrationRequest struct {
	EventID  string
	UserID   string
	Email    string
	Quantity int
	Amount   int64
	Currency string
}

type Service interface {
	List(ctx context.Context, upcomingOnly bool, viewerTier string) ([]View, error)
	Get(ctx context.Context, idOrSlug string, viewerTier string) (*View, error)
	Create(ctx context.Context, req CreateRequest) (*Event, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Event, error)

	CreatePendingRegistration(ctx context.Context, req CreateRegistrationRequest) (*Registration, error)
	AttachSession(ctx context.Context, registrationID string, sessionID string) error
	// ConfirmRegistration confirms a pending registration and reserves its seats
	// atomically. Without room the registration is waitlisted instead. An
	// abandoned registration is revived the same way, or waitlisted when the
	// user registered again in the meantime.
	ConfirmRegistration(ctx context.Context, registrationID string) (*Registration, ConfirmOutcome, error)
	GetRegistration(ctx context.Context, id string) (*Registration, error)
	GetRegistrationBySessionID(ctx context.Context, sessionID string) (*Registration, error)
	ListRegistrationsByUser(ctx context.Context, userID string) ([]Registration, error)
	ExpirePending(ctx context.Context, olderThan time.Time) (int64, error)
	ListPendingWithSession(ctx context.Context, olderThan time.Time, limit int) ([]Registration, error)
}

var (
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidTitle         = errors.New("invalid_title")
	ErrInvalidStartsAt      = errors.New("invalid_starts_at")
	ErrInvalidCapacity      = errors.New("invalid_capacity")
	ErrInvalidPrice         = errors.New("invalid_price")
	ErrInvalidTier          = errors.New("invalid_tier")
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrNotFound             = errors.New("event_not_found")
	ErrRegistrationNotFound = errors.New("registration_not_found")
	ErrEventStarted         = errors.New("event_already_started")
	ErrEventFull            = errors.New("event_full")
	ErrAlreadyRegistered    = errors.New("already_registered")
	ErrSessionAttached      = errors.New("registration_session_already_attached")
	ErrSlugTaken            = errors.New("slug_taken")
)
