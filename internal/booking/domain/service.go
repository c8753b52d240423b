package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/frostclub/pkg/db/pagination"
)

type CreatePendingRequest struct {
	UserID          string
	Email           string
	SessionDate     time.Time
	DurationMinutes int
	Notes           string
	Price           int64
	Currency        string
}

type ListRequest struct {
	pagination.Pagination
	Status string `form:"status"`
	UserID string `form:"user_id"`
}

type ListResponse struct {
	pagination.PageInfo
	Bookings []SessionBooking `json:"bookings"`
}

type Service interface {
	CreatePending(ctx context.Context, req CreatePendingRequest) (*SessionBooking, error)
	AttachSession(ctx context.Context, id string, sessionID string) error
	// Confirm moves a paid booking to confirmed, reviving it when the sweep
	// abandoned it first, and reports whether this call made the change. A
	// revived booking whose slot was taken in the meantime returns ErrSlotTaken.
	Confirm(ctx context.Context, id string) (*SessionBooking, bool, error)
	Get(ctx context.Context, id string) (*SessionBooking, error)
	GetBySessionID(ctx context.Context, sessionID string) (*SessionBooking, error)
	ListByUser(ctx context.Context, userID string) ([]SessionBooking, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	UpdateStatus(ctx context.Context, id string, to string) (*SessionBooking, error)
	ExpirePending(ctx context.Context, olderThan time.Time) (int64, error)
	ListPendingWithSession(ctx context.Context, olderThan time.Time, limit int) ([]SessionBooking, error)
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidDate       = errors.New("invalid_session_date")
	ErrInvalidDuration   = errors.New("invalid_duration")
	ErrSessionInPast     = errors.New("session_date_in_past")
	ErrSlotTaken         = errors.New("session_slot_taken")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrStatusConflict    = errors.New("booking_status_changed")
	ErrSessionAttached   = errors.New("booking_session_already_attached")
	ErrNotFound          = errors.New("booking_not_found")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
)
