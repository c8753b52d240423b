package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/frostclub/pkg/db/pagination"
)

type CreatePendingRequest struct {
	UserID   string
	Email    string
	Items    []LineItem
	Subtotal int64
	Shipping int64
	Total    int64
	Currency string
}

type ListRequest struct {
	pagination.Pagination
	Status string `form:"status"`
	UserID string `form:"user_id"`
}

type ListResponse struct {
	pagination.PageInfo
	Orders []Order `json:"orders"`
}

type Service interface {
	CreatePending(ctx context.Context, req CreatePendingRequest) (*Order, error)
	AttachSession(ctx context.Context, id string, sessionID string) error
	Transition(ctx context.Context, id string, from, to Status) error
	// MarkProcessing moves a paid order out of pending, or back from abandoned
	// when the payment outlived the sweep. It reports whether this call made the
	// change; an order already processing or beyond is a no-op.
	MarkProcessing(ctx context.Context, id string, paymentIntentID string) (*Order, bool, error)
	Get(ctx context.Context, id string) (*Order, error)
	GetBySessionID(ctx context.Context, sessionID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	UpdateStatus(ctx context.Context, id string, to string) (*Order, error)
	ExpirePending(ctx context.Context, olderThan time.Time) (int64, error)
	ListPendingWithSession(ctx context.Context, olderThan time.Time, limit int) ([]Order, error)
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidItems      = errors.New("invalid_items")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrStatusConflict    = errors.New("order_status_changed")
	ErrSessionAttached   = errors.New("order_session_already_attached")
	ErrNotFound          = errors.New("order_not_found")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
)
