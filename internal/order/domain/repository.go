package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/frostclub/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	UserID string
	Status Status
	Cursor *pagination.Cursor
	Limit  int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, o *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*Order, error)
	AttachSession(ctx context.Context, db *gorm.DB, id snowflake.ID, sessionID string, now time.Time) (bool, error)
	// UpdateStatus is conditional on the current status; false means another writer won.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, now time.Time) (bool, error)
	MarkProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentIntentID *string, now time.Time) (bool, error)
	ExpirePending(ctx context.Context, db *gorm.DB, olderThan time.Time, now time.Time) (int64, error)
	ListPendingWithSession(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]Order, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Order, error)
}
