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
	From   *time.Time
	Cursor *pagination.Cursor
	Limit  int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, b *SessionBooking) error
	SlotTaken(ctx context.Context, db *gorm.DB, sessionDate time.Time) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*SessionBooking, error)
	FindBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*SessionBooking, error)
	AttachSession(ctx context.Context, db *gorm.DB, id snowflake.ID, sessionID string, now time.Time) (bool, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, now time.Time) (bool, error)
	ExpirePending(ctx context.Context, db *gorm.DB, olderThan time.Time, now time.Time) (int64, error)
	ListPendingWithSession(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]SessionBooking, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]SessionBooking, error)
}
