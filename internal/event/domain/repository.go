package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	StartsAfter *time.Time
	Limit       int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, e *Event) error
	Update(ctx context.Context, db *gorm.DB, e *Event) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Event, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Event, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Event, error)
	// ReserveSeats advances registered_count only while it stays within capacity.
	ReserveSeats(ctx context.Context, db *gorm.DB, id snowflake.ID, quantity int, now time.Time) (bool, error)

	InsertRegistration(ctx context.Context, db *gorm.DB, r *Registration) error
	HasActiveRegistration(ctx context.Context, db *gorm.DB, eventID snowflake.ID, userID string) (bool, error)
	FindRegistrationByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Registration, error)
	FindRegistrationBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*Registration, error)
	AttachSession(ctx context.Context, db *gorm.DB, id snowflake.ID, sessionID string, now time.Time) (bool, error)
	UpdateRegistrationStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to RegistrationStatus, now time.Time) (bool, error)
	ListRegistrationsByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]Registration, error)
	ExpirePending(ctx context.Context, db *gorm.DB, olderThan time.Time, now time.Time) (int64, error)
	ListPendingWithSession(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]Registration, error)
}
