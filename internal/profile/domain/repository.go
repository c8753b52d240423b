package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/frostclub/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	Email   string
	Tier    string
	IsAdmin *bool
	Cursor  *pagination.Cursor
	Limit   int
}

type Repository interface {
	// InsertIfAbsent reports false when a profile with the same email already exists.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, p *Profile) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Profile, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Profile, error)
	FindByAuthUserID(ctx context.Context, db *gorm.DB, authUserID string) (*Profile, error)
	LinkAuthUser(ctx context.Context, db *gorm.DB, id string, authUserID string, now time.Time) (bool, error)
	// UpdateMembership skips the write and reports false when sessionCreated is
	// older than the session already applied. A zero sessionCreated always applies.
	UpdateMembership(ctx context.Context, db *gorm.DB, id string, tier string, customerID *string, sessionCreated time.Time, now time.Time) (bool, error)
	SetStripeCustomerID(ctx context.Context, db *gorm.DB, id string, customerID string, now time.Time) error
	UpdateAdmin(ctx context.Context, db *gorm.DB, p *Profile) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Profile, error)
}
