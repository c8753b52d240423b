package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/frostclub/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	Category string
	InStock  *bool
	Cursor   *pagination.Cursor
	Limit    int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, p *Product) error
	Update(ctx context.Context, db *gorm.DB, p *Product) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Product, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Product, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Product, error)
}
