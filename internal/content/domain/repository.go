package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, c *Content) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Content, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Content, error)
	List(ctx context.Context, db *gorm.DB, limit int) ([]Content, error)
}
