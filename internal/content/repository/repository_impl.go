package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/frostclub/internal/content/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, c *domain.Content) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO content (id, slug, title, body, content_type, content_url, thumbnail_url, required_tier, published_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.Slug,
		c.Title,
		c.Body,
		c.ContentType,
		c.ContentURL,
		c.ThumbnailURL,
		c.RequiredTier,
		c.PublishedAt,
		c.CreatedAt,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM content WHERE id = ?`, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Content, error) {
	return r.find(ctx, db, "id = ?", id)
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Content, error) {
	return r.find(ctx, db, "slug = ?", slug)
}

func (r *repo) find(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Content, error) {
	var c domain.Content
	if err := db.WithContext(ctx).Model(&domain.Content{}).Where(where, arg).Limit(1).Find(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, limit int) ([]domain.Content, error) {
	var items []domain.Content
	err := db.WithContext(ctx).Model(&domain.Content{}).
		Order("published_at desc, id desc").
		Limit(limit).
		Find(&items).Error
	return items, err
}
