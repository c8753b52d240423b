package domain

import (
	"context"
	"errors"
	"time"
)

type CreateRequest struct {
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	Body         *string    `json:"body"`
	ContentType  string     `json:"content_type"`
	ContentURL   *string    `json:"content_url"`
	ThumbnailURL *string    `json:"thumbnail_url"`
	RequiredTier string     `json:"required_tier"`
	PublishedAt  *time.Time `json:"published_at"`
}

type Service interface {
	// ListVisible lists every published entry; gated entries are marked locked.
	ListVisible(ctx context.Context, viewerTier string) ([]Item, error)
	Get(ctx context.Context, idOrSlug string, viewerTier string) (*Content, error)

	Create(ctx context.Context, req CreateRequest) (*Content, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Content, error)
}

var (
	ErrInvalidID    = errors.New("invalid_id")
	ErrInvalidTitle = errors.New("invalid_title")
	ErrInvalidType  = errors.New("invalid_content_type")
	ErrInvalidTier  = errors.New("invalid_tier")
	ErrNotFound     = errors.New("content_not_found")
	ErrLocked       = errors.New("content_requires_tier")
	ErrSlugTaken    = errors.New("slug_taken")
)
