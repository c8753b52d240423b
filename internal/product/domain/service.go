package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/frostclub/pkg/db/pagination"
)

type CreateRequest struct {
	Name           string   `json:"name"`
	Slug           string   `json:"slug"`
	Description    *string  `json:"description"`
	Price          int64    `json:"price"`
	Currency       string   `json:"currency"`
	Category       string   `json:"category"`
	ImageURL       *string  `json:"image_url"`
	TierVisibility []string `json:"tier_visibility"`
	InStock        *bool    `json:"in_stock"`
}

type UpdateRequest struct {
	Name           *string   `json:"name"`
	Description    *string   `json:"description"`
	Price          *int64    `json:"price"`
	Category       *string   `json:"category"`
	ImageURL       *string   `json:"image_url"`
	TierVisibility *[]string `json:"tier_visibility"`
	InStock        *bool     `json:"in_stock"`
}

type ListRequest struct {
	pagination.Pagination
	Category string `form:"category"`
	InStock  *bool  `form:"in_stock"`
}

type ListResponse struct {
	pagination.PageInfo
	Products []Product `json:"products"`
}

type Service interface {
	// ListVisible returns in-stock and out-of-stock products the viewer's tier may see.
	ListVisible(ctx context.Context, viewerTier string, category string) ([]Product, error)
	Get(ctx context.Context, idOrSlug string, viewerTier string) (*Product, error)
	// Lookup loads products by id without visibility checks; callers gate.
	Lookup(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]Product, error)

	Create(ctx context.Context, req CreateRequest) (*Product, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Product, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidPrice     = errors.New("invalid_price")
	ErrInvalidCategory  = errors.New("invalid_category")
	ErrInvalidTier      = errors.New("invalid_tier")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrNotFound         = errors.New("product_not_found")
	ErrNotVisible       = errors.New("product_requires_tier")
	ErrOutOfStock       = errors.New("product_out_of_stock")
	ErrSlugTaken        = errors.New("slug_taken")
)
