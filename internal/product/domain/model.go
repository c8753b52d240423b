package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Product struct {
	ID             snowflake.ID                `json:"id" gorm:"primaryKey"`
	Slug           string                      `json:"slug"`
	Name           string                      `json:"name"`
	Description    *string                     `json:"description,omitempty"`
	Price          int64                       `json:"price"`
	Currency       string                      `json:"currency"`
	Category       string                      `json:"category"`
	ImageURL       *string                     `json:"image_url,omitempty"`
	TierVisibility datatypes.JSONSlice[string] `json:"tier_visibility"`
	InStock        bool                        `json:"in_stock"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

func (Product) TableName() string { return "products" }
