package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Type string

const (
	TypeVideo   Type = "video"
	TypeAudio   Type = "audio"
	TypeImage   Type = "image"
	TypeArticle Type = "article"
)

func ParseType(raw string) (Type, bool) {
	switch t := Type(raw); t {
	case TypeVideo, TypeAudio, TypeImage, TypeArticle:
		return t, true
	}
	return "", false
}

type Content struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	Slug         string       `json:"slug"`
	Title        string       `json:"title"`
	Body         *string      `json:"body,omitempty"`
	ContentType  Type         `json:"content_type"`
	ContentURL   *string      `json:"content_url,omitempty"`
	ThumbnailURL *string      `json:"thumbnail_url,omitempty"`
	RequiredTier string       `json:"required_tier"`
	PublishedAt  time.Time    `json:"published_at"`
	CreatedAt    time.Time    `json:"created_at"`
}

func (Content) TableName() string { return "content" }

// Item is a content entry as listed to a member. Locked entries carry no body or URL.
type Item struct {
	Content
	Locked bool `json:"locked"`
}
