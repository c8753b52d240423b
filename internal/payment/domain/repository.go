package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// InsertEvent reports false when the provider event was already recorded.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, provider string, providerEventID string, processedAt time.Time) error
	EventStats(ctx context.Context, db *gorm.DB, provider string) (EventStats, error)

	// InsertMarker reports false when the session already has a marker.
	InsertMarker(ctx context.Context, db *gorm.DB, marker *Reconciliation) (bool, error)
	FindMarker(ctx context.Context, db *gorm.DB, sessionID string) (*Reconciliation, error)
	MarkMarkerProcessed(ctx context.Context, db *gorm.DB, sessionID string, result []byte, processedAt time.Time) (bool, error)
}
