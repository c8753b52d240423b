package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/frostclub/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).
		Model(&domain.EventRecord{}).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, event_type, payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, provider string, providerEventID string, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?
		 WHERE provider = ? AND provider_event_id = ? AND processed_at IS NULL`,
		processedAt,
		provider,
		providerEventID,
	).Error
}

func (r *repo) EventStats(ctx context.Context, db *gorm.DB, provider string) (domain.EventStats, error) {
	var stats domain.EventStats
	base := db.WithContext(ctx).Model(&domain.EventRecord{}).Where("provider = ?", provider)

	if err := base.Session(&gorm.Session{}).Count(&stats.Received).Error; err != nil {
		return stats, err
	}
	if err := base.Session(&gorm.Session{}).Where("processed_at IS NOT NULL").Count(&stats.Processed).Error; err != nil {
		return stats, err
	}
	stats.Pending = stats.Received - stats.Processed

	var latest domain.EventRecord
	if err := base.Session(&gorm.Session{}).Order("received_at DESC, id DESC").Limit(1).Find(&latest).Error; err != nil {
		return stats, err
	}
	if latest.ID != 0 {
		stats.Latest = &latest
	}
	return stats, nil
}

func (r *repo) InsertMarker(ctx context.Context, db *gorm.DB, marker *domain.Reconciliation) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_reconciliations (
			id, session_id, purchase_type, source, status, result, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO NOTHING`,
		marker.ID,
		marker.SessionID,
		marker.PurchaseType,
		marker.Source,
		marker.Status,
		marker.Result,
		marker.ReceivedAt,
		marker.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindMarker(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Reconciliation, error) {
	var item domain.Reconciliation
	err := db.WithContext(ctx).
		Model(&domain.Reconciliation{}).
		Where("session_id = ?", sessionID).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkMarkerProcessed(ctx context.Context, db *gorm.DB, sessionID string, result []byte, processedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_reconciliations
		 SET status = ?, result = ?, processed_at = ?
		 WHERE session_id = ? AND status = ?`,
		domain.ReconciliationProcessed,
		string(result),
		processedAt,
		sessionID,
		domain.ReconciliationReceived,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
