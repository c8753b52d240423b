package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/frostclub/internal/booking/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, b *domain.SessionBooking) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO session_bookings (id, user_id, email, session_date, duration_minutes, notes, price, currency, status, stripe_session_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID,
		b.UserID,
		b.Email,
		b.SessionDate,
		b.DurationMinutes,
		b.Notes,
		b.Price,
		b.Currency,
		b.Status,
		b.StripeSessionID,
		b.CreatedAt,
		b.UpdatedAt,
	).Error
}

func (r *repo) SlotTaken(ctx context.Context, db *gorm.DB, sessionDate time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.SessionBooking{}).
		Where("session_date = ? AND status IN ?", sessionDate, []domain.Status{domain.StatusPending, domain.StatusConfirmed}).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.SessionBooking, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*domain.SessionBooking, error) {
	return r.findOne(ctx, db, "stripe_session_id = ?", sessionID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.SessionBooking, error) {
	var b domain.SessionBooking
	if err := db.WithContext(ctx).Model(&domain.SessionBooking{}).Where(where, arg).Limit(1).Find(&b).Error; err != nil {
		return nil, err
	}
	if b.ID == 0 {
		return nil, nil
	}
	return &b, nil
}

func (r *repo) AttachSession(ctx context.Context, db *gorm.DB, id snowflake.ID, sessionID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE session_bookings SET stripe_session_id = ?, updated_at = ?
		 WHERE id = ? AND stripe_session_id IS NULL`,
		sessionID,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE session_bookings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		now,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ExpirePending(ctx context.Context, db *gorm.DB, olderThan time.Time, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE session_bookings SET status = ?, updated_at = ? WHERE status = ? AND created_at < ?`,
		domain.StatusAbandoned,
		now,
		domain.StatusPending,
		olderThan,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ListPendingWithSession(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]domain.SessionBooking, error) {
	var items []domain.SessionBooking
	err := db.WithContext(ctx).Model(&domain.SessionBooking{}).
		Where("status = ? AND stripe_session_id IS NOT NULL AND created_at < ?", domain.StatusPending, olderThan).
		Order("created_at asc").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.SessionBooking, error) {
	var items []domain.SessionBooking
	stmt := db.WithContext(ctx).Model(&domain.SessionBooking{})

	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		stmt = stmt.Where("user_id = ?", userID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		stmt = stmt.Where("session_date >= ?", filter.From.UTC())
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt.UTC(),
			filter.Cursor.CreatedAt.UTC(),
			filter.Cursor.Int64ID(),
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
