package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/frostclub/internal/event/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, e *domain.Event) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO events (id, slug, title, description, venue, starts_at, required_tier, capacity, registered_count, price, currency, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Slug,
		e.Title,
		e.Description,
		e.Venue,
		e.StartsAt,
		e.RequiredTier,
		e.Capacity,
		e.RegisteredCount,
		e.Price,
		e.Currency,
		e.CreatedAt,
		e.UpdatedAt,
	).Error
}

// Update never lowers capacity under the seats already sold.
func (r *repo) Update(ctx context.Context, db *gorm.DB, e *domain.Event) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE events
		 SET title = ?, description = ?, venue = ?, starts_at = ?, required_tier = ?, capacity = ?, price = ?, updated_at = ?
		 WHERE id = ? AND registered_count <= ?`,
		e.Title,
		e.Description,
		e.Venue,
		e.StartsAt,
		e.RequiredTier,
		e.Capacity,
		e.Price,
		e.UpdatedAt,
		e.ID,
		e.Capacity,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Event, error) {
	var e domain.Event
	if err := db.WithContext(ctx).Model(&domain.Event{}).Where("id = ?", id).Limit(1).Find(&e).Error; err != nil {
		return nil, err
	}
	if e.ID == 0 {
		return nil, nil
	}
	return &e, nil
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Event, error) {
	var e domain.Event
	if err := db.WithContext(ctx).Model(&domain.Event{}).Where("slug = ?", slug).Limit(1).Find(&e).Error; err != nil {
		return nil, err
	}
	if e.ID == 0 {
		return nil, nil
	}
	return &e, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Event, error) {
	var items []domain.Event
	stmt := db.WithContext(ctx).Model(&domain.Event{})
	if filter.StartsAfter != nil {
		stmt = stmt.Where("starts_at > ?", filter.StartsAfter.UTC())
	}
	stmt = stmt.Order("starts_at asc, id asc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ReserveSeats(ctx context.Context, db *gorm.DB, id snowflake.ID, quantity int, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE events SET registered_count = registered_count + ?, updated_at = ?
		 WHERE id = ? AND registered_count + ? <= capacity`,
		quantity,
		now,
		id,
		quantity,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertRegistration(ctx context.Context, db *gorm.DB, reg *domain.Registration) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO event_registrations (id, event_id, user_id, email, quantity, amount, currency, status, stripe_session_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reg.ID,
		reg.EventID,
		reg.UserID,
		reg.Email,
		reg.Quantity,
		reg.Amount,
		reg.Currency,
		reg.Status,
		reg.StripeSessionID,
		reg.CreatedAt,
		reg.UpdatedAt,
	).Error
}

func (r *repo) HasActiveRegistration(ctx context.Context, db *gorm.DB, eventID snowflake.ID, userID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.Registration{}).
		Where("event_id = ? AND user_id = ? AND status IN ?", eventID, userID,
			[]domain.RegistrationStatus{domain.RegistrationPending, domain.RegistrationConfirmed}).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) FindRegistrationByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Registration, error) {
	return r.findRegistration(ctx, db, "id = ?", id)
}

func (r *repo) FindRegistrationBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Registration, error) {
	return r.findRegistration(ctx, db, "stripe_session_id = ?", sessionID)
}

func (r *repo) findRegistration(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Registration, error) {
	var reg domain.Registration
	if err := db.WithContext(ctx).Model(&domain.Registration{}).Where(where, arg).Limit(1).Find(&reg).Error; err != nil {
		return nil, err
	}
	if reg.ID == 0 {
		return nil, nil
	}
	return &reg, nil
}

func (r *repo) AttachSession(ctx context.Context, db *gorm.DB, id snowflake.ID, sessionID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE event_registrations SET stripe_session_id = ?, updated_at = ?
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

func (r *repo) UpdateRegistrationStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.RegistrationStatus, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE event_registrations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
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

func (r *repo) ListRegistrationsByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Registration, error) {
	var items []domain.Registration
	err := db.WithContext(ctx).Model(&domain.Registration{}).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *repo) ExpirePending(ctx context.Context, db *gorm.DB, olderThan time.Time, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE event_registrations SET status = ?, updated_at = ? WHERE status = ? AND created_at < ?`,
		domain.RegistrationAbandoned,
		now,
		domain.RegistrationPending,
		olderThan,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ListPendingWithSession(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]domain.Registration, error) {
	var items []domain.Registration
	err := db.WithContext(ctx).Model(&domain.Registration{}).
		Where("status = ? AND stripe_session_id IS NOT NULL AND created_at < ?", domain.RegistrationPending, olderThan).
		Order("created_at asc").
		Limit(limit).
		Find(&items).Error
	return items, err
}
