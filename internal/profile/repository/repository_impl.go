package repository

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/frostclub/internal/profile/domain"
	"gorm.io/gorm"
)

const profileColumns = `id, auth_user_id, email, full_name, tier, is_admin, stripe_customer_id, membership_session_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, p *domain.Profile) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (email) DO NOTHING`,
		p.ID,
		p.AuthUserID,
		p.Email,
		p.FullName,
		p.Tier,
		p.IsAdmin,
		p.StripeCustomerID,
		p.MembershipSessionAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Profile, error) {
	return r.findOne(ctx, db, "email = ?", email)
}

func (r *repo) FindByAuthUserID(ctx context.Context, db *gorm.DB, authUserID string) (*domain.Profile, error) {
	return r.findOne(ctx, db, "auth_user_id = ?", authUserID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Profile, error) {
	var p domain.Profile
	err := db.WithContext(ctx).Raw(
		`SELECT `+profileColumns+` FROM profiles WHERE `+where+` LIMIT 1`,
		arg,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) LinkAuthUser(ctx context.Context, db *gorm.DB, id string, authUserID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE profiles SET auth_user_id = ?, updated_at = ?
		 WHERE id = ? AND auth_user_id IS NULL`,
		authUserID,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateMembership(ctx context.Context, db *gorm.DB, id string, tier string, customerID *string, sessionCreated time.Time, now time.Time) (bool, error) {
	if sessionCreated.IsZero() {
		res := db.WithContext(ctx).Exec(
			`UPDATE profiles
			 SET tier = ?, stripe_customer_id = COALESCE(?, stripe_customer_id), updated_at = ?
			 WHERE id = ?`,
			tier,
			customerID,
			now,
			id,
		)
		if res.Error != nil {
			return false, res.Error
		}
		return res.RowsAffected > 0, nil
	}

	sessionCreated = sessionCreated.UTC()
	res := db.WithContext(ctx).Exec(
		`UPDATE profiles
		 SET tier = ?, stripe_customer_id = COALESCE(?, stripe_customer_id), membership_session_at = ?, updated_at = ?
		 WHERE id = ? AND (membership_session_at IS NULL OR membership_session_at <= ?)`,
		tier,
		customerID,
		sessionCreated,
		now,
		id,
		sessionCreated,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetStripeCustomerID(ctx context.Context, db *gorm.DB, id string, customerID string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE profiles SET stripe_customer_id = ?, updated_at = ? WHERE id = ?`,
		customerID,
		now,
		id,
	).Error
}

func (r *repo) UpdateAdmin(ctx context.Context, db *gorm.DB, p *domain.Profile) error {
	if p == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE profiles SET tier = ?, is_admin = ?, updated_at = ? WHERE id = ?`,
		p.Tier,
		p.IsAdmin,
		p.UpdatedAt,
		p.ID,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Profile, error) {
	var items []domain.Profile
	stmt := db.WithContext(ctx).Model(&domain.Profile{})

	if email := strings.TrimSpace(filter.Email); email != "" {
		stmt = stmt.Where("email LIKE ?", "%"+strings.ToLower(email)+"%")
	}
	if tier := strings.TrimSpace(filter.Tier); tier != "" {
		stmt = stmt.Where("tier = ?", tier)
	}
	if filter.IsAdmin != nil {
		stmt = stmt.Where("is_admin = ?", *filter.IsAdmin)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt.UTC(),
			filter.Cursor.CreatedAt.UTC(),
			filter.Cursor.ID,
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
