package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/frostclub/internal/audit/domain"
	authdomain "github.com/smallbiznis/frostclub/internal/auth/domain"
	"github.com/smallbiznis/frostclub/internal/clock"
	"github.com/smallbiznis/frostclub/internal/profile/domain"
	"github.com/smallbiznis/frostclub/internal/tier"
	"github.com/smallbiznis/frostclub/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	Clock    clock.Clock         `optional:"true"`
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	clock    clock.Clock
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("profile.service"),
		repo:     p.Repo,
		clock:    clk,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrInvalidID
	}
	p, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.FindByEmail(ctx, s.db, normalized)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (s *Service) ResolveAuthenticated(ctx context.Context, principal authdomain.Principal) (*domain.Profile, error) {
	subject := strings.TrimSpace(principal.Subject)
	if subject == "" {
		return nil, authdomain.ErrUnauthenticated
	}

	p, err := s.repo.FindByAuthUserID(ctx, s.db, subject)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}

	p, created, err := s.ensure(ctx, principal.Email, &subject)
	if err != nil {
		return nil, err
	}
	if created {
		return p, nil
	}

	if p.AuthUserID == nil {
		linked, err := s.repo.LinkAuthUser(ctx, s.db, p.ID, subject, s.clock.Now())
		if err != nil {
			return nil, err
		}
		if linked {
			s.log.Info("linked profile to auth identity", zap.String("profile_id", p.ID))
			p.AuthUserID = &subject
			return p, nil
		}
		// Lost a race against another request linking the same identity.
		return s.reload(ctx, p.ID)
	}

	if *p.AuthUserID != subject {
		s.log.Warn("email already linked to another identity", zap.String("profile_id", p.ID))
		return nil, authdomain.ErrUnauthenticated
	}
	return p, nil
}

func (s *Service) EnsureByEmail(ctx context.Context, email string) (*domain.Profile, bool, error) {
	return s.ensure(ctx, email, nil)
}

// ensure inserts with ON CONFLICT DO NOTHING and re-selects, so two concurrent
// callers converge on the same row.
func (s *Service) ensure(ctx context.Context, email string, authUserID *string) (*domain.Profile, bool, error) {
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.repo.FindByEmail(ctx, s.db, normalized)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	now := s.clock.Now()
	p := &domain.Profile{
		ID:         uuid.NewString(),
		AuthUserID: authUserID,
		Email:      normalized,
		Tier:       tier.None,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	created, err := s.repo.InsertIfAbsent(ctx, s.db, p)
	if err != nil {
		return nil, false, err
	}
	if created {
		return p, true, nil
	}

	existing, err = s.repo.FindByEmail(ctx, s.db, normalized)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, errors.New("profile insert conflicted but row not found")
	}
	return existing, false, nil
}

func (s *Service) ApplyMembership(ctx context.Context, email string, tierID string, customerID string, sessionCreated time.Time) (*domain.Profile, bool, error) {
	tierID = tier.Normalize(tierID)
	if !tier.Valid(tierID) {
		return nil, false, domain.ErrInvalidTier
	}

	p, created, err := s.EnsureByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}

	var customer *string
	if trimmed := strings.TrimSpace(customerID); trimmed != "" {
		customer = &trimmed
	}
	applied, err := s.repo.UpdateMembership(ctx, s.db, p.ID, tierID, customer, sessionCreated, s.clock.Now())
	if err != nil {
		return nil, false, err
	}
	if !applied {
		s.log.Warn("older membership session ignored",
			zap.String("profile_id", p.ID),
			zap.String("tier", tierID),
			zap.Time("session_created", sessionCreated),
		)
		return nil, false, domain.ErrStaleMembership
	}

	updated, err := s.reload(ctx, p.ID)
	if err != nil {
		return nil, false, err
	}
	return updated, created, nil
}

func (s *Service) SetStripeCustomerID(ctx context.Context, id string, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil
	}
	return s.repo.SetStripeCustomerID(ctx, s.db, id, customerID, s.clock.Now())
}

func (s *Service) List(ctx context.Context, req domain.ListProfileRequest) (domain.ListProfileResponse, error) {
	cursor, err := pagination.DecodeCursor(strings.TrimSpace(req.PageToken))
	if err != nil {
		return domain.ListProfileResponse{}, domain.ErrInvalidPageToken
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		Email:   req.Email,
		Tier:    tier.Normalize(req.Tier),
		IsAdmin: req.IsAdmin,
		Cursor:  cursor,
		Limit:   limit,
	})
	if err != nil {
		return domain.ListProfileResponse{}, err
	}

	page, info := pagination.Page(items, limit, func(p domain.Profile) pagination.Cursor {
		return pagination.Cursor{ID: p.ID, CreatedAt: p.CreatedAt}
	})
	if page == nil {
		page = []domain.Profile{}
	}
	return domain.ListProfileResponse{PageInfo: info, Profiles: page}, nil
}

func (s *Service) UpdateAdmin(ctx context.Context, id string, req domain.UpdateAdminRequest) (*domain.Profile, error) {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{}
	if req.Tier != nil {
		next := tier.Normalize(*req.Tier)
		if next != tier.None && !tier.Valid(next) {
			return nil, domain.ErrInvalidTier
		}
		metadata["tier_from"] = p.Tier
		metadata["tier_to"] = next
		p.Tier = next
	}
	if req.IsAdmin != nil {
		metadata["is_admin"] = *req.IsAdmin
		p.IsAdmin = *req.IsAdmin
	}

	p.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateAdmin(ctx, s.db, p); err != nil {
		return nil, err
	}

	if s.auditSvc != nil {
		targetID := p.ID
		if err := s.auditSvc.AuditLog(ctx, "", nil, "profile.admin_updated", "profile", &targetID, metadata); err != nil {
			s.log.Warn("audit profile update failed", zap.Error(err))
		}
	}
	return p, nil
}

func (s *Service) reload(ctx context.Context, id string) (*domain.Profile, error) {
	p, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}
