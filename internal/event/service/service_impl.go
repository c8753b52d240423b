package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/frostclub/internal/audit/domain"
	"github.com/smallbiznis/frostclub/internal/clock"
	"github.com/smallbiznis/frostclub/internal/config"
	"github.com/smallbiznis/frostclub/internal/event/domain"
	"github.com/smallbiznis/frostclub/internal/tier"
	"github.com/smallbiznis/frostclub/pkg/db"
	"github.com/smallbiznis/frostclub/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Tiers    *tier.Catalog
	Store    *config.StoreConfigHolder
	Clock    clock.Clock         `optional:"true"`
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	tiers    *tier.Catalog
	store    *config.StoreConfigHolder
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
		log:      p.Log.Named("event.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		tiers:    p.Tiers,
		store:    p.Store,
		clock:    clk,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) List(ctx context.Context, upcomingOnly bool, viewerTier string) ([]domain.View, error) {
	filter := domain.ListFilter{Limit: pagination.MaxPageSize}
	if upcomingOnly {
		now := s.clock.Now()
		filter.StartsAfter = &now
	}
	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	views := make([]domain.View, 0, len(items))
	for _, item := range items {
		views = append(views, s.view(item, viewerTier))
	}
	return views, nil
}

func (s *Service) Get(ctx context.Context, idOrSlug string, viewerTier string) (*domain.View, error) {
	e, err := s.find(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	v := s.view(*e, viewerTier)
	return &v, nil
}

func (s *Service) view(e domain.Event, viewerTier string) domain.View {
	return domain.View{
		Event:       e,
		Remaining:   e.Remaining(),
		Locked:      !tier.Allows(viewerTier, e.RequiredTier),
		MemberPrice: s.tiers.EventPrice(e.Price, viewerTier),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Event, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, domain.ErrInvalidTitle
	}
	if req.StartsAt.IsZero() {
		return nil, domain.ErrInvalidStartsAt
	}
	if req.Capacity <= 0 {
		return nil, domain.ErrInvalidCapacity
	}
	if req.Price < 0 {
		return nil, domain.ErrInvalidPrice
	}
	required := tier.Normalize(req.RequiredTier)
	if required != tier.None && !tier.Valid(required) {
		return nil, domain.ErrInvalidTier
	}

	eventSlug := slug.Make(strings.TrimSpace(req.Slug))
	if eventSlug == "" {
		eventSlug = slug.Make(title)
	}

	now := s.clock.Now()
	e := &domain.Event{
		ID:           s.genID.Generate(),
		Slug:         eventSlug,
		Title:        title,
		Description:  trimOptional(req.Description),
		Venue:        trimOptional(req.Venue),
		StartsAt:     req.StartsAt.UTC(),
		RequiredTier: required,
		Capacity:     req.Capacity,
		Price:        req.Price,
		Currency:     s.store.Get().ResolveCurrency(req.Currency),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, e); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlugTaken
		}
		return nil, err
	}
	s.audit(ctx, "event.created", e.ID.String(), map[string]any{"capacity": e.Capacity, "price": e.Price})
	return e, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateRequest) (*domain.Event, error) {
	eventID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	e, err := s.repo.FindByID(ctx, s.db, eventID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, domain.ErrNotFound
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, domain.ErrInvalidTitle
		}
		e.Title = title
	}
	if req.Description != nil {
		e.Description = trimOptional(req.Description)
	}
	if req.Venue != nil {
		e.Venue = trimOptional(req.Venue)
	}
	if req.StartsAt != nil {
		if req.StartsAt.IsZero() {
			return nil, domain.ErrInvalidStartsAt
		}
		e.StartsAt = req.StartsAt.UTC()
	}
	if req.RequiredTier != nil {
		required := tier.Normalize(*req.RequiredTier)
		if required != tier.None && !tier.Valid(required) {
			return nil, domain.ErrInvalidTier
		}
		e.RequiredTier = required
	}
	if req.Capacity != nil {
		if *req.Capacity <= 0 || *req.Capacity < e.RegisteredCount {
			return nil, domain.ErrInvalidCapacity
		}
		e.Capacity = *req.Capacity
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return nil, domain.ErrInvalidPrice
		}
		e.Price = *req.Price
	}

	e.UpdatedAt = s.clock.Now()
	updated, err := s.repo.Update(ctx, s.db, e)
	if err != nil {
		return nil, err
	}
	if !updated {
		// Seats were sold between the read and the write.
		return nil, domain.ErrInvalidCapacity
	}
	s.audit(ctx, "event.updated", e.ID.String(), map[string]any{"capacity": e.Capacity, "price": e.Price})
	return s.repo.FindByID(ctx, s.db, eventID)
}

func (s *Service) CreatePendingRegistration(ctx context.Context, req domain.CreateRegistrationRequest) (*domain.Registration, error) {
	if req.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	eventID, err := parseID(req.EventID)
	if err != nil {
		return nil, err
	}
	e, err := s.repo.FindByID(ctx, s.db, eventID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, domain.ErrNotFound
	}

	now := s.clock.Now()
	if !e.StartsAt.After(now) {
		return nil, domain.ErrEventStarted
	}
	if e.RegisteredCount+req.Quantity > e.Capacity {
		return nil, domain.ErrEventFull
	}
	active, err := s.repo.HasActiveRegistration(ctx, s.db, e.ID, req.UserID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, domain.ErrAlreadyRegistered
	}

	reg := &domain.Registration{
		ID:        s.genID.Generate(),
		EventID:   e.ID,
		UserID:    req.UserID,
		Email:     req.Email,
		Quantity:  req.Quantity,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Status:    domain.RegistrationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertRegistration(ctx, s.db, reg); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAlreadyRegistered
		}
		return nil, err
	}
	return reg, nil
}

func (s *Service) AttachSession(ctx context.Context, registrationID string, sessionID string) error {
	id, err := parseID(registrationID)
	if err != nil {
		return err
	}
	attached, err := s.repo.AttachSession(ctx, s.db, id, strings.TrimSpace(sessionID), s.clock.Now())
	if err != nil {
		return err
	}
	if !attached {
		return domain.ErrSessionAttached
	}
	return nil
}

func (s *Service) ConfirmRegistration(ctx context.Context, registrationID string) (*domain.Registration, domain.ConfirmOutcome, error) {
	id, err := parseID(registrationID)
	if err != nil {
		return nil, "", err
	}

	outcome := domain.OutcomeUnchanged
	reason := "capacity_exhausted"
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reg, err := s.repo.FindRegistrationByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if reg == nil {
			return domain.ErrRegistrationNotFound
		}

		now := s.clock.Now()
		claimed, err := s.repo.UpdateRegistrationStatus(ctx, tx, id, domain.RegistrationPending, domain.RegistrationConfirmed, now)
		if err != nil {
			return err
		}
		if !claimed && reg.Status == domain.RegistrationAbandoned {
			// Paid after the sweep. A newer active registration keeps its
			// place and this one waits.
			active, err := s.repo.HasActiveRegistration(ctx, tx, reg.EventID, reg.UserID)
			if err != nil {
				return err
			}
			if active {
				moved, err := s.repo.UpdateRegistrationStatus(ctx, tx, id, domain.RegistrationAbandoned, domain.RegistrationWaitlisted, now)
				if err != nil {
					return err
				}
				if moved {
					outcome, reason = domain.OutcomeWaitlisted, "superseded_by_active_registration"
				}
				return nil
			}
			claimed, err = s.repo.UpdateRegistrationStatus(ctx, tx, id, domain.RegistrationAbandoned, domain.RegistrationConfirmed, now)
			if err != nil {
				return err
			}
		}
		if !claimed {
			return nil
		}

		reserved, err := s.repo.ReserveSeats(ctx, tx, reg.EventID, reg.Quantity, now)
		if err != nil {
			return err
		}
		if reserved {
			outcome = domain.OutcomeConfirmed
			return nil
		}

		if _, err := s.repo.UpdateRegistrationStatus(ctx, tx, id, domain.RegistrationConfirmed, domain.RegistrationWaitlisted, now); err != nil {
			return err
		}
		outcome = domain.OutcomeWaitlisted
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	reg, err := s.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, "", err
	}
	if outcome == domain.OutcomeWaitlisted {
		s.log.Warn("paid registration waitlisted",
			zap.String("registration_id", reg.ID.String()),
			zap.String("event_id", reg.EventID.String()),
			zap.String("reason", reason),
		)
		s.audit(ctx, "event.registration_waitlisted", reg.ID.String(), map[string]any{
			"event_id": reg.EventID.String(),
			"quantity": reg.Quantity,
			"reason":   reason,
		})
	}
	return reg, outcome, nil
}

func (s *Service) GetRegistration(ctx context.Context, id string) (*domain.Registration, error) {
	regID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	reg, err := s.repo.FindRegistrationByID(ctx, s.db, regID)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, domain.ErrRegistrationNotFound
	}
	return reg, nil
}

func (s *Service) GetRegistrationBySessionID(ctx context.Context, sessionID string) (*domain.Registration, error) {
	reg, err := s.repo.FindRegistrationBySessionID(ctx, s.db, strings.TrimSpace(sessionID))
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, domain.ErrRegistrationNotFound
	}
	return reg, nil
}

func (s *Service) ListRegistrationsByUser(ctx context.Context, userID string) ([]domain.Registration, error) {
	return s.repo.ListRegistrationsByUser(ctx, s.db, userID, pagination.MaxPageSize)
}

func (s *Service) ExpirePending(ctx context.Context, olderThan time.Time) (int64, error) {
	return s.repo.ExpirePending(ctx, s.db, olderThan.UTC(), s.clock.Now())
}

func (s *Service) ListPendingWithSession(ctx context.Context, olderThan time.Time, limit int) ([]domain.Registration, error) {
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}
	return s.repo.ListPendingWithSession(ctx, s.db, olderThan.UTC(), limit)
}

func (s *Service) find(ctx context.Context, idOrSlug string) (*domain.Event, error) {
	key := strings.TrimSpace(idOrSlug)
	if key == "" {
		return nil, domain.ErrInvalidID
	}
	var (
		e   *domain.Event
		err error
	)
	if id, parseErr := snowflake.ParseString(key); parseErr == nil {
		e, err = s.repo.FindByID(ctx, s.db, id)
	} else {
		e, err = s.repo.FindBySlug(ctx, s.db, strings.ToLower(key))
	}
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (s *Service) audit(ctx context.Context, action string, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "event", &targetID, metadata); err != nil {
		s.log.Warn("audit event change failed", zap.String("action", action), zap.Error(err))
	}
}

func parseID(id string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return 0, domain.ErrInvalidID
	}
	return parsed, nil
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
