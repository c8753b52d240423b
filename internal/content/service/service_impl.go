package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/frostclub/internal/audit/domain"
	"github.com/smallbiznis/frostclub/internal/clock"
	"github.com/smallbiznis/frostclub/internal/content/domain"
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
	Clock    clock.Clock         `optional:"true"`
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
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
		log:      p.Log.Named("content.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    clk,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) ListVisible(ctx context.Context, viewerTier string) ([]domain.Item, error) {
	items, err := s.repo.List(ctx, s.db, pagination.MaxPageSize)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	out := make([]domain.Item, 0, len(items))
	for _, c := range items {
		if c.PublishedAt.After(now) {
			continue
		}
		item := domain.Item{Content: c}
		if !tier.Allows(viewerTier, c.RequiredTier) {
			item.Locked = true
			item.Body = nil
			item.ContentURL = nil
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, idOrSlug string, viewerTier string) (*domain.Content, error) {
	c, err := s.find(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if c.PublishedAt.After(s.clock.Now()) {
		return nil, domain.ErrNotFound
	}
	if !tier.Allows(viewerTier, c.RequiredTier) {
		return nil, domain.ErrLocked
	}
	return c, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Content, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, domain.ErrInvalidTitle
	}
	contentType, ok := domain.ParseType(strings.ToLower(strings.TrimSpace(req.ContentType)))
	if !ok {
		return nil, domain.ErrInvalidType
	}
	required := tier.Normalize(req.RequiredTier)
	if required != tier.None && !tier.Valid(required) {
		return nil, domain.ErrInvalidTier
	}

	contentSlug := slug.Make(strings.TrimSpace(req.Slug))
	if contentSlug == "" {
		contentSlug = slug.Make(title)
	}

	now := s.clock.Now()
	published := now
	if req.PublishedAt != nil && !req.PublishedAt.IsZero() {
		published = req.PublishedAt.UTC()
	}

	c := &domain.Content{
		ID:           s.genID.Generate(),
		Slug:         contentSlug,
		Title:        title,
		Body:         trimOptional(req.Body),
		ContentType:  contentType,
		ContentURL:   trimOptional(req.ContentURL),
		ThumbnailURL: trimOptional(req.ThumbnailURL),
		RequiredTier: required,
		PublishedAt:  published,
		CreatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, c); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlugTaken
		}
		return nil, err
	}
	s.audit(ctx, "content.created", c.ID.String(), map[string]any{"required_tier": c.RequiredTier, "content_type": string(c.ContentType)})
	return c, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	contentID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || contentID == 0 {
		return domain.ErrInvalidID
	}
	deleted, err := s.repo.Delete(ctx, s.db, contentID)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	s.audit(ctx, "content.deleted", contentID.String(), nil)
	return nil
}

func (s *Service) List(ctx context.Context) ([]domain.Content, error) {
	return s.repo.List(ctx, s.db, pagination.MaxPageSize)
}

func (s *Service) find(ctx context.Context, idOrSlug string) (*domain.Content, error) {
	key := strings.TrimSpace(idOrSlug)
	if key == "" {
		return nil, domain.ErrInvalidID
	}
	var (
		c   *domain.Content
		err error
	)
	if id, parseErr := snowflake.ParseString(key); parseErr == nil {
		c, err = s.repo.FindByID(ctx, s.db, id)
	} else {
		c, err = s.repo.FindBySlug(ctx, s.db, strings.ToLower(key))
	}
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (s *Service) audit(ctx context.Context, action string, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "content", &targetID, metadata); err != nil {
		s.log.Warn("audit content change failed", zap.String("action", action), zap.Error(err))
	}
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
