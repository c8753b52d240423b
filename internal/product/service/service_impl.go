package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/frostclub/internal/audit/domain"
	"github.com/smallbiznis/frostclub/internal/clock"
	"github.com/smallbiznis/frostclub/internal/config"
	"github.com/smallbiznis/frostclub/internal/product/domain"
	"github.com/smallbiznis/frostclub/internal/tier"
	"github.com/smallbiznis/frostclub/pkg/db"
	"github.com/smallbiznis/frostclub/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Store    *config.StoreConfigHolder
	Clock    clock.Clock         `optional:"true"`
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	genID    *snowflake.Node
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
		log:      p.Log.Named("product.service"),
		repo:     p.Repo,
		genID:    p.GenID,
		store:    p.Store,
		clock:    clk,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) ListVisible(ctx context.Context, viewerTier string, category string) ([]domain.Product, error) {
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{Category: normalizeCategory(category)})
	if err != nil {
		return nil, err
	}

	visible := make([]domain.Product, 0, len(items))
	for _, item := range items {
		if tier.Visible(viewerTier, item.TierVisibility) {
			visible = append(visible, item)
		}
	}
	return visible, nil
}

func (s *Service) Get(ctx context.Context, idOrSlug string, viewerTier string) (*domain.Product, error) {
	key := strings.TrimSpace(idOrSlug)
	if key == "" {
		return nil, domain.ErrInvalidID
	}

	var (
		item *domain.Product
		err  error
	)
	if id, parseErr := snowflake.ParseString(key); parseErr == nil {
		item, err = s.repo.FindByID(ctx, s.db, id)
	} else {
		item, err = s.repo.FindBySlug(ctx, s.db, strings.ToLower(key))
	}
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	if !tier.Visible(viewerTier, item.TierVisibility) {
		return nil, domain.ErrNotVisible
	}
	return item, nil
}

func (s *Service) Lookup(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]domain.Product, error) {
	items, err := s.repo.FindByIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[snowflake.ID]domain.Product, len(items))
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.Price < 0 {
		return nil, domain.ErrInvalidPrice
	}
	category := normalizeCategory(req.Category)
	if category == "" {
		return nil, domain.ErrInvalidCategory
	}
	visibility, err := normalizeVisibility(req.TierVisibility)
	if err != nil {
		return nil, err
	}

	productSlug := slug.Make(strings.TrimSpace(req.Slug))
	if productSlug == "" {
		productSlug = slug.Make(name)
	}

	inStock := true
	if req.InStock != nil {
		inStock = *req.InStock
	}

	now := s.clock.Now()
	p := &domain.Product{
		ID:             s.genID.Generate(),
		Slug:           productSlug,
		Name:           name,
		Description:    trimOptional(req.Description),
		Price:          req.Price,
		Currency:       s.store.Get().ResolveCurrency(req.Currency),
		Category:       category,
		ImageURL:       trimOptional(req.ImageURL),
		TierVisibility: visibility,
		InStock:        inStock,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, p); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlugTaken
		}
		return nil, err
	}

	s.audit(ctx, "product.created", p.ID, map[string]any{"slug": p.Slug, "price": p.Price})
	return p, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateRequest) (*domain.Product, error) {
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		item.Name = name
	}
	if req.Description != nil {
		item.Description = trimOptional(req.Description)
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return nil, domain.ErrInvalidPrice
		}
		item.Price = *req.Price
	}
	if req.Category != nil {
		category := normalizeCategory(*req.Category)
		if category == "" {
			return nil, domain.ErrInvalidCategory
		}
		item.Category = category
	}
	if req.ImageURL != nil {
		item.ImageURL = trimOptional(req.ImageURL)
	}
	if req.TierVisibility != nil {
		visibility, err := normalizeVisibility(*req.TierVisibility)
		if err != nil {
			return nil, err
		}
		item.TierVisibility = visibility
	}
	if req.InStock != nil {
		item.InStock = *req.InStock
	}

	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return nil, err
	}

	s.audit(ctx, "product.updated", item.ID, map[string]any{"price": item.Price, "in_stock": item.InStock})
	return item, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	productID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.ErrInvalidID
	}
	deleted, err := s.repo.Delete(ctx, s.db, productID)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	s.audit(ctx, "product.deleted", productID, nil)
	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	cursor, err := pagination.DecodeCursor(strings.TrimSpace(req.PageToken))
	if err != nil {
		return domain.ListResponse{}, domain.ErrInvalidPageToken
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		Category: normalizeCategory(req.Category),
		InStock:  req.InStock,
		Cursor:   cursor,
		Limit:    limit,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	page, info := pagination.Page(items, limit, func(p domain.Product) pagination.Cursor {
		return pagination.Cursor{ID: p.ID.String(), CreatedAt: p.CreatedAt}
	})
	if page == nil {
		page = []domain.Product{}
	}
	return domain.ListResponse{PageInfo: info, Products: page}, nil
}

func (s *Service) find(ctx context.Context, id string) (*domain.Product, error) {
	productID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	item, err := s.repo.FindByID(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) audit(ctx context.Context, action string, id snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := id.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "product", &targetID, metadata); err != nil {
		s.log.Warn("audit product change failed", zap.String("action", action), zap.Error(err))
	}
}

func normalizeCategory(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func normalizeVisibility(raw []string) (datatypes.JSONSlice[string], error) {
	out := make(datatypes.JSONSlice[string], 0, len(raw))
	seen := map[string]struct{}{}
	for _, t := range raw {
		id := tier.Normalize(t)
		if id == "" {
			continue
		}
		if !tier.Valid(id) {
			return nil, domain.ErrInvalidTier
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
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
