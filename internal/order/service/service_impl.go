package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/frostclub/internal/audit/domain"
	"github.com/smallbiznis/frostclub/internal/clock"
	"github.com/smallbiznis/frostclub/internal/order/domain"
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
		log:      p.Log.Named("order.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    clk,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) CreatePending(ctx context.Context, req domain.CreatePendingRequest) (*domain.Order, error) {
	if len(req.Items) == 0 || strings.TrimSpace(req.UserID) == "" {
		return nil, domain.ErrInvalidItems
	}
	var subtotal int64
	for _, item := range req.Items {
		if item.Quantity <= 0 || item.UnitPrice < 0 {
			return nil, domain.ErrInvalidItems
		}
		subtotal += item.Amount()
	}
	if subtotal != req.Subtotal || req.Subtotal+req.Shipping != req.Total {
		return nil, domain.ErrInvalidItems
	}

	now := s.clock.Now()
	o := &domain.Order{
		ID:        s.genID.Generate(),
		UserID:    req.UserID,
		Email:     req.Email,
		Items:     datatypes.JSONSlice[domain.LineItem](req.Items),
		Subtotal:  req.Subtotal,
		Shipping:  req.Shipping,
		Total:     req.Total,
		Currency:  req.Currency,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) AttachSession(ctx context.Context, id string, sessionID string) error {
	orderID, err := parseID(id)
	if err != nil {
		return err
	}
	attached, err := s.repo.AttachSession(ctx, s.db, orderID, strings.TrimSpace(sessionID), s.clock.Now())
	if err != nil {
		return err
	}
	if !attached {
		return domain.ErrSessionAttached
	}
	return nil
}

func (s *Service) Transition(ctx context.Context, id string, from, to domain.Status) error {
	orderID, err := parseID(id)
	if err != nil {
		return err
	}
	if !domain.CanTransition(from, to) {
		return domain.ErrInvalidTransition
	}
	changed, err := s.repo.UpdateStatus(ctx, s.db, orderID, from, to, s.clock.Now())
	if err != nil {
		return err
	}
	if !changed {
		return domain.ErrStatusConflict
	}
	return nil
}

func (s *Service) MarkProcessing(ctx context.Context, id string, paymentIntentID string) (*domain.Order, bool, error) {
	orderID, err := parseID(id)
	if err != nil {
		return nil, false, err
	}

	before, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, false, err
	}
	if before == nil {
		return nil, false, domain.ErrNotFound
	}

	var pi *string
	if trimmed := strings.TrimSpace(paymentIntentID); trimmed != "" {
		pi = &trimmed
	}
	changed, err := s.repo.MarkProcessing(ctx, s.db, orderID, pi, s.clock.Now())
	if err != nil {
		return nil, false, err
	}

	o, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, false, err
	}
	if o == nil {
		return nil, false, domain.ErrNotFound
	}
	switch {
	case !changed:
		s.log.Debug("order already past pending", zap.String("order_id", o.ID.String()), zap.String("status", string(o.Status)))
	case before.Status == domain.StatusAbandoned:
		s.log.Warn("payment arrived for abandoned order, order revived", zap.String("order_id", o.ID.String()))
	}
	return o, changed, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	orderID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, domain.ErrNotFound
	}
	return o, nil
}

func (s *Service) GetBySessionID(ctx context.Context, sessionID string) (*domain.Order, error) {
	o, err := s.repo.FindBySessionID(ctx, s.db, strings.TrimSpace(sessionID))
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, domain.ErrNotFound
	}
	return o, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{UserID: userID, Limit: pagination.MaxPageSize})
	if err != nil {
		return nil, err
	}
	if len(items) > pagination.MaxPageSize {
		items = items[:pagination.MaxPageSize]
	}
	return items, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	cursor, err := pagination.DecodeCursor(strings.TrimSpace(req.PageToken))
	if err != nil {
		return domain.ListResponse{}, domain.ErrInvalidPageToken
	}

	var status domain.Status
	if raw := strings.TrimSpace(req.Status); raw != "" {
		parsed, ok := domain.ParseStatus(raw)
		if !ok {
			return domain.ListResponse{}, domain.ErrInvalidStatus
		}
		status = parsed
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		UserID: req.UserID,
		Status: status,
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	page, info := pagination.Page(items, limit, func(o domain.Order) pagination.Cursor {
		return pagination.Cursor{ID: o.ID.String(), CreatedAt: o.CreatedAt}
	})
	if page == nil {
		page = []domain.Order{}
	}
	return domain.ListResponse{PageInfo: info, Orders: page}, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id string, to string) (*domain.Order, error) {
	next, ok := domain.ParseStatus(strings.TrimSpace(to))
	if !ok {
		return nil, domain.ErrInvalidStatus
	}
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := o.Status
	if err := s.Transition(ctx, id, from, next); err != nil {
		return nil, err
	}

	if s.auditSvc != nil {
		targetID := o.ID.String()
		if err := s.auditSvc.AuditLog(ctx, "", nil, "order.status_updated", "order", &targetID, map[string]any{
			"from": string(from),
			"to":   string(next),
		}); err != nil {
			s.log.Warn("audit order status failed", zap.Error(err))
		}
	}
	return s.Get(ctx, id)
}

func (s *Service) ExpirePending(ctx context.Context, olderThan time.Time) (int64, error) {
	return s.repo.ExpirePending(ctx, s.db, olderThan.UTC(), s.clock.Now())
}

func (s *Service) ListPendingWithSession(ctx context.Context, olderThan time.Time, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}
	return s.repo.ListPendingWithSession(ctx, s.db, olderThan.UTC(), limit)
}

func parseID(id string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return 0, domain.ErrInvalidID
	}
	return parsed, nil
}
