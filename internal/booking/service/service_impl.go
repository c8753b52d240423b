package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/frostclub/internal/audit/domain"
	"github.com/smallbiznis/frostclub/internal/booking/domain"
	"github.com/smallbiznis/frostclub/internal/clock"
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
		log:      p.Log.Named("booking.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    clk,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) CreatePending(ctx context.Context, req domain.CreatePendingRequest) (*domain.SessionBooking, error) {
	if req.SessionDate.IsZero() {
		return nil, domain.ErrInvalidDate
	}
	if req.DurationMinutes <= 0 {
		return nil, domain.ErrInvalidDuration
	}
	now := s.clock.Now()
	sessionDate := req.SessionDate.UTC()
	if !sessionDate.After(now) {
		return nil, domain.ErrSessionInPast
	}

	taken, err := s.repo.SlotTaken(ctx, s.db, sessionDate)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ErrSlotTaken
	}

	b := &domain.SessionBooking{
		ID:              s.genID.Generate(),
		UserID:          req.UserID,
		Email:           req.Email,
		SessionDate:     sessionDate,
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
		Currency:        req.Currency,
		Status:          domain.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		b.Notes = &notes
	}
	if err := s.repo.Insert(ctx, s.db, b); err != nil {
		// The partial unique index on active slots closes the check-then-insert window.
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlotTaken
		}
		return nil, err
	}
	return b, nil
}

func (s *Service) AttachSession(ctx context.Context, id string, sessionID string) error {
	bookingID, err := parseID(id)
	if err != nil {
		return err
	}
	attached, err := s.repo.AttachSession(ctx, s.db, bookingID, strings.TrimSpace(sessionID), s.clock.Now())
	if err != nil {
		return err
	}
	if !attached {
		return domain.ErrSessionAttached
	}
	return nil
}

func (s *Service) Confirm(ctx context.Context, id string) (*domain.SessionBooking, bool, error) {
	bookingID, err := parseID(id)
	if err != nil {
		return nil, false, err
	}
	changed, err := s.repo.UpdateStatus(ctx, s.db, bookingID, domain.StatusPending, domain.StatusConfirmed, s.clock.Now())
	if err != nil {
		return nil, false, err
	}
	b, err := s.repo.FindByID(ctx, s.db, bookingID)
	if err != nil {
		return nil, false, err
	}
	if b == nil {
		return nil, false, domain.ErrNotFound
	}
	if !changed && b.Status == domain.StatusAbandoned {
		return s.revive(ctx, b)
	}
	return b, changed, nil
}

// revive confirms a booking the sweep abandoned before its payment arrived.
// The slot may have been booked since; that returns ErrSlotTaken and leaves
// the booking abandoned.
func (s *Service) revive(ctx context.Context, b *domain.SessionBooking) (*domain.SessionBooking, bool, error) {
	taken, err := s.repo.SlotTaken(ctx, s.db, b.SessionDate)
	if err != nil {
		return nil, false, err
	}
	if taken {
		return nil, false, domain.ErrSlotTaken
	}

	changed, err := s.repo.UpdateStatus(ctx, s.db, b.ID, domain.StatusAbandoned, domain.StatusConfirmed, s.clock.Now())
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, false, domain.ErrSlotTaken
		}
		return nil, false, err
	}
	revived, err := s.repo.FindByID(ctx, s.db, b.ID)
	if err != nil {
		return nil, false, err
	}
	if revived == nil {
		return nil, false, domain.ErrNotFound
	}
	if changed {
		s.log.Warn("payment arrived for abandoned booking, booking revived", zap.String("booking_id", revived.ID.String()))
	}
	return revived, changed, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.SessionBooking, error) {
	bookingID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	b, err := s.repo.FindByID(ctx, s.db, bookingID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (s *Service) GetBySessionID(ctx context.Context, sessionID string) (*domain.SessionBooking, error) {
	b, err := s.repo.FindBySessionID(ctx, s.db, strings.TrimSpace(sessionID))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]domain.SessionBooking, error) {
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

	page, info := pagination.Page(items, limit, func(b domain.SessionBooking) pagination.Cursor {
		return pagination.Cursor{ID: b.ID.String(), CreatedAt: b.CreatedAt}
	})
	if page == nil {
		page = []domain.SessionBooking{}
	}
	return domain.ListResponse{PageInfo: info, Bookings: page}, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id string, to string) (*domain.SessionBooking, error) {
	next, ok := domain.ParseStatus(strings.TrimSpace(to))
	if !ok {
		return nil, domain.ErrInvalidStatus
	}
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(b.Status, next) {
		return nil, domain.ErrInvalidTransition
	}
	changed, err := s.repo.UpdateStatus(ctx, s.db, b.ID, b.Status, next, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domain.ErrStatusConflict
	}

	if s.auditSvc != nil {
		targetID := b.ID.String()
		if err := s.auditSvc.AuditLog(ctx, "", nil, "booking.status_updated", "session_booking", &targetID, map[string]any{
			"from": string(b.Status),
			"to":   string(next),
		}); err != nil {
			s.log.Warn("audit booking status failed", zap.Error(err))
		}
	}
	return s.Get(ctx, id)
}

func (s *Service) ExpirePending(ctx context.Context, olderThan time.Time) (int64, error) {
	return s.repo.ExpirePending(ctx, s.db, olderThan.UTC(), s.clock.Now())
}

func (s *Service) ListPendingWithSession(ctx context.Context, olderThan time.Time, limit int) ([]domain.SessionBooking, error) {
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
