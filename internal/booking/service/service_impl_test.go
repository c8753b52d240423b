package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/frostclub/internal/booking/domain"
	"github.com/smallbiznis/frostclub/internal/booking/repository"
	"github.com/smallbiznis/frostclub/internal/booking/service"
	"github.com/smallbiznis/frostclub/internal/clock"
	"github.com/smallbiznis/frostclub/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	clk := clock.NewFakeClock(now)
	return service.New(service.Params{
		DB:    testdb.Open(t),
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clk,
	}), clk
}

func request(at time.Time) domain.CreatePendingRequest {
	return domain.CreatePendingRequest{
		UserID:          "2f0c2d8a-3b1e-4d0b-8f2f-5c1f8e2b7a10",
		Email:           "fan@example.com",
		SessionDate:     at,
		DurationMinutes: 30,
		Notes:           " say hi ",
		Price:           15000,
		Currency:        "usd",
	}
}

func TestCreatePendingRejectsPastAndTakenSlots(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	slot := now.Add(48 * time.Hour)

	b, err := svc.CreatePending(ctx, request(slot))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, b.Status)
	require.NotNil(t, b.Notes)
	assert.Equal(t, "say hi", *b.Notes)

	_, err = svc.CreatePending(ctx, request(slot))
	assert.ErrorIs(t, err, domain.ErrSlotTaken)

	_, err = svc.CreatePending(ctx, request(now.Add(-time.Minute)))
	assert.ErrorIs(t, err, domain.ErrSessionInPast)

	bad := request(slot.Add(time.Hour))
	bad.DurationMinutes = 0
	_, err = svc.CreatePending(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidDuration)
}

func TestCancelledSlotCanBeRebooked(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	slot := now.Add(24 * time.Hour)

	b, err := svc.CreatePending(ctx, request(slot))
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, b.ID.String(), "cancelled")
	require.NoError(t, err)

	_, err = svc.CreatePending(ctx, request(slot))
	assert.NoError(t, err)
}

func TestConfirmIsConditional(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	b, err := svc.CreatePending(ctx, request(now.Add(72*time.Hour)))
	require.NoError(t, err)
	require.NoError(t, svc.AttachSession(ctx, b.ID.String(), "cs_booking"))

	confirmed, changed, err := svc.Confirm(ctx, b.ID.String())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusConfirmed, confirmed.Status)

	_, changed, err = svc.Confirm(ctx, b.ID.String())
	require.NoError(t, err)
	assert.False(t, changed)

	bySession, err := svc.GetBySessionID(ctx, "cs_booking")
	require.NoError(t, err)
	assert.Equal(t, b.ID, bySession.ID)

	_, err = svc.UpdateStatus(ctx, b.ID.String(), "abandoned")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	done, err := svc.UpdateStatus(ctx, b.ID.String(), "completed")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
}

func TestExpirePendingBookings(t *testing.T) {
	svc, clk := newService(t)
	ctx := context.Background()

	b, err := svc.CreatePending(ctx, request(now.Add(96*time.Hour)))
	require.NoError(t, err)
	clk.Advance(25 * time.Hour)

	n, err := svc.ExpirePending(ctx, clk.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := svc.Get(ctx, b.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAbandoned, got.Status)

	mine, err := svc.ListByUser(ctx, b.UserID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestConfirmRevivesAbandonedBooking(t *testing.T) {
	svc, clk := newService(t)
	ctx := context.Background()

	b, err := svc.CreatePending(ctx, request(now.Add(96*time.Hour)))
	require.NoError(t, err)
	clk.Advance(25 * time.Hour)
	_, err = svc.ExpirePending(ctx, clk.Now().Add(-24*time.Hour))
	require.NoError(t, err)

	revived, changed, err := svc.Confirm(ctx, b.ID.String())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusConfirmed, revived.Status)
}

func TestConfirmAbandonedBookingWhenSlotWasRebooked(t *testing.T) {
	svc, clk := newService(t)
	ctx := context.Background()
	slot := now.Add(96 * time.Hour)

	first, err := svc.CreatePending(ctx, request(slot))
	require.NoError(t, err)
	clk.Advance(25 * time.Hour)
	_, err = svc.ExpirePending(ctx, clk.Now().Add(-24*time.Hour))
	require.NoError(t, err)

	second, err := svc.CreatePending(ctx, request(slot))
	require.NoError(t, err)

	_, _, err = svc.Confirm(ctx, first.ID.String())
	assert.ErrorIs(t, err, domain.ErrSlotTaken)

	got, err := svc.Get(ctx, first.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAbandoned, got.Status)

	got, err = svc.Get(ctx, second.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}
