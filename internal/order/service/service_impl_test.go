package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/frostclub/internal/clock"
	"github.com/smallbiznis/frostclub/internal/order/domain"
	"github.com/smallbiznis/frostclub/internal/order/repository"
	"github.com/smallbiznis/frostclub/internal/order/service"
	"github.com/smallbiznis/frostclub/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var start = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewFakeClock(start)
	return service.New(service.Params{
		DB:    testdb.Open(t),
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clk,
	}), clk
}

func pendingRequest() domain.CreatePendingRequest {
	return domain.CreatePendingRequest{
		UserID: "8d3c1c7e-4b0a-4c59-9a0e-2b8f6f1b1a11",
		Email:  "fan@example.com",
		Items: []domain.LineItem{
			{ProductID: 1, Name: "Tee", UnitPrice: 1000, Quantity: 2},
			{ProductID: 2, Name: "Pin", UnitPrice: 500, Quantity: 1},
		},
		Subtotal: 2500,
		Shipping: 999,
		Total:    3499,
		Currency: "usd",
	}
}

func TestCreatePendingValidatesTotals(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	o, err := svc.CreatePending(ctx, pendingRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Len(t, o.Items, 2)

	bad := pendingRequest()
	bad.Total = 1
	_, err = svc.CreatePending(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidItems)

	empty := pendingRequest()
	empty.Items = nil
	_, err = svc.CreatePending(ctx, empty)
	assert.ErrorIs(t, err, domain.ErrInvalidItems)
}

func TestAttachSessionOnce(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	o, err := svc.CreatePending(ctx, pendingRequest())
	require.NoError(t, err)
	require.NoError(t, svc.AttachSession(ctx, o.ID.String(), "cs_test_1"))
	assert.ErrorIs(t, svc.AttachSession(ctx, o.ID.String(), "cs_test_2"), domain.ErrSessionAttached)

	found, err := svc.GetBySessionID(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, o.ID, found.ID)
	assert.Equal(t, []domain.LineItem(pendingRequest().Items), []domain.LineItem(found.Items))
}

func TestMarkProcessingIsConditional(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	o, err := svc.CreatePending(ctx, pendingRequest())
	require.NoError(t, err)

	updated, changed, err := svc.MarkProcessing(ctx, o.ID.String(), "pi_1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusProcessing, updated.Status)
	require.NotNil(t, updated.StripePaymentIntentID)
	assert.Equal(t, "pi_1", *updated.StripePaymentIntentID)

	again, changed, err := svc.MarkProcessing(ctx, o.ID.String(), "pi_other")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "pi_1", *again.StripePaymentIntentID)
}

func TestUpdateStatusFollowsTransitionTable(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	o, err := svc.CreatePending(ctx, pendingRequest())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, o.ID.String(), "completed")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, _, err = svc.MarkProcessing(ctx, o.ID.String(), "")
	require.NoError(t, err)

	done, err := svc.UpdateStatus(ctx, o.ID.String(), "completed")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)

	_, err = svc.UpdateStatus(ctx, o.ID.String(), "bogus")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	// A stale "from" loses against the conditional update.
	assert.ErrorIs(t, svc.Transition(ctx, o.ID.String(), domain.StatusPending, domain.StatusCancelled), domain.ErrStatusConflict)
}

func TestExpireAndPendingSweepQueries(t *testing.T) {
	svc, clk := newService(t)
	ctx := context.Background()

	stale, err := svc.CreatePending(ctx, pendingRequest())
	require.NoError(t, err)
	require.NoError(t, svc.AttachSession(ctx, stale.ID.String(), "cs_stale"))

	clk.Advance(2 * time.Hour)
	fresh, err := svc.CreatePending(ctx, pendingRequest())
	require.NoError(t, err)

	pending, err := svc.ListPendingWithSession(ctx, clk.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, stale.ID, pending[0].ID)

	n, err := svc.ExpirePending(ctx, clk.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := svc.Get(ctx, stale.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAbandoned, got.Status)

	got, err = svc.Get(ctx, fresh.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)

	mine, err := svc.ListByUser(ctx, pendingRequest().UserID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestMarkProcessingRevivesAbandonedOrder(t *testing.T) {
	svc, clk := newService(t)
	ctx := context.Background()

	o, err := svc.CreatePending(ctx, pendingRequest())
	require.NoError(t, err)
	clk.Advance(25 * time.Hour)
	n, err := svc.ExpirePending(ctx, clk.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	revived, changed, err := svc.MarkProcessing(ctx, o.ID.String(), "pi_late")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusProcessing, revived.Status)
	require.NotNil(t, revived.StripePaymentIntentID)
	assert.Equal(t, "pi_late", *revived.StripePaymentIntentID)

	cancelled, err := svc.CreatePending(ctx, pendingRequest())
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, cancelled.ID.String(), "cancelled")
	require.NoError(t, err)
	still, changed, err := svc.MarkProcessing(ctx, cancelled.ID.String(), "pi_x")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.StatusCancelled, still.Status)
}
