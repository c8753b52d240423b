package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/frostclub/internal/audit/domain"
	auditrepo "github.com/smallbiznis/frostclub/internal/audit/repository"
	auditservice "github.com/smallbiznis/frostclub/internal/audit/service"
	"github.com/smallbiznis/frostclub/internal/clock"
	obscontext "github.com/smallbiznis/frostclub/internal/observability/context"
	"github.com/smallbiznis/frostclub/internal/testdb"
	"github.com/smallbiznis/frostclub/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := auditservice.NewService(auditservice.Params{
		DB:    testdb.Open(t),
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
		Clock: clk,
	})
	return svc, clk
}

func TestAuditLogUsesContextActorAndMasksEmail(t *testing.T) {
	svc, _ := newService(t)
	ctx := obscontext.WithActor(context.Background(), "admin", "profile-1")
	ctx = obscontext.WithClient(ctx, "10.0.0.1", "test-agent")
	ctx = obscontext.WithRequestID(ctx, "req-1")

	target := "42"
	require.NoError(t, svc.AuditLog(ctx, "", nil, "order.status_updated", "order", &target, map[string]any{
		"email": "buyer@example.com",
		"to":    "completed",
	}))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "admin", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "profile-1", *entry.ActorID)
	assert.Equal(t, "b****@example.com", entry.Metadata["email"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	require.NotNil(t, entry.IPAddress)
	assert.Equal(t, "10.0.0.1", *entry.IPAddress)
}

func TestAuditLogRejectsEmptyAction(t *testing.T) {
	svc, _ := newService(t)
	err := svc.AuditLog(context.Background(), "system", nil, " ", "order", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, clk := newService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AuditLog(ctx, "system", nil, "scheduler.sweep", "order", nil, nil))
		clk.Advance(time.Minute)
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.True(t, first.AuditLogs[0].CreatedAt.After(first.AuditLogs[1].CreatedAt))

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)

	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageToken: "bogus"}})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
