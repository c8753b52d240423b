package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	authdomain "github.com/smallbiznis/frostclub/internal/auth/domain"
	"github.com/smallbiznis/frostclub/internal/clock"
	"github.com/smallbiznis/frostclub/internal/profile/domain"
	"github.com/smallbiznis/frostclub/internal/profile/repository"
	"github.com/smallbiznis/frostclub/internal/profile/service"
	"github.com/smallbiznis/frostclub/internal/testdb"
	"github.com/smallbiznis/frostclub/internal/tier"
	"github.com/smallbiznis/frostclub/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	db := testdb.Open(t)
	svc := service.New(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)),
	})
	return svc, db
}

func TestNormalizeEmail(t *testing.T) {
	email, err := domain.NormalizeEmail("  A@B.com ")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", email)

	for _, bad := range []string{"", "ab.com", "@b.com", "a@b", "a@.com", "a@b.", "a b@c.com"} {
		_, err := domain.NormalizeEmail(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidEmail, bad)
	}
}

func TestEnsureByEmailIsIdempotent(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	first, created, err := svc.EnsureByEmail(ctx, "Fan@Example.com")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := svc.EnsureByEmail(ctx, "fan@example.com")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), testdb.Count(t, db, "SELECT COUNT(1) FROM profiles"))
}

func TestEnsureByEmailConcurrentCallersConverge(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, _, err := svc.EnsureByEmail(ctx, "race@example.com")
			if err == nil {
				ids[i] = p.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, int64(1), testdb.Count(t, db, "SELECT COUNT(1) FROM profiles"))
}

func TestApplyMembershipSetsTierAndCustomer(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	p, created, err := svc.ApplyMembership(ctx, "a@b.com", "blizzard_vip", "cus_123", time.Time{})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, tier.BlizzardVIP, p.Tier)
	require.NotNil(t, p.StripeCustomerID)
	assert.Equal(t, "cus_123", *p.StripeCustomerID)

	// Re-applying without a customer keeps the stored one.
	p, created, err = svc.ApplyMembership(ctx, "a@b.com", "frost_fan", "", time.Time{})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, tier.FrostFan, p.Tier)
	assert.Equal(t, "cus_123", *p.StripeCustomerID)

	_, _, err = svc.ApplyMembership(ctx, "a@b.com", "gold", "", time.Time{})
	assert.ErrorIs(t, err, domain.ErrInvalidTier)
}

func TestApplyMembershipIgnoresOlderSession(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	first := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	second := first.Add(10 * time.Minute)

	p, _, err := svc.ApplyMembership(ctx, "a@b.com", "avalanche_backstage", "cus_1", second)
	require.NoError(t, err)
	assert.Equal(t, tier.AvalancheBackstage, p.Tier)
	require.NotNil(t, p.MembershipSessionAt)
	assert.True(t, second.Equal(*p.MembershipSessionAt))

	_, _, err = svc.ApplyMembership(ctx, "a@b.com", "frost_fan", "cus_1", first)
	assert.ErrorIs(t, err, domain.ErrStaleMembership)
	assert.Equal(t, int64(1), testdb.Count(t, db, "SELECT COUNT(1) FROM profiles WHERE tier = ?", tier.AvalancheBackstage))

	// A session created in the same second still applies.
	p, _, err = svc.ApplyMembership(ctx, "a@b.com", "blizzard_vip", "", second)
	require.NoError(t, err)
	assert.Equal(t, tier.BlizzardVIP, p.Tier)

	// Unstamped changes do not move the marker.
	p, _, err = svc.ApplyMembership(ctx, "a@b.com", "frost_fan", "", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, tier.FrostFan, p.Tier)
	_, _, err = svc.ApplyMembership(ctx, "a@b.com", "blizzard_vip", "", first)
	assert.ErrorIs(t, err, domain.ErrStaleMembership)
}

func TestResolveAuthenticatedLinksExistingProfile(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	pre, _, err := svc.ApplyMembership(ctx, "member@example.com", "frost_fan", "cus_1", time.Time{})
	require.NoError(t, err)
	assert.Nil(t, pre.AuthUserID)

	p, err := svc.ResolveAuthenticated(ctx, authdomain.Principal{Subject: "auth-1", Email: "member@example.com"})
	require.NoError(t, err)
	assert.Equal(t, pre.ID, p.ID)
	require.NotNil(t, p.AuthUserID)
	assert.Equal(t, "auth-1", *p.AuthUserID)

	again, err := svc.ResolveAuthenticated(ctx, authdomain.Principal{Subject: "auth-1", Email: "member@example.com"})
	require.NoError(t, err)
	assert.Equal(t, pre.ID, again.ID)

	_, err = svc.ResolveAuthenticated(ctx, authdomain.Principal{Subject: "auth-2", Email: "member@example.com"})
	assert.ErrorIs(t, err, authdomain.ErrUnauthenticated)
}

func TestResolveAuthenticatedCreatesProfile(t *testing.T) {
	svc, _ := newService(t)

	p, err := svc.ResolveAuthenticated(context.Background(), authdomain.Principal{Subject: "auth-9", Email: "new@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", p.Email)
	assert.Equal(t, tier.None, p.Tier)
	require.NotNil(t, p.AuthUserID)
}

func TestUpdateAdminAndList(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	p, _, err := svc.EnsureByEmail(ctx, "staff@example.com")
	require.NoError(t, err)
	_, _, err = svc.EnsureByEmail(ctx, "fan@example.com")
	require.NoError(t, err)

	admin := true
	next := "avalanche_backstage"
	updated, err := svc.UpdateAdmin(ctx, p.ID, domain.UpdateAdminRequest{Tier: &next, IsAdmin: &admin})
	require.NoError(t, err)
	assert.True(t, updated.IsAdmin)
	assert.Equal(t, tier.AvalancheBackstage, updated.Tier)

	bad := "gold"
	_, err = svc.UpdateAdmin(ctx, p.ID, domain.UpdateAdminRequest{Tier: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidTier)

	resp, err := svc.List(ctx, domain.ListProfileRequest{IsAdmin: &admin})
	require.NoError(t, err)
	require.Len(t, resp.Profiles, 1)
	assert.Equal(t, p.ID, resp.Profiles[0].ID)

	all, err := svc.List(ctx, domain.ListProfileRequest{Pagination: pagination.Pagination{PageSize: 1}})
	require.NoError(t, err)
	assert.Len(t, all.Profiles, 1)
	assert.True(t, all.HasMore)

	_, err = svc.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}
