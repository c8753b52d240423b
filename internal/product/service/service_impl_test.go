package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/frostclub/internal/clock"
	"github.com/smallbiznis/frostclub/internal/config"
	"github.com/smallbiznis/frostclub/internal/product/domain"
	"github.com/smallbiznis/frostclub/internal/product/repository"
	"github.com/smallbiznis/frostclub/internal/product/service"
	"github.com/smallbiznis/frostclub/internal/testdb"
	"github.com/smallbiznis/frostclub/internal/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) domain.Service {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	return service.New(service.Params{
		DB:    testdb.Open(t),
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Store: config.NewStaticStoreConfig(config.DefaultStoreConfig()),
		Clock: clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
}

func TestCreateNormalizesAndSlugs(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, domain.CreateRequest{
		Name:           "Frozen Tour Hoodie",
		Price:          4500,
		Currency:       "JPY",
		Category:       " Apparel ",
		TierVisibility: []string{"Blizzard_VIP", "blizzard_vip"},
	})
	require.NoError(t, err)
	assert.Equal(t, "frozen-tour-hoodie", p.Slug)
	assert.Equal(t, "usd", p.Currency)
	assert.Equal(t, "apparel", p.Category)
	assert.Equal(t, []string{"blizzard_vip"}, []string(p.TierVisibility))
	assert.True(t, p.InStock)

	_, err = svc.Create(ctx, domain.CreateRequest{Name: "Frozen Tour Hoodie", Price: 1, Category: "apparel"})
	assert.ErrorIs(t, err, domain.ErrSlugTaken)

	_, err = svc.Create(ctx, domain.CreateRequest{Name: "x", Price: 1, Category: "a", TierVisibility: []string{"gold"}})
	assert.ErrorIs(t, err, domain.ErrInvalidTier)
}

func TestVisibilityIsListMembership(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	public, err := svc.Create(ctx, domain.CreateRequest{Name: "Poster", Price: 1500, Category: "print"})
	require.NoError(t, err)
	vip, err := svc.Create(ctx, domain.CreateRequest{Name: "VIP Pin", Price: 900, Category: "accessories", TierVisibility: []string{tier.BlizzardVIP}})
	require.NoError(t, err)

	anon, err := svc.ListVisible(ctx, tier.None, "")
	require.NoError(t, err)
	require.Len(t, anon, 1)
	assert.Equal(t, public.ID, anon[0].ID)

	member, err := svc.ListVisible(ctx, tier.BlizzardVIP, "")
	require.NoError(t, err)
	assert.Len(t, member, 2)

	_, err = svc.Get(ctx, vip.ID.String(), tier.FrostFan)
	assert.ErrorIs(t, err, domain.ErrNotVisible)

	got, err := svc.Get(ctx, "vip-pin", tier.BlizzardVIP)
	require.NoError(t, err)
	assert.Equal(t, vip.ID, got.ID)

	_, err = svc.Get(ctx, "missing", tier.None)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateAndDelete(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, domain.CreateRequest{Name: "Mug", Price: 1200, Category: "home"})
	require.NoError(t, err)

	price := int64(1400)
	out := false
	updated, err := svc.Update(ctx, p.ID.String(), domain.UpdateRequest{Price: &price, InStock: &out})
	require.NoError(t, err)
	assert.Equal(t, int64(1400), updated.Price)
	assert.False(t, updated.InStock)

	negative := int64(-1)
	_, err = svc.Update(ctx, p.ID.String(), domain.UpdateRequest{Price: &negative})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	found, err := svc.Lookup(ctx, []snowflake.ID{p.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1400), found[p.ID].Price)

	require.NoError(t, svc.Delete(ctx, p.ID.String()))
	assert.ErrorIs(t, svc.Delete(ctx, p.ID.String()), domain.ErrNotFound)
}

func TestListPaginates(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C"} {
		_, err := svc.Create(ctx, domain.CreateRequest{Name: name, Price: 100, Category: "misc"})
		require.NoError(t, err)
	}

	first, err := svc.List(ctx, domain.ListRequest{Pagination: paginationOf(2, "")})
	require.NoError(t, err)
	assert.Len(t, first.Products, 2)
	require.True(t, first.HasMore)

	second, err := svc.List(ctx, domain.ListRequest{Pagination: paginationOf(2, first.NextPageToken)})
	require.NoError(t, err)
	assert.Len(t, second.Products, 1)
	assert.False(t, second.HasMore)
}
