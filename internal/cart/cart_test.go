package cart

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultRules = Rules{ShippingThreshold: 5000, ShippingCharge: 999}

func assertConsistent(t *testing.T, c *Cart) {
	t.Helper()
	var count int
	var total int64
	for _, item := range c.Items {
		count += item.Quantity
		total += item.UnitPrice * int64(item.Quantity)
	}
	assert.Equal(t, count, c.ItemCount())
	assert.Equal(t, total, c.Subtotal())
}

func TestCartMutationsKeepDerivedTotals(t *testing.T) {
	c := New("owner-1")
	c.Add(Item{ProductID: 1, Name: "Tee", UnitPrice: 1000}, 2)
	assertConsistent(t, c)
	c.Add(Item{ProductID: 2, Name: "Pin", UnitPrice: 500}, 1)
	assertConsistent(t, c)
	c.Add(Item{ProductID: 1, Name: "Tee", UnitPrice: 1000}, 1)
	assertConsistent(t, c)
	require.Len(t, c.Items, 2)
	assert.Equal(t, 3, c.Items[0].Quantity)

	assert.True(t, c.UpdateQuantity(1, 5))
	assertConsistent(t, c)
	assert.True(t, c.Remove(2))
	assertConsistent(t, c)
	assert.False(t, c.Remove(2))

	c.Clear()
	assertConsistent(t, c)
	assert.Equal(t, 0, c.ItemCount())
	assert.Equal(t, int64(0), c.Subtotal())
}

func TestUpdateQuantityToZeroRemoves(t *testing.T) {
	for _, qty := range []int{0, -1} {
		a := New("owner")
		a.Add(Item{ProductID: 1, UnitPrice: 1000}, 2)
		a.Add(Item{ProductID: 2, UnitPrice: 500}, 1)
		b := New("owner")
		b.Add(Item{ProductID: 1, UnitPrice: 1000}, 2)
		b.Add(Item{ProductID: 2, UnitPrice: 500}, 1)

		assert.True(t, a.UpdateQuantity(2, qty))
		assert.True(t, b.Remove(2))
		assert.Equal(t, b.Items, a.Items)
	}
}

func TestPriceScenario(t *testing.T) {
	c := New("owner")
	c.Add(Item{ProductID: 1, UnitPrice: 1000}, 2)
	c.Add(Item{ProductID: 2, UnitPrice: 500}, 1)

	totals := Price(c.Subtotal(), defaultRules)
	assert.Equal(t, Totals{Subtotal: 2500, Shipping: 999, Total: 3499}, totals)
}

func TestPriceShippingBoundaries(t *testing.T) {
	assert.Equal(t, Totals{}, Price(0, defaultRules))
	assert.Equal(t, int64(999), Price(4999, defaultRules).Shipping)
	assert.Equal(t, int64(0), Price(5000, defaultRules).Shipping)
	assert.Equal(t, int64(7500), Price(7500, defaultRules).Total)
}

func TestMemoryStoreIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	empty, err := store.Load(ctx, "owner")
	require.NoError(t, err)
	assert.True(t, empty.Empty())

	c := New("owner")
	c.Add(Item{ProductID: snowflake.ID(9), UnitPrice: 100}, 1)
	require.NoError(t, store.Save(ctx, c))

	c.Add(Item{ProductID: snowflake.ID(10), UnitPrice: 100}, 1)
	loaded, err := store.Load(ctx, "owner")
	require.NoError(t, err)
	assert.Len(t, loaded.Items, 1)

	require.NoError(t, store.Delete(ctx, "owner"))
	loaded, err = store.Load(ctx, "owner")
	require.NoError(t, err)
	assert.True(t, loaded.Empty())
}

func TestNewStoreWithoutRedisIsMemory(t *testing.T) {
	_, ok := NewStore(nil).(*MemoryStore)
	assert.True(t, ok)
	assert.Equal(t, "cart:abc", redisKey("abc"))
}
