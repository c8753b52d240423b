package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolveCurrencyFallsBackToDefault(t *testing.T) {
	cfg := DefaultStoreConfig()

	assert.Equal(t, "eur", cfg.ResolveCurrency("EUR"))
	assert.Equal(t, "usd", cfg.ResolveCurrency("jpy"))
	assert.Equal(t, "usd", cfg.ResolveCurrency(""))
	assert.Equal(t, "cad", cfg.ResolveCurrency("  cad "))
}

func TestNewStoreConfigHolderUsesDefaultsWithoutFile(t *testing.T) {
	holder, err := NewStoreConfigHolder(Config{}, zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, int64(5000), cfg.ShippingThreshold)
	assert.Equal(t, int64(999), cfg.ShippingCharge)
	assert.Equal(t, "usd", cfg.DefaultCurrency)
}

func TestNewStoreConfigHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.yaml")
	content := []byte(`store:
  currencies: [usd, eur]
  defaultCurrency: eur
  shippingThreshold: 7500
  shippingCharge: 1299
  sessions:
    - durationMinutes: 45
      price: 20000
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewStoreConfigHolder(Config{StoreConfigFile: path}, zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, "eur", cfg.DefaultCurrency)
	assert.Equal(t, int64(7500), cfg.ShippingThreshold)
	assert.Equal(t, int64(1299), cfg.ShippingCharge)
	price, currency, ok := cfg.SessionPriceIn(45, "eur")
	require.True(t, ok)
	assert.Equal(t, int64(20000), price)
	assert.Equal(t, "eur", currency)
	assert.Equal(t, "eur", cfg.ResolveCurrency("gbp"))
}

func TestNewStoreConfigHolderRejectsUnknownDefaultCurrency(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.yaml")
	content := []byte(`store:
  currencies: [usd]
  defaultCurrency: eur
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err := NewStoreConfigHolder(Config{StoreConfigFile: path}, zap.NewNop())
	require.Error(t, err)
}

func TestPriceInUsesConfiguredCurrencyAmount(t *testing.T) {
	cfg := DefaultStoreConfig()
	cfg.Sessions[0].Prices = map[string]int64{"eur": 14000}

	amount, currency, ok := cfg.SessionPriceIn(30, "EUR")
	require.True(t, ok)
	assert.Equal(t, int64(14000), amount)
	assert.Equal(t, "eur", currency)

	amount, currency, ok = cfg.SessionPriceIn(60, "eur")
	require.True(t, ok)
	assert.Equal(t, int64(25000), amount)
	assert.Equal(t, "usd", currency)

	_, _, ok = cfg.SessionPriceIn(45, "usd")
	assert.False(t, ok)

	amount, currency = cfg.PriceIn(999, nil, "gbp")
	assert.Equal(t, int64(999), amount)
	assert.Equal(t, "usd", currency)
}

func TestNewStoreConfigHolderReadsCurrencyPrices(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.yaml")
	content := []byte(`store:
  currencies: [usd, eur]
  defaultCurrency: usd
  tiers:
    - id: frost_fan
      monthlyPrice: 999
      prices:
        eur: 899
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewStoreConfigHolder(Config{StoreConfigFile: path}, zap.NewNop())
	require.NoError(t, err)

	fan, ok := holder.Get().TierPrice("frost_fan")
	require.True(t, ok)
	assert.Equal(t, int64(899), fan.Prices["eur"])
}

func TestNewStoreConfigHolderRejectsPriceInUnknownCurrency(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.yaml")
	content := []byte(`store:
  currencies: [usd]
  defaultCurrency: usd
  sessions:
    - durationMinutes: 30
      price: 15000
      prices:
        jpy: 2000
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err := NewStoreConfigHolder(Config{StoreConfigFile: path}, zap.NewNop())
	require.Error(t, err)
}
