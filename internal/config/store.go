package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// StoreConfig holds pricing rules that operators tune without a redeploy.
// All amounts are minor currency units.
type StoreConfig struct {
	Currencies        []string       `mapstructure:"currencies"`
	DefaultCurrency   string         `mapstructure:"defaultCurrency"`
	ShippingThreshold int64          `mapstructure:"shippingThreshold"`
	ShippingCharge    int64          `mapstructure:"shippingCharge"`
	Sessions          []SessionPrice `mapstructure:"sessions"`
	Tiers             []TierPrice    `mapstructure:"tiers"`
}

// SessionPrice is charged in the default currency unless Prices carries an
// amount for the buyer's currency.
type SessionPrice struct {
	DurationMinutes int              `mapstructure:"durationMinutes"`
	Price           int64            `mapstructure:"price"`
	Prices          map[string]int64 `mapstructure:"prices"`
}

// TierPrice follows the same currency rule as SessionPrice.
type TierPrice struct {
	ID                   string           `mapstructure:"id"`
	MonthlyPrice         int64            `mapstructure:"monthlyPrice"`
	Prices               map[string]int64 `mapstructure:"prices"`
	EventDiscountPercent int              `mapstructure:"eventDiscountPercent"`
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Currencies:        []string{"usd", "eur", "gbp", "cad"},
		DefaultCurrency:   "usd",
		ShippingThreshold: 5000,
		ShippingCharge:    999,
		Sessions: []SessionPrice{
			{DurationMinutes: 30, Price: 15000},
			{DurationMinutes: 60, Price: 25000},
		},
		Tiers: []TierPrice{
			{ID: "frost_fan", MonthlyPrice: 999, EventDiscountPercent: 0},
			{ID: "blizzard_vip", MonthlyPrice: 2499, EventDiscountPercent: 10},
			{ID: "avalanche_backstage", MonthlyPrice: 4999, EventDiscountPercent: 20},
		},
	}
}

// ResolveCurrency returns the normalized currency when allowed, otherwise the default.
func (c StoreConfig) ResolveCurrency(raw string) string {
	currency := strings.ToLower(strings.TrimSpace(raw))
	for _, allowed := range c.Currencies {
		if currency != "" && strings.EqualFold(allowed, currency) {
			return currency
		}
	}
	return strings.ToLower(c.DefaultCurrency)
}

// SessionPriceIn returns the price for durationMinutes and the currency it is
// denominated in: currency when an amount is configured for it, otherwise the
// default currency.
func (c StoreConfig) SessionPriceIn(durationMinutes int, currency string) (int64, string, bool) {
	for _, s := range c.Sessions {
		if s.DurationMinutes == durationMinutes {
			amount, in := c.PriceIn(s.Price, s.Prices, currency)
			return amount, in, true
		}
	}
	return 0, "", false
}

// PriceIn picks the amount configured for currency, falling back to base in
// the default currency.
func (c StoreConfig) PriceIn(base int64, prices map[string]int64, currency string) (int64, string) {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if amount, ok := prices[currency]; ok && amount > 0 {
		return amount, currency
	}
	return base, strings.ToLower(c.DefaultCurrency)
}

func (c StoreConfig) TierPrice(tierID string) (TierPrice, bool) {
	for _, t := range c.Tiers {
		if t.ID == tierID {
			return t, true
		}
	}
	return TierPrice{}, false
}

type StoreConfigHolder struct {
	current atomic.Value // holds StoreConfig
}

// NewStaticStoreConfig wraps a fixed configuration without file watching.
func NewStaticStoreConfig(cfg StoreConfig) *StoreConfigHolder {
	holder := &StoreConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// NewStoreConfigHolder reads store.yaml and keeps watching it. Invalid edits
// are logged and the previous configuration stays active.
func NewStoreConfigHolder(cfg Config, log *zap.Logger) (*StoreConfigHolder, error) {
	log = log.Named("config.store")
	v := viper.New()

	if cfg.StoreConfigFile != "" {
		v.SetConfigFile(cfg.StoreConfigFile)
	} else {
		v.SetConfigName("store")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/frostclub")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read store config: %w", err)
		}
		return NewStaticStoreConfig(DefaultStoreConfig()), nil
	}

	parsed, err := unmarshalStoreConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticStoreConfig(parsed)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalStoreConfig(v)
		if err != nil {
			log.Warn("invalid store config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("store config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *StoreConfigHolder) Get() StoreConfig {
	return h.current.Load().(StoreConfig)
}

func unmarshalStoreConfig(v *viper.Viper) (StoreConfig, error) {
	var cfg StoreConfig
	if err := v.UnmarshalKey("store", &cfg); err != nil {
		return StoreConfig{}, err
	}
	cfg = cfg.withDefaults()
	if err := validateStoreConfig(cfg); err != nil {
		return StoreConfig{}, err
	}
	return cfg, nil
}

func (c StoreConfig) withDefaults() StoreConfig {
	defaults := DefaultStoreConfig()
	if len(c.Currencies) == 0 {
		c.Currencies = defaults.Currencies
	}
	if strings.TrimSpace(c.DefaultCurrency) == "" {
		c.DefaultCurrency = defaults.DefaultCurrency
	}
	if c.ShippingThreshold == 0 {
		c.ShippingThreshold = defaults.ShippingThreshold
	}
	if c.ShippingCharge == 0 {
		c.ShippingCharge = defaults.ShippingCharge
	}
	if len(c.Sessions) == 0 {
		c.Sessions = defaults.Sessions
	}
	if len(c.Tiers) == 0 {
		c.Tiers = defaults.Tiers
	}
	return c
}

func validateStoreConfig(cfg StoreConfig) error {
	found := false
	for _, c := range cfg.Currencies {
		if strings.EqualFold(c, cfg.DefaultCurrency) {
			found = true
			break
		}
	}
	if !found {
		return errors.New("store.defaultCurrency must be one of store.currencies")
	}
	if cfg.ShippingThreshold < 0 || cfg.ShippingCharge < 0 {
		return errors.New("store shipping amounts must not be negative")
	}
	for _, t := range cfg.Tiers {
		if t.EventDiscountPercent < 0 || t.EventDiscountPercent > 100 {
			return fmt.Errorf("store.tiers[%s].eventDiscountPercent out of range", t.ID)
		}
		if err := validatePrices(cfg, t.Prices); err != nil {
			return fmt.Errorf("store.tiers[%s].prices: %w", t.ID, err)
		}
	}
	for _, s := range cfg.Sessions {
		if err := validatePrices(cfg, s.Prices); err != nil {
			return fmt.Errorf("store.sessions[%d].prices: %w", s.DurationMinutes, err)
		}
	}
	return nil
}

func validatePrices(cfg StoreConfig, prices map[string]int64) error {
	for currency, amount := range prices {
		if !slices.ContainsFunc(cfg.Currencies, func(c string) bool { return strings.EqualFold(c, currency) }) {
			return fmt.Errorf("currency %q is not allowed", currency)
		}
		if amount <= 0 {
			return fmt.Errorf("amount for %q must be positive", currency)
		}
	}
	return nil
}
