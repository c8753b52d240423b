// Package tier holds the membership tier catalog and the gating rules built on it.
package tier

import (
	"errors"
	"strings"

	"github.com/smallbiznis/frostclub/internal/config"
)

const (
	None               = ""
	FrostFan           = "frost_fan"
	BlizzardVIP        = "blizzard_vip"
	AvalancheBackstage = "avalanche_backstage"
)

var ErrInvalidTier = errors.New("invalid_tier")

type Tier struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Rank         int    `json:"rank"`
	MonthlyPrice int64  `json:"monthly_price"`
	// Currency denominates MonthlyPrice; Prices holds amounts for other currencies.
	Currency             string           `json:"currency"`
	Prices               map[string]int64 `json:"prices,omitempty"`
	EventDiscountPercent int              `json:"event_discount_percent"`
	Perks                []string         `json:"perks"`
}

var definitions = []Tier{
	{ID: FrostFan, Name: "Frost Fan", Rank: 1, Perks: []string{"Members newsletter", "Fan-only content drops"}},
	{ID: BlizzardVIP, Name: "Blizzard VIP", Rank: 2, Perks: []string{"Early ticket access", "VIP merch", "Event discount"}},
	{ID: AvalancheBackstage, Name: "Avalanche Backstage", Rank: 3, Perks: []string{"Backstage content", "Meet and greet", "Largest event discount"}},
}

// Normalize lowercases and trims a tier id. Unknown ids stay as given.
func Normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Rank returns 0 for no tier and for unknown ids.
func Rank(id string) int {
	id = Normalize(id)
	for _, t := range definitions {
		if t.ID == id {
			return t.Rank
		}
	}
	return 0
}

func Valid(id string) bool {
	return Rank(id) > 0
}

// Allows reports whether a member holding have may access something requiring required.
func Allows(have, required string) bool {
	need := Rank(required)
	if need == 0 {
		return true
	}
	return Rank(have) >= need
}

// Visible is the product visibility rule: an empty list is public, otherwise
// the member's tier has to be listed.
func Visible(have string, list []string) bool {
	if len(list) == 0 {
		return true
	}
	have = Normalize(have)
	if have == None {
		return false
	}
	for _, t := range list {
		if Normalize(t) == have {
			return true
		}
	}
	return false
}

// Catalog merges the static tier definitions with configured prices.
type Catalog struct {
	store *config.StoreConfigHolder
}

func NewCatalog(store *config.StoreConfigHolder) *Catalog {
	return &Catalog{store: store}
}

func (c *Catalog) List() []Tier {
	out := make([]Tier, 0, len(definitions))
	for _, t := range definitions {
		out = append(out, c.priced(t))
	}
	return out
}

func (c *Catalog) Lookup(id string) (Tier, error) {
	id = Normalize(id)
	for _, t := range definitions {
		if t.ID == id {
			return c.priced(t), nil
		}
	}
	return Tier{}, ErrInvalidTier
}

// EventPrice applies the tier's event discount, rounding half-up in cents.
func (c *Catalog) EventPrice(base int64, have string) int64 {
	t, err := c.Lookup(have)
	if err != nil || t.EventDiscountPercent <= 0 {
		return base
	}
	discount := (base*int64(t.EventDiscountPercent) + 50) / 100
	return base - discount
}

func (c *Catalog) priced(t Tier) Tier {
	if c == nil || c.store == nil {
		return t
	}
	cfg := c.store.Get()
	t.Currency = strings.ToLower(cfg.DefaultCurrency)
	if p, ok := cfg.TierPrice(t.ID); ok {
		t.MonthlyPrice = p.MonthlyPrice
		t.Prices = p.Prices
		t.EventDiscountPercent = p.EventDiscountPercent
	}
	return t
}
