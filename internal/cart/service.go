package cart

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/frostclub/internal/clock"
	"github.com/smallbiznis/frostclub/internal/config"
	productdomain "github.com/smallbiznis/frostclub/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidProduct   = errors.New("invalid_product_id")
	ErrItemNotFound     = errors.New("cart_item_not_found")
	ErrCurrencyMismatch = errors.New("cart_currency_mismatch")
	ErrEmpty            = errors.New("cart_empty")
)

type View struct {
	Cart
	ItemCount int    `json:"item_count"`
	Totals    Totals `json:"totals"`
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Store    Store
	Products productdomain.Service
	Config   *config.StoreConfigHolder
	Clock    clock.Clock `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	store    Store
	products productdomain.Service
	config   *config.StoreConfigHolder
	clock    clock.Clock
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:      p.Log.Named("cart.service"),
		store:    p.Store,
		products: p.Products,
		config:   p.Config,
		clock:    clk,
	}
}

func (s *Service) Get(ctx context.Context, ownerID string) (View, error) {
	c, err := s.store.Load(ctx, ownerID)
	if err != nil {
		return View{}, err
	}
	return s.view(c), nil
}

// Load returns the raw saved cart for checkout.
func (s *Service) Load(ctx context.Context, ownerID string) (*Cart, error) {
	return s.store.Load(ctx, ownerID)
}

// AddItem snapshots the catalog price; the product must be in stock and
// visible to the owner's tier.
func (s *Service) AddItem(ctx context.Context, ownerID, viewerTier, productID string, quantity int) (View, error) {
	if quantity <= 0 {
		return View{}, ErrInvalidQuantity
	}
	product, err := s.products.Get(ctx, strings.TrimSpace(productID), viewerTier)
	if err != nil {
		return View{}, err
	}
	if !product.InStock {
		return View{}, productdomain.ErrOutOfStock
	}

	c, err := s.store.Load(ctx, ownerID)
	if err != nil {
		return View{}, err
	}
	if !c.Empty() && c.Currency != "" && c.Currency != product.Currency {
		return View{}, ErrCurrencyMismatch
	}
	c.Currency = product.Currency
	c.Add(Item{
		ProductID: product.ID,
		Name:      product.Name,
		UnitPrice: product.Price,
		ImageURL:  product.ImageURL,
	}, quantity)
	return s.save(ctx, c)
}

func (s *Service) UpdateItem(ctx context.Context, ownerID, productID string, quantity int) (View, error) {
	id, err := parseProductID(productID)
	if err != nil {
		return View{}, err
	}
	c, err := s.store.Load(ctx, ownerID)
	if err != nil {
		return View{}, err
	}
	if !c.UpdateQuantity(id, quantity) {
		return View{}, ErrItemNotFound
	}
	return s.save(ctx, c)
}

func (s *Service) RemoveItem(ctx context.Context, ownerID, productID string) (View, error) {
	id, err := parseProductID(productID)
	if err != nil {
		return View{}, err
	}
	c, err := s.store.Load(ctx, ownerID)
	if err != nil {
		return View{}, err
	}
	if !c.Remove(id) {
		return View{}, ErrItemNotFound
	}
	return s.save(ctx, c)
}

func (s *Service) Clear(ctx context.Context, ownerID string) (View, error) {
	if err := s.store.Delete(ctx, ownerID); err != nil {
		return View{}, err
	}
	return s.view(New(ownerID)), nil
}

func (s *Service) Rules() Rules {
	cfg := s.config.Get()
	return Rules{ShippingThreshold: cfg.ShippingThreshold, ShippingCharge: cfg.ShippingCharge}
}

func (s *Service) save(ctx context.Context, c *Cart) (View, error) {
	if c.Empty() {
		c.Currency = ""
	}
	c.UpdatedAt = s.clock.Now()
	if err := s.store.Save(ctx, c); err != nil {
		return View{}, err
	}
	return s.view(c), nil
}

func (s *Service) view(c *Cart) View {
	v := View{
		Cart:      *c,
		ItemCount: c.ItemCount(),
		Totals:    Price(c.Subtotal(), s.Rules()),
	}
	if v.Currency == "" {
		v.Currency = s.config.Get().ResolveCurrency("")
	}
	return v
}

func parseProductID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, ErrInvalidProduct
	}
	return id, nil
}
