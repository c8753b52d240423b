// Package cart is the server-owned shopping cart: an in-memory state
// container plus a persistence adapter.
package cart

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Item struct {
	ProductID snowflake.ID `json:"product_id"`
	Name      string       `json:"name"`
	UnitPrice int64        `json:"unit_price"`
	Quantity  int          `json:"quantity"`
	ImageURL  *string      `json:"image_url,omitempty"`
}

func (i Item) Amount() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

type Cart struct {
	OwnerID   string    `json:"owner_id"`
	Currency  string    `json:"currency"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

func New(ownerID string) *Cart {
	return &Cart{OwnerID: ownerID, Items: []Item{}}
}

// Add merges quantities for a product already in the cart and refreshes its
// name and price snapshot.
func (c *Cart) Add(item Item, quantity int) {
	if quantity <= 0 {
		return
	}
	for i := range c.Items {
		if c.Items[i].ProductID == item.ProductID {
			c.Items[i].Quantity += quantity
			c.Items[i].Name = item.Name
			c.Items[i].UnitPrice = item.UnitPrice
			c.Items[i].ImageURL = item.ImageURL
			return
		}
	}
	item.Quantity = quantity
	c.Items = append(c.Items, item)
}

// UpdateQuantity sets the quantity of a product; zero or less removes it.
func (c *Cart) UpdateQuantity(productID snowflake.ID, quantity int) bool {
	if quantity <= 0 {
		return c.Remove(productID)
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = quantity
			return true
		}
	}
	return false
}

func (c *Cart) Remove(productID snowflake.ID) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Cart) Clear() {
	c.Items = []Item{}
	c.Currency = ""
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) Subtotal() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.Amount()
	}
	return total
}

func (c *Cart) Empty() bool {
	return len(c.Items) == 0
}

type Rules struct {
	ShippingThreshold int64
	ShippingCharge    int64
}

type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

// Price is the one pricing function shared by the cart view and store checkout.
// Shipping applies to non-empty orders under the free-shipping threshold.
func Price(subtotal int64, rules Rules) Totals {
	var shipping int64
	if subtotal > 0 && subtotal < rules.ShippingThreshold {
		shipping = rules.ShippingCharge
	}
	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Total:    subtotal + shipping,
	}
}
