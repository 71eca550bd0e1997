package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// VariantKey identifies the selected variant of a product inside a cart.
type VariantKey struct {
	Size  string `json:"size"`
	Color string `json:"color"`
}

// NewVariantKey canonicalises size and colour so lookups do not depend on caller casing.
func NewVariantKey(size, color string) VariantKey {
	return VariantKey{
		Size:  strings.ToUpper(strings.TrimSpace(size)),
		Color: strings.ToLower(strings.TrimSpace(color)),
	}
}

// String renders the key for logs.
func (k VariantKey) String() string {
	return k.Size + "/" + k.Color
}

// ProductSnapshot is the denormalised copy kept on a cart line for display.
type ProductSnapshot struct {
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// CartLineItem is one line of a cart. Identity is (ProductID, Variant).
type CartLineItem struct {
	ProductID string          `json:"productId"`
	Variant   VariantKey      `json:"variant"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Snapshot  ProductSnapshot `json:"snapshot"`
	AddedAt   time.Time       `json:"addedAt"`
}

// Matches reports whether the line has the given identity.
func (l CartLineItem) Matches(productID string, key VariantKey) bool {
	return strings.TrimSpace(l.ProductID) == strings.TrimSpace(productID) && l.Variant == key
}

// LineTotal returns unitPrice × quantity.
func (l CartLineItem) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an ordered collection of lines, unique by identity.
type Cart struct {
	Items     []CartLineItem `json:"items"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Find returns the index of the matching line or -1.
func (c Cart) Find(productID string, key VariantKey) int {
	for i, item := range c.Items {
		if item.Matches(productID, key) {
			return i
		}
	}
	return -1
}

// ItemCount sums quantities across lines (badge count).
func (c Cart) ItemCount() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// ItemTotal sums unitPrice × quantity across lines.
func (c Cart) ItemTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Clone returns a deep copy safe to hand to other goroutines.
func (c Cart) Clone() Cart {
	dup := Cart{UpdatedAt: c.UpdatedAt, Items: make([]CartLineItem, len(c.Items))}
	copy(dup.Items, c.Items)
	return dup
}

// Variant is one purchasable option of a product as seen in the catalog.
type Variant struct {
	Size     string          `json:"size"`
	Color    string          `json:"color"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// Key returns the canonical variant key.
func (v Variant) Key() VariantKey {
	return NewVariantKey(v.Size, v.Color)
}

// Product is the catalog entry a line is created from.
type Product struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Image    string    `json:"image,omitempty"`
	Variants []Variant `json:"variants,omitempty"`
}

// Address is a saved delivery address in canonical shape.
type Address struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Phone     string `json:"phone"`
	Line1     string `json:"line1"`
	Line2     string `json:"line2,omitempty"`
	Country   string `json:"country,omitempty"`
	IsDefault bool   `json:"isDefault"`
}

// AddressFields is the add/edit form input.
type AddressFields struct {
	Label   string `json:"label"`
	Phone   string `json:"phone"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2"`
	Country string `json:"country"`
}

// PaymentMethod enumerates the supported ways to pay.
type PaymentMethod string

const (
	// PaymentOnline pays through the external gateway before the order is placed.
	PaymentOnline PaymentMethod = "online"
	// PaymentCOD collects payment on delivery.
	PaymentCOD PaymentMethod = "cod"
)

// Valid reports whether the method is one of the known values.
func (m PaymentMethod) Valid() bool {
	return m == PaymentOnline || m == PaymentCOD
}

// Totals is the deterministic price breakdown of an order.
type Totals struct {
	ItemTotal   decimal.Decimal `json:"itemTotal"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
	PlatformFee decimal.Decimal `json:"platformFee"`
	Tax         decimal.Decimal `json:"tax"`
	GrandTotal  decimal.Decimal `json:"grandTotal"`
	Currency    string          `json:"currency"`
}

// RestaurantInfo identifies the shop fulfilling the order.
type RestaurantInfo struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Order payment and lifecycle states as recorded by the backend.
const (
	PaymentStatusPaid    = "Paid"
	PaymentStatusPending = "Pending"
	OrderStatusPlaced    = "Placed"
)

// Order is the record persisted after checkout.
type Order struct {
	OrderID         string
	ShopID          string
	Items           []CartLineItem
	Totals          Totals
	PaymentMethod   PaymentMethod
	PaymentStatus   string
	PaymentID       string
	OrderStatus     string
	DeliveryAddress Address
	Restaurant      RestaurantInfo
	CreatedAt       time.Time
}
