package domain

import (
	"strings"
	"time"
)

// Quantity bounds accepted for a single cart line.
const (
	MinQuantity = 1
	MaxQuantity = 99
)

// MaxNotesLength caps free-form item notes.
const MaxNotesLength = 500

// MaxCustomizations caps the number of option entries per item.
const MaxCustomizations = 10

// MaxCustomizationValueLength caps string option values.
const MaxCustomizationValueLength = 100

// CustomizationValue is a single option value: either a string (e.g. "oat
// milk") or a boolean toggle (e.g. decaf). Exactly one side is meaningful.
type CustomizationValue struct {
	Str  string
	Bool bool
	// IsBool distinguishes a boolean toggle from an empty string value.
	IsBool bool
}

// StringValue builds a string-typed customization value.
func StringValue(v string) CustomizationValue {
	return CustomizationValue{Str: v}
}

// BoolValue builds a boolean-typed customization value.
func BoolValue(v bool) CustomizationValue {
	return CustomizationValue{Bool: v, IsBool: true}
}

// Partner is the read-only vendor snapshot attached to a cart.
type Partner struct {
	ID      string
	Name    string
	Address string
	LogoURL string
	IsOpen  bool
}

// CartItem is one line of the authoritative cart. UnitPrice and TotalPrice
// are minor currency units. TotalPrice is per unit (unit price plus option
// surcharges); it is never stored pre-multiplied by quantity.
type CartItem struct {
	ID             string
	ProductID      string
	Quantity       int
	UnitPrice      int64
	TotalPrice     int64
	Notes          string
	Customizations map[string]CustomizationValue
}

// Cart is the authoritative cart confirmed by the server. It is replaced
// wholesale on every successful write; no partial merges.
type Cart struct {
	ID        string
	Items     []CartItem
	Partner   *Partner
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartTotal is the server-computed aggregate returned by GET /cart/total.
type CartTotal struct {
	Subtotal  int64
	Total     int64
	ItemCount int
}

// AddItemRequest carries the payload for adding a product to the cart.
type AddItemRequest struct {
	ProductID      string
	Quantity       int
	Notes          string
	Customizations map[string]CustomizationValue
}

// UpdateItemRequest carries the payload for editing an existing cart line.
type UpdateItemRequest struct {
	Quantity       int
	Notes          string
	Customizations map[string]CustomizationValue
}

// Clone returns a deep copy so callers can hold snapshots without observing
// later store mutations.
func (c Cart) Clone() Cart {
	dup := c
	dup.Items = CloneItems(c.Items)
	if c.Partner != nil {
		partner := *c.Partner
		dup.Partner = &partner
	}
	return dup
}

// CloneItems deep-copies a cart line slice.
func CloneItems(items []CartItem) []CartItem {
	if len(items) == 0 {
		return []CartItem{}
	}
	dup := make([]CartItem, len(items))
	copy(dup, items)
	for i := range dup {
		dup[i].Customizations = CloneCustomizations(dup[i].Customizations)
	}
	return dup
}

// CloneCustomizations deep-copies an option map, normalising empty to nil.
func CloneCustomizations(values map[string]CustomizationValue) map[string]CustomizationValue {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]CustomizationValue, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

// ItemByID returns the index of the line with the given ID, or -1.
func ItemByID(items []CartItem, itemID string) int {
	target := strings.TrimSpace(itemID)
	if target == "" {
		return -1
	}
	for i, item := range items {
		if strings.EqualFold(strings.TrimSpace(item.ID), target) {
			return i
		}
	}
	return -1
}
