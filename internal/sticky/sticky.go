// Package sticky implements the staging cart used by quick multi-add flows:
// a purely local product-to-quantity buffer with no server counterpart. It
// only touches the authoritative cart when merged through the Merger.
package sticky

import (
	"sync"
)

// Snapshot is an immutable view of the staging cart for rendering.
type Snapshot struct {
	Visible     bool
	Selected    []string
	Quantities  map[string]int
	Prices      map[string]int64
	TotalAmount int64
	TotalItems  int
}

// Cart is the staging cart. Totals are recomputed from scratch after every
// mutation so they can never drift from the selection.
type Cart struct {
	mu          sync.Mutex
	visible     bool
	selected    []string
	quantities  map[string]int
	prices      map[string]int64
	totalAmount int64
	totalItems  int
}

// NewCart constructs an empty, hidden staging cart.
func NewCart() *Cart {
	return &Cart{
		quantities: make(map[string]int),
		prices:     make(map[string]int64),
	}
}

// SetQuantity upserts the quantity for a product; zero or negative removes it
// entirely. A positive price updates the cached unit price; pass a negative
// price to keep the existing one.
func (c *Cart) SetQuantity(productID string, quantity int, price int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if quantity <= 0 {
		c.removeLocked(productID)
	} else {
		c.upsertLocked(productID, quantity, price)
	}
	c.recomputeLocked()
}

// Increment raises the quantity by one, starting at one for an absent
// product.
func (c *Cart) Increment(productID string, price int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upsertLocked(productID, c.quantities[productID]+1, price)
	c.recomputeLocked()
}

// Decrement lowers the quantity by one; decrementing past one removes the
// product entirely.
func (c *Cart) Decrement(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.quantities[productID] - 1
	if next <= 0 {
		c.removeLocked(productID)
	} else {
		c.quantities[productID] = next
	}
	c.recomputeLocked()
}

// Toggle adds an absent product at quantity one and fully removes a present
// one.
func (c *Cart) Toggle(productID string, price int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.quantities[productID]; ok {
		c.removeLocked(productID)
	} else {
		c.upsertLocked(productID, 1, price)
	}
	c.recomputeLocked()
}

// Show makes the staging cart visible.
func (c *Cart) Show() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = true
}

// Hide conceals the staging cart without clearing its content.
func (c *Cart) Hide() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = false
}

// ToggleVisibility flips visibility, leaving content untouched.
func (c *Cart) ToggleVisibility() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = !c.visible
}

// Clear empties the staging cart and hides it.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = nil
	c.quantities = make(map[string]int)
	c.prices = make(map[string]int64)
	c.visible = false
	c.recomputeLocked()
}

// IsEmpty reports whether nothing is staged.
func (c *Cart) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.selected) == 0
}

// Snapshot returns a deep copy of the current staging state.
func (c *Cart) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		Visible:     c.visible,
		Selected:    append([]string(nil), c.selected...),
		Quantities:  make(map[string]int, len(c.quantities)),
		Prices:      make(map[string]int64, len(c.prices)),
		TotalAmount: c.totalAmount,
		TotalItems:  c.totalItems,
	}
	for id, qty := range c.quantities {
		snap.Quantities[id] = qty
	}
	for id, price := range c.prices {
		snap.Prices[id] = price
	}
	return snap
}

// upsertLocked sets quantity and optionally price, appending to the ordered
// selection on first sight. Becoming non-empty auto-shows the cart.
func (c *Cart) upsertLocked(productID string, quantity int, price int64) {
	if _, ok := c.quantities[productID]; !ok {
		c.selected = append(c.selected, productID)
	}
	c.quantities[productID] = quantity
	if price >= 0 {
		c.prices[productID] = price
	}
	c.visible = true
}

func (c *Cart) removeLocked(productID string) {
	if _, ok := c.quantities[productID]; !ok {
		return
	}
	delete(c.quantities, productID)
	delete(c.prices, productID)
	for i, id := range c.selected {
		if id == productID {
			c.selected = append(c.selected[:i], c.selected[i+1:]...)
			break
		}
	}
}

// recomputeLocked rebuilds both totals from the selection. Invariants:
// selected is exactly the key set of quantities, totalItems is the quantity
// sum, totalAmount is the quantity-weighted price sum.
func (c *Cart) recomputeLocked() {
	var amount int64
	items := 0
	for _, id := range c.selected {
		qty := c.quantities[id]
		items += qty
		amount += int64(qty) * c.prices[id]
	}
	c.totalItems = items
	c.totalAmount = amount
}
