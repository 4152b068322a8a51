package domain

import (
	"testing"
)

func testCart() Cart {
	return Cart{
		ID: "cart-1",
		Items: []CartItem{
			{ID: "item-1", ProductID: "p-espresso", Quantity: 5, UnitPrice: 990, TotalPrice: 990},
			{ID: "item-2", ProductID: "p-latte", Quantity: 2, UnitPrice: 520, TotalPrice: 580},
		},
		Partner: &Partner{ID: "partner-1", Name: "Brew Lab", IsOpen: true},
	}
}

func TestItemCountSumsQuantities(t *testing.T) {
	if got := ItemCount(testCart()); got != 7 {
		t.Fatalf("expected 7 units, got %d", got)
	}
	if got := ItemCount(Cart{}); got != 0 {
		t.Fatalf("expected 0 units for empty cart, got %d", got)
	}
}

func TestLineTotalMultipliesPerUnitPriceOnce(t *testing.T) {
	item := CartItem{ProductID: "p1", Quantity: 5, UnitPrice: 990, TotalPrice: 990}
	if got := LineTotal(item); got != 4950 {
		t.Fatalf("expected 990*5=4950, got %d", got)
	}
}

func TestSubtotalAggregatesLines(t *testing.T) {
	// 990*5 + 580*2 = 4950 + 1160
	if got := Subtotal(testCart()); got != 6110 {
		t.Fatalf("expected subtotal 6110, got %d", got)
	}
}

func TestSameVendorInvariant(t *testing.T) {
	cart := testCart()
	if !SameVendor(cart) {
		t.Fatalf("cart with partner should satisfy the vendor invariant")
	}
	cart.Partner = nil
	if SameVendor(cart) {
		t.Fatalf("non-empty cart without partner must violate the vendor invariant")
	}
	if !SameVendor(Cart{}) {
		t.Fatalf("empty cart always satisfies the vendor invariant")
	}
}

func TestFormatterAmount(t *testing.T) {
	f := NewFormatter("en-US", "$")
	if got := f.Amount(4950); got != "$49.50" {
		t.Fatalf("expected $49.50, got %q", got)
	}
	if got := f.Amount(0); got != "$0.00" {
		t.Fatalf("expected $0.00, got %q", got)
	}
}

func TestFormatterFallsBackOnBadLocale(t *testing.T) {
	f := NewFormatter("not-a-locale!", "")
	if got := f.Amount(100); got != "$1.00" {
		t.Fatalf("expected fallback formatting $1.00, got %q", got)
	}
}

func TestSummarize(t *testing.T) {
	f := NewFormatter("en-US", "$")
	summary := f.Summarize(testCart())
	if summary.ItemCount != 7 {
		t.Fatalf("expected 7 items, got %d", summary.ItemCount)
	}
	if summary.Subtotal != 6110 {
		t.Fatalf("expected subtotal 6110, got %d", summary.Subtotal)
	}
	if summary.Display != "$61.10" {
		t.Fatalf("expected display $61.10, got %q", summary.Display)
	}
	if summary.PartnerName != "Brew Lab" || !summary.PartnerOpen {
		t.Fatalf("expected partner snapshot in summary, got %+v", summary)
	}
}

func TestCloneIsDeep(t *testing.T) {
	cart := testCart()
	cart.Items[0].Customizations = map[string]CustomizationValue{"oat_milk": BoolValue(true)}
	dup := cart.Clone()

	dup.Items[0].Quantity = 1
	dup.Items[0].Customizations["oat_milk"] = BoolValue(false)
	dup.Partner.IsOpen = false

	if cart.Items[0].Quantity != 5 {
		t.Fatalf("clone mutation leaked into source quantity")
	}
	if !cart.Items[0].Customizations["oat_milk"].Bool {
		t.Fatalf("clone mutation leaked into source customizations")
	}
	if !cart.Partner.IsOpen {
		t.Fatalf("clone mutation leaked into source partner")
	}
}
