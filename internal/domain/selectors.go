package domain

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Selectors are pure functions over a cart snapshot. They never mutate their
// input and carry no state of their own, so screens can call them on every
// render.

// IsEmpty reports whether the cart has no lines.
func IsEmpty(cart Cart) bool {
	return len(cart.Items) == 0
}

// ItemCount returns the total number of units across all lines.
func ItemCount(cart Cart) int {
	count := 0
	for _, item := range cart.Items {
		if item.Quantity > 0 {
			count += item.Quantity
		}
	}
	return count
}

// LineTotal returns the aggregate price of a single line. Per-unit prices are
// multiplied by quantity here and nowhere else.
func LineTotal(item CartItem) int64 {
	if item.Quantity <= 0 || item.TotalPrice <= 0 {
		return 0
	}
	return item.TotalPrice * int64(item.Quantity)
}

// Subtotal returns the aggregate price of the whole cart in minor units.
func Subtotal(cart Cart) int64 {
	var subtotal int64
	for _, item := range cart.Items {
		subtotal += LineTotal(item)
	}
	return subtotal
}

// SameVendor verifies the single-vendor invariant: a non-empty cart must
// carry a partner snapshot, and all lines implicitly belong to it. A cart
// with items but no partner is inconsistent.
func SameVendor(cart Cart) bool {
	if len(cart.Items) == 0 {
		return true
	}
	return cart.Partner != nil && strings.TrimSpace(cart.Partner.ID) != ""
}

// Summary is a display-ready aggregate for cart badges and checkout rows.
type Summary struct {
	ItemCount   int
	Subtotal    int64
	Display     string
	PartnerName string
	PartnerOpen bool
}

// Formatter renders minor-unit amounts for a locale and currency symbol.
type Formatter struct {
	printer *message.Printer
	symbol  string
}

// NewFormatter builds a Formatter for the given BCP 47 locale. Unparseable
// locales fall back to English.
func NewFormatter(locale, symbol string) Formatter {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.English
	}
	if strings.TrimSpace(symbol) == "" {
		symbol = "$"
	}
	return Formatter{printer: message.NewPrinter(tag), symbol: symbol}
}

// Amount renders a minor-unit amount, e.g. 4950 -> "$49.50".
func (f Formatter) Amount(amount int64) string {
	if f.printer == nil {
		f.printer = message.NewPrinter(language.English)
	}
	return f.printer.Sprintf("%s%v", f.symbol,
		number.Decimal(float64(amount)/100, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// Summarize computes the display aggregate for a cart snapshot.
func (f Formatter) Summarize(cart Cart) Summary {
	summary := Summary{
		ItemCount: ItemCount(cart),
		Subtotal:  Subtotal(cart),
	}
	summary.Display = f.Amount(summary.Subtotal)
	if cart.Partner != nil {
		summary.PartnerName = cart.Partner.Name
		summary.PartnerOpen = cart.Partner.IsOpen
	}
	return summary
}
