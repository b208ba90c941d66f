package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PromoCatalog resolves a normalized code to a discount percentage.
type PromoCatalog interface {
	Lookup(code string) (percent int, ok bool)
}

type StaticPromoCatalog map[string]int

func (c StaticPromoCatalog) Lookup(code string) (int, bool) {
	p, ok := c[code]
	return p, ok
}

// DefaultPromoCatalog is shared by the wizard and the payment service so both
// sides price a code identically.
func DefaultPromoCatalog() StaticPromoCatalog {
	return StaticPromoCatalog{
		"SAVE10":    10,
		"WELCOME20": 20,
		"EARLYBIRD": 15,
		"STUDENT":   25,
	}
}

func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type PromoState struct {
	PromoCode       string `json:"promoCode"`
	DiscountPercent int    `json:"discountPercent"`
	Applied         bool   `json:"applied"`
}

// Apply sets the promo state on a catalog hit. On a miss the state is left as is.
func (p *PromoState) Apply(catalog PromoCatalog, code string) error {
	norm := NormalizePromoCode(code)
	if norm == "" {
		return ErrInvalidPromoCode
	}
	pct, ok := catalog.Lookup(norm)
	if !ok {
		return ErrInvalidPromoCode
	}
	p.PromoCode = norm
	p.DiscountPercent = pct
	p.Applied = true
	return nil
}

func (p *PromoState) Remove() {
	*p = PromoState{}
}

// ResolvePromo validates an optional code server side. Empty means no promo.
func ResolvePromo(catalog PromoCatalog, code string) (string, int, error) {
	norm := NormalizePromoCode(code)
	if norm == "" {
		return "", 0, nil
	}
	pct, ok := catalog.Lookup(norm)
	if !ok {
		return "", 0, ErrInvalidPromoCode
	}
	return norm, pct, nil
}

var hundred = decimal.NewFromInt(100)

func ComputeDiscount(subtotal decimal.Decimal, percent int) decimal.Decimal {
	if percent <= 0 {
		return decimal.Zero
	}
	return subtotal.Mul(decimal.NewFromInt(int64(percent))).Div(hundred).Round(2)
}
