package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DiscountKind enumerates the closed set of coupon kinds.
type DiscountKind string

const (
	// DiscountPercentage reduces the subtotal by Value percent.
	DiscountPercentage DiscountKind = "percentage"
	// DiscountFixed subtracts Value from the subtotal, never going below zero.
	DiscountFixed DiscountKind = "fixed"
	// DiscountFreeShipping waives shipping. Shipping is not itemised, so the cart total is unchanged.
	DiscountFreeShipping DiscountKind = "free-shipping"
)

// ParseDiscountKind normalises backend values. Underscore spellings are accepted.
func ParseDiscountKind(raw string) (DiscountKind, bool) {
	normalised := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-")
	switch DiscountKind(normalised) {
	case DiscountPercentage, DiscountFixed, DiscountFreeShipping:
		return DiscountKind(normalised), true
	default:
		return "", false
	}
}

// DiscountAudience restricts which callers may redeem a coupon.
type DiscountAudience string

const (
	// DiscountAudienceAll accepts anonymous and registered callers.
	DiscountAudienceAll DiscountAudience = "all"
	// DiscountAudienceWholesale accepts registered callers only.
	DiscountAudienceWholesale DiscountAudience = "mayorista"
	// DiscountAudienceRetail accepts anonymous callers only.
	DiscountAudienceRetail DiscountAudience = "minorista"
)

// AppliedDiscount is the single coupon descriptor attached to a cart.
type AppliedDiscount struct {
	Code        string
	Kind        DiscountKind
	Value       decimal.Decimal
	MinPurchase decimal.Decimal
	Audience    DiscountAudience
}

// NormaliseDiscountCode upper-cases and trims a coupon code.
func NormaliseDiscountCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
