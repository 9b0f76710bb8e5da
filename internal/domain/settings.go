package domain

import "github.com/shopspring/decimal"

// Settings are the storefront-wide values managed from the back office.
type Settings struct {
	SuggestedPricePercentage decimal.Decimal
}
