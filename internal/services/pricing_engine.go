package services

import (
	"github.com/shopspring/decimal"

	domain "github.com/tomisteven/cliente-natural-pets/internal/domain"
)

// BulkTierThreshold is the bag quantity from which the wholesale price applies.
const BulkTierThreshold = 10

var hundred = decimal.NewFromInt(100)

// ItemPrice returns the per-unit price of a line. It only reads the line's own fields and is
// recomputed on every call, so crossing the bulk threshold reprices every unit of the line.
func ItemPrice(line CartLine) decimal.Decimal {
	switch l := line.(type) {
	case *ComboLine:
		return l.FinalPrice
	case *ProductLine:
		if l.Mode() == domain.PurchaseModeLoose {
			return looseWeightPrice(l.ListPrice, l.UnitWeight, l.ExtraWeight)
		}
		price := l.Price
		if l.Quantity >= BulkTierThreshold && l.HighTierPrice.IsPositive() {
			price = l.HighTierPrice
		} else if l.LowTierPrice.IsPositive() {
			price = l.LowTierPrice
		}
		if l.ExtraWeight.IsPositive() {
			price = price.Add(looseWeightPrice(l.ListPrice, l.UnitWeight, l.ExtraWeight))
		}
		return price
	default:
		return decimal.Zero
	}
}

// LooseUnitPrice is the list price per weight unit. A zero unit weight counts as one.
func LooseUnitPrice(listPrice, unitWeight decimal.Decimal) decimal.Decimal {
	if unitWeight.IsZero() {
		return listPrice
	}
	return listPrice.Div(unitWeight)
}

func looseWeightPrice(listPrice, unitWeight, weight decimal.Decimal) decimal.Decimal {
	if unitWeight.IsZero() {
		return listPrice.Mul(weight)
	}
	// Multiply first so exact weights keep exact prices.
	return listPrice.Mul(weight).Div(unitWeight)
}

// LineTotal is ItemPrice times the line quantity.
func LineTotal(line CartLine) decimal.Decimal {
	return ItemPrice(line).Mul(decimal.NewFromInt(int64(line.Common().Quantity)))
}

// CartTotal sums LineTotal over every line.
func CartTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(LineTotal(line))
	}
	return total
}

// CartCount sums the quantities of every line.
func CartCount(lines []CartLine) int {
	count := 0
	for _, line := range lines {
		count += line.Common().Quantity
	}
	return count
}

// DiscountedTotal applies an optional discount to a cart total.
func DiscountedTotal(total decimal.Decimal, discount *AppliedDiscount) decimal.Decimal {
	if discount == nil {
		return total
	}
	switch discount.Kind {
	case domain.DiscountFixed:
		reduced := total.Sub(discount.Value)
		if reduced.IsNegative() {
			return decimal.Zero
		}
		return reduced
	case domain.DiscountPercentage:
		return total.Mul(decimal.NewFromInt(1).Sub(discount.Value.Div(hundred)))
	default:
		// Free shipping and unknown kinds leave the item total untouched.
		return total
	}
}
