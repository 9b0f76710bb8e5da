package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrCartEncoding signals persisted cart data that cannot be decoded into lines.
var ErrCartEncoding = errors.New("cart encoding: malformed data")

// storedLine is the persisted shape of a cart line. Field names follow the catalogue documents.
type storedLine struct {
	ID            string          `json:"_id"`
	Type          LineKind        `json:"type"`
	Name          string          `json:"nombre"`
	Quantity      int             `json:"quantity"`
	PurchaseMode  string          `json:"purchaseMode"`
	ExtraWeight   decimal.Decimal `json:"extraKilos"`
	Price         decimal.Decimal `json:"precio"`
	ListPrice     decimal.Decimal `json:"precioLista"`
	LowTierPrice  decimal.Decimal `json:"precioMenor"`
	HighTierPrice decimal.Decimal `json:"precioMayor"`
	UnitWeight    decimal.Decimal `json:"kilos"`
	FinalPrice    decimal.Decimal `json:"finalPrice"`
	BasePrice     decimal.Decimal `json:"basePrice"`
}

// EncodeCartLines serialises lines in order. A nil slice encodes as an empty array.
func EncodeCartLines(lines []CartLine) ([]byte, error) {
	stored := make([]storedLine, 0, len(lines))
	for _, line := range lines {
		switch l := line.(type) {
		case *ProductLine:
			stored = append(stored, storedLine{
				ID:            l.ID,
				Type:          LineKindProduct,
				Name:          l.Name,
				Quantity:      l.Quantity,
				PurchaseMode:  string(l.Mode()),
				ExtraWeight:   l.ExtraWeight,
				Price:         l.Price,
				ListPrice:     l.ListPrice,
				LowTierPrice:  l.LowTierPrice,
				HighTierPrice: l.HighTierPrice,
				UnitWeight:    l.UnitWeight,
			})
		case *ComboLine:
			stored = append(stored, storedLine{
				ID:           l.ID,
				Type:         LineKindCombo,
				Name:         l.Name,
				Quantity:     l.Quantity,
				PurchaseMode: string(PurchaseModeBag),
				FinalPrice:   l.FinalPrice,
				BasePrice:    l.BasePrice,
			})
		default:
			return nil, fmt.Errorf("cart encoding: unsupported line %T", line)
		}
	}
	return json.Marshal(stored)
}

// DecodeCartLines parses persisted data. Empty input yields an empty cart.
func DecodeCartLines(data []byte) ([]CartLine, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var stored []storedLine
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCartEncoding, err)
	}

	lines := make([]CartLine, 0, len(stored))
	for i, s := range stored {
		if s.ID == "" || s.Quantity < 1 {
			return nil, fmt.Errorf("%w: line %d missing id or quantity", ErrCartEncoding, i)
		}
		common := LineCommon{ID: s.ID, Name: s.Name, Quantity: s.Quantity}
		switch s.Type {
		case LineKindCombo:
			lines = append(lines, &ComboLine{
				LineCommon: common,
				FinalPrice: s.FinalPrice,
				BasePrice:  s.BasePrice,
			})
		case LineKindProduct:
			mode, ok := ParsePurchaseMode(s.PurchaseMode)
			if !ok {
				return nil, fmt.Errorf("%w: line %d has purchase mode %q", ErrCartEncoding, i, s.PurchaseMode)
			}
			lines = append(lines, &ProductLine{
				LineCommon:    common,
				PurchaseMode:  mode,
				ExtraWeight:   s.ExtraWeight,
				Price:         s.Price,
				ListPrice:     s.ListPrice,
				LowTierPrice:  s.LowTierPrice,
				HighTierPrice: s.HighTierPrice,
				UnitWeight:    s.UnitWeight,
			})
		default:
			return nil, fmt.Errorf("%w: line %d has type %q", ErrCartEncoding, i, s.Type)
		}
	}
	return lines, nil
}
