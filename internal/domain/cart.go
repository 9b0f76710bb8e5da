package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// LineKind distinguishes products from combos. Product and combo identifiers share a namespace.
type LineKind string

const (
	// LineKindProduct identifies a catalogue product line.
	LineKindProduct LineKind = "product"
	// LineKindCombo identifies a fixed bundle sold at one aggregate price.
	LineKindCombo LineKind = "combo"
)

// Valid reports whether the kind is one of the known values.
func (k LineKind) Valid() bool {
	return k == LineKindProduct || k == LineKindCombo
}

// ParseLineKind normalises raw input into a LineKind.
func ParseLineKind(raw string) (LineKind, bool) {
	kind := LineKind(strings.ToLower(strings.TrimSpace(raw)))
	if !kind.Valid() {
		return "", false
	}
	return kind, true
}

// PurchaseMode selects how a product is sold.
type PurchaseMode string

const (
	// PurchaseModeBag sells the product as a sealed, pre-weighed unit.
	PurchaseModeBag PurchaseMode = "bag"
	// PurchaseModeLoose sells the product by extracted weight.
	PurchaseModeLoose PurchaseMode = "loose"
)

// legacyLooseMode is the value older storefront clients persisted for loose purchases.
const legacyLooseMode = "kilo"

// ParsePurchaseMode normalises raw input. Empty input maps to bag.
func ParsePurchaseMode(raw string) (PurchaseMode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(PurchaseModeBag):
		return PurchaseModeBag, true
	case string(PurchaseModeLoose), legacyLooseMode:
		return PurchaseModeLoose, true
	default:
		return "", false
	}
}

// LineKey is the dedup key of a cart line.
type LineKey struct {
	ID   string
	Kind LineKind
	Mode PurchaseMode
}

// CatalogItem carries the pricing attributes of a product or combo at add time.
type CatalogItem struct {
	ID            string
	Name          string
	Price         decimal.Decimal
	ListPrice     decimal.Decimal
	LowTierPrice  decimal.Decimal
	HighTierPrice decimal.Decimal
	UnitWeight    decimal.Decimal
	FinalPrice    decimal.Decimal
	BasePrice     decimal.Decimal
	IsFood        bool
}

// LooseEligible reports whether the item may be sold by weight.
func (i CatalogItem) LooseEligible() bool {
	return i.IsFood && i.UnitWeight.IsPositive()
}

// LineCommon holds the fields shared by every cart line variant.
type LineCommon struct {
	ID       string
	Name     string
	Quantity int
}

// Common exposes the shared fields for reading and mutation.
func (c *LineCommon) Common() *LineCommon { return c }

// CartLine is a closed sum type over ProductLine and ComboLine.
type CartLine interface {
	Common() *LineCommon
	Kind() LineKind
	Mode() PurchaseMode
	Key() LineKey
	Clone() CartLine
	isCartLine()
}

// ProductLine is a catalogue product bought by bag, by loose weight, or a bag plus extra weight.
type ProductLine struct {
	LineCommon
	PurchaseMode PurchaseMode
	// ExtraWeight is the whole purchased weight in loose mode and an add-on in bag mode.
	ExtraWeight   decimal.Decimal
	Price         decimal.Decimal
	ListPrice     decimal.Decimal
	LowTierPrice  decimal.Decimal
	HighTierPrice decimal.Decimal
	UnitWeight    decimal.Decimal
}

// Kind implements CartLine.
func (l *ProductLine) Kind() LineKind { return LineKindProduct }

// Mode implements CartLine.
func (l *ProductLine) Mode() PurchaseMode {
	if l.PurchaseMode == "" {
		return PurchaseModeBag
	}
	return l.PurchaseMode
}

// Key implements CartLine.
func (l *ProductLine) Key() LineKey {
	return LineKey{ID: l.ID, Kind: LineKindProduct, Mode: l.Mode()}
}

// Clone implements CartLine.
func (l *ProductLine) Clone() CartLine {
	copied := *l
	return &copied
}

func (*ProductLine) isCartLine() {}

// ComboLine is a bundle priced at its precomputed final price.
type ComboLine struct {
	LineCommon
	FinalPrice decimal.Decimal
	BasePrice  decimal.Decimal
}

// Kind implements CartLine.
func (l *ComboLine) Kind() LineKind { return LineKindCombo }

// Mode implements CartLine. Combos are always added as bag units.
func (l *ComboLine) Mode() PurchaseMode { return PurchaseModeBag }

// Key implements CartLine.
func (l *ComboLine) Key() LineKey {
	return LineKey{ID: l.ID, Kind: LineKindCombo, Mode: PurchaseModeBag}
}

// Clone implements CartLine.
func (l *ComboLine) Clone() CartLine {
	copied := *l
	return &copied
}

func (*ComboLine) isCartLine() {}

// NewCartLine builds a fresh line with quantity 1 from catalogue data.
func NewCartLine(item CatalogItem, kind LineKind, mode PurchaseMode, extraWeight decimal.Decimal) CartLine {
	common := LineCommon{ID: item.ID, Name: item.Name, Quantity: 1}
	if kind == LineKindCombo {
		return &ComboLine{
			LineCommon: common,
			FinalPrice: item.FinalPrice,
			BasePrice:  item.BasePrice,
		}
	}
	if mode == "" {
		mode = PurchaseModeBag
	}
	return &ProductLine{
		LineCommon:    common,
		PurchaseMode:  mode,
		ExtraWeight:   extraWeight,
		Price:         item.Price,
		ListPrice:     item.ListPrice,
		LowTierPrice:  item.LowTierPrice,
		HighTierPrice: item.HighTierPrice,
		UnitWeight:    item.UnitWeight,
	}
}

// CloneLines deep-copies a line slice.
func CloneLines(lines []CartLine) []CartLine {
	if len(lines) == 0 {
		return nil
	}
	out := make([]CartLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, line.Clone())
	}
	return out
}
