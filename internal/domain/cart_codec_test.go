package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func sameDecimal(t *testing.T, line int, field string, want, got decimal.Decimal) {
	t.Helper()
	if !want.Equal(got) {
		t.Fatalf("line %d %s: expected %s, got %s", line, field, want, got)
	}
}

func assertSameLine(t *testing.T, i int, want, got CartLine) {
	t.Helper()
	if want.Key() != got.Key() {
		t.Fatalf("line %d key: expected %+v, got %+v", i, want.Key(), got.Key())
	}
	if *want.Common() != *got.Common() {
		t.Fatalf("line %d common fields: expected %+v, got %+v", i, *want.Common(), *got.Common())
	}
	switch w := want.(type) {
	case *ProductLine:
		g, ok := got.(*ProductLine)
		if !ok {
			t.Fatalf("line %d: expected *ProductLine, got %T", i, got)
		}
		if w.Mode() != g.Mode() {
			t.Fatalf("line %d mode: expected %s, got %s", i, w.Mode(), g.Mode())
		}
		sameDecimal(t, i, "ExtraWeight", w.ExtraWeight, g.ExtraWeight)
		sameDecimal(t, i, "Price", w.Price, g.Price)
		sameDecimal(t, i, "ListPrice", w.ListPrice, g.ListPrice)
		sameDecimal(t, i, "LowTierPrice", w.LowTierPrice, g.LowTierPrice)
		sameDecimal(t, i, "HighTierPrice", w.HighTierPrice, g.HighTierPrice)
		sameDecimal(t, i, "UnitWeight", w.UnitWeight, g.UnitWeight)
	case *ComboLine:
		g, ok := got.(*ComboLine)
		if !ok {
			t.Fatalf("line %d: expected *ComboLine, got %T", i, got)
		}
		sameDecimal(t, i, "FinalPrice", w.FinalPrice, g.FinalPrice)
		sameDecimal(t, i, "BasePrice", w.BasePrice, g.BasePrice)
	default:
		t.Fatalf("line %d: unexpected line type %T", i, want)
	}
}

func TestCartCodecRoundTripPreservesEveryField(t *testing.T) {
	lines := []CartLine{
		&ProductLine{
			LineCommon:    LineCommon{ID: "prod-1", Name: "Alimento Perro 15kg", Quantity: 12},
			PurchaseMode:  PurchaseModeBag,
			ExtraWeight:   dec("1.5"),
			Price:         dec("120"),
			ListPrice:     dec("1000"),
			LowTierPrice:  dec("100"),
			HighTierPrice: dec("80"),
			UnitWeight:    dec("10"),
		},
		&ComboLine{
			LineCommon: LineCommon{ID: "combo-1", Name: "Combo Cachorro", Quantity: 2},
			FinalPrice: dec("5000"),
			BasePrice:  dec("6000"),
		},
		&ProductLine{
			LineCommon:   LineCommon{ID: "prod-2", Name: "Alimento Gato suelto", Quantity: 1},
			PurchaseMode: PurchaseModeLoose,
			ExtraWeight:  dec("3.25"),
			Price:        dec("90"),
			ListPrice:    dec("850.5"),
			UnitWeight:   decimal.Zero,
		},
	}

	data, err := EncodeCartLines(lines)
	if err != nil {
		t.Fatalf("EncodeCartLines: %v", err)
	}
	decoded, err := DecodeCartLines(data)
	if err != nil {
		t.Fatalf("DecodeCartLines: %v", err)
	}
	if len(decoded) != len(lines) {
		t.Fatalf("expected %d lines, got %d", len(lines), len(decoded))
	}
	for i := range lines {
		assertSameLine(t, i, lines[i], decoded[i])
	}
}

func TestEncodeCartLinesWritesDecimalStrings(t *testing.T) {
	data, err := EncodeCartLines([]CartLine{
		&ComboLine{
			LineCommon: LineCommon{ID: "combo-1", Name: "Combo", Quantity: 1},
			FinalPrice: dec("5000.5"),
		},
	})
	if err != nil {
		t.Fatalf("EncodeCartLines: %v", err)
	}
	if got := string(data); !strings.Contains(got, `"finalPrice":"5000.5"`) || !strings.Contains(got, `"type":"combo"`) {
		t.Fatalf("unexpected encoding %s", got)
	}

	empty, err := EncodeCartLines(nil)
	if err != nil {
		t.Fatalf("EncodeCartLines(nil): %v", err)
	}
	if string(empty) != "[]" {
		t.Fatalf("expected empty array, got %s", empty)
	}
}

func TestEncodeCartLinesRejectsUnknownLine(t *testing.T) {
	type foreignLine struct{ *ProductLine }
	line := foreignLine{&ProductLine{LineCommon: LineCommon{ID: "x", Quantity: 1}}}
	if _, err := EncodeCartLines([]CartLine{line}); err == nil {
		t.Fatalf("expected unsupported line to fail")
	}
}

func TestDecodeCartLinesLegacyFormat(t *testing.T) {
	data := []byte(`[
		{"_id":"prod-1","type":"product","nombre":"Alimento Perro","quantity":2,"purchaseMode":"kilo","extraKilos":3,
		 "precio":120,"precioLista":1000,"precioMenor":100,"precioMayor":80,"kilos":10},
		{"_id":"prod-2","type":"product","nombre":"Collar","quantity":1,"precio":2500.75},
		{"_id":"combo-1","type":"combo","nombre":"Combo Cachorro","quantity":1,"finalPrice":5000,"basePrice":6000}
	]`)

	lines, err := DecodeCartLines(data)
	if err != nil {
		t.Fatalf("DecodeCartLines: %v", err)
	}
	want := []CartLine{
		&ProductLine{
			LineCommon:    LineCommon{ID: "prod-1", Name: "Alimento Perro", Quantity: 2},
			PurchaseMode:  PurchaseModeLoose,
			ExtraWeight:   dec("3"),
			Price:         dec("120"),
			ListPrice:     dec("1000"),
			LowTierPrice:  dec("100"),
			HighTierPrice: dec("80"),
			UnitWeight:    dec("10"),
		},
		&ProductLine{
			LineCommon:   LineCommon{ID: "prod-2", Name: "Collar", Quantity: 1},
			PurchaseMode: PurchaseModeBag,
			Price:        dec("2500.75"),
		},
		&ComboLine{
			LineCommon: LineCommon{ID: "combo-1", Name: "Combo Cachorro", Quantity: 1},
			FinalPrice: dec("5000"),
			BasePrice:  dec("6000"),
		},
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(lines))
	}
	for i := range want {
		assertSameLine(t, i, want[i], lines[i])
	}
}

func TestDecodeCartLinesEmptyInput(t *testing.T) {
	lines, err := DecodeCartLines(nil)
	if err != nil || lines != nil {
		t.Fatalf("expected nil cart for empty input, got %v, %v", lines, err)
	}
	lines, err = DecodeCartLines([]byte("[]"))
	if err != nil || len(lines) != 0 {
		t.Fatalf("expected empty cart for empty array, got %v, %v", lines, err)
	}
}

func TestDecodeCartLinesRejectsMalformedData(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{name: "not json", data: `{not json`},
		{name: "object instead of array", data: `{"_id":"prod-1"}`},
		{name: "unknown type", data: `[{"_id":"x","type":"service","quantity":1}]`},
		{name: "missing type", data: `[{"_id":"x","quantity":1}]`},
		{name: "unknown purchase mode", data: `[{"_id":"x","type":"product","quantity":1,"purchaseMode":"gramos"}]`},
		{name: "zero quantity", data: `[{"_id":"x","type":"product","quantity":0}]`},
		{name: "negative quantity", data: `[{"_id":"x","type":"combo","quantity":-2}]`},
		{name: "missing id", data: `[{"type":"product","quantity":1}]`},
		{name: "bad amount", data: `[{"_id":"x","type":"product","quantity":1,"precio":"abc"}]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lines, err := DecodeCartLines([]byte(tc.data))
			if !errors.Is(err, ErrCartEncoding) {
				t.Fatalf("expected ErrCartEncoding, got %v", err)
			}
			if lines != nil {
				t.Fatalf("expected no lines, got %v", lines)
			}
		})
	}
}
