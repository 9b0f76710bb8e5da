package services

import (
	"strings"
	"testing"
	"time"

	domain "github.com/tomisteven/cliente-natural-pets/internal/domain"
)

func ticketOrder() Order {
	return Order{
		ID: "ord_01hx9abcdef",
		Items: []OrderItem{
			{ProductRef: "p1", Name: "Alimento Gato 7kg", UnitPrice: dec("12000"), Quantity: 2, Kind: domain.LineKindProduct},
		},
		Subtotal:        dec("24000"),
		DiscountCode:    "BIENVENIDA",
		DiscountValue:   dec("2400"),
		DiscountedTotal: dec("21600"),
		Surcharge:       dec("756"),
		Total:           dec("22356"),
		ShippingData:    ShippingData{Name: "Ana", Phone: "11", City: "Tigre"},
		PaymentMethod:   "Transferencia (+3.5%)",
		Status:          domain.OrderStatusPending,
		CreatedAt:       time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC),
	}
}

func TestRenderOrderTicket(t *testing.T) {
	got := RenderOrderTicket(ticketOrder(), time.UTC)

	want := strings.Join([]string{
		"MAYORISTA MASCOTAS",
		"Don Torcuato, Buenos Aires",
		"admin@mayoristamascotas.com",
		"TEL: 011 3475-0981",
		ticketRule,
		"FECHA: 5/3/2024",
		"HORA: 14:30",
		"CLIENTE: Ana",
		"MÉTODO: Transferencia",
		ticketRule,
		"DETALLE DE PRODUCTOS",
		"Cant  Descripción  Total",
		"2  Alimento Gato 7kg  $\u00a024.000",
		ticketRule,
		"Desc. (BIENVENIDA): -$\u00a02.400",
		"Recargo: +$\u00a0756",
		"TOTAL: $\u00a022.356 ARS",
		ticketRule,
		"*¡Gracias por su compra!*",
		"*Los cambios se realizan con este ticket.*",
		"ABCDEF",
	}, "\n")
	if got != want {
		t.Fatalf("unexpected ticket:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderOrderTicketOmitsZeroAdjustments(t *testing.T) {
	order := ticketOrder()
	order.DiscountValue = dec("0")
	order.Surcharge = dec("0")
	order.PaymentMethod = "Efectivo"
	order.ID = "abc"

	got := RenderOrderTicket(order, nil)
	if strings.Contains(got, "Desc.") || strings.Contains(got, "Recargo") {
		t.Fatalf("expected no adjustment rows, got:\n%s", got)
	}
	if !strings.Contains(got, "MÉTODO: Efectivo\n") {
		t.Fatalf("expected unchanged payment label, got:\n%s", got)
	}
	if !strings.HasSuffix(got, "\nABC") {
		t.Fatalf("expected short id reference, got:\n%s", got)
	}
}

func TestRenderOrderTicketUsesLocation(t *testing.T) {
	loc := time.FixedZone("ART", -3*60*60)
	got := RenderOrderTicket(ticketOrder(), loc)
	if !strings.Contains(got, "HORA: 11:30\n") {
		t.Fatalf("expected local time, got:\n%s", got)
	}
}
