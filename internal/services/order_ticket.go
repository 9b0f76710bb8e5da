package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ticketHeader = []string{
	"MAYORISTA MASCOTAS",
	"Don Torcuato, Buenos Aires",
	"admin@mayoristamascotas.com",
	"TEL: 011 3475-0981",
}

const ticketRule = "--------------------------------"

// RenderOrderTicket renders the plain-text receipt printed for an order.
// Dates are shown in loc, or UTC when loc is nil.
func RenderOrderTicket(order Order, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	created := order.CreatedAt.In(loc)

	var b strings.Builder
	for _, line := range ticketHeader {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(ticketRule + "\n")

	fmt.Fprintf(&b, "FECHA: %s\n", created.Format("2/1/2006"))
	fmt.Fprintf(&b, "HORA: %s\n", created.Format("15:04"))
	fmt.Fprintf(&b, "CLIENTE: %s\n", order.ShippingData.Name)
	fmt.Fprintf(&b, "MÉTODO: %s\n", ticketPaymentLabel(order.PaymentMethod))
	b.WriteString(ticketRule + "\n")

	b.WriteString("DETALLE DE PRODUCTOS\n")
	b.WriteString("Cant  Descripción  Total\n")
	for _, item := range order.Items {
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		fmt.Fprintf(&b, "%d  %s  %s\n", item.Quantity, item.Name, FormatARS(lineTotal))
	}
	b.WriteString(ticketRule + "\n")

	if order.DiscountValue.IsPositive() {
		fmt.Fprintf(&b, "Desc. (%s): -%s\n", order.DiscountCode, FormatARS(order.DiscountValue))
	}
	if order.Surcharge.IsPositive() {
		fmt.Fprintf(&b, "Recargo: +%s\n", FormatARS(order.Surcharge))
	}
	fmt.Fprintf(&b, "TOTAL: %s ARS\n", FormatARS(order.Total))
	b.WriteString(ticketRule + "\n")

	b.WriteString("*¡Gracias por su compra!*\n")
	b.WriteString("*Los cambios se realizan con este ticket.*\n")
	b.WriteString(ticketReference(order.ID))
	return b.String()
}

// ticketPaymentLabel drops the surcharge hint, "Tarjeta (+10%)" prints as "Tarjeta".
func ticketPaymentLabel(method string) string {
	if idx := strings.Index(method, " ("); idx >= 0 {
		return method[:idx]
	}
	return method
}

func ticketReference(orderID string) string {
	id := []rune(orderID)
	if len(id) > 6 {
		id = id[len(id)-6:]
	}
	return strings.ToUpper(string(id))
}
