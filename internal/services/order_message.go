package services

import (
	"fmt"
	"strings"

	domain "github.com/tomisteven/cliente-natural-pets/internal/domain"
	"github.com/tomisteven/cliente-natural-pets/internal/platform/textutil"
)

const (
	// DefaultStoreName heads every order message.
	DefaultStoreName = "Oud & Essence"
	// DefaultChatBaseURL is the click-to-chat endpoint that receives the order message.
	DefaultChatBaseURL = "https://wa.me"
	// DefaultChatPhone is the destination number of the order message.
	DefaultChatPhone = "5491122921805"
)

const freeTextMaxRunes = 500

// OrderMessageInput is everything the order message is composed from.
type OrderMessageInput struct {
	StoreName     string
	Shipping      ShippingData
	PaymentMethod string
	Observations  string
	Lines         []CartLine
	Total         string
}

// SanitizeFreeText strips markup from user-entered text and trims it.
func SanitizeFreeText(value string) string {
	return textutil.CleanFreeText(value, freeTextMaxRunes)
}

// BuildOrderMessage renders the plain-text order summary sent through the chat channel.
func BuildOrderMessage(in OrderMessageInput) string {
	storeName := strings.TrimSpace(in.StoreName)
	if storeName == "" {
		storeName = DefaultStoreName
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*NUEVO PEDIDO - %s*\n\n", storeName)
	fmt.Fprintf(&b, "*Cliente:* %s\n", in.Shipping.Name)
	fmt.Fprintf(&b, "*WhatsApp:* %s\n", in.Shipping.Phone)
	fmt.Fprintf(&b, "*Ciudad/Zona:* %s\n", in.Shipping.City)
	fmt.Fprintf(&b, "*Pago:* %s\n", in.PaymentMethod)
	if in.Observations != "" {
		fmt.Fprintf(&b, "*Observaciones:* %s\n", in.Observations)
	}

	b.WriteString("\n*Detalle del pedido:*\n")
	for _, line := range in.Lines {
		label := "Producto"
		if line.Kind() == domain.LineKindCombo {
			label = "Combo"
		}
		fmt.Fprintf(&b, "- %s x%d (%s)\n", line.Common().Name, line.Common().Quantity, label)
	}

	fmt.Fprintf(&b, "\n*TOTAL:* %s\n\n", in.Total)
	b.WriteString("_Coordinar envío y pago por aquí._")
	return b.String()
}

// OrderMessageLink builds the click-to-chat link carrying text.
func OrderMessageLink(baseURL, phone, text string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultChatBaseURL
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		phone = DefaultChatPhone
	}
	return base + "/" + phone + "?text=" + EncodeURIComponent(text)
}

// EncodeURIComponent percent-encodes every byte outside A-Z a-z 0-9 and - _ . ! ~ * ' ( ).
// Unlike url.QueryEscape it keeps those marks and encodes spaces as %20.
func EncodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if uriComponentUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0F])
	}
	return b.String()
}

func uriComponentUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
