package handlers

import (
	"github.com/shopspring/decimal"

	domain "github.com/tomisteven/cliente-natural-pets/internal/domain"
	"github.com/tomisteven/cliente-natural-pets/internal/services"
)

// Amounts travel as fixed two-decimal strings so clients never see float rounding.
func money(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

type notificationPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func buildNotifications(items []services.Notification) []notificationPayload {
	if len(items) == 0 {
		return nil
	}
	out := make([]notificationPayload, 0, len(items))
	for _, item := range items {
		out = append(out, notificationPayload{Level: string(item.Level), Message: item.Message})
	}
	return out
}

type discountPayload struct {
	Code           string `json:"code"`
	Type           string `json:"type"`
	Value          string `json:"value"`
	MinPurchase    string `json:"minPurchase,omitempty"`
	TargetAudience string `json:"targetAudience,omitempty"`
}

func buildDiscountPayload(discount *services.AppliedDiscount) *discountPayload {
	if discount == nil {
		return nil
	}
	payload := &discountPayload{
		Code:           discount.Code,
		Type:           string(discount.Kind),
		Value:          discount.Value.String(),
		TargetAudience: string(discount.Audience),
	}
	if discount.MinPurchase.IsPositive() {
		payload.MinPurchase = money(discount.MinPurchase)
	}
	return payload
}

type cartLinePayload struct {
	ID                 string `json:"id"`
	Kind               string `json:"kind"`
	Name               string `json:"name"`
	PurchaseMode       string `json:"purchaseMode"`
	Quantity           int    `json:"quantity"`
	ExtraWeight        string `json:"extraWeight,omitempty"`
	UnitPrice          string `json:"unitPrice"`
	UnitPriceFormatted string `json:"unitPriceFormatted"`
	LineTotal          string `json:"lineTotal"`
	LineTotalFormatted string `json:"lineTotalFormatted"`
}

type cartPayload struct {
	SessionID                string            `json:"sessionId"`
	Lines                    []cartLinePayload `json:"lines"`
	Count                    int               `json:"count"`
	Subtotal                 string            `json:"subtotal"`
	SubtotalFormatted        string            `json:"subtotalFormatted"`
	Discount                 *discountPayload  `json:"discount"`
	DiscountedTotal          string            `json:"discountedTotal"`
	DiscountedTotalFormatted string            `json:"discountedTotalFormatted"`
	HasLooseWeight           bool              `json:"hasLooseWeight"`
	HasOnlyLooseWeight       bool              `json:"hasOnlyLooseWeight"`
	MinimumLoosePurchase     string            `json:"minimumLoosePurchase"`
	MeetsMinimumPurchase     bool              `json:"meetsMinimumPurchase"`
}

func buildCartPayload(sessionID string, snapshot services.CartSnapshot, currency services.DisplayCurrency) cartPayload {
	display := func(amount decimal.Decimal) string {
		return currency.Format(currency.ConvertToDisplay(amount))
	}

	lines := make([]cartLinePayload, 0, len(snapshot.Lines))
	for _, priced := range snapshot.Lines {
		common := priced.Line.Common()
		line := cartLinePayload{
			ID:                 common.ID,
			Kind:               string(priced.Line.Kind()),
			Name:               common.Name,
			PurchaseMode:       string(priced.Line.Mode()),
			Quantity:           common.Quantity,
			UnitPrice:          money(priced.UnitPrice),
			UnitPriceFormatted: display(priced.UnitPrice),
			LineTotal:          money(priced.LineTotal),
			LineTotalFormatted: display(priced.LineTotal),
		}
		if product, ok := priced.Line.(*domain.ProductLine); ok && product.ExtraWeight.IsPositive() {
			line.ExtraWeight = product.ExtraWeight.String()
		}
		lines = append(lines, line)
	}

	converted := currency.ConvertToDisplay(snapshot.DiscountedTotal)
	meets := !snapshot.HasOnlyLooseWeight || converted.GreaterThanOrEqual(snapshot.MinimumLoosePurchase)
	return cartPayload{
		SessionID:                sessionID,
		Lines:                    lines,
		Count:                    snapshot.Count,
		Subtotal:                 money(snapshot.Subtotal),
		SubtotalFormatted:        display(snapshot.Subtotal),
		Discount:                 buildDiscountPayload(snapshot.Discount),
		DiscountedTotal:          money(snapshot.DiscountedTotal),
		DiscountedTotalFormatted: display(snapshot.DiscountedTotal),
		HasLooseWeight:           snapshot.HasLooseWeight,
		HasOnlyLooseWeight:       snapshot.HasOnlyLooseWeight,
		MinimumLoosePurchase:     money(snapshot.MinimumLoosePurchase),
		MeetsMinimumPurchase:     meets,
	}
}

type totalsPayload struct {
	PaymentMethod            string           `json:"paymentMethod"`
	Subtotal                 string           `json:"subtotal"`
	SubtotalFormatted        string           `json:"subtotalFormatted"`
	Discount                 *discountPayload `json:"discount"`
	DiscountValue            string           `json:"discountValue"`
	DiscountValueFormatted   string           `json:"discountValueFormatted"`
	DiscountedTotal          string           `json:"discountedTotal"`
	DiscountedTotalFormatted string           `json:"discountedTotalFormatted"`
	SurchargePercentage      string           `json:"surchargePercentage"`
	Surcharge                string           `json:"surcharge"`
	SurchargeFormatted       string           `json:"surchargeFormatted"`
	Total                    string           `json:"total"`
	TotalFormatted           string           `json:"totalFormatted"`
}

func buildTotalsPayload(totals services.CheckoutTotals, currency services.DisplayCurrency) totalsPayload {
	display := func(amount decimal.Decimal) string {
		return currency.Format(currency.ConvertToDisplay(amount))
	}
	return totalsPayload{
		PaymentMethod:            totals.PaymentMethod,
		Subtotal:                 money(totals.Subtotal),
		SubtotalFormatted:        display(totals.Subtotal),
		Discount:                 buildDiscountPayload(totals.Discount),
		DiscountValue:            money(totals.DiscountValue),
		DiscountValueFormatted:   display(totals.DiscountValue),
		DiscountedTotal:          money(totals.DiscountedTotal),
		DiscountedTotalFormatted: display(totals.DiscountedTotal),
		SurchargePercentage:      totals.SurchargePercentage.String(),
		Surcharge:                money(totals.Surcharge),
		SurchargeFormatted:       display(totals.Surcharge),
		Total:                    money(totals.Total),
		TotalFormatted:           display(totals.Total),
	}
}

type currencyPayload struct {
	ExchangeRate      string `json:"exchangeRate"`
	SubtotalConverted string `json:"subtotalConverted"`
	TotalConverted    string `json:"totalConverted"`
}

func buildCurrencyPayload(meta services.CurrencyMeta) currencyPayload {
	return currencyPayload{
		ExchangeRate:      meta.ExchangeRate.String(),
		SubtotalConverted: money(meta.SubtotalConverted),
		TotalConverted:    money(meta.TotalConverted),
	}
}

type orderItemPayload struct {
	ProductRef string `json:"productRef"`
	Name       string `json:"name"`
	UnitPrice  string `json:"unitPrice"`
	Quantity   int    `json:"quantity"`
	Kind       string `json:"kind"`
}

func buildOrderItems(items []services.OrderItem) []orderItemPayload {
	out := make([]orderItemPayload, 0, len(items))
	for _, item := range items {
		out = append(out, orderItemPayload{
			ProductRef: item.ProductRef,
			Name:       item.Name,
			UnitPrice:  money(item.UnitPrice),
			Quantity:   item.Quantity,
			Kind:       string(item.Kind),
		})
	}
	return out
}

type shippingPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
	City  string `json:"city"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	Status          string             `json:"status"`
	Items           []orderItemPayload `json:"items"`
	Subtotal        string             `json:"subtotal"`
	DiscountCode    string             `json:"discountCode,omitempty"`
	DiscountValue   string             `json:"discountValue"`
	DiscountedTotal string             `json:"discountedTotal"`
	Surcharge       string             `json:"surcharge"`
	Total           string             `json:"total"`
	ShippingData    shippingPayload    `json:"shippingData"`
	PaymentMethod   string             `json:"paymentMethod"`
	Observations    string             `json:"observations,omitempty"`
	Currency        currencyPayload    `json:"currency"`
	CreatedAt       string             `json:"createdAt,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	return orderPayload{
		ID:              order.ID,
		Status:          string(order.Status),
		Items:           buildOrderItems(order.Items),
		Subtotal:        money(order.Subtotal),
		DiscountCode:    order.DiscountCode,
		DiscountValue:   money(order.DiscountValue),
		DiscountedTotal: money(order.DiscountedTotal),
		Surcharge:       money(order.Surcharge),
		Total:           money(order.Total),
		ShippingData: shippingPayload{
			Name:  order.ShippingData.Name,
			Phone: order.ShippingData.Phone,
			Email: order.ShippingData.Email,
			City:  order.ShippingData.City,
		},
		PaymentMethod: order.PaymentMethod,
		Observations:  order.Observations,
		Currency:      buildCurrencyPayload(order.Currency),
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

func buildOrderPayloads(orders []services.Order) []orderPayload {
	out := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		out = append(out, buildOrderPayload(order))
	}
	return out
}
