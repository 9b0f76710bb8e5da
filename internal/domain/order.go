package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates the lifecycle states an administrator may assign.
type OrderStatus string

const (
	// OrderStatusPending is the initial state of every submitted order.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates the order is being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order left the warehouse.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every valid status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Valid reports whether the status is one of OrderStatuses.
func (s OrderStatus) Valid() bool {
	for _, candidate := range OrderStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// ShippingData holds the contact fields captured at checkout.
type ShippingData struct {
	Name  string
	Phone string
	Email string
	City  string
}

// OrderItem snapshots a cart line at order time.
type OrderItem struct {
	ProductRef string
	Name       string
	UnitPrice  decimal.Decimal
	Quantity   int
	Kind       LineKind
}

// CurrencyMeta records the conversion applied to the displayed amounts.
type CurrencyMeta struct {
	ExchangeRate      decimal.Decimal
	SubtotalConverted decimal.Decimal
	TotalConverted    decimal.Decimal
}

// Order is an immutable checkout snapshot. Only Status changes after creation.
type Order struct {
	ID              string
	Items           []OrderItem
	Subtotal        decimal.Decimal
	DiscountCode    string
	DiscountValue   decimal.Decimal
	DiscountedTotal decimal.Decimal
	Surcharge       decimal.Decimal
	// Total is the payable amount: Subtotal - DiscountValue + Surcharge.
	Total         decimal.Decimal
	ShippingData  ShippingData
	PaymentMethod string
	Observations  string
	Currency      CurrencyMeta
	Status        OrderStatus
	CreatedAt     time.Time
}
