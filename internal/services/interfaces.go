package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/tomisteven/cliente-natural-pets/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	CartLine         = domain.CartLine
	ProductLine      = domain.ProductLine
	ComboLine        = domain.ComboLine
	LineKey          = domain.LineKey
	LineKind         = domain.LineKind
	PurchaseMode     = domain.PurchaseMode
	CatalogItem      = domain.CatalogItem
	AppliedDiscount  = domain.AppliedDiscount
	DiscountKind     = domain.DiscountKind
	DiscountAudience = domain.DiscountAudience
	Order            = domain.Order
	OrderItem        = domain.OrderItem
	OrderStatus      = domain.OrderStatus
	ShippingData     = domain.ShippingData
	CurrencyMeta     = domain.CurrencyMeta
	Settings         = domain.Settings
)

// NotificationLevel classifies user-visible cart notifications.
type NotificationLevel string

const (
	// NotificationSuccess accompanies additions and quantity bumps.
	NotificationSuccess NotificationLevel = "success"
	// NotificationError accompanies removals.
	NotificationError NotificationLevel = "error"
)

// Notification is a short user-facing message emitted by cart mutations.
type Notification struct {
	Level   NotificationLevel
	Message string
}

// Notifier receives cart notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts ordinary functions to Notifier.
type NotifierFunc func(context.Context, Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// Timer is the handle returned by AfterFunc hooks. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. Tests substitute a manual scheduler.
type AfterFunc func(d time.Duration, f func()) Timer

func defaultAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ValidateDiscountCommand carries the inputs of a coupon validation call.
type ValidateDiscountCommand struct {
	Code       string
	CartTotal  decimal.Decimal
	Registered bool
}

// DiscountValidator delegates coupon rules to the backend.
type DiscountValidator interface {
	ValidateDiscount(ctx context.Context, cmd ValidateDiscountCommand) (AppliedDiscount, error)
}

// CatalogReader resolves the pricing attributes of products and combos.
type CatalogReader interface {
	GetProduct(ctx context.Context, id string) (CatalogItem, error)
	GetCombo(ctx context.Context, id string) (CatalogItem, error)
}

// SettingsStore reads and writes storefront settings.
type SettingsStore interface {
	GetSettings(ctx context.Context) (Settings, error)
	UpdateSettings(ctx context.Context, settings Settings) (Settings, error)
}

// CreateOrderCommand is the payload persisted for identified callers.
type CreateOrderCommand struct {
	Items           []OrderItem
	Subtotal        decimal.Decimal
	DiscountCode    string
	DiscountValue   decimal.Decimal
	DiscountedTotal decimal.Decimal
	Total           decimal.Decimal
	Surcharge       decimal.Decimal
	ShippingData    ShippingData
	PaymentMethod   string
	Observations    string
	Currency        CurrencyMeta
}

// OrderGateway persists and administers orders in the backend.
type OrderGateway interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
	ListMyOrders(ctx context.Context) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status OrderStatus) (Order, error)
}

// LinkOpener hands the composed message link to whoever opens it.
type LinkOpener interface {
	OpenLink(ctx context.Context, link string) error
}

// OrderSubmittedEvent is published after every checkout submission.
type OrderSubmittedEvent struct {
	SubmissionID  string
	OrderID       string
	Persisted     bool
	Total         decimal.Decimal
	PaymentMethod string
	LineCount     int
	SubmittedAt   time.Time
}

// OrderEventPublisher emits checkout events to downstream consumers.
type OrderEventPublisher interface {
	PublishOrderSubmitted(ctx context.Context, event OrderSubmittedEvent) error
}

// TicketArchive stores rendered order tickets and returns their location.
type TicketArchive interface {
	ArchiveTicket(ctx context.Context, orderID string, body []byte) (string, error)
}
