package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	domain "github.com/tomisteven/cliente-natural-pets/internal/domain"
	"github.com/tomisteven/cliente-natural-pets/internal/services"
)

type orderItemPayload struct {
	Product  string `json:"product"`
	Name     string `json:"nombre"`
	Price    number `json:"precio"`
	Quantity int    `json:"quantity"`
	Type     string `json:"type"`
}

type shippingPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	City  string `json:"city"`
}

type orderPayload struct {
	ID              string             `json:"_id,omitempty"`
	Items           []orderItemPayload `json:"items"`
	Subtotal        number             `json:"subtotal"`
	DiscountCode    string             `json:"discountCode,omitempty"`
	DiscountValue   number             `json:"discountValue"`
	DiscountedTotal number             `json:"discountedTotal"`
	Total           number             `json:"total"`
	Surcharge       number             `json:"surcharge"`
	ShippingData    shippingPayload    `json:"shippingData"`
	PaymentMethod   string             `json:"paymentMethod"`
	Observations    string             `json:"observations,omitempty"`
	ExchangeRate    number             `json:"exchangeRate"`
	SubtotalARS     number             `json:"subtotalARS"`
	TotalARS        number             `json:"totalARS"`
	Status          string             `json:"status,omitempty"`
	CreatedAt       *time.Time         `json:"createdAt,omitempty"`
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

// CreateOrder persists a checkout snapshot for an identified caller.
func (c *Client) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	body := orderPayload{
		Items:           make([]orderItemPayload, 0, len(cmd.Items)),
		Subtotal:        num(cmd.Subtotal),
		DiscountCode:    cmd.DiscountCode,
		DiscountValue:   num(cmd.DiscountValue),
		DiscountedTotal: num(cmd.DiscountedTotal),
		Total:           num(cmd.Total),
		Surcharge:       num(cmd.Surcharge),
		ShippingData: shippingPayload{
			Name:  cmd.ShippingData.Name,
			Phone: cmd.ShippingData.Phone,
			Email: cmd.ShippingData.Email,
			City:  cmd.ShippingData.City,
		},
		PaymentMethod: cmd.PaymentMethod,
		Observations:  cmd.Observations,
		ExchangeRate:  num(cmd.Currency.ExchangeRate),
		SubtotalARS:   num(cmd.Currency.SubtotalConverted),
		TotalARS:      num(cmd.Currency.TotalConverted),
	}
	for _, item := range cmd.Items {
		body.Items = append(body.Items, orderItemPayload{
			Product:  item.ProductRef,
			Name:     item.Name,
			Price:    num(item.UnitPrice),
			Quantity: item.Quantity,
			Type:     string(item.Kind),
		})
	}

	var created orderPayload
	if err := c.sendJSON(ctx, "create order", http.MethodPost, "orders", body, &created); err != nil {
		return domain.Order{}, err
	}
	return created.toDomain(), nil
}

// ListOrders returns every order. The backend only answers administrators.
func (c *Client) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return c.listOrders(ctx, "list orders", "orders")
}

// ListMyOrders returns the orders of the identified caller.
func (c *Client) ListMyOrders(ctx context.Context) ([]domain.Order, error) {
	return c.listOrders(ctx, "list my orders", "orders/my-orders")
}

func (c *Client) listOrders(ctx context.Context, op, endpoint string) ([]domain.Order, error) {
	var payload []orderPayload
	if err := c.getJSON(ctx, op, endpoint, &payload); err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(payload))
	for _, p := range payload {
		orders = append(orders, p.toDomain())
	}
	return orders, nil
}

// UpdateOrderStatus assigns status to the order.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error) {
	var updated orderPayload
	endpoint := "orders/" + url.PathEscape(strings.TrimSpace(orderID))
	if err := c.sendJSON(ctx, "update order status", http.MethodPut, endpoint, orderStatusRequest{Status: string(status)}, &updated); err != nil {
		return domain.Order{}, err
	}
	if updated.ID == "" {
		updated.ID = orderID
		updated.Status = string(status)
	}
	return updated.toDomain(), nil
}

func (p orderPayload) toDomain() domain.Order {
	order := domain.Order{
		ID:              p.ID,
		Items:           make([]domain.OrderItem, 0, len(p.Items)),
		Subtotal:        p.Subtotal.Decimal,
		DiscountCode:    p.DiscountCode,
		DiscountValue:   p.DiscountValue.Decimal,
		DiscountedTotal: p.DiscountedTotal.Decimal,
		Surcharge:       p.Surcharge.Decimal,
		Total:           p.Total.Decimal,
		ShippingData: domain.ShippingData{
			Name:  p.ShippingData.Name,
			Phone: p.ShippingData.Phone,
			Email: p.ShippingData.Email,
			City:  p.ShippingData.City,
		},
		PaymentMethod: p.PaymentMethod,
		Observations:  p.Observations,
		Currency: domain.CurrencyMeta{
			ExchangeRate:      p.ExchangeRate.Decimal,
			SubtotalConverted: p.SubtotalARS.Decimal,
			TotalConverted:    p.TotalARS.Decimal,
		},
		Status: domain.OrderStatus(strings.ToLower(strings.TrimSpace(p.Status))),
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	if p.CreatedAt != nil {
		order.CreatedAt = p.CreatedAt.UTC()
	}
	for _, item := range p.Items {
		kind, ok := domain.ParseLineKind(item.Type)
		if !ok {
			kind = domain.LineKindProduct
		}
		order.Items = append(order.Items, domain.OrderItem{
			ProductRef: item.Product,
			Name:       item.Name,
			UnitPrice:  item.Price.Decimal,
			Quantity:   item.Quantity,
			Kind:       kind,
		})
	}
	return order
}
