package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tomisteven/cliente-natural-pets/internal/platform/pagination"
	"github.com/tomisteven/cliente-natural-pets/internal/repositories"
)

const ticketLocationName = "America/Argentina/Buenos_Aires"

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates the backend rejected the change as conflicting.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the backend could not be reached.
	ErrOrderUnavailable = errors.New("order: backend unavailable")

	errOrderGatewayRequired = errors.New("order service: order gateway is required")
)

// OrderServiceDeps bundles collaborators required to construct the admin order service.
type OrderServiceDeps struct {
	Orders OrderGateway
	// Archive is optional. When nil, tickets are rendered without being stored.
	Archive TicketArchive
	// Location renders ticket dates. Defaults to Buenos Aires time.
	Location *time.Location
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// OrderListFilter narrows and pages the admin order listing.
type OrderListFilter struct {
	Status   OrderStatus
	PageSize int
	Offset   int
}

// OrderPage is one page of orders, newest first.
type OrderPage struct {
	Orders        []Order
	Total         int
	NextPageToken string
}

// OrderTicket is a rendered printable ticket.
type OrderTicket struct {
	OrderID    string
	Body       string
	ArchiveURL string
}

// OrderService exposes the administrator order operations.
type OrderService struct {
	orders   OrderGateway
	archive  TicketArchive
	location *time.Location
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into an OrderService.
func NewOrderService(deps OrderServiceDeps) (*OrderService, error) {
	if deps.Orders == nil {
		return nil, errOrderGatewayRequired
	}

	location := deps.Location
	if location == nil {
		location = defaultTicketLocation()
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &OrderService{
		orders:   deps.Orders,
		archive:  deps.Archive,
		location: location,
		logger:   logger,
	}, nil
}

// ListOrders returns the orders matching filter, newest first.
func (s *OrderService) ListOrders(ctx context.Context, filter OrderListFilter) (OrderPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return OrderPage{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, filter.Status)
	}

	orders, err := s.orders.ListOrders(ctx)
	if err != nil {
		return OrderPage{}, s.mapGatewayError(err)
	}

	matched := make([]Order, 0, len(orders))
	for _, order := range orders {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		matched = append(matched, order)
	}
	slices.SortStableFunc(matched, func(a, b Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	start, end, next := pagination.Window(len(matched), filter.Offset, filter.PageSize)
	return OrderPage{
		Orders:        matched[start:end],
		Total:         len(matched),
		NextPageToken: next,
	}, nil
}

// ListCustomerOrders returns the orders of the identified caller, newest first.
func (s *OrderService) ListCustomerOrders(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.ListMyOrders(ctx)
	if err != nil {
		return nil, s.mapGatewayError(err)
	}
	sorted := slices.Clone(orders)
	slices.SortStableFunc(sorted, func(a, b Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return sorted, nil
}

// UpdateStatus assigns status to the order identified by orderID.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, status OrderStatus) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	status = OrderStatus(strings.ToLower(strings.TrimSpace(string(status))))
	if !status.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
	}

	order, err := s.orders.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		return Order{}, s.mapGatewayError(err)
	}
	s.logger(ctx, "order.status_updated", map[string]any{
		"orderID": orderID,
		"status":  string(status),
	})
	return order, nil
}

// Ticket renders the printable ticket of an order and archives it when an archive is configured.
// Archive failures are logged and the rendered ticket is still returned.
func (s *OrderService) Ticket(ctx context.Context, orderID string) (OrderTicket, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderTicket{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	orders, err := s.orders.ListOrders(ctx)
	if err != nil {
		return OrderTicket{}, s.mapGatewayError(err)
	}
	idx := slices.IndexFunc(orders, func(o Order) bool { return o.ID == orderID })
	if idx < 0 {
		return OrderTicket{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	ticket := OrderTicket{
		OrderID: orderID,
		Body:    RenderOrderTicket(orders[idx], s.location),
	}
	if s.archive == nil {
		return ticket, nil
	}

	location, err := s.archive.ArchiveTicket(ctx, orderID, []byte(ticket.Body))
	if err != nil {
		s.logger(ctx, "order.ticket_archive_failed", map[string]any{
			"orderID": orderID,
			"error":   err.Error(),
		})
		return ticket, nil
	}
	ticket.ArchiveURL = location
	return ticket, nil
}

func (s *OrderService) mapGatewayError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}

func defaultTicketLocation() *time.Location {
	if loc, err := time.LoadLocation(ticketLocationName); err == nil {
		return loc
	}
	return time.FixedZone("ART", -3*60*60)
}
