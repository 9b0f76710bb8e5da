package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomisteven/cliente-natural-pets/internal/platform/httpx"
	"github.com/tomisteven/cliente-natural-pets/internal/platform/pagination"
	"github.com/tomisteven/cliente-natural-pets/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	ticketArchiveHeader  = "X-Ticket-Archive"
)

// OrderAdministrator exposes the order operations behind the admin and customer endpoints.
type OrderAdministrator interface {
	ListOrders(ctx context.Context, filter services.OrderListFilter) (services.OrderPage, error)
	ListCustomerOrders(ctx context.Context) ([]services.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status services.OrderStatus) (services.Order, error)
	Ticket(ctx context.Context, orderID string) (services.OrderTicket, error)
}

// OrderHandlers exposes order listings, status changes and printable tickets.
type OrderHandlers struct {
	orders OrderAdministrator
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders OrderAdministrator) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// AdminRoutes registers the administrator order endpoints. Callers must mount it behind admin authentication.
func (h *OrderHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders", h.listOrders)
	r.Put("/orders/{orderID}/status", h.updateStatus)
	r.Get("/orders/{orderID}/ticket", h.ticket)
}

// MeRoutes registers the endpoints scoped to the authenticated customer.
func (h *OrderHandlers) MeRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders", h.listMyOrders)
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	Total         int            `json:"total"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
		FilterFields:    []string{"status"},
	})
	if err != nil {
		writePaginationError(ctx, w, err)
		return
	}

	page, err := h.orders.ListOrders(ctx, services.OrderListFilter{
		Status:   services.OrderStatus(strings.ToLower(params.Filters["status"])),
		PageSize: params.PageSize,
		Offset:   params.Offset,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderListResponse{
		Orders:        buildOrderPayloads(page.Orders),
		Total:         page.Total,
		NextPageToken: page.NextPageToken,
	})
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	if !isRegistered(ctx) {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orders, err := h.orders.ListCustomerOrders(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderListResponse{
		Orders: buildOrderPayloads(orders),
		Total:  len(orders),
	})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req updateOrderStatusRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		writeInvalidRequest(ctx, w, "status is required")
		return
	}

	order, err := h.orders.UpdateStatus(ctx, chi.URLParam(r, "orderID"), services.OrderStatus(req.Status))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) ticket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}

	ticket, err := h.orders.Ticket(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "ticket-"+ticket.OrderID+".txt"))
	if ticket.ArchiveURL != "" {
		w.Header().Set(ticketArchiveHeader, ticket.ArchiveURL)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ticket.Body))
}

func (h *OrderHandlers) available(ctx context.Context, w http.ResponseWriter) bool {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func writePaginationError(ctx context.Context, w http.ResponseWriter, err error) {
	message := "invalid pagination parameters"
	if errors.Is(err, pagination.ErrInvalidPageSize) || errors.Is(err, pagination.ErrInvalidPageToken) || errors.Is(err, pagination.ErrInvalidFilter) {
		message = err.Error()
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
}
