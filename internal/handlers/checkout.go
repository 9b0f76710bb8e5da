package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomisteven/cliente-natural-pets/internal/platform/httpx"
	"github.com/tomisteven/cliente-natural-pets/internal/services"
)

// CheckoutProcessor reconciles and submits carts.
type CheckoutProcessor interface {
	Summary(cart *services.CartStore, paymentMethod string) services.CheckoutSummary
	Submit(ctx context.Context, cmd services.SubmitCheckoutCommand) (services.CheckoutResult, error)
}

// CheckoutHandlersDeps wires the collaborators of the checkout endpoints.
type CheckoutHandlersDeps struct {
	Sessions CartSessionOpener
	Checkout CheckoutProcessor
	Currency services.DisplayCurrency
	// Idempotency guards submissions against double posts. Optional.
	Idempotency func(http.Handler) http.Handler
}

// CheckoutHandlers exposes the checkout summary and submission endpoints.
type CheckoutHandlers struct {
	sessions    CartSessionOpener
	checkout    CheckoutProcessor
	currency    services.DisplayCurrency
	idempotency func(http.Handler) http.Handler
}

// NewCheckoutHandlers constructs checkout handlers. Anonymous callers may check out; identified
// callers additionally get their order persisted.
func NewCheckoutHandlers(deps CheckoutHandlersDeps) *CheckoutHandlers {
	return &CheckoutHandlers{
		sessions:    deps.Sessions,
		checkout:    deps.Checkout,
		currency:    deps.Currency,
		idempotency: deps.Idempotency,
	}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/summary", h.summary)
	submit := r
	if h.idempotency != nil {
		submit = r.With(h.idempotency)
	}
	submit.Post("/", h.submit)
}

type checkoutSummaryResponse struct {
	Totals               totalsPayload   `json:"totals"`
	Currency             currencyPayload `json:"currency"`
	Count                int             `json:"count"`
	HasOnlyLooseWeight   bool            `json:"hasOnlyLooseWeight"`
	MeetsMinimumPurchase bool            `json:"meetsMinimumPurchase"`
	MinimumLoosePurchase string          `json:"minimumLoosePurchase"`
}

type checkoutShippingRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	City  string `json:"city"`
}

type checkoutSubmitRequest struct {
	Shipping      checkoutShippingRequest `json:"shipping"`
	PaymentMethod string                  `json:"paymentMethod"`
	Observations  string                  `json:"observations"`
}

type checkoutSubmitResponse struct {
	SubmissionID string             `json:"submissionId"`
	Persisted    bool               `json:"persisted"`
	OrderID      string             `json:"orderId,omitempty"`
	Totals       totalsPayload      `json:"totals"`
	Currency     currencyPayload    `json:"currency"`
	Items        []orderItemPayload `json:"items"`
	Message      string             `json:"message"`
	Link         string             `json:"link"`
	SubmittedAt  string             `json:"submittedAt"`
}

func (h *CheckoutHandlers) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.openSession(ctx, w)
	if !ok {
		return
	}

	summary := h.checkout.Summary(session.Cart, r.URL.Query().Get("paymentMethod"))
	writeJSON(w, http.StatusOK, checkoutSummaryResponse{
		Totals:               buildTotalsPayload(summary.Totals, h.currency),
		Currency:             buildCurrencyPayload(summary.Currency),
		Count:                summary.Count,
		HasOnlyLooseWeight:   summary.HasOnlyLooseWeight,
		MeetsMinimumPurchase: summary.MeetsMinimumPurchase,
		MinimumLoosePurchase: money(summary.MinimumLoosePurchase),
	})
}

func (h *CheckoutHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req checkoutSubmitRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	session, ok := h.openSession(ctx, w)
	if !ok {
		return
	}

	result, err := h.checkout.Submit(ctx, services.SubmitCheckoutCommand{
		Cart: session.Cart,
		Shipping: services.ShippingData{
			Name:  req.Shipping.Name,
			Phone: req.Shipping.Phone,
			Email: req.Shipping.Email,
			City:  req.Shipping.City,
		},
		PaymentMethod: req.PaymentMethod,
		Observations:  req.Observations,
		Registered:    isRegistered(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	// The cart was cleared by the submission; fence any coupon validation still in flight.
	session.Discounts.RemoveDiscount(ctx)

	resp := checkoutSubmitResponse{
		SubmissionID: result.SubmissionID,
		Persisted:    result.Persistence.Succeeded(),
		Totals:       buildTotalsPayload(result.Totals, h.currency),
		Currency:     buildCurrencyPayload(result.Currency),
		Items:        buildOrderItems(result.Items),
		Message:      result.Message,
		Link:         result.Link,
		SubmittedAt:  formatTime(result.SubmittedAt),
	}
	if result.Persistence.Order != nil {
		resp.OrderID = result.Persistence.Order.ID
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *CheckoutHandlers) openSession(ctx context.Context, w http.ResponseWriter) (*services.CartSession, bool) {
	if h.sessions == nil || h.checkout == nil || h.currency == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	session, err := openCartSession(ctx, h.sessions)
	if err != nil {
		writeServiceError(ctx, w, err)
		return nil, false
	}
	return session, true
}
