package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/tomisteven/cliente-natural-pets/internal/domain"
	"github.com/tomisteven/cliente-natural-pets/internal/platform/auth"
	"github.com/tomisteven/cliente-natural-pets/internal/platform/httpx"
	"github.com/tomisteven/cliente-natural-pets/internal/platform/requestctx"
	"github.com/tomisteven/cliente-natural-pets/internal/services"
)

// minLooseWeight is the smallest weight a loose line may be sold in.
var minLooseWeight = decimal.NewFromInt(1)

// CartSessionOpener returns the live cart session for a visitor.
type CartSessionOpener interface {
	Open(ctx context.Context, id string) (*services.CartSession, error)
}

// CartHandlersDeps wires the collaborators of the cart endpoints.
type CartHandlersDeps struct {
	Sessions CartSessionOpener
	Catalog  services.CatalogReader
	Currency services.DisplayCurrency
	// DiscountPerMinute caps coupon validations per cart session. Zero disables the limit.
	DiscountPerMinute int
	Clock             func() time.Time
}

// CartHandlers exposes the visitor cart and its coupon field.
type CartHandlers struct {
	sessions CartSessionOpener
	catalog  services.CatalogReader
	currency services.DisplayCurrency
	limiter  rateLimiter
}

// NewCartHandlers constructs the cart handlers. Authentication is optional on every cart route.
func NewCartHandlers(deps CartHandlersDeps) *CartHandlers {
	return &CartHandlers{
		sessions: deps.Sessions,
		catalog:  deps.Catalog,
		currency: deps.Currency,
		limiter:  newWindowRateLimiter(deps.DiscountPerMinute, time.Minute, deps.Clock),
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{kind}/{id}", h.updateItem)
	r.Delete("/items/{kind}/{id}", h.removeItem)
	r.Get("/discount", h.getDiscount)
	r.Post("/discount", h.applyDiscount)
	r.Delete("/discount", h.removeDiscount)
}

type cartResponse struct {
	Cart          cartPayload           `json:"cart"`
	Notifications []notificationPayload `json:"notifications,omitempty"`
}

type addCartItemRequest struct {
	ID           string           `json:"id"`
	Kind         string           `json:"kind"`
	PurchaseMode string           `json:"purchaseMode"`
	ExtraWeight  *decimal.Decimal `json:"extraWeight"`
}

type updateCartItemRequest struct {
	Quantity     *int    `json:"quantity"`
	PurchaseMode *string `json:"purchaseMode"`
}

type applyDiscountRequest struct {
	Code string `json:"code"`
}

type couponResponse struct {
	Status   string           `json:"status"`
	Message  string           `json:"message,omitempty"`
	Input    string           `json:"input,omitempty"`
	Discount *discountPayload `json:"discount"`
}

type applyDiscountResponse struct {
	Coupon couponResponse `json:"coupon"`
	Cart   cartPayload    `json:"cart"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.openSession(ctx, w)
	if !ok {
		return
	}
	h.writeCart(w, http.StatusOK, session, nil)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.openSession(ctx, w)
	if !ok {
		return
	}
	// The resolver is fenced first so an in-flight validation cannot re-apply a coupon to the empty cart.
	session.Discounts.RemoveDiscount(ctx)
	session.Cart.ClearCart(ctx)
	h.writeCart(w, http.StatusOK, session, nil)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req addCartItemRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		writeInvalidRequest(ctx, w, "id is required")
		return
	}
	kind, ok := domain.ParseLineKind(req.Kind)
	if !ok {
		writeInvalidRequest(ctx, w, fmt.Sprintf("unknown kind %q", req.Kind))
		return
	}
	mode, ok := domain.ParsePurchaseMode(req.PurchaseMode)
	if !ok {
		writeInvalidRequest(ctx, w, fmt.Sprintf("unknown purchaseMode %q", req.PurchaseMode))
		return
	}
	extra := decimal.Zero
	if req.ExtraWeight != nil {
		extra = *req.ExtraWeight
	}
	if extra.IsNegative() {
		writeInvalidRequest(ctx, w, "extraWeight must not be negative")
		return
	}

	session, ok := h.openSession(ctx, w)
	if !ok {
		return
	}

	var item services.CatalogItem
	var err error
	if kind == domain.LineKindCombo {
		item, err = h.catalog.GetCombo(ctx, id)
	} else {
		item, err = h.catalog.GetProduct(ctx, id)
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	opts := services.AddOptions{PurchaseMode: mode, ExtraWeight: extra}
	if kind == domain.LineKindProduct {
		if (mode == domain.PurchaseModeLoose || extra.IsPositive()) && !item.LooseEligible() {
			writeInvalidRequest(ctx, w, "product cannot be sold by weight")
			return
		}
		if mode == domain.PurchaseModeLoose && extra.LessThan(minLooseWeight) {
			writeInvalidRequest(ctx, w, "loose purchases require at least 1 weight unit")
			return
		}
	} else {
		opts = services.AddOptions{}
	}

	ctx, collector := services.WithNotificationCollector(ctx)
	session.Cart.AddToCart(ctx, item, kind, opts)
	h.writeCart(w, http.StatusOK, session, collector.Notifications())
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, id, ok := lineTarget(ctx, w, r)
	if !ok {
		return
	}

	var req updateCartItemRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if req.Quantity == nil {
		writeInvalidRequest(ctx, w, "quantity is required")
		return
	}

	session, ok := h.openSession(ctx, w)
	if !ok {
		return
	}

	ctx, collector := services.WithNotificationCollector(ctx)
	var found bool
	if req.PurchaseMode != nil {
		mode, valid := domain.ParsePurchaseMode(*req.PurchaseMode)
		if !valid {
			writeInvalidRequest(ctx, w, fmt.Sprintf("unknown purchaseMode %q", *req.PurchaseMode))
			return
		}
		found = session.Cart.UpdateLineQuantity(ctx, services.LineKey{ID: id, Kind: kind, Mode: mode}, *req.Quantity)
	} else {
		found = session.Cart.UpdateQuantity(ctx, id, kind, *req.Quantity)
	}
	if !found {
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "cart line not found", http.StatusNotFound))
		return
	}
	h.writeCart(w, http.StatusOK, session, collector.Notifications())
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind, id, ok := lineTarget(ctx, w, r)
	if !ok {
		return
	}
	session, ok := h.openSession(ctx, w)
	if !ok {
		return
	}

	ctx, collector := services.WithNotificationCollector(ctx)
	var found bool
	if raw := r.URL.Query().Get("purchaseMode"); raw != "" {
		mode, valid := domain.ParsePurchaseMode(raw)
		if !valid {
			writeInvalidRequest(ctx, w, fmt.Sprintf("unknown purchaseMode %q", raw))
			return
		}
		found = session.Cart.RemoveLine(ctx, services.LineKey{ID: id, Kind: kind, Mode: mode})
	} else {
		found = session.Cart.RemoveFromCart(ctx, id, kind)
	}
	if !found {
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "cart line not found", http.StatusNotFound))
		return
	}
	h.writeCart(w, http.StatusOK, session, collector.Notifications())
}

func (h *CartHandlers) getDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.openSession(ctx, w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, buildCouponResponse(session))
}

func (h *CartHandlers) applyDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req applyDiscountRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	session, ok := h.openSession(ctx, w)
	if !ok {
		return
	}
	if h.limiter != nil {
		if allowed, retry := h.limiter.Allow(session.ID); !allowed {
			writeRateLimited(ctx, w, retry, "too many coupon attempts")
			return
		}
	}

	if _, err := session.Discounts.Validate(ctx, req.Code, isRegistered(ctx)); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, applyDiscountResponse{
		Coupon: buildCouponResponse(session),
		Cart:   buildCartPayload(session.ID, session.Cart.Snapshot(), h.currency),
	})
}

func (h *CartHandlers) removeDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.openSession(ctx, w)
	if !ok {
		return
	}
	session.Discounts.RemoveDiscount(ctx)
	h.writeCart(w, http.StatusOK, session, nil)
}

func (h *CartHandlers) openSession(ctx context.Context, w http.ResponseWriter) (*services.CartSession, bool) {
	if h.sessions == nil || h.currency == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	session, err := openCartSession(ctx, h.sessions)
	if err != nil {
		writeServiceError(ctx, w, err)
		return nil, false
	}
	return session, true
}

func (h *CartHandlers) writeCart(w http.ResponseWriter, status int, session *services.CartSession, notes []services.Notification) {
	writeJSON(w, status, cartResponse{
		Cart:          buildCartPayload(session.ID, session.Cart.Snapshot(), h.currency),
		Notifications: buildNotifications(notes),
	})
}

func openCartSession(ctx context.Context, sessions CartSessionOpener) (*services.CartSession, error) {
	id := requestctx.CartSessionID(ctx)
	if id == "" {
		return nil, fmt.Errorf("%w: no cart session on request", services.ErrCartSessionInvalid)
	}
	return sessions.Open(ctx, id)
}

func lineTarget(ctx context.Context, w http.ResponseWriter, r *http.Request) (services.LineKind, string, bool) {
	kind, ok := domain.ParseLineKind(chi.URLParam(r, "kind"))
	if !ok {
		writeInvalidRequest(ctx, w, "kind must be product or combo")
		return "", "", false
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeInvalidRequest(ctx, w, "id is required")
		return "", "", false
	}
	return kind, id, true
}

func buildCouponResponse(session *services.CartSession) couponResponse {
	state := session.Discounts.State()
	return couponResponse{
		Status:   string(state.Status),
		Message:  state.Message,
		Input:    state.Input,
		Discount: buildDiscountPayload(session.Cart.Discount()),
	}
}

// isRegistered reports whether the caller presented a verified identity.
func isRegistered(ctx context.Context) bool {
	identity, ok := auth.IdentityFromContext(ctx)
	return ok && identity != nil && strings.TrimSpace(identity.UID) != ""
}
