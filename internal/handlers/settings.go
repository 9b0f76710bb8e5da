package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tomisteven/cliente-natural-pets/internal/platform/httpx"
	"github.com/tomisteven/cliente-natural-pets/internal/services"
)

// SettingsProvider exposes the suggested retail markup.
type SettingsProvider interface {
	SuggestedPricePercentage(ctx context.Context) decimal.Decimal
	SuggestedPrice(ctx context.Context, base decimal.Decimal) decimal.Decimal
	Format(amount decimal.Decimal) string
	UpdateSuggestedPricePercentage(ctx context.Context, pct decimal.Decimal) (services.Settings, error)
}

// SettingsHandlers serves the storefront settings and the suggested price calculator.
type SettingsHandlers struct {
	settings SettingsProvider
}

// NewSettingsHandlers constructs the settings handlers.
func NewSettingsHandlers(settings SettingsProvider) *SettingsHandlers {
	return &SettingsHandlers{settings: settings}
}

// PublicRoutes registers the unauthenticated read endpoints.
func (h *SettingsHandlers) PublicRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/settings", h.getSettings)
	r.Get("/pricing/suggested", h.suggestedPrice)
}

// AdminRoutes registers the settings update endpoint. Callers must mount it behind admin authentication.
func (h *SettingsHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Put("/settings", h.updateSettings)
}

type settingsResponse struct {
	SuggestedPricePercentage string `json:"suggestedPricePercentage"`
}

type updateSettingsRequest struct {
	SuggestedPricePercentage *decimal.Decimal `json:"suggestedPricePercentage"`
}

type suggestedPriceResponse struct {
	Amount                   string `json:"amount"`
	SuggestedPricePercentage string `json:"suggestedPricePercentage"`
	SuggestedPrice           string `json:"suggestedPrice"`
	SuggestedPriceFormatted  string `json:"suggestedPriceFormatted"`
}

func (h *SettingsHandlers) getSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		SuggestedPricePercentage: h.settings.SuggestedPricePercentage(ctx).String(),
	})
}

func (h *SettingsHandlers) suggestedPrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("amount"))
	if raw == "" {
		writeInvalidRequest(ctx, w, "amount is required")
		return
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil || amount.IsNegative() {
		writeInvalidRequest(ctx, w, "amount must be a non-negative number")
		return
	}

	pct := h.settings.SuggestedPricePercentage(ctx)
	price := h.settings.SuggestedPrice(ctx, amount)
	writeJSON(w, http.StatusOK, suggestedPriceResponse{
		Amount:                   money(amount),
		SuggestedPricePercentage: pct.String(),
		SuggestedPrice:           money(price),
		SuggestedPriceFormatted:  h.settings.Format(price),
	})
}

func (h *SettingsHandlers) updateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	var req updateSettingsRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if req.SuggestedPricePercentage == nil {
		writeInvalidRequest(ctx, w, "suggestedPricePercentage is required")
		return
	}

	saved, err := h.settings.UpdateSuggestedPricePercentage(ctx, *req.SuggestedPricePercentage)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		SuggestedPricePercentage: saved.SuggestedPricePercentage.String(),
	})
}

func (h *SettingsHandlers) available(ctx context.Context, w http.ResponseWriter) bool {
	if h.settings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("settings_unavailable", "settings are unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}
