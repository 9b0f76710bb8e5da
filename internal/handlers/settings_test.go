package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomisteven/cliente-natural-pets/internal/services"
)

type stubSettingsStore struct {
	settings  services.Settings
	getErr    error
	updateErr error
	updates   []services.Settings
}

func (s *stubSettingsStore) GetSettings(context.Context) (services.Settings, error) {
	return s.settings, s.getErr
}

func (s *stubSettingsStore) UpdateSettings(_ context.Context, settings services.Settings) (services.Settings, error) {
	if s.updateErr != nil {
		return services.Settings{}, s.updateErr
	}
	s.updates = append(s.updates, settings)
	s.settings = settings
	return settings, nil
}

func newSettingsTestRouter(t *testing.T, store *stubSettingsStore) http.Handler {
	t.Helper()
	currency, err := services.NewCurrencyService(services.CurrencyServiceDeps{Settings: store})
	require.NoError(t, err)
	handlers := NewSettingsHandlers(currency)

	r := chi.NewRouter()
	handlers.PublicRoutes(r)
	r.Route("/admin", handlers.AdminRoutes)
	return r
}

func TestSettingsHandlers_GetSettings(t *testing.T) {
	router := newSettingsTestRouter(t, &stubSettingsStore{settings: services.Settings{SuggestedPricePercentage: decimal.NewFromInt(25)}})

	rr := doJSON(t, router, http.MethodGet, "/settings", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "25", decodeBody[settingsResponse](t, rr).SuggestedPricePercentage)
}

func TestSettingsHandlers_SuggestedPrice(t *testing.T) {
	router := newSettingsTestRouter(t, &stubSettingsStore{settings: services.Settings{SuggestedPricePercentage: decimal.NewFromInt(25)}})

	rr := doJSON(t, router, http.MethodGet, "/pricing/suggested?amount=1000", "")

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decodeBody[suggestedPriceResponse](t, rr)
	assert.Equal(t, "1000.00", resp.Amount)
	assert.Equal(t, "25", resp.SuggestedPricePercentage)
	assert.Equal(t, "1250.00", resp.SuggestedPrice)
	assert.Equal(t, "$\u00a01.250", resp.SuggestedPriceFormatted)

	for _, query := range []string{"", "?amount=abc", "?amount=-1"} {
		rr := doJSON(t, router, http.MethodGet, "/pricing/suggested"+query, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, query)
	}
}

func TestSettingsHandlers_UpdateSettings(t *testing.T) {
	store := &stubSettingsStore{}
	router := newSettingsTestRouter(t, store)

	rr := doJSON(t, router, http.MethodPut, "/admin/settings", `{"suggestedPricePercentage":30}`)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "30", decodeBody[settingsResponse](t, rr).SuggestedPricePercentage)
	require.Len(t, store.updates, 1)
	assert.True(t, store.updates[0].SuggestedPricePercentage.Equal(decimal.NewFromInt(30)))

	rr = doJSON(t, router, http.MethodGet, "/settings", "")
	assert.Equal(t, "30", decodeBody[settingsResponse](t, rr).SuggestedPricePercentage)
}

func TestSettingsHandlers_UpdateSettingsErrors(t *testing.T) {
	cases := []struct {
		name   string
		store  *stubSettingsStore
		body   string
		status int
		code   string
	}{
		{name: "negative", store: &stubSettingsStore{}, body: `{"suggestedPricePercentage":-5}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "missing field", store: &stubSettingsStore{}, body: `{}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "backend down", store: &stubSettingsStore{updateErr: errBackendDown}, body: `{"suggestedPricePercentage":15}`, status: http.StatusServiceUnavailable, code: "backend_unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newSettingsTestRouter(t, tc.store)
			rr := doJSON(t, router, http.MethodPut, "/admin/settings", tc.body)
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
			assert.Equal(t, tc.code, decodeBody[errorBody](t, rr).Error)
		})
	}
}
