package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tomisteven/cliente-natural-pets/internal/platform/auth"
	"github.com/tomisteven/cliente-natural-pets/internal/repositories/memory"
	"github.com/tomisteven/cliente-natural-pets/internal/services"
)

var testSessionID = ulid.Make().String()

type lookupError struct {
	notFound bool
}

func (e lookupError) Error() string {
	if e.notFound {
		return "backend: not found"
	}
	return "backend: unavailable"
}

func (e lookupError) IsNotFound() bool    { return e.notFound }
func (e lookupError) IsConflict() bool    { return false }
func (e lookupError) IsUnavailable() bool { return !e.notFound }

type stubCatalog struct {
	products map[string]services.CatalogItem
	combos   map[string]services.CatalogItem
	err      error
}

func (s *stubCatalog) GetProduct(_ context.Context, id string) (services.CatalogItem, error) {
	if s.err != nil {
		return services.CatalogItem{}, s.err
	}
	item, ok := s.products[id]
	if !ok {
		return services.CatalogItem{}, lookupError{notFound: true}
	}
	return item, nil
}

func (s *stubCatalog) GetCombo(_ context.Context, id string) (services.CatalogItem, error) {
	if s.err != nil {
		return services.CatalogItem{}, s.err
	}
	item, ok := s.combos[id]
	if !ok {
		return services.CatalogItem{}, lookupError{notFound: true}
	}
	return item, nil
}

type stubValidator struct {
	mu       sync.Mutex
	discount services.AppliedDiscount
	err      error
	calls    []services.ValidateDiscountCommand
}

func (s *stubValidator) ValidateDiscount(_ context.Context, cmd services.ValidateDiscountCommand) (services.AppliedDiscount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, cmd)
	return s.discount, s.err
}

type identityCurrency struct{}

func (identityCurrency) ExchangeRate() decimal.Decimal { return decimal.NewFromInt(1) }

func (identityCurrency) ConvertToDisplay(amount decimal.Decimal) decimal.Decimal { return amount }

func (identityCurrency) Format(amount decimal.Decimal) string { return services.FormatARS(amount) }

func newTestSessions(t *testing.T, validator services.DiscountValidator) *services.CartSessions {
	t.Helper()
	sessions, err := services.NewCartSessions(services.CartSessionsDeps{
		Storage:   memory.NewCartStorage(),
		Discounts: validator,
		StatusTTL: time.Hour,
	})
	require.NoError(t, err)
	return sessions
}

func sampleCatalog() *stubCatalog {
	return &stubCatalog{
		products: map[string]services.CatalogItem{
			"croquetas-adulto": {
				ID:            "croquetas-adulto",
				Name:          "Croquetas Adulto 15kg",
				Price:         decimal.NewFromInt(1000),
				ListPrice:     decimal.NewFromInt(10000),
				HighTierPrice: decimal.NewFromInt(900),
				UnitWeight:    decimal.NewFromInt(10),
				IsFood:        true,
			},
			"collar-nylon": {
				ID:    "collar-nylon",
				Name:  "Collar Nylon",
				Price: decimal.NewFromInt(500),
			},
		},
		combos: map[string]services.CatalogItem{
			"combo-cachorro": {
				ID:         "combo-cachorro",
				Name:       "Combo Cachorro",
				FinalPrice: decimal.NewFromInt(2500),
				BasePrice:  decimal.NewFromInt(3000),
			},
		},
	}
}

// withIdentity attaches a verified identity the way the optional auth middleware would.
func withIdentity(uid string, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithIdentity(r.Context(), auth.NewIdentity(uid, "token-"+uid, roles...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func mountTestRouter(path string, register RouteRegistrar, mw ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Route(path, func(group chi.Router) {
		group.Use(CartSessionMiddleware(SessionCookieConfig{}))
		for _, m := range mw {
			group.Use(m)
		}
		register(group)
	})
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(CartSessionHeader, testSessionID)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

var errBackendDown = errors.New("connection refused")
