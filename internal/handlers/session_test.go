package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomisteven/cliente-natural-pets/internal/platform/requestctx"
)

const (
	knownSessionID  = "01HZY3Q4V8M6K2N1P0R9S7T5W3"
	issuedSessionID = "01HZY3Q4V8M6K2N1P0R9S7T5W4"
)

func newSessionTestHandler(seen *string) http.Handler {
	mw := CartSessionMiddleware(SessionCookieConfig{
		MaxAge: 30 * time.Minute,
		Secure: true,
		NewID:  func() string { return issuedSessionID },
	})
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = requestctx.CartSessionID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestCartSessionMiddlewareIssuesCookie(t *testing.T) {
	var seen string
	handler := newSessionTestHandler(&seen)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cart", nil))

	assert.Equal(t, issuedSessionID, seen)
	assert.Equal(t, issuedSessionID, rec.Header().Get(CartSessionHeader))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	assert.Equal(t, "cart_session", cookie.Name)
	assert.Equal(t, issuedSessionID, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 1800, cookie.MaxAge)
}

func TestCartSessionMiddlewareReusesExistingSession(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(*http.Request)
	}{
		{
			name: "cookie",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "cart_session", Value: knownSessionID})
			},
		},
		{
			name: "header",
			prepare: func(r *http.Request) {
				r.Header.Set(CartSessionHeader, knownSessionID)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			handler := newSessionTestHandler(&seen)

			req := httptest.NewRequest(http.MethodGet, "/cart", nil)
			tc.prepare(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, knownSessionID, seen)
			assert.Equal(t, knownSessionID, rec.Header().Get(CartSessionHeader))
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestCartSessionMiddlewareReplacesMalformedSession(t *testing.T) {
	var seen string
	handler := newSessionTestHandler(&seen)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.AddCookie(&http.Cookie{Name: "cart_session", Value: "not-a-ulid"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, issuedSessionID, seen)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, issuedSessionID, rec.Result().Cookies()[0].Value)
}
