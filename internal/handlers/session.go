package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/tomisteven/cliente-natural-pets/internal/platform/requestctx"
	"github.com/tomisteven/cliente-natural-pets/internal/services"
)

const (
	defaultSessionCookie = "cart_session"
	// CartSessionHeader lets non-browser clients carry the session without cookies.
	CartSessionHeader = "X-Cart-Session"
)

// SessionCookieConfig controls how the cart session cookie is issued.
type SessionCookieConfig struct {
	Name   string
	MaxAge time.Duration
	Secure bool
	NewID  func() string
}

// CartSessionMiddleware resolves the visitor's cart session from the cookie or header and issues a new
// one when absent or malformed. The session id is stored on the request context and on the logger.
func CartSessionMiddleware(cfg SessionCookieConfig) func(http.Handler) http.Handler {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = defaultSessionCookie
	}
	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := sessionFromRequest(r, name)
			if !services.ValidSessionID(id) {
				id = newID()
				cookie := &http.Cookie{
					Name:     name,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   cfg.Secure,
					SameSite: http.SameSiteLaxMode,
				}
				if cfg.MaxAge > 0 {
					cookie.MaxAge = int(cfg.MaxAge.Seconds())
				}
				http.SetCookie(w, cookie)
			}
			w.Header().Set(CartSessionHeader, id)

			ctx := requestctx.WithCartSession(r.Context(), id)
			ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(zap.String("cart_session", id)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFromRequest(r *http.Request, cookieName string) string {
	if cookie, err := r.Cookie(cookieName); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value
		}
	}
	return strings.TrimSpace(r.Header.Get(CartSessionHeader))
}
