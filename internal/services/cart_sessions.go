package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/tomisteven/cliente-natural-pets/internal/repositories"
)

var (
	errCartSessionsStorageRequired   = errors.New("cart sessions: storage is required")
	errCartSessionsValidatorRequired = errors.New("cart sessions: discount validator is required")
)

// ErrCartSessionInvalid indicates a missing or malformed session identifier.
var ErrCartSessionInvalid = errors.New("cart sessions: invalid session id")

const defaultCartSessionIdleTTL = 24 * time.Hour

// CartSessionsDeps configures the per-visitor cart registry.
type CartSessionsDeps struct {
	Storage              repositories.CartStorage
	Discounts            DiscountValidator
	Notifier             Notifier
	Clock                func() time.Time
	IdleTTL              time.Duration
	MinimumLoosePurchase decimal.NullDecimal
	StatusTTL            time.Duration
	AfterFunc            AfterFunc
	Logger               func(context.Context, string, map[string]any)
	IDGenerator          func() string
}

// CartSession bundles the cart of one visitor with its coupon resolver.
type CartSession struct {
	ID        string
	Cart      *CartStore
	Discounts *DiscountResolver

	lastSeen time.Time
}

// CartSessions keeps live carts in memory and rehydrates them from storage on first use.
type CartSessions struct {
	deps   CartSessionsDeps
	now    func() time.Time
	ttl    time.Duration
	newID  func() string
	logger func(context.Context, string, map[string]any)

	mu       sync.Mutex
	sessions map[string]*CartSession
}

// NewCartSessions validates dependencies and constructs an empty registry.
func NewCartSessions(deps CartSessionsDeps) (*CartSessions, error) {
	if deps.Storage == nil {
		return nil, errCartSessionsStorageRequired
	}
	if deps.Discounts == nil {
		return nil, errCartSessionsValidatorRequired
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	ttl := deps.IdleTTL
	if ttl <= 0 {
		ttl = defaultCartSessionIdleTTL
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &CartSessions{
		deps:     deps,
		now:      func() time.Time { return clock().UTC() },
		ttl:      ttl,
		newID:    idGen,
		logger:   logger,
		sessions: make(map[string]*CartSession),
	}, nil
}

// NewSessionID returns a fresh session identifier.
func (r *CartSessions) NewSessionID() string {
	return r.newID()
}

// ValidSessionID reports whether id is a well-formed session identifier.
func ValidSessionID(id string) bool {
	_, err := ulid.ParseStrict(strings.TrimSpace(id))
	return err == nil
}

// Open returns the live session for id, loading its persisted cart when it is not in memory.
func (r *CartSessions) Open(ctx context.Context, id string) (*CartSession, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrCartSessionInvalid
	}

	r.mu.Lock()
	if session, ok := r.sessions[id]; ok {
		session.lastSeen = r.now()
		r.mu.Unlock()
		return session, nil
	}
	r.mu.Unlock()

	// Storage reads happen outside the registry lock so one slow load does not stall other visitors.
	cart, err := OpenCartStore(ctx, CartStoreDeps{
		Storage:              r.deps.Storage,
		SessionID:            id,
		Notifier:             r.deps.Notifier,
		Logger:               r.logger,
		MinimumLoosePurchase: r.deps.MinimumLoosePurchase,
	})
	if err != nil {
		return nil, err
	}
	resolver, err := NewDiscountResolver(DiscountResolverDeps{
		Validator: r.deps.Discounts,
		Cart:      cart,
		StatusTTL: r.deps.StatusTTL,
		AfterFunc: r.deps.AfterFunc,
		Logger:    r.logger,
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[id]; ok {
		existing.lastSeen = r.now()
		resolver.Close()
		return existing, nil
	}
	session := &CartSession{
		ID:        id,
		Cart:      cart,
		Discounts: resolver,
		lastSeen:  r.now(),
	}
	r.sessions[id] = session
	return session, nil
}

// Sweep evicts sessions idle longer than the TTL and returns how many were dropped.
// Persisted lines survive eviction and are reloaded on the next Open.
func (r *CartSessions) Sweep(ctx context.Context) int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var evicted []*CartSession
	for id, session := range r.sessions {
		if session.lastSeen.Before(cutoff) {
			evicted = append(evicted, session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, session := range evicted {
		session.Discounts.Close()
	}
	if len(evicted) > 0 {
		r.logger(ctx, "cart.sessions_swept", map[string]any{
			"evicted": len(evicted),
		})
	}
	return len(evicted)
}

// Len returns the number of sessions held in memory.
func (r *CartSessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
