package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	domain "github.com/tomisteven/cliente-natural-pets/internal/domain"
	"github.com/tomisteven/cliente-natural-pets/internal/repositories"
)

var (
	errCartStoreStorageRequired = errors.New("cart store: storage is required")
	errCartStoreSessionRequired = errors.New("cart store: session id is required")
)

// DefaultMinimumLoosePurchase is the display-currency minimum for carts holding only loose weight.
var DefaultMinimumLoosePurchase = decimal.NewFromInt(14000)

// AddOptions selects how a product is added. Combos ignore both fields.
type AddOptions struct {
	PurchaseMode PurchaseMode
	ExtraWeight  decimal.Decimal
}

// CartStoreDeps wires the collaborators of a single visitor cart.
type CartStoreDeps struct {
	Storage   repositories.CartStorage
	SessionID string
	Notifier  Notifier
	Logger    func(context.Context, string, map[string]any)
	// MinimumLoosePurchase overrides DefaultMinimumLoosePurchase when valid. Zero disables the minimum.
	MinimumLoosePurchase decimal.NullDecimal
}

// CartStore owns the lines and the applied discount of one cart. Totals are derived on every read.
type CartStore struct {
	storage   repositories.CartStorage
	sessionID string
	notifier  Notifier
	logger    func(context.Context, string, map[string]any)
	minimum   decimal.Decimal

	mu       sync.Mutex
	lines    []CartLine
	discount *AppliedDiscount
}

// PricedLine is a cart line together with its derived prices.
type PricedLine struct {
	Line      CartLine
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// CartSnapshot is a consistent view of the cart taken under a single lock.
type CartSnapshot struct {
	Lines                []PricedLine
	Count                int
	Subtotal             decimal.Decimal
	Discount             *AppliedDiscount
	DiscountedTotal      decimal.Decimal
	HasLooseWeight       bool
	HasOnlyLooseWeight   bool
	MinimumLoosePurchase decimal.Decimal
}

// OpenCartStore rehydrates the cart persisted for the session. Missing or unreadable data yields an empty cart.
func OpenCartStore(ctx context.Context, deps CartStoreDeps) (*CartStore, error) {
	if deps.Storage == nil {
		return nil, errCartStoreStorageRequired
	}
	sessionID := strings.TrimSpace(deps.SessionID)
	if sessionID == "" {
		return nil, errCartStoreSessionRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	minimum := DefaultMinimumLoosePurchase
	if deps.MinimumLoosePurchase.Valid && !deps.MinimumLoosePurchase.Decimal.IsNegative() {
		minimum = deps.MinimumLoosePurchase.Decimal
	}

	store := &CartStore{
		storage:   deps.Storage,
		sessionID: sessionID,
		notifier:  deps.Notifier,
		logger:    logger,
		minimum:   minimum,
	}
	store.lines = store.load(ctx)
	return store, nil
}

func (s *CartStore) load(ctx context.Context) []CartLine {
	data, err := s.storage.Get(ctx, s.sessionID, repositories.CartStorageKey)
	if err != nil {
		if !isStorageNotFound(err) {
			s.logger(ctx, "cart.load_failed", map[string]any{
				"sessionID": s.sessionID,
				"error":     err.Error(),
			})
		}
		return nil
	}
	lines, err := domain.DecodeCartLines(data)
	if err != nil {
		s.logger(ctx, "cart.load_corrupt", map[string]any{
			"sessionID": s.sessionID,
			"error":     err.Error(),
		})
		return nil
	}
	return lines
}

// SessionID returns the identifier the cart is persisted under.
func (s *CartStore) SessionID() string {
	return s.sessionID
}

// AddToCart increments the line matching (id, kind, mode) or appends a new one with quantity 1.
// An existing line keeps its extra weight. It always succeeds and returns the resulting line.
func (s *CartStore) AddToCart(ctx context.Context, item CatalogItem, kind LineKind, opts AddOptions) CartLine {
	mode := opts.PurchaseMode
	if mode == "" || kind == domain.LineKindCombo {
		mode = domain.PurchaseModeBag
	}
	key := LineKey{ID: item.ID, Kind: kind, Mode: mode}

	s.mu.Lock()
	var (
		result  CartLine
		updated bool
	)
	if idx := s.indexOfKey(key); idx >= 0 {
		s.lines[idx].Common().Quantity++
		result = s.lines[idx].Clone()
		updated = true
	} else {
		line := domain.NewCartLine(item, kind, mode, opts.ExtraWeight)
		s.lines = append(s.lines, line)
		result = line.Clone()
	}
	s.persistLocked(ctx)
	s.mu.Unlock()

	if updated {
		s.notify(ctx, NotificationSuccess, fmt.Sprintf("%s actualizado en el carrito", item.Name))
	} else {
		s.notify(ctx, NotificationSuccess, fmt.Sprintf("%s agregado al carrito", item.Name))
	}
	return result
}

// RemoveFromCart removes the first line matching (id, kind), whatever its purchase mode.
func (s *CartStore) RemoveFromCart(ctx context.Context, id string, kind LineKind) bool {
	return s.removeWhere(ctx, func(line CartLine) bool {
		return line.Common().ID == id && line.Kind() == kind
	})
}

// RemoveLine removes the line with exactly the given key.
func (s *CartStore) RemoveLine(ctx context.Context, key LineKey) bool {
	return s.removeWhere(ctx, func(line CartLine) bool {
		return line.Key() == key
	})
}

func (s *CartStore) removeWhere(ctx context.Context, match func(CartLine) bool) bool {
	s.mu.Lock()
	idx := -1
	for i, line := range s.lines {
		if match(line) {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	name := s.lines[idx].Common().Name
	s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify(ctx, NotificationError, fmt.Sprintf("%s eliminado del carrito", name))
	return true
}

// UpdateQuantity sets the quantity of the first line matching (id, kind). Quantities below 1 remove it.
// Other purchase-mode variants of the same product keep their quantities; use UpdateLineQuantity to
// target a specific variant.
func (s *CartStore) UpdateQuantity(ctx context.Context, id string, kind LineKind, quantity int) bool {
	if quantity < 1 {
		return s.RemoveFromCart(ctx, id, kind)
	}
	return s.setQuantityWhere(ctx, quantity, func(line CartLine) bool {
		return line.Common().ID == id && line.Kind() == kind
	})
}

// UpdateLineQuantity sets the quantity of the line with exactly the given key.
func (s *CartStore) UpdateLineQuantity(ctx context.Context, key LineKey, quantity int) bool {
	if quantity < 1 {
		return s.RemoveLine(ctx, key)
	}
	return s.setQuantityWhere(ctx, quantity, func(line CartLine) bool {
		return line.Key() == key
	})
}

func (s *CartStore) setQuantityWhere(ctx context.Context, quantity int, match func(CartLine) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range s.lines {
		if match(line) {
			line.Common().Quantity = quantity
			s.persistLocked(ctx)
			return true
		}
	}
	return false
}

// ClearCart empties the lines and drops the applied discount together.
func (s *CartStore) ClearCart(ctx context.Context) {
	s.mu.Lock()
	s.lines = nil
	s.discount = nil
	s.persistLocked(ctx)
	s.mu.Unlock()
}

// ApplyDiscount replaces any previously applied discount.
func (s *CartStore) ApplyDiscount(_ context.Context, discount AppliedDiscount) {
	s.mu.Lock()
	applied := discount
	s.discount = &applied
	s.mu.Unlock()
}

// RemoveDiscount clears the applied discount. Calling it without a discount is a no-op.
func (s *CartStore) RemoveDiscount(_ context.Context) {
	s.mu.Lock()
	s.discount = nil
	s.mu.Unlock()
}

// Discount returns a copy of the applied discount, or nil.
func (s *CartStore) Discount() *AppliedDiscount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyDiscount(s.discount)
}

// Lines returns a deep copy of the lines in insertion order.
func (s *CartStore) Lines() []CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneLines(s.lines)
}

// ItemPrice returns the per-unit price of line.
func (s *CartStore) ItemPrice(line CartLine) decimal.Decimal {
	return ItemPrice(line)
}

// Total is the sum of unit price times quantity over all lines.
func (s *CartStore) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CartTotal(s.lines)
}

// Count is the sum of all line quantities.
func (s *CartStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CartCount(s.lines)
}

// DiscountedTotal applies the current discount to the cart total.
func (s *CartStore) DiscountedTotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return DiscountedTotal(CartTotal(s.lines), s.discount)
}

// HasOnlyLooseWeight reports a non-empty cart in which every line is sold loose.
func (s *CartStore) HasOnlyLooseWeight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return onlyLoose(s.lines)
}

// HasLooseWeight reports whether any line is sold loose.
func (s *CartStore) HasLooseWeight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return anyLoose(s.lines)
}

// MinimumLoosePurchase returns the configured minimum for loose-only carts.
func (s *CartStore) MinimumLoosePurchase() decimal.Decimal {
	return s.minimum
}

// MeetsMinimumPurchase reports whether a display-currency total satisfies the loose-only minimum.
// Carts holding any bag or combo have no minimum.
func (s *CartStore) MeetsMinimumPurchase(convertedTotal decimal.Decimal) bool {
	if !s.HasOnlyLooseWeight() {
		return true
	}
	return convertedTotal.GreaterThanOrEqual(s.minimum)
}

// Snapshot prices every line and aggregates the totals from the same committed state.
func (s *CartStore) Snapshot() CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	priced := make([]PricedLine, 0, len(s.lines))
	for _, line := range s.lines {
		priced = append(priced, PricedLine{
			Line:      line.Clone(),
			UnitPrice: ItemPrice(line),
			LineTotal: LineTotal(line),
		})
	}
	subtotal := CartTotal(s.lines)
	return CartSnapshot{
		Lines:                priced,
		Count:                CartCount(s.lines),
		Subtotal:             subtotal,
		Discount:             copyDiscount(s.discount),
		DiscountedTotal:      DiscountedTotal(subtotal, s.discount),
		HasLooseWeight:       anyLoose(s.lines),
		HasOnlyLooseWeight:   onlyLoose(s.lines),
		MinimumLoosePurchase: s.minimum,
	}
}

func (s *CartStore) indexOfKey(key LineKey) int {
	for i, line := range s.lines {
		if line.Key() == key {
			return i
		}
	}
	return -1
}

// persistLocked writes the lines through to storage. Failures are logged and never surface.
func (s *CartStore) persistLocked(ctx context.Context) {
	data, err := domain.EncodeCartLines(s.lines)
	if err != nil {
		s.logger(ctx, "cart.persist_failed", map[string]any{
			"sessionID": s.sessionID,
			"error":     err.Error(),
		})
		return
	}
	if err := s.storage.Put(ctx, s.sessionID, repositories.CartStorageKey, data); err != nil {
		s.logger(ctx, "cart.persist_failed", map[string]any{
			"sessionID": s.sessionID,
			"error":     err.Error(),
		})
	}
}

func (s *CartStore) notify(ctx context.Context, level NotificationLevel, message string) {
	deliverNotification(ctx, s.notifier, Notification{Level: level, Message: message})
}

func onlyLoose(lines []CartLine) bool {
	if len(lines) == 0 {
		return false
	}
	for _, line := range lines {
		if line.Mode() != domain.PurchaseModeLoose {
			return false
		}
	}
	return true
}

func anyLoose(lines []CartLine) bool {
	for _, line := range lines {
		if line.Mode() == domain.PurchaseModeLoose {
			return true
		}
	}
	return false
}

func copyDiscount(discount *AppliedDiscount) *AppliedDiscount {
	if discount == nil {
		return nil
	}
	copied := *discount
	return &copied
}

func isStorageNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

func isStorageUnavailable(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsUnavailable()
	}
	return false
}
