package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/tomisteven/cliente-natural-pets/internal/domain"
	"github.com/tomisteven/cliente-natural-pets/internal/repositories/memory"
)

func TestNewCartSessionsRequiresDependencies(t *testing.T) {
	if _, err := NewCartSessions(CartSessionsDeps{Discounts: &stubDiscountValidator{}}); !errors.Is(err, errCartSessionsStorageRequired) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if _, err := NewCartSessions(CartSessionsDeps{Storage: memory.NewCartStorage()}); !errors.Is(err, errCartSessionsValidatorRequired) {
		t.Fatalf("expected validator error, got %v", err)
	}
}

func TestCartSessionsOpenReusesAndSweeps(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	storage := memory.NewCartStorage()
	sessions, err := NewCartSessions(CartSessionsDeps{
		Storage:   storage,
		Discounts: &stubDiscountValidator{},
		Clock:     func() time.Time { return now },
		IdleTTL:   time.Hour,
	})
	if err != nil {
		t.Fatalf("NewCartSessions: %v", err)
	}

	if _, err := sessions.Open(ctx, " "); !errors.Is(err, ErrCartSessionInvalid) {
		t.Fatalf("expected invalid session error, got %v", err)
	}

	id := sessions.NewSessionID()
	if !ValidSessionID(id) {
		t.Fatalf("generated id %q must be valid", id)
	}
	first, err := sessions.Open(ctx, id)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	first.Cart.AddToCart(ctx, comboItem(), domain.LineKindCombo, AddOptions{})
	first.Cart.ApplyDiscount(ctx, AppliedDiscount{Code: "TEN", Kind: domain.DiscountPercentage, Value: dec("10")})

	again, err := sessions.Open(ctx, id)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if again != first {
		t.Fatalf("expected the live session to be reused")
	}

	now = now.Add(30 * time.Minute)
	if n := sessions.Sweep(ctx); n != 0 {
		t.Fatalf("expected nothing evicted, got %d", n)
	}

	now = now.Add(2 * time.Hour)
	if n := sessions.Sweep(ctx); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if sessions.Len() != 0 {
		t.Fatalf("expected empty registry")
	}

	reloaded, err := sessions.Open(ctx, id)
	if err != nil {
		t.Fatalf("Open after sweep: %v", err)
	}
	if reloaded == first {
		t.Fatalf("expected a fresh session after eviction")
	}
	if reloaded.Cart.Count() != 1 {
		t.Fatalf("persisted lines must survive eviction")
	}
	if reloaded.Cart.Discount() != nil {
		t.Fatalf("discount is not persisted")
	}
}

func TestValidSessionID(t *testing.T) {
	if ValidSessionID("not-a-ulid") {
		t.Fatalf("expected invalid id")
	}
	if !ValidSessionID("01HZY3Q5J7M8N9P0R1S2T3V4W5") {
		t.Fatalf("expected valid ulid")
	}
}
