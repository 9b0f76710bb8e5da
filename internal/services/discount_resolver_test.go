package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/tomisteven/cliente-natural-pets/internal/domain"
)

type stubValidationResponse struct {
	discount AppliedDiscount
	err      error
	gate     chan struct{}
}

type stubDiscountValidator struct {
	mu        sync.Mutex
	calls     []ValidateDiscountCommand
	responses []stubValidationResponse
	fallback  stubValidationResponse
	entered   chan struct{}
}

func (s *stubDiscountValidator) ValidateDiscount(_ context.Context, cmd ValidateDiscountCommand) (AppliedDiscount, error) {
	s.mu.Lock()
	idx := len(s.calls)
	s.calls = append(s.calls, cmd)
	resp := s.fallback
	if idx < len(s.responses) {
		resp = s.responses[idx]
	}
	entered := s.entered
	s.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if resp.gate != nil {
		<-resp.gate
	}
	return resp.discount, resp.err
}

func (s *stubDiscountValidator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type manualTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := &manualTimer{d: d, fn: fn}
	s.timers = append(s.timers, timer)
	return timer
}

// fire runs every pending timer that was not stopped.
func (s *manualScheduler) fire() {
	s.mu.Lock()
	pending := s.timers
	s.timers = nil
	s.mu.Unlock()
	for _, timer := range pending {
		if !timer.stopped {
			timer.stopped = true
			timer.fn()
		}
	}
}

func newTestResolver(t *testing.T, validator DiscountValidator, scheduler *manualScheduler) (*DiscountResolver, *CartStore, *eventRecorder) {
	t.Helper()
	cart := newTestCartStore(t, nil)
	cart.AddToCart(context.Background(), comboItem(), domain.LineKindCombo, AddOptions{})
	recorder := &eventRecorder{}
	resolver, err := NewDiscountResolver(DiscountResolverDeps{
		Validator: validator,
		Cart:      cart,
		AfterFunc: scheduler.AfterFunc,
		Logger:    recorder.log,
	})
	if err != nil {
		t.Fatalf("NewDiscountResolver: %v", err)
	}
	return resolver, cart, recorder
}

func TestNewDiscountResolverRequiresDependencies(t *testing.T) {
	if _, err := NewDiscountResolver(DiscountResolverDeps{}); !errors.Is(err, errDiscountValidatorRequired) {
		t.Fatalf("expected validator error, got %v", err)
	}
	if _, err := NewDiscountResolver(DiscountResolverDeps{Validator: &stubDiscountValidator{}}); !errors.Is(err, errDiscountCartRequired) {
		t.Fatalf("expected cart error, got %v", err)
	}
}

func TestDiscountResolverValidateAppliesDiscount(t *testing.T) {
	validator := &stubDiscountValidator{fallback: stubValidationResponse{discount: AppliedDiscount{Code: "promo10", Kind: domain.DiscountPercentage, Value: dec("10")}}}
	scheduler := &manualScheduler{}
	resolver, cart, _ := newTestResolver(t, validator, scheduler)

	applied, err := resolver.Validate(context.Background(), "  promo10 ", true)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if applied.Code != "PROMO10" {
		t.Fatalf("expected upper-cased code, got %q", applied.Code)
	}
	if cmd := validator.calls[0]; cmd.Code != "PROMO10" || !cmd.Registered || !cmd.CartTotal.Equal(dec("5000")) {
		t.Fatalf("unexpected command %#v", cmd)
	}
	if !cart.DiscountedTotal().Equal(dec("4500")) {
		t.Fatalf("expected 4500, got %s", cart.DiscountedTotal())
	}

	state := resolver.State()
	if state.Status != CouponStatusSuccess || state.Input != "" {
		t.Fatalf("expected success with cleared input, got %#v", state)
	}
	if len(scheduler.timers) != 1 || scheduler.timers[0].d != defaultCouponStatusTTL {
		t.Fatalf("expected a 3s reset timer, got %#v", scheduler.timers)
	}

	scheduler.fire()
	if got := resolver.State().Status; got != CouponStatusIdle {
		t.Fatalf("expected idle after reset, got %s", got)
	}
}

func TestDiscountResolverEmptyCodeMakesNoRequest(t *testing.T) {
	validator := &stubDiscountValidator{}
	resolver, _, _ := newTestResolver(t, validator, &manualScheduler{})

	if _, err := resolver.Validate(context.Background(), "   ", false); !errors.Is(err, ErrDiscountCodeRequired) {
		t.Fatalf("expected code required, got %v", err)
	}
	if validator.callCount() != 0 {
		t.Fatalf("expected no validation call")
	}
	if resolver.State().Status != CouponStatusIdle {
		t.Fatalf("state must stay idle")
	}
}

func TestDiscountResolverRejection(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "backend reason", err: &DiscountRejectedError{Message: "El cupón expiró"}, want: "El cupón expiró"},
		{name: "no reason", err: &DiscountRejectedError{}, want: DefaultDiscountRejectionMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			validator := &stubDiscountValidator{fallback: stubValidationResponse{err: tc.err}}
			scheduler := &manualScheduler{}
			resolver, cart, _ := newTestResolver(t, validator, scheduler)
			cart.ApplyDiscount(context.Background(), AppliedDiscount{Code: "OLD", Kind: domain.DiscountFixed, Value: dec("100")})

			_, err := resolver.Validate(context.Background(), "bad", false)
			var rejected *DiscountRejectedError
			if !errors.As(err, &rejected) || !errors.Is(err, ErrDiscountRejected) {
				t.Fatalf("expected rejection, got %v", err)
			}
			if rejected.Message != tc.want {
				t.Fatalf("expected message %q, got %q", tc.want, rejected.Message)
			}
			state := resolver.State()
			if state.Status != CouponStatusError || state.Message != tc.want || state.Input != "BAD" {
				t.Fatalf("unexpected state %#v", state)
			}
			if d := cart.Discount(); d == nil || d.Code != "OLD" {
				t.Fatalf("rejection must not touch the applied discount")
			}

			scheduler.fire()
			state = resolver.State()
			if state.Status != CouponStatusIdle || state.Message != "" {
				t.Fatalf("expected error to clear, got %#v", state)
			}
			if validator.callCount() != 1 {
				t.Fatalf("reset must not re-attempt validation")
			}
		})
	}
}

func TestDiscountResolverBackendFailure(t *testing.T) {
	validator := &stubDiscountValidator{fallback: stubValidationResponse{err: errors.New("connection refused")}}
	resolver, cart, recorder := newTestResolver(t, validator, &manualScheduler{})

	_, err := resolver.Validate(context.Background(), "promo", true)
	if !errors.Is(err, ErrDiscountUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if state := resolver.State(); state.Message != DefaultDiscountRejectionMessage {
		t.Fatalf("expected generic message, got %#v", state)
	}
	if cart.Discount() != nil {
		t.Fatalf("cart must stay untouched")
	}
	if !recorder.has("discount.validation_failed") {
		t.Fatalf("expected failure to be logged")
	}
}

func TestDiscountResolverDiscardsSupersededResponse(t *testing.T) {
	slowGate := make(chan struct{})
	validator := &stubDiscountValidator{
		responses: []stubValidationResponse{
			{discount: AppliedDiscount{Code: "SLOW", Kind: domain.DiscountFixed, Value: dec("1000")}, gate: slowGate},
			{discount: AppliedDiscount{Code: "FAST", Kind: domain.DiscountFixed, Value: dec("500")}},
		},
		entered: make(chan struct{}, 2),
	}
	resolver, cart, recorder := newTestResolver(t, validator, &manualScheduler{})

	errCh := make(chan error, 1)
	go func() {
		_, err := resolver.Validate(context.Background(), "slow", false)
		errCh <- err
	}()
	<-validator.entered

	if _, err := resolver.Validate(context.Background(), "fast", false); err != nil {
		t.Fatalf("fast Validate: %v", err)
	}

	close(slowGate)
	if err := <-errCh; !errors.Is(err, ErrDiscountSuperseded) {
		t.Fatalf("expected superseded, got %v", err)
	}
	if d := cart.Discount(); d == nil || d.Code != "FAST" {
		t.Fatalf("stale response overwrote the newer discount: %#v", d)
	}
	if got := resolver.State().Status; got != CouponStatusSuccess {
		t.Fatalf("expected state of the newer attempt, got %s", got)
	}
	if !recorder.has("discount.validation_stale") {
		t.Fatalf("expected stale response to be logged")
	}
}

func TestDiscountResolverRemoveDiscountFencesInFlight(t *testing.T) {
	gate := make(chan struct{})
	validator := &stubDiscountValidator{
		responses: []stubValidationResponse{
			{discount: AppliedDiscount{Code: "LATE", Kind: domain.DiscountFixed, Value: dec("100")}, gate: gate},
		},
		entered: make(chan struct{}, 1),
	}
	resolver, cart, _ := newTestResolver(t, validator, &manualScheduler{})

	errCh := make(chan error, 1)
	go func() {
		_, err := resolver.Validate(context.Background(), "late", false)
		errCh <- err
	}()
	<-validator.entered

	resolver.RemoveDiscount(context.Background())
	close(gate)

	if err := <-errCh; !errors.Is(err, ErrDiscountSuperseded) {
		t.Fatalf("expected superseded, got %v", err)
	}
	if cart.Discount() != nil {
		t.Fatalf("removed discount must stay removed")
	}
	resolver.RemoveDiscount(context.Background())
	if !cart.DiscountedTotal().Equal(cart.Total()) {
		t.Fatalf("idempotent removal must leave the total untouched")
	}
}
