package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/tomisteven/cliente-natural-pets/internal/domain"
)

var (
	errDiscountValidatorRequired = errors.New("discount resolver: validator is required")
	errDiscountCartRequired      = errors.New("discount resolver: cart is required")
)

// ErrDiscountCodeRequired indicates an empty coupon code. No validation request is made.
var ErrDiscountCodeRequired = errors.New("discount resolver: code is required")

// ErrDiscountRejected indicates the backend refused the coupon.
var ErrDiscountRejected = errors.New("discount resolver: rejected")

// ErrDiscountUnavailable indicates the coupon could not be validated because the backend failed.
var ErrDiscountUnavailable = errors.New("discount resolver: unavailable")

// ErrDiscountSuperseded indicates a later validation or removal overtook this attempt.
var ErrDiscountSuperseded = errors.New("discount resolver: superseded")

// DefaultDiscountRejectionMessage is shown when the backend gives no reason.
const DefaultDiscountRejectionMessage = "Cupón inválido"

const defaultCouponStatusTTL = 3 * time.Second

// DiscountRejectedError carries the backend's user-facing rejection reason.
type DiscountRejectedError struct {
	Message string
}

func (e *DiscountRejectedError) Error() string {
	if e == nil || strings.TrimSpace(e.Message) == "" {
		return ErrDiscountRejected.Error()
	}
	return fmt.Sprintf("%s: %s", ErrDiscountRejected.Error(), e.Message)
}

// Is lets callers match the rejection with errors.Is(err, ErrDiscountRejected).
func (e *DiscountRejectedError) Is(target error) bool {
	return target == ErrDiscountRejected
}

// CouponStatus is the state of the coupon entry field.
type CouponStatus string

const (
	CouponStatusIdle    CouponStatus = "idle"
	CouponStatusLoading CouponStatus = "loading"
	CouponStatusSuccess CouponStatus = "success"
	CouponStatusError   CouponStatus = "error"
)

// CouponState is what the coupon field shows. Input holds the pending code and is cleared on success.
type CouponState struct {
	Status  CouponStatus
	Message string
	Input   string
}

// DiscountResolverDeps wires the backend validator and the cart the result is applied to.
type DiscountResolverDeps struct {
	Validator DiscountValidator
	Cart      *CartStore
	StatusTTL time.Duration
	AfterFunc AfterFunc
	Logger    func(context.Context, string, map[string]any)
}

// DiscountResolver validates coupon codes and applies the accepted descriptor to its cart.
// Each attempt takes a generation number so a slow response cannot overwrite a newer outcome.
type DiscountResolver struct {
	validator DiscountValidator
	cart      *CartStore
	ttl       time.Duration
	afterFunc AfterFunc
	logger    func(context.Context, string, map[string]any)

	mu         sync.Mutex
	generation uint64
	state      CouponState
	reset      Timer
}

// NewDiscountResolver constructs a resolver bound to one cart.
func NewDiscountResolver(deps DiscountResolverDeps) (*DiscountResolver, error) {
	if deps.Validator == nil {
		return nil, errDiscountValidatorRequired
	}
	if deps.Cart == nil {
		return nil, errDiscountCartRequired
	}
	ttl := deps.StatusTTL
	if ttl <= 0 {
		ttl = defaultCouponStatusTTL
	}
	afterFunc := deps.AfterFunc
	if afterFunc == nil {
		afterFunc = defaultAfterFunc
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &DiscountResolver{
		validator: deps.Validator,
		cart:      deps.Cart,
		ttl:       ttl,
		afterFunc: afterFunc,
		logger:    logger,
		state:     CouponState{Status: CouponStatusIdle},
	}, nil
}

// Validate checks code against the current cart total and caller class and applies the result.
// A rejection leaves any previously applied discount in place.
func (r *DiscountResolver) Validate(ctx context.Context, code string, registered bool) (AppliedDiscount, error) {
	normalised := domain.NormaliseDiscountCode(code)
	if normalised == "" {
		return AppliedDiscount{}, ErrDiscountCodeRequired
	}

	r.mu.Lock()
	r.generation++
	gen := r.generation
	r.stopResetLocked()
	r.state = CouponState{Status: CouponStatusLoading, Input: normalised}
	r.mu.Unlock()

	total := r.cart.Total()
	discount, err := r.validator.ValidateDiscount(ctx, ValidateDiscountCommand{
		Code:       normalised,
		CartTotal:  total,
		Registered: registered,
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.generation {
		r.logger(ctx, "discount.validation_stale", map[string]any{
			"code":       normalised,
			"generation": gen,
			"current":    r.generation,
		})
		return AppliedDiscount{}, ErrDiscountSuperseded
	}

	if err != nil {
		message, translated := r.translateValidationError(err)
		r.logger(ctx, "discount.validation_failed", map[string]any{
			"code":  normalised,
			"error": err.Error(),
		})
		r.state = CouponState{Status: CouponStatusError, Message: message, Input: normalised}
		r.scheduleResetLocked(gen)
		return AppliedDiscount{}, translated
	}

	if discount.Code == "" {
		discount.Code = normalised
	}
	discount.Code = domain.NormaliseDiscountCode(discount.Code)
	r.cart.ApplyDiscount(ctx, discount)
	r.state = CouponState{Status: CouponStatusSuccess}
	r.scheduleResetLocked(gen)
	return discount, nil
}

// RemoveDiscount clears the applied discount and fences any in-flight validation. It is idempotent.
func (r *DiscountResolver) RemoveDiscount(ctx context.Context) {
	r.mu.Lock()
	r.generation++
	r.stopResetLocked()
	r.state = CouponState{Status: CouponStatusIdle}
	r.mu.Unlock()

	r.cart.RemoveDiscount(ctx)
}

// State returns the current coupon field state.
func (r *DiscountResolver) State() CouponState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Close stops the pending status reset, if any.
func (r *DiscountResolver) Close() {
	r.mu.Lock()
	r.stopResetLocked()
	r.mu.Unlock()
}

func (r *DiscountResolver) translateValidationError(err error) (string, error) {
	var rejected *DiscountRejectedError
	if errors.As(err, &rejected) {
		message := strings.TrimSpace(rejected.Message)
		if message == "" {
			message = DefaultDiscountRejectionMessage
		}
		return message, &DiscountRejectedError{Message: message}
	}
	if errors.Is(err, ErrDiscountRejected) {
		return DefaultDiscountRejectionMessage, &DiscountRejectedError{Message: DefaultDiscountRejectionMessage}
	}
	return DefaultDiscountRejectionMessage, fmt.Errorf("%w: %v", ErrDiscountUnavailable, err)
}

func (r *DiscountResolver) scheduleResetLocked(gen uint64) {
	r.reset = r.afterFunc(r.ttl, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.generation != gen {
			return
		}
		r.state = CouponState{Status: CouponStatusIdle, Input: r.state.Input}
		r.reset = nil
	})
}

func (r *DiscountResolver) stopResetLocked() {
	if r.reset != nil {
		r.reset.Stop()
		r.reset = nil
	}
}
