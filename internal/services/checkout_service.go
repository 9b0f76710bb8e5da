package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const checkoutMetricNamespace = "github.com/tomisteven/cliente-natural-pets/internal/services/checkout"

// DefaultPaymentMethod is used when the form leaves the payment method blank.
const DefaultPaymentMethod = "Efectivo"

var (
	errCheckoutCurrencyRequired = errors.New("checkout service: currency is required")

	transferSurchargePercentage = decimal.RequireFromString("3.5")
	cardSurchargePercentage     = decimal.NewFromInt(10)

	emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)
)

// ErrCheckoutInvalidInput indicates the checkout form failed validation.
var ErrCheckoutInvalidInput = errors.New("checkout service: invalid input")

// ErrCheckoutEmptyCart indicates a submission without cart lines.
var ErrCheckoutEmptyCart = errors.New("checkout service: cart is empty")

// ErrCheckoutMinimumNotMet indicates a loose-only cart below the minimum purchase.
var ErrCheckoutMinimumNotMet = errors.New("checkout service: minimum purchase not met")

// ValidationError reports per-field checkout form problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrCheckoutInvalidInput.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return fmt.Sprintf("%s: %s", ErrCheckoutInvalidInput.Error(), strings.Join(keys, ", "))
}

// Unwrap lets callers match ErrCheckoutInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrCheckoutInvalidInput
}

// DisplayCurrency converts and formats amounts for customers.
type DisplayCurrency interface {
	ExchangeRate() decimal.Decimal
	ConvertToDisplay(amount decimal.Decimal) decimal.Decimal
	Format(amount decimal.Decimal) string
}

// CheckoutTotals is the reconciled breakdown of a cart at a given payment method.
// Subtotal - DiscountValue + Surcharge == Total holds exactly.
type CheckoutTotals struct {
	PaymentMethod       string
	Subtotal            decimal.Decimal
	Discount            *AppliedDiscount
	DiscountValue       decimal.Decimal
	DiscountedTotal     decimal.Decimal
	SurchargePercentage decimal.Decimal
	Surcharge           decimal.Decimal
	Total               decimal.Decimal
}

// SurchargePercentage maps a payment method label to its surcharge.
func SurchargePercentage(paymentMethod string) decimal.Decimal {
	switch {
	case strings.Contains(paymentMethod, "Transferencia"):
		return transferSurchargePercentage
	case strings.Contains(paymentMethod, "Tarjeta"):
		return cardSurchargePercentage
	default:
		return decimal.Zero
	}
}

// Reconcile combines the subtotal, the applied discount and the payment surcharge.
// The discount value and surcharge are derived from the totals so the three never drift apart.
func Reconcile(subtotal decimal.Decimal, discount *AppliedDiscount, paymentMethod string) CheckoutTotals {
	discounted := DiscountedTotal(subtotal, discount)
	pct := SurchargePercentage(paymentMethod)
	total := discounted.Mul(decimal.NewFromInt(1).Add(pct.Div(hundred)))
	return CheckoutTotals{
		PaymentMethod:       paymentMethod,
		Subtotal:            subtotal,
		Discount:            copyDiscount(discount),
		DiscountValue:       subtotal.Sub(discounted),
		DiscountedTotal:     discounted,
		SurchargePercentage: pct,
		Surcharge:           total.Sub(discounted),
		Total:               total,
	}
}

// ValidateShipping checks the required contact fields. It returns nil when the data is complete.
func ValidateShipping(data ShippingData) *ValidationError {
	fields := make(map[string]string)
	if strings.TrimSpace(data.Name) == "" {
		fields["name"] = "El nombre es obligatorio"
	}
	if strings.TrimSpace(data.Phone) == "" {
		fields["phone"] = "El teléfono es obligatorio"
	}
	if strings.TrimSpace(data.City) == "" {
		fields["city"] = "La ciudad/zona es obligatoria"
	}
	if email := strings.TrimSpace(data.Email); email != "" && !emailPattern.MatchString(email) {
		fields["email"] = "Email no válido"
	}
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// CheckoutServiceDeps wires the collaborators of checkout reconciliation and submission.
type CheckoutServiceDeps struct {
	Orders              OrderGateway
	Currency            DisplayCurrency
	Opener              LinkOpener
	Events              OrderEventPublisher
	Clock               func() time.Time
	Logger              func(context.Context, string, map[string]any)
	IDGenerator         func() string
	StoreName           string
	ChatBaseURL         string
	ChatPhone           string
	EnforceLooseMinimum bool
	Meter               metric.Meter
}

// CheckoutService reconciles totals and submits orders.
type CheckoutService struct {
	orders          OrderGateway
	currency        DisplayCurrency
	opener          LinkOpener
	events          OrderEventPublisher
	now             func() time.Time
	logger          func(context.Context, string, map[string]any)
	newID           func() string
	storeName       string
	chatBaseURL     string
	chatPhone       string
	enforceMinimum  bool
	submissions     metric.Int64Counter
	persistFailures metric.Int64Counter
}

// SubmitCheckoutCommand is a checkout form submission against a cart.
type SubmitCheckoutCommand struct {
	Cart          *CartStore
	Shipping      ShippingData
	PaymentMethod string
	Observations  string
	Registered    bool
}

// PersistenceResult records the outcome of the order persistence attempt.
// A failure is captured here and never returned from Submit.
type PersistenceResult struct {
	Attempted bool
	Order     *Order
	Err       error
}

// Succeeded reports whether the order was stored.
func (r PersistenceResult) Succeeded() bool {
	return r.Attempted && r.Err == nil && r.Order != nil
}

// CheckoutResult describes a completed submission.
type CheckoutResult struct {
	SubmissionID string
	Totals       CheckoutTotals
	Currency     CurrencyMeta
	Items        []OrderItem
	Message      string
	Link         string
	Persistence  PersistenceResult
	SubmittedAt  time.Time
}

// CheckoutSummary is the live checkout view of a cart.
type CheckoutSummary struct {
	Totals               CheckoutTotals
	Currency             CurrencyMeta
	Count                int
	HasOnlyLooseWeight   bool
	MeetsMinimumPurchase bool
	MinimumLoosePurchase decimal.Decimal
}

// NewCheckoutService validates dependencies and registers checkout metrics.
func NewCheckoutService(deps CheckoutServiceDeps) (*CheckoutService, error) {
	if deps.Currency == nil {
		return nil, errCheckoutCurrencyRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	storeName := strings.TrimSpace(deps.StoreName)
	if storeName == "" {
		storeName = DefaultStoreName
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(checkoutMetricNamespace)
	}
	submissions, err := meter.Int64Counter(
		"storefront.checkout.submissions",
		metric.WithDescription("Checkout submissions that produced an order message"),
	)
	if err != nil {
		return nil, fmt.Errorf("checkout service: register submissions metric: %w", err)
	}
	persistFailures, err := meter.Int64Counter(
		"storefront.checkout.persist_failures",
		metric.WithDescription("Order persistence attempts that failed during checkout"),
	)
	if err != nil {
		return nil, fmt.Errorf("checkout service: register persistence metric: %w", err)
	}

	return &CheckoutService{
		orders:          deps.Orders,
		currency:        deps.Currency,
		opener:          deps.Opener,
		events:          deps.Events,
		now:             func() time.Time { return clock().UTC() },
		logger:          logger,
		newID:           idGen,
		storeName:       storeName,
		chatBaseURL:     deps.ChatBaseURL,
		chatPhone:       deps.ChatPhone,
		enforceMinimum:  deps.EnforceLooseMinimum,
		submissions:     submissions,
		persistFailures: persistFailures,
	}, nil
}

// Summary reconciles the cart for display at the given payment method.
func (s *CheckoutService) Summary(cart *CartStore, paymentMethod string) CheckoutSummary {
	method := normalisePaymentMethod(paymentMethod)
	snapshot := cart.Snapshot()
	totals := Reconcile(snapshot.Subtotal, snapshot.Discount, method)
	meta := s.currencyMeta(totals)
	return CheckoutSummary{
		Totals:               totals,
		Currency:             meta,
		Count:                snapshot.Count,
		HasOnlyLooseWeight:   snapshot.HasOnlyLooseWeight,
		MeetsMinimumPurchase: meetsMinimum(snapshot, s.currency.ConvertToDisplay(totals.DiscountedTotal)),
		MinimumLoosePurchase: snapshot.MinimumLoosePurchase,
	}
}

// Submit validates the form, persists the order for registered callers and hands the message link
// to the opener. Persistence failures are recorded in the result and never block the message.
func (s *CheckoutService) Submit(ctx context.Context, cmd SubmitCheckoutCommand) (CheckoutResult, error) {
	if cmd.Cart == nil {
		return CheckoutResult{}, fmt.Errorf("%w: cart is required", ErrCheckoutInvalidInput)
	}

	shipping := ShippingData{
		Name:  SanitizeFreeText(cmd.Shipping.Name),
		Phone: SanitizeFreeText(cmd.Shipping.Phone),
		Email: SanitizeFreeText(cmd.Shipping.Email),
		City:  SanitizeFreeText(cmd.Shipping.City),
	}
	if verr := ValidateShipping(shipping); verr != nil {
		return CheckoutResult{}, verr
	}
	method := normalisePaymentMethod(SanitizeFreeText(cmd.PaymentMethod))
	observations := SanitizeFreeText(cmd.Observations)

	snapshot := cmd.Cart.Snapshot()
	if len(snapshot.Lines) == 0 {
		return CheckoutResult{}, ErrCheckoutEmptyCart
	}

	totals := Reconcile(snapshot.Subtotal, snapshot.Discount, method)
	if s.enforceMinimum {
		converted := s.currency.ConvertToDisplay(totals.DiscountedTotal)
		if !meetsMinimum(snapshot, converted) {
			return CheckoutResult{}, fmt.Errorf("%w: %s below %s", ErrCheckoutMinimumNotMet, converted, snapshot.MinimumLoosePurchase)
		}
	}

	submissionID := s.newID()
	meta := s.currencyMeta(totals)
	items := orderItems(snapshot.Lines)
	result := CheckoutResult{
		SubmissionID: submissionID,
		Totals:       totals,
		Currency:     meta,
		Items:        items,
		SubmittedAt:  s.now(),
	}

	if cmd.Registered && s.orders != nil {
		result.Persistence = s.persistOrder(ctx, CreateOrderCommand{
			Items:           items,
			Subtotal:        totals.Subtotal,
			DiscountCode:    discountCode(totals.Discount),
			DiscountValue:   totals.DiscountValue,
			DiscountedTotal: totals.DiscountedTotal,
			Total:           totals.Total,
			Surcharge:       totals.Surcharge,
			ShippingData:    shipping,
			PaymentMethod:   method,
			Observations:    observations,
			Currency:        meta,
		}, submissionID)
	}

	lines := make([]CartLine, 0, len(snapshot.Lines))
	for _, priced := range snapshot.Lines {
		lines = append(lines, priced.Line)
	}
	result.Message = BuildOrderMessage(OrderMessageInput{
		StoreName:     s.storeName,
		Shipping:      shipping,
		PaymentMethod: method,
		Observations:  observations,
		Lines:         lines,
		Total:         s.currency.Format(meta.TotalConverted),
	})
	result.Link = OrderMessageLink(s.chatBaseURL, s.chatPhone, result.Message)

	if s.opener != nil {
		if err := s.opener.OpenLink(ctx, result.Link); err != nil {
			s.logger(ctx, "checkout.link_open_failed", map[string]any{
				"submissionID": submissionID,
				"error":        err.Error(),
			})
		}
	}

	cmd.Cart.ClearCart(ctx)
	s.publish(ctx, result, len(items))
	s.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("persisted", result.Persistence.Succeeded()),
		attribute.String("payment_method", method),
	))
	s.logger(ctx, "checkout.submitted", map[string]any{
		"submissionID": submissionID,
		"persisted":    result.Persistence.Succeeded(),
		"total":        totals.Total.String(),
	})
	return result, nil
}

func (s *CheckoutService) persistOrder(ctx context.Context, cmd CreateOrderCommand, submissionID string) PersistenceResult {
	result := PersistenceResult{Attempted: true}
	order, err := s.orders.CreateOrder(ctx, cmd)
	if err != nil {
		result.Err = err
		s.persistFailures.Add(ctx, 1)
		s.logger(ctx, "checkout.order_persist_failed", map[string]any{
			"submissionID": submissionID,
			"error":        err.Error(),
		})
		return result
	}
	result.Order = &order
	return result
}

func (s *CheckoutService) publish(ctx context.Context, result CheckoutResult, lineCount int) {
	if s.events == nil {
		return
	}
	event := OrderSubmittedEvent{
		SubmissionID:  result.SubmissionID,
		Persisted:     result.Persistence.Succeeded(),
		Total:         result.Totals.Total,
		PaymentMethod: result.Totals.PaymentMethod,
		LineCount:     lineCount,
		SubmittedAt:   result.SubmittedAt,
	}
	if result.Persistence.Order != nil {
		event.OrderID = result.Persistence.Order.ID
	}
	if err := s.events.PublishOrderSubmitted(ctx, event); err != nil {
		s.logger(ctx, "checkout.event_publish_failed", map[string]any{
			"submissionID": result.SubmissionID,
			"error":        err.Error(),
		})
	}
}

func (s *CheckoutService) currencyMeta(totals CheckoutTotals) CurrencyMeta {
	return CurrencyMeta{
		ExchangeRate:      s.currency.ExchangeRate(),
		SubtotalConverted: s.currency.ConvertToDisplay(totals.Subtotal),
		TotalConverted:    s.currency.ConvertToDisplay(totals.Total),
	}
}

func meetsMinimum(snapshot CartSnapshot, converted decimal.Decimal) bool {
	if !snapshot.HasOnlyLooseWeight {
		return true
	}
	return converted.GreaterThanOrEqual(snapshot.MinimumLoosePurchase)
}

func orderItems(lines []PricedLine) []OrderItem {
	items := make([]OrderItem, 0, len(lines))
	for _, priced := range lines {
		common := priced.Line.Common()
		items = append(items, OrderItem{
			ProductRef: common.ID,
			Name:       common.Name,
			UnitPrice:  priced.UnitPrice,
			Quantity:   common.Quantity,
			Kind:       priced.Line.Kind(),
		})
	}
	return items
}

func discountCode(discount *AppliedDiscount) string {
	if discount == nil {
		return ""
	}
	return discount.Code
}

func normalisePaymentMethod(method string) string {
	method = strings.TrimSpace(method)
	if method == "" {
		return DefaultPaymentMethod
	}
	return method
}
