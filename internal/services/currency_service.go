package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var errCurrencySettingsRequired = errors.New("currency service: settings store is required")

// ErrSettingsInvalidInput indicates an out-of-range settings update.
var ErrSettingsInvalidInput = errors.New("currency service: invalid input")

// ErrSettingsUnavailable indicates the settings backend could not be reached.
var ErrSettingsUnavailable = errors.New("currency service: unavailable")

const (
	defaultSettingsTTL     = 5 * time.Minute
	defaultSettingsBackoff = 30 * time.Second
)

var (
	defaultSuggestedPricePercentage = decimal.NewFromInt(10)
	maxSuggestedPricePercentage     = decimal.NewFromInt(1000)
	displayPrinter                  = message.NewPrinter(language.MustParse("es-AR"))
)

// CurrencyServiceDeps configures the currency and settings provider.
type CurrencyServiceDeps struct {
	Settings SettingsStore
	Clock    func() time.Time
	TTL      time.Duration
	// FailureBackoff delays the next settings fetch after a failed one.
	FailureBackoff          time.Duration
	DefaultMarkupPercentage decimal.Decimal
	Logger                  func(context.Context, string, map[string]any)
}

// CurrencyService exposes the display conversion seam and the suggested retail markup.
// Catalogue prices are already in pesos, so the exchange rate is fixed at one.
type CurrencyService struct {
	settings SettingsStore
	now      func() time.Time
	ttl      time.Duration
	backoff  time.Duration
	logger   func(context.Context, string, map[string]any)

	mu        sync.Mutex
	pct       decimal.Decimal
	fetchedAt time.Time
	retryAt   time.Time
}

// NewCurrencyService constructs the provider with the default markup until settings are fetched.
func NewCurrencyService(deps CurrencyServiceDeps) (*CurrencyService, error) {
	if deps.Settings == nil {
		return nil, errCurrencySettingsRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultSettingsTTL
	}
	backoff := deps.FailureBackoff
	if backoff <= 0 {
		backoff = defaultSettingsBackoff
	}
	pct := deps.DefaultMarkupPercentage
	if pct.IsNegative() || pct.IsZero() {
		pct = defaultSuggestedPricePercentage
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &CurrencyService{
		settings: deps.Settings,
		now:      func() time.Time { return clock().UTC() },
		ttl:      ttl,
		backoff:  backoff,
		logger:   logger,
		pct:      pct,
	}, nil
}

// ExchangeRate is the factor applied by ConvertToDisplay.
func (s *CurrencyService) ExchangeRate() decimal.Decimal {
	return decimal.NewFromInt(1)
}

// ConvertToDisplay converts a catalogue amount to the display currency.
func (s *CurrencyService) ConvertToDisplay(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.ExchangeRate())
}

// Format renders amount in the display currency.
func (s *CurrencyService) Format(amount decimal.Decimal) string {
	return FormatARS(amount)
}

// SuggestedPricePercentage returns the cached markup, refreshing it when the cache has expired.
// Fetch failures are logged, keep the previous value and hold off further fetches for the backoff.
func (s *CurrencyService) SuggestedPricePercentage(ctx context.Context) decimal.Decimal {
	s.mu.Lock()
	now := s.now()
	fresh := !s.fetchedAt.IsZero() && now.Sub(s.fetchedAt) < s.ttl
	cooling := now.Before(s.retryAt)
	current := s.pct
	s.mu.Unlock()
	if fresh || cooling {
		return current
	}

	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		s.mu.Lock()
		s.retryAt = s.now().Add(s.backoff)
		s.mu.Unlock()
		s.logger(ctx, "settings.fetch_failed", map[string]any{"error": err.Error(), "retry_in": s.backoff.String()})
		return current
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !settings.SuggestedPricePercentage.IsNegative() {
		s.pct = settings.SuggestedPricePercentage
	}
	s.fetchedAt = s.now()
	s.retryAt = time.Time{}
	return s.pct
}

// SuggestedPrice applies the markup to a base price.
func (s *CurrencyService) SuggestedPrice(ctx context.Context, base decimal.Decimal) decimal.Decimal {
	pct := s.SuggestedPricePercentage(ctx)
	return base.Mul(decimal.NewFromInt(1).Add(pct.Div(hundred)))
}

// UpdateSuggestedPricePercentage persists a new markup and refreshes the cache.
func (s *CurrencyService) UpdateSuggestedPricePercentage(ctx context.Context, pct decimal.Decimal) (Settings, error) {
	if pct.IsNegative() || pct.GreaterThan(maxSuggestedPricePercentage) {
		return Settings{}, fmt.Errorf("%w: percentage must be between 0 and %s", ErrSettingsInvalidInput, maxSuggestedPricePercentage)
	}
	saved, err := s.settings.UpdateSettings(ctx, Settings{SuggestedPricePercentage: pct})
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrSettingsUnavailable, err)
	}

	s.mu.Lock()
	s.pct = saved.SuggestedPricePercentage
	s.fetchedAt = s.now()
	s.mu.Unlock()
	return saved, nil
}

// FormatARS renders an amount as Argentine pesos with at most two decimals, e.g. "$\u00a014.000".
func FormatARS(amount decimal.Decimal) string {
	rounded := amount.Round(2)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}
	formatted := displayPrinter.Sprint(number.Decimal(rounded.InexactFloat64(), number.MaxFractionDigits(2)))
	return sign + "$\u00a0" + formatted
}
