package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	domain "github.com/tomisteven/cliente-natural-pets/internal/domain"
	"github.com/tomisteven/cliente-natural-pets/internal/services"
)

type validateDiscountRequest struct {
	Code            string `json:"code"`
	CartTotal       number `json:"cartTotal"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

type discountPayload struct {
	Code           string          `json:"code"`
	Type           string          `json:"type"`
	Value          decimal.Decimal `json:"value"`
	MinPurchase    decimal.Decimal `json:"minPurchase"`
	TargetAudience string          `json:"targetAudience"`
}

// ValidateDiscount asks the backend whether code applies to a cart worth CartTotal.
// 4xx replies come back as *services.DiscountRejectedError carrying the backend message.
func (c *Client) ValidateDiscount(ctx context.Context, cmd services.ValidateDiscountCommand) (domain.AppliedDiscount, error) {
	var payload discountPayload
	err := c.sendJSON(ctx, "validate discount", http.MethodPost, "discounts/validate", validateDiscountRequest{
		Code:            cmd.Code,
		CartTotal:       num(cmd.CartTotal),
		IsAuthenticated: cmd.Registered,
	}, &payload)
	if err != nil {
		var backendErr *Error
		if errors.As(err, &backendErr) && backendErr.IsClientError() {
			return domain.AppliedDiscount{}, &services.DiscountRejectedError{Message: backendErr.Message}
		}
		return domain.AppliedDiscount{}, err
	}

	kind, ok := domain.ParseDiscountKind(payload.Type)
	if !ok {
		return domain.AppliedDiscount{}, &Error{
			Op:     "validate discount",
			Status: http.StatusOK,
			Err:    fmt.Errorf("unknown discount type %q", payload.Type),
		}
	}
	code := domain.NormaliseDiscountCode(payload.Code)
	if code == "" {
		code = domain.NormaliseDiscountCode(cmd.Code)
	}
	audience := domain.DiscountAudience(payload.TargetAudience)
	if audience == "" {
		audience = domain.DiscountAudienceAll
	}
	return domain.AppliedDiscount{
		Code:        code,
		Kind:        kind,
		Value:       payload.Value,
		MinPurchase: payload.MinPurchase,
		Audience:    audience,
	}, nil
}
