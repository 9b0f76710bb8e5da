package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/tomisteven/cliente-natural-pets/internal/platform/httpx"
	"github.com/tomisteven/cliente-natural-pets/internal/platform/requestctx"
	"github.com/tomisteven/cliente-natural-pets/internal/repositories"
	"github.com/tomisteven/cliente-natural-pets/internal/services"
)

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}

func writeInvalidRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
}

// writeServiceError maps service and backend failures onto the API error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var validation *services.ValidationError
	if errors.As(err, &validation) {
		fields := make(map[string]string, len(validation.Fields))
		for key, value := range validation.Fields {
			fields[key] = value
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_shipping", "checkout form has invalid fields", http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"fields": fields}))
		return
	}

	var rejected *services.DiscountRejectedError
	if errors.As(err, &rejected) {
		message := rejected.Message
		if message == "" {
			message = services.DefaultDiscountRejectionMessage
		}
		httpx.WriteError(ctx, w, httpx.NewError("discount_rejected", message, http.StatusUnprocessableEntity))
		return
	}

	switch {
	case errors.Is(err, services.ErrDiscountCodeRequired),
		errors.Is(err, services.ErrCartSessionInvalid),
		errors.Is(err, services.ErrCheckoutInvalidInput),
		errors.Is(err, services.ErrSettingsInvalidInput),
		errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrDiscountRejected):
		httpx.WriteError(ctx, w, httpx.NewError("discount_rejected", services.DefaultDiscountRejectionMessage, http.StatusUnprocessableEntity))
		return
	case errors.Is(err, services.ErrDiscountSuperseded):
		httpx.WriteError(ctx, w, httpx.NewError("discount_superseded", "a newer coupon request replaced this one", http.StatusConflict))
		return
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "the cart has no items", http.StatusUnprocessableEntity))
		return
	case errors.Is(err, services.ErrCheckoutMinimumNotMet):
		httpx.WriteError(ctx, w, httpx.NewError("minimum_not_met", err.Error(), http.StatusUnprocessableEntity))
		return
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "order not found", http.StatusNotFound))
		return
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "order was changed concurrently", http.StatusConflict))
		return
	case errors.Is(err, services.ErrDiscountUnavailable),
		errors.Is(err, services.ErrSettingsUnavailable),
		errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("backend_unavailable", "backend is unavailable", http.StatusServiceUnavailable))
		return
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			httpx.WriteError(ctx, w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
			return
		case repoErr.IsConflict():
			httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
			return
		case repoErr.IsUnavailable():
			httpx.WriteError(ctx, w, httpx.NewError("backend_unavailable", "backend is unavailable", http.StatusServiceUnavailable))
			return
		}
	}

	requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
}
