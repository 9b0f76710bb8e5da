package backend

import (
	"context"
	"net/http"

	domain "github.com/tomisteven/cliente-natural-pets/internal/domain"
)

type settingsPayload struct {
	SuggestedPricePercentage number `json:"suggestedPricePercentage"`
}

// GetSettings reads the storefront settings.
func (c *Client) GetSettings(ctx context.Context) (domain.Settings, error) {
	var payload settingsPayload
	if err := c.getJSON(ctx, "get settings", "settings", &payload); err != nil {
		return domain.Settings{}, err
	}
	return domain.Settings{SuggestedPricePercentage: payload.SuggestedPricePercentage.Decimal}, nil
}

// UpdateSettings replaces the storefront settings and returns the stored values.
func (c *Client) UpdateSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	var payload settingsPayload
	err := c.sendJSON(ctx, "update settings", http.MethodPut, "settings", settingsPayload{
		SuggestedPricePercentage: num(settings.SuggestedPricePercentage),
	}, &payload)
	if err != nil {
		return domain.Settings{}, err
	}
	if payload.SuggestedPricePercentage.IsZero() {
		return settings, nil
	}
	return domain.Settings{SuggestedPricePercentage: payload.SuggestedPricePercentage.Decimal}, nil
}
