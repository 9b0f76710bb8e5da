package backend

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/tomisteven/cliente-natural-pets/internal/domain"
)

type productPayload struct {
	ID          string          `json:"_id"`
	Name        string          `json:"nombre"`
	Price       decimal.Decimal `json:"precio"`
	ListPrice   decimal.Decimal `json:"precioLista"`
	LowTier     decimal.Decimal `json:"precioMenor"`
	HighTier    decimal.Decimal `json:"precioMayor"`
	Weight      decimal.Decimal `json:"kilos"`
	IsFood      bool            `json:"esAlimento"`
	IsActive    *bool           `json:"isActive"`
	Description string          `json:"descripcion"`
}

type comboPayload struct {
	ID         string          `json:"_id"`
	Name       string          `json:"name"`
	FinalPrice decimal.Decimal `json:"finalPrice"`
	BasePrice  decimal.Decimal `json:"basePrice"`
	IsActive   *bool           `json:"isActive"`
}

// GetProduct resolves a product by id or slug.
func (c *Client) GetProduct(ctx context.Context, id string) (domain.CatalogItem, error) {
	var payload productPayload
	if err := c.getJSON(ctx, "get product", "products/"+url.PathEscape(strings.TrimSpace(id)), &payload); err != nil {
		return domain.CatalogItem{}, err
	}
	if payload.ID == "" {
		payload.ID = strings.TrimSpace(id)
	}
	return domain.CatalogItem{
		ID:            payload.ID,
		Name:          strings.TrimSpace(payload.Name),
		Price:         payload.Price,
		ListPrice:     payload.ListPrice,
		LowTierPrice:  payload.LowTier,
		HighTierPrice: payload.HighTier,
		UnitWeight:    payload.Weight,
		IsFood:        payload.IsFood,
	}, nil
}

// GetCombo resolves a combo by id.
func (c *Client) GetCombo(ctx context.Context, id string) (domain.CatalogItem, error) {
	var payload comboPayload
	if err := c.getJSON(ctx, "get combo", "combos/"+url.PathEscape(strings.TrimSpace(id)), &payload); err != nil {
		return domain.CatalogItem{}, err
	}
	if payload.ID == "" {
		payload.ID = strings.TrimSpace(id)
	}
	return domain.CatalogItem{
		ID:         payload.ID,
		Name:       strings.TrimSpace(payload.Name),
		FinalPrice: payload.FinalPrice,
		BasePrice:  payload.BasePrice,
	}, nil
}
