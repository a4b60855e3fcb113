package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CatalogItem is the priced header of an attraction or combo
type CatalogItem struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	BasePrice decimal.Decimal `json:"base_price" db:"base_price"`
	Active    bool            `json:"active" db:"active"`
}

// Addon is an optional extra sold with a booking
type Addon struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	Price           decimal.Decimal `json:"price" db:"price"`
	DiscountPercent decimal.Decimal `json:"discount_percent" db:"discount_percent"`
	Active          bool            `json:"active" db:"active"`
}

// UnitPriceAfterDiscount applies the add-on's own discount once
func (a *Addon) UnitPriceAfterDiscount() decimal.Decimal {
	if a.DiscountPercent.LessThanOrEqual(decimal.Zero) {
		return a.Price
	}
	pct := decimal.Min(a.DiscountPercent, hundred)
	return a.Price.Sub(a.Price.Mul(pct).Div(hundred))
}
