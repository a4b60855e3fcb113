package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts is the persisted money triple of a booking or cart.
// FinalAmount always equals TotalAmount - DiscountAmount and is never negative.
type Amounts struct {
	TotalAmount    decimal.Decimal `json:"total_amount" db:"total_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount" db:"final_amount"`
}

// NewAmounts rounds to 2 decimal places and derives the final amount
func NewAmounts(total, discount decimal.Decimal) (Amounts, error) {
	total = total.Round(2)
	discount = discount.Round(2)
	if total.IsNegative() {
		return Amounts{}, fmt.Errorf("total_amount must not be negative")
	}
	if discount.IsNegative() {
		return Amounts{}, fmt.Errorf("discount_amount must not be negative")
	}
	if discount.GreaterThan(total) {
		return Amounts{}, fmt.Errorf("discount_amount %s exceeds total_amount %s", discount.StringFixed(2), total.StringFixed(2))
	}
	return Amounts{
		TotalAmount:    total,
		DiscountAmount: discount,
		FinalAmount:    total.Sub(discount),
	}, nil
}

// ZeroAmounts is the total of an empty cart
func ZeroAmounts() Amounts {
	return Amounts{TotalAmount: decimal.Zero, DiscountAmount: decimal.Zero, FinalAmount: decimal.Zero}
}
