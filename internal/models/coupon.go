package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CouponKind is the discount mechanism of a coupon
type CouponKind string

const (
	CouponFlat     CouponKind = "flat"
	CouponPercent  CouponKind = "percent"
	CouponBogo     CouponKind = "bogo"
	CouponSpecific CouponKind = "specific"
)

var hundred = decimal.NewFromInt(100)

// Coupon is a user-entered discount code
type Coupon struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Code         string          `json:"code" db:"code"`
	Kind         CouponKind      `json:"discount_kind" db:"discount_kind"`
	Value        decimal.Decimal `json:"value" db:"value"`
	AttractionID *uuid.UUID      `json:"attraction_id,omitempty" db:"attraction_id"` // nil = global
	MinAmount    decimal.Decimal `json:"min_amount" db:"min_amount"`
	ValidFrom    time.Time       `json:"valid_from" db:"valid_from"`
	ValidTo      time.Time       `json:"valid_to" db:"valid_to"`
	Active       bool            `json:"active" db:"active"`
}

// NormalizeCouponCode canonicalizes user input before lookup
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Applicable checks the active flag, validity window and scope.
// When it returns false the second value explains why.
func (c *Coupon) Applicable(date time.Time, targetType TargetType, targetID uuid.UUID) (bool, string) {
	if !c.Active {
		return false, "coupon is not active"
	}
	d := DateOnly(date)
	if d.Before(DateOnly(c.ValidFrom)) || d.After(DateOnly(c.ValidTo)) {
		return false, "coupon is not valid on the booking date"
	}
	if c.AttractionID != nil {
		if targetType != TargetAttraction || *c.AttractionID != targetID {
			return false, "coupon does not apply to this item"
		}
	}
	return true, ""
}

// Discount computes the coupon discount against subtotal.
// Unsupported kinds return zero with a reason instead of failing.
func (c *Coupon) Discount(subtotal decimal.Decimal) (decimal.Decimal, string) {
	if subtotal.LessThan(c.MinAmount) {
		return decimal.Zero, fmt.Sprintf("minimum order amount for coupon is %s", c.MinAmount.StringFixed(2))
	}
	var discount decimal.Decimal
	switch c.Kind {
	case CouponFlat:
		discount = decimal.Min(c.Value, subtotal)
	case CouponPercent:
		discount = subtotal.Mul(c.Value).Div(hundred)
	case CouponBogo, CouponSpecific:
		return decimal.Zero, fmt.Sprintf("coupon kind %q is not supported for automatic pricing", c.Kind)
	default:
		return decimal.Zero, fmt.Sprintf("unknown coupon kind %q", c.Kind)
	}
	if discount.IsNegative() {
		return decimal.Zero, "coupon value is negative"
	}
	return decimal.Min(discount, subtotal), ""
}
