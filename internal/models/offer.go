package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountType is how an offer rule discount is expressed
type DiscountType string

const (
	DiscountAmount  DiscountType = "amount"
	DiscountPercent DiscountType = "percent"
)

// Rule specificity, higher is more specific
const (
	SpecificityAll    = 1
	SpecificityTarget = 2
	SpecificitySlot   = 3
)

// OfferRule is one scoped discount condition of an offer.
// Rules are loaded joined with their parent offer so OfferTitle and
// MaxDiscount carry the offer-level values.
type OfferRule struct {
	ID            uuid.UUID           `json:"id" db:"id"`
	OfferID       uuid.UUID           `json:"offer_id" db:"offer_id"`
	OfferTitle    string              `json:"offer_title" db:"offer_title"`
	MaxDiscount   decimal.NullDecimal `json:"max_discount" db:"max_discount"`
	TargetType    *TargetType         `json:"target_type,omitempty" db:"target_type"`
	TargetID      *uuid.UUID          `json:"target_id,omitempty" db:"target_id"`
	AppliesToAll  bool                `json:"applies_to_all" db:"applies_to_all"`
	SlotKind      *SlotKind           `json:"slot_type,omitempty" db:"slot_type"`
	SlotID        *uuid.UUID          `json:"slot_id,omitempty" db:"slot_id"`
	DateFrom      *time.Time          `json:"date_from,omitempty" db:"date_from"`
	DateTo        *time.Time          `json:"date_to,omitempty" db:"date_to"`
	TimeFrom      *string             `json:"time_from,omitempty" db:"time_from"`
	TimeTo        *string             `json:"time_to,omitempty" db:"time_to"`
	DiscountType  DiscountType        `json:"discount_type" db:"discount_type"`
	DiscountValue decimal.Decimal     `json:"discount_value" db:"discount_value"`
	Priority      int                 `json:"priority" db:"priority"`
}

// OfferQuery is the context an offer rule is matched against
type OfferQuery struct {
	TargetType  TargetType
	TargetID    uuid.UUID
	SlotKind    SlotKind
	SlotID      *uuid.UUID
	BookingDate time.Time
	BookingTime string // HH:MM, empty when unknown
}

// Matches reports whether the rule applies to q
func (r *OfferRule) Matches(q OfferQuery) bool {
	if r.SlotID != nil {
		if q.SlotID == nil || *r.SlotID != *q.SlotID {
			return false
		}
		if r.SlotKind != nil && *r.SlotKind != q.SlotKind {
			return false
		}
	}
	if !r.AppliesToAll {
		if r.TargetType == nil || *r.TargetType != q.TargetType {
			return false
		}
		if r.TargetID != nil && *r.TargetID != q.TargetID {
			return false
		}
	}

	d := DateOnly(q.BookingDate)
	if r.DateFrom != nil && d.Before(DateOnly(*r.DateFrom)) {
		return false
	}
	if r.DateTo != nil && d.After(DateOnly(*r.DateTo)) {
		return false
	}

	if r.TimeFrom != nil || r.TimeTo != nil {
		if q.BookingTime == "" {
			return false
		}
		at, err := ParseClock(q.BookingTime)
		if err != nil {
			return false
		}
		if r.TimeFrom != nil {
			from, err := ParseClock(*r.TimeFrom)
			if err != nil || at < from {
				return false
			}
		}
		if r.TimeTo != nil {
			to, err := ParseClock(*r.TimeTo)
			if err != nil || at >= to {
				return false
			}
		}
	}
	return true
}

// Specificity ranks how narrowly the rule targets
func (r *OfferRule) Specificity() int {
	switch {
	case r.SlotID != nil:
		return SpecificitySlot
	case !r.AppliesToAll:
		return SpecificityTarget
	default:
		return SpecificityAll
	}
}

// Discount computes the rule discount on subtotal, capped by the offer's
// max_discount and then by the subtotal itself.
func (r *OfferRule) Discount(subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch r.DiscountType {
	case DiscountAmount:
		discount = r.DiscountValue
	case DiscountPercent:
		discount = subtotal.Mul(r.DiscountValue).Div(hundred)
	default:
		return decimal.Zero
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	if r.MaxDiscount.Valid {
		discount = decimal.Min(discount, r.MaxDiscount.Decimal)
	}
	return decimal.Min(discount, subtotal)
}

// OfferMatch describes the rule chosen for a priced selection
type OfferMatch struct {
	OfferID   uuid.UUID       `json:"offer_id"`
	RuleID    uuid.UUID       `json:"rule_id"`
	Title     string          `json:"title,omitempty"`
	Priority  int             `json:"priority"`
	RawAmount decimal.Decimal `json:"raw_amount"`
	Discount  decimal.Decimal `json:"discount"`
}
