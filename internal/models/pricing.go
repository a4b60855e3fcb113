package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/parkpass/ticketing-backend/internal/apperr"
	"github.com/shopspring/decimal"
)

// AddonSelection is a requested add-on and its quantity
type AddonSelection struct {
	AddonID  uuid.UUID `json:"addon_id" binding:"required"`
	Quantity int       `json:"quantity" binding:"required,min=1"`
}

// ValidateAddons rejects add-on lines without an id, with a quantity outside
// 1..MaxQuantity, or listed more than once
func ValidateAddons(addons []AddonSelection) error {
	seen := make(map[uuid.UUID]bool, len(addons))
	for _, a := range addons {
		if a.AddonID == uuid.Nil {
			return apperr.Validation("each addon needs an addon_id")
		}
		if a.Quantity <= 0 || a.Quantity > MaxQuantity {
			return apperr.Validation("addon quantity must be between 1 and %d", MaxQuantity)
		}
		if seen[a.AddonID] {
			return apperr.Validation("addon %s is listed twice", a.AddonID)
		}
		seen[a.AddonID] = true
	}
	return nil
}

// Selection is the input of a price computation
type Selection struct {
	TargetType  TargetType
	TargetID    uuid.UUID
	SlotID      *uuid.UUID
	Quantity    int
	Addons      []AddonSelection
	CouponCode  string
	BookingDate time.Time
}

// AddonLine is a priced add-on line
type AddonLine struct {
	AddonID         uuid.UUID       `json:"addon_id"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	BasePrice       decimal.Decimal `json:"base_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	LineTotal       decimal.Decimal `json:"line_total"`
}

// Totals is the authoritative price breakdown of a selection.
// Values are unrounded; rounding happens when a Booking or CartItem is built.
type Totals struct {
	TargetType     TargetType      `json:"target_type"`
	TargetID       uuid.UUID       `json:"target_id"`
	SlotID         *uuid.UUID      `json:"slot_id,omitempty"`
	BookingDate    time.Time       `json:"booking_date"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	BaseAmount     decimal.Decimal `json:"base_amount"`
	AddonsAmount   decimal.Decimal `json:"addons_amount"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	OfferDiscount  decimal.Decimal `json:"offer_discount"`
	CouponDiscount decimal.Decimal `json:"coupon_discount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	Addons         []AddonLine     `json:"addons"`
	MatchedOffer   *OfferMatch     `json:"matched_offer,omitempty"`
	CouponCode     string          `json:"coupon_code,omitempty"`
	CouponApplied  bool            `json:"coupon_applied"`
	CouponReason   string          `json:"coupon_reason,omitempty"`
}
