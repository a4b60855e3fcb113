package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parkpass/ticketing-backend/internal/apperr"
	"github.com/shopspring/decimal"
)

// MaxQuantity bounds a single line
const MaxQuantity = 500

// PreviewRequest is the body of the price preview endpoint and the base of
// every booking and cart item request
type PreviewRequest struct {
	TargetType  TargetType       `json:"target_type"`
	TargetID    uuid.UUID        `json:"target_id" binding:"required"`
	SlotID      *uuid.UUID       `json:"slot_id,omitempty"`
	Quantity    int              `json:"quantity" binding:"required,min=1"`
	Addons      []AddonSelection `json:"addons,omitempty"`
	CouponCode  string           `json:"coupon_code,omitempty"`
	BookingDate string           `json:"booking_date,omitempty"` // YYYY-MM-DD
}

// ToSelection validates the request and converts it to a pricing selection
func (r *PreviewRequest) ToSelection() (Selection, error) {
	targetType := r.TargetType
	if targetType == "" {
		targetType = TargetAttraction
	}
	if !targetType.Valid() {
		return Selection{}, apperr.Validation("target_type must be 'attraction' or 'combo'")
	}
	if r.TargetID == uuid.Nil {
		return Selection{}, apperr.Validation("target_id is required")
	}
	if r.Quantity <= 0 || r.Quantity > MaxQuantity {
		return Selection{}, apperr.Validation("quantity must be between 1 and %d", MaxQuantity)
	}
	if err := ValidateAddons(r.Addons); err != nil {
		return Selection{}, err
	}

	sel := Selection{
		TargetType: targetType,
		TargetID:   r.TargetID,
		SlotID:     r.SlotID,
		Quantity:   r.Quantity,
		Addons:     r.Addons,
		CouponCode: NormalizeCouponCode(r.CouponCode),
	}
	if r.BookingDate != "" {
		d, err := ParseDate(r.BookingDate)
		if err != nil {
			return Selection{}, apperr.Validation("%s", err.Error())
		}
		sel.BookingDate = d
	}
	if sel.SlotID == nil && sel.BookingDate.IsZero() {
		return Selection{}, apperr.Validation("booking_date is required when no slot is selected")
	}
	return sel, nil
}

// CreateBookingRequest is the body of the single-shot booking endpoints
type CreateBookingRequest struct {
	PreviewRequest
	CustomerEmail  string      `json:"customer_email,omitempty"`
	CustomerMobile string      `json:"customer_mobile,omitempty"`
	PaymentMode    PaymentMode `json:"payment_mode,omitempty"`
}

// Validate checks the booking-specific fields
func (r *CreateBookingRequest) Validate() error {
	switch r.PaymentMode {
	case "", PaymentModeOnline, PaymentModeOffline:
	default:
		return apperr.Validation("payment_mode must be 'Online' or 'Offline'")
	}
	if r.CustomerEmail != "" && !strings.Contains(r.CustomerEmail, "@") {
		return apperr.Validation("customer_email is not a valid email address")
	}
	return nil
}

// UpdateCartItemRequest changes the quantity and optionally the add-ons of a cart item
type UpdateCartItemRequest struct {
	Quantity   int               `json:"quantity" binding:"required,min=1"`
	Addons     *[]AddonSelection `json:"addons,omitempty"`
	CouponCode *string           `json:"coupon_code,omitempty"`
}

// CreateSlotRequest is the admin body for a manually created slot
type CreateSlotRequest struct {
	Kind      SlotKind         `json:"kind" binding:"required"`
	OwnerID   uuid.UUID        `json:"owner_id" binding:"required"`
	StartDate string           `json:"start_date" binding:"required"`
	EndDate   string           `json:"end_date" binding:"required"`
	StartTime string           `json:"start_time" binding:"required"`
	EndTime   string           `json:"end_time" binding:"required"`
	Capacity  int              `json:"capacity" binding:"required,min=1"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// ToSlot validates the request and builds the slot
func (r *CreateSlotRequest) ToSlot() (*Slot, error) {
	start, err := ParseDate(r.StartDate)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	end, err := ParseDate(r.EndDate)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	var price decimal.NullDecimal
	if r.UnitPrice != nil {
		price = decimal.NewNullDecimal(*r.UnitPrice)
	}
	slot, err := NewSlot(r.Kind, r.OwnerID, start, end, r.StartTime, r.EndTime, r.Capacity, price)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	return slot, nil
}

// GenerateSlotsParams drives one slot generation run
type GenerateSlotsParams struct {
	Kind            SlotKind            `json:"kind" binding:"required"`
	OwnerID         uuid.UUID           `json:"owner_id" binding:"required"`
	StartDate       time.Time           `json:"-"`
	StartDateRaw    string              `json:"start_date" binding:"required"`
	Days            int                 `json:"days" binding:"required,min=1"`
	StartHour       int                 `json:"start_hour"`
	EndHour         int                 `json:"end_hour" binding:"required"`
	DurationMinutes int                 `json:"duration_minutes" binding:"required,min=1"`
	Capacity        int                 `json:"capacity" binding:"required,min=1"`
	UnitPrice       decimal.NullDecimal `json:"unit_price"`
	SkipHolidays    bool                `json:"skip_holidays"`
}

// MaxGenerationDays bounds one generation run
const MaxGenerationDays = 366

// Validate checks ranges and parses StartDateRaw when StartDate is unset
func (p *GenerateSlotsParams) Validate() error {
	if !p.Kind.Valid() {
		return apperr.Validation("kind must be 'slot' or 'combo_slot'")
	}
	if p.OwnerID == uuid.Nil {
		return apperr.Validation("owner_id is required")
	}
	if p.StartDate.IsZero() {
		d, err := ParseDate(p.StartDateRaw)
		if err != nil {
			return apperr.Validation("%s", err.Error())
		}
		p.StartDate = d
	}
	if p.Days <= 0 || p.Days > MaxGenerationDays {
		return apperr.Validation("days must be between 1 and %d", MaxGenerationDays)
	}
	if p.StartHour < 0 || p.EndHour > 24 || p.StartHour >= p.EndHour {
		return apperr.Validation("hours must satisfy 0 <= start_hour < end_hour <= 24")
	}
	if p.DurationMinutes <= 0 || p.DurationMinutes > (p.EndHour-p.StartHour)*60 {
		return apperr.Validation("duration_minutes must fit between start_hour and end_hour")
	}
	if p.Capacity <= 0 {
		return apperr.Validation("capacity must be positive")
	}
	return nil
}

// GenerateSlotsResult reports a generation run
type GenerateSlotsResult struct {
	Created        int `json:"created"`
	Skipped        int `json:"skipped"`
	HolidaySkipped int `json:"holiday_skipped"`
}
