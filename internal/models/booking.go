package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the payment status of a booking or cart
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "Pending"
	PaymentStatusCompleted PaymentStatus = "Completed"
	PaymentStatusFailed    PaymentStatus = "Failed"
	PaymentStatusCancelled PaymentStatus = "Cancelled"
)

// PaymentMode represents how a booking is paid
type PaymentMode string

const (
	PaymentModeOnline  PaymentMode = "Online"
	PaymentModeOffline PaymentMode = "Offline"
)

// BookingStatus represents the lifecycle status of a booking
type BookingStatus string

const (
	BookingStatusBooked    BookingStatus = "Booked"
	BookingStatusRedeemed  BookingStatus = "Redeemed"
	BookingStatusExpired   BookingStatus = "Expired"
	BookingStatusCancelled BookingStatus = "Cancelled"
)

// TargetType is the bookable product kind
type TargetType string

const (
	TargetAttraction TargetType = "attraction"
	TargetCombo      TargetType = "combo"
)

// Valid reports whether t is a known target type
func (t TargetType) Valid() bool {
	return t == TargetAttraction || t == TargetCombo
}

// SlotKind returns the slot kind that holds capacity for this target type
func (t TargetType) SlotKind() SlotKind {
	if t == TargetCombo {
		return SlotKindCombo
	}
	return SlotKindAttraction
}

// Booking is an immutable ticket record for one attraction or combo
type Booking struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Ref          string     `json:"booking_ref" db:"booking_ref"`
	UserID       *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	TargetType   TargetType `json:"target_type" db:"target_type"`
	AttractionID *uuid.UUID `json:"attraction_id,omitempty" db:"attraction_id"`
	ComboID      *uuid.UUID `json:"combo_id,omitempty" db:"combo_id"`
	SlotID       *uuid.UUID `json:"slot_id,omitempty" db:"slot_id"`
	ComboSlotID  *uuid.UUID `json:"combo_slot_id,omitempty" db:"combo_slot_id"`
	CartID       *uuid.UUID `json:"cart_id,omitempty" db:"cart_id"`
	CartItemID   *uuid.UUID `json:"cart_item_id,omitempty" db:"cart_item_id"`
	Quantity     int        `json:"quantity" db:"quantity"`
	BookingDate  time.Time  `json:"booking_date" db:"booking_date"`

	Amounts

	CouponCode        *string       `json:"coupon_code,omitempty" db:"coupon_code"`
	OfferRuleID       *uuid.UUID    `json:"offer_rule_id,omitempty" db:"offer_rule_id"`
	PaymentStatus     PaymentStatus `json:"payment_status" db:"payment_status"`
	PaymentMode       PaymentMode   `json:"payment_mode" db:"payment_mode"`
	PaymentRef        *string       `json:"payment_ref,omitempty" db:"payment_ref"`
	PaymentTxnNo      *string       `json:"payment_txn_no,omitempty" db:"payment_txn_no"`
	BookingStatus     BookingStatus `json:"booking_status" db:"booking_status"`
	TicketArtifactRef *string       `json:"ticket_artifact_ref,omitempty" db:"ticket_artifact_ref"`
	CustomerEmail     *string       `json:"customer_email,omitempty" db:"customer_email"`
	CustomerMobile    *string       `json:"customer_mobile,omitempty" db:"customer_mobile"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`

	Addons []BookingAddon `json:"addons,omitempty" db:"-"`
}

// BookingAddon is one add-on line attached to a booking
type BookingAddon struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	BookingID uuid.UUID       `json:"booking_id" db:"booking_id"`
	AddonID   uuid.UUID       `json:"addon_id" db:"addon_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total" db:"line_total"`
}

// NewBookingParams carries everything needed to build a booking row
type NewBookingParams struct {
	Ref            string
	UserID         *uuid.UUID
	Totals         *Totals
	PaymentMode    PaymentMode
	CustomerEmail  string
	CustomerMobile string
	CartID         *uuid.UUID
	CartItemID     *uuid.UUID
}

// NewBooking builds a Pending booking from priced totals.
// Amounts are rounded here, at the point of persistence.
func NewBooking(p NewBookingParams) (*Booking, error) {
	t := p.Totals
	if t == nil {
		return nil, fmt.Errorf("totals are required")
	}
	if p.Ref == "" {
		return nil, fmt.Errorf("booking reference is required")
	}
	if t.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}
	amounts, err := NewAmounts(t.Subtotal, t.DiscountAmount)
	if err != nil {
		return nil, err
	}
	mode := p.PaymentMode
	if mode == "" {
		mode = PaymentModeOnline
	}

	b := &Booking{
		ID:            uuid.New(),
		Ref:           p.Ref,
		UserID:        p.UserID,
		TargetType:    t.TargetType,
		CartID:        p.CartID,
		CartItemID:    p.CartItemID,
		Quantity:      t.Quantity,
		BookingDate:   DateOnly(t.BookingDate),
		Amounts:       amounts,
		PaymentStatus: PaymentStatusPending,
		PaymentMode:   mode,
		BookingStatus: BookingStatusBooked,
	}
	targetID := t.TargetID
	switch t.TargetType {
	case TargetAttraction:
		b.AttractionID = &targetID
		b.SlotID = t.SlotID
	case TargetCombo:
		b.ComboID = &targetID
		b.ComboSlotID = t.SlotID
	default:
		return nil, fmt.Errorf("invalid target type: %s", t.TargetType)
	}
	if t.CouponApplied {
		code := t.CouponCode
		b.CouponCode = &code
	}
	if t.MatchedOffer != nil {
		ruleID := t.MatchedOffer.RuleID
		b.OfferRuleID = &ruleID
	}
	if p.CustomerEmail != "" {
		b.CustomerEmail = &p.CustomerEmail
	}
	if p.CustomerMobile != "" {
		b.CustomerMobile = &p.CustomerMobile
	}
	for _, line := range t.Addons {
		b.Addons = append(b.Addons, BookingAddon{
			ID:        uuid.New(),
			BookingID: b.ID,
			AddonID:   line.AddonID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.Round(2),
			LineTotal: line.LineTotal.Round(2),
		})
	}
	return b, nil
}

// SlotRef returns the capacity-holding slot of the booking, if any
func (b *Booking) SlotRef() (SlotKind, *uuid.UUID) {
	if b.ComboSlotID != nil {
		return SlotKindCombo, b.ComboSlotID
	}
	if b.SlotID != nil {
		return SlotKindAttraction, b.SlotID
	}
	return "", nil
}

// IsPaid reports whether the payment reached its terminal success state
func (b *Booking) IsPaid() bool {
	return b.PaymentStatus == PaymentStatusCompleted
}

// BelongsTo reports whether the booking is owned by userID
func (b *Booking) BelongsTo(userID uuid.UUID) bool {
	return b.UserID != nil && *b.UserID == userID
}
