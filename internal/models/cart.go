package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartStatus represents the state of a pre-payment cart
type CartStatus string

// A cart moves Open -> CheckoutPending when a payment is initiated. Items are
// frozen from then on; the cart is either paid or abandoned.
const (
	CartStatusOpen      CartStatus = "Open"
	CartStatusCheckout  CartStatus = "CheckoutPending"
	CartStatusPaid      CartStatus = "Paid"
	CartStatusAbandoned CartStatus = "Abandoned"
)

// CartOwner identifies who owns a cart: a signed-in user or an anonymous session
type CartOwner struct {
	UserID    *uuid.UUID
	SessionID string
}

// Valid reports whether the owner is identified
func (o CartOwner) Valid() bool {
	return (o.UserID != nil && *o.UserID != uuid.Nil) || o.SessionID != ""
}

// Cart is the mutable pre-payment container of cart items
type Cart struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Ref       string     `json:"cart_ref" db:"cart_ref"`
	UserID    *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	SessionID *string    `json:"session_id,omitempty" db:"session_id"`

	Amounts

	PaymentStatus  PaymentStatus `json:"payment_status" db:"payment_status"`
	PaymentRef     *string       `json:"payment_ref,omitempty" db:"payment_ref"`
	PaymentTxnNo   *string       `json:"payment_txn_no,omitempty" db:"payment_txn_no"`
	Status         CartStatus    `json:"status" db:"status"`
	CustomerEmail  *string       `json:"customer_email,omitempty" db:"customer_email"`
	CustomerMobile *string       `json:"customer_mobile,omitempty" db:"customer_mobile"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`

	Items []CartItem `json:"items" db:"-"`
}

// NewCart creates an empty Open cart for owner
func NewCart(ref string, owner CartOwner) (*Cart, error) {
	if !owner.Valid() {
		return nil, fmt.Errorf("cart owner is required")
	}
	c := &Cart{
		ID:            uuid.New(),
		Ref:           ref,
		UserID:        owner.UserID,
		Amounts:       ZeroAmounts(),
		PaymentStatus: PaymentStatusPending,
		Status:        CartStatusOpen,
		Items:         []CartItem{},
	}
	if owner.SessionID != "" {
		sid := owner.SessionID
		c.SessionID = &sid
	}
	return c, nil
}

// OwnedBy reports whether owner may access this cart
func (c *Cart) OwnedBy(owner CartOwner) bool {
	if c.UserID != nil && owner.UserID != nil && *c.UserID == *owner.UserID {
		return true
	}
	return c.SessionID != nil && owner.SessionID != "" && *c.SessionID == owner.SessionID
}

// IsOpen reports whether items may still be changed
func (c *Cart) IsOpen() bool {
	return c.Status == CartStatusOpen
}

// IsActive reports whether the cart is the owner's current cart
func (c *Cart) IsActive() bool {
	return c.Status == CartStatusOpen || c.Status == CartStatusCheckout
}

// CartItem is one priced line of a cart
type CartItem struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	CartID         uuid.UUID       `json:"cart_id" db:"cart_id"`
	ItemType       TargetType      `json:"item_type" db:"item_type"`
	TargetID       uuid.UUID       `json:"target_id" db:"target_id"`
	SlotID         *uuid.UUID      `json:"slot_id,omitempty" db:"slot_id"`
	Quantity       int             `json:"quantity" db:"quantity"`
	BookingDate    time.Time       `json:"booking_date" db:"booking_date"`
	UnitPrice      decimal.Decimal `json:"unit_price" db:"unit_price"`
	Subtotal       decimal.Decimal `json:"subtotal" db:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	LineTotal      decimal.Decimal `json:"line_total" db:"line_total"`
	CouponCode     *string         `json:"coupon_code,omitempty" db:"coupon_code"`
	OfferRuleID    *uuid.UUID      `json:"offer_rule_id,omitempty" db:"offer_rule_id"`
	Addons         AddonLines      `json:"addons" db:"addons"`
	Metadata       JSONB           `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// ApplyTotals copies a pricing result onto the item, rounding for persistence
func (i *CartItem) ApplyTotals(t *Totals) error {
	amounts, err := NewAmounts(t.Subtotal, t.DiscountAmount)
	if err != nil {
		return err
	}
	i.ItemType = t.TargetType
	i.TargetID = t.TargetID
	i.SlotID = t.SlotID
	i.Quantity = t.Quantity
	i.BookingDate = DateOnly(t.BookingDate)
	i.UnitPrice = t.UnitPrice.Round(2)
	i.Subtotal = amounts.TotalAmount
	i.DiscountAmount = amounts.DiscountAmount
	i.LineTotal = amounts.FinalAmount
	i.Addons = AddonLines(t.Addons)
	i.CouponCode = nil
	if t.CouponApplied {
		code := t.CouponCode
		i.CouponCode = &code
	}
	i.OfferRuleID = nil
	if t.MatchedOffer != nil {
		ruleID := t.MatchedOffer.RuleID
		i.OfferRuleID = &ruleID
	}
	if i.Metadata == nil {
		i.Metadata = JSONB{}
	}
	if t.CouponReason != "" {
		i.Metadata["coupon_reason"] = t.CouponReason
	} else {
		delete(i.Metadata, "coupon_reason")
	}
	return nil
}

// Selection rebuilds the pricing input that produced this item
func (i *CartItem) Selection() Selection {
	sel := Selection{
		TargetType:  i.ItemType,
		TargetID:    i.TargetID,
		SlotID:      i.SlotID,
		Quantity:    i.Quantity,
		BookingDate: i.BookingDate,
	}
	if i.CouponCode != nil {
		sel.CouponCode = *i.CouponCode
	}
	for _, a := range i.Addons {
		sel.Addons = append(sel.Addons, AddonSelection{AddonID: a.AddonID, Quantity: a.Quantity})
	}
	return sel
}

// Totals reconstructs the priced totals stored on the item
func (i *CartItem) Totals() *Totals {
	t := &Totals{
		TargetType:     i.ItemType,
		TargetID:       i.TargetID,
		SlotID:         i.SlotID,
		Quantity:       i.Quantity,
		BookingDate:    i.BookingDate,
		UnitPrice:      i.UnitPrice,
		Subtotal:       i.Subtotal,
		DiscountAmount: i.DiscountAmount,
		FinalAmount:    i.LineTotal,
		Addons:         []AddonLine(i.Addons),
	}
	if i.CouponCode != nil {
		t.CouponCode = *i.CouponCode
		t.CouponApplied = true
	}
	if i.OfferRuleID != nil {
		t.MatchedOffer = &OfferMatch{RuleID: *i.OfferRuleID}
	}
	return t
}

// SumCartItems derives cart totals from its items
func SumCartItems(items []CartItem) (Amounts, error) {
	total, discount := decimal.Zero, decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
		discount = discount.Add(item.DiscountAmount)
	}
	return NewAmounts(total, discount)
}
