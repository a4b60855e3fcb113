package services

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/parkpass/ticketing-backend/internal/apperr"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var hundred = decimal.NewFromInt(100)

// SlotReader is the read-only slot lookup used for price overrides
type SlotReader interface {
	GetSlot(ctx context.Context, kind models.SlotKind, id uuid.UUID) (*models.Slot, error)
}

// PricingEngine computes price breakdowns. It only reads; the same inputs and
// catalog state always produce the same Totals.
type PricingEngine struct {
	catalog CatalogReader
	slots   SlotReader
	offers  OfferReader
	coupons CouponReader
	logger  *logrus.Logger
}

// NewPricingEngine creates a new PricingEngine
func NewPricingEngine(catalog CatalogReader, slots SlotReader, offers OfferReader, coupons CouponReader, logger *logrus.Logger) *PricingEngine {
	return &PricingEngine{
		catalog: catalog,
		slots:   slots,
		offers:  offers,
		coupons: coupons,
		logger:  logger,
	}
}

// ComputeTotals prices a selection.
//
// Offer and coupon discounts are each computed against the undiscounted
// subtotal and added; their sum is capped at the subtotal. Values are not
// rounded here.
func (e *PricingEngine) ComputeTotals(ctx context.Context, sel models.Selection) (*models.Totals, error) {
	if !sel.TargetType.Valid() {
		return nil, apperr.Validation("invalid target type: %s", sel.TargetType)
	}
	if sel.Quantity <= 0 || sel.Quantity > models.MaxQuantity {
		return nil, apperr.Validation("quantity must be between 1 and %d", models.MaxQuantity)
	}
	if err := models.ValidateAddons(sel.Addons); err != nil {
		return nil, err
	}

	item, err := e.catalog.GetItem(ctx, sel.TargetType, sel.TargetID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if item == nil || !item.Active {
		return nil, apperr.NotFound(string(sel.TargetType))
	}

	// 1. Unit price: slot override, else base price
	unitPrice := item.BasePrice
	bookingDate := sel.BookingDate
	bookingTime := ""
	slotKind := sel.TargetType.SlotKind()
	if sel.SlotID != nil {
		slot, err := e.slots.GetSlot(ctx, slotKind, *sel.SlotID)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if slot == nil {
			return nil, apperr.NotFound(string(slotKind))
		}
		if slot.OwnerID != sel.TargetID {
			return nil, apperr.Validation("slot does not belong to this %s", sel.TargetType)
		}
		if bookingDate.IsZero() {
			bookingDate = slot.StartDate
		} else if !slot.CoversDate(bookingDate) {
			return nil, apperr.Validation("booking_date is outside the slot's date range")
		}
		if slot.UnitPrice.Valid {
			unitPrice = slot.UnitPrice.Decimal
		}
		bookingTime = slot.StartTime
	}
	bookingDate = models.DateOnly(bookingDate)

	// 2. Subtotal with add-ons at their own discounted unit price
	baseAmount := unitPrice.Mul(decimal.NewFromInt(int64(sel.Quantity)))
	addonsAmount := decimal.Zero
	lines := make([]models.AddonLine, 0, len(sel.Addons))
	for _, a := range sel.Addons {
		addon, err := e.catalog.GetAddon(ctx, a.AddonID)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if addon == nil || !addon.Active {
			return nil, apperr.NotFound("addon")
		}
		unit := addon.UnitPriceAfterDiscount()
		lineTotal := unit.Mul(decimal.NewFromInt(int64(a.Quantity)))
		addonsAmount = addonsAmount.Add(lineTotal)
		lines = append(lines, models.AddonLine{
			AddonID:         addon.ID,
			Name:            addon.Name,
			Quantity:        a.Quantity,
			BasePrice:       addon.Price,
			DiscountPercent: addon.DiscountPercent,
			UnitPrice:       unit,
			LineTotal:       lineTotal,
		})
	}
	subtotal := baseAmount.Add(addonsAmount)

	totals := &models.Totals{
		TargetType:     sel.TargetType,
		TargetID:       sel.TargetID,
		SlotID:         sel.SlotID,
		BookingDate:    bookingDate,
		Quantity:       sel.Quantity,
		UnitPrice:      unitPrice,
		BaseAmount:     baseAmount,
		AddonsAmount:   addonsAmount,
		Subtotal:       subtotal,
		OfferDiscount:  decimal.Zero,
		CouponDiscount: decimal.Zero,
		Addons:         lines,
	}

	// 3. Best offer rule
	rules, err := e.offers.ListActiveRules(ctx, bookingDate)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	query := models.OfferQuery{
		TargetType:  sel.TargetType,
		TargetID:    sel.TargetID,
		SlotKind:    slotKind,
		SlotID:      sel.SlotID,
		BookingDate: bookingDate,
		BookingTime: bookingTime,
	}
	if rule := selectBestRule(rules, query); rule != nil {
		discount := rule.Discount(subtotal)
		totals.OfferDiscount = discount
		totals.MatchedOffer = &models.OfferMatch{
			OfferID:   rule.OfferID,
			RuleID:    rule.ID,
			Title:     rule.OfferTitle,
			Priority:  rule.Priority,
			RawAmount: rawRuleDiscount(rule, subtotal),
			Discount:  discount,
		}
	}

	// 4. Coupon
	if sel.CouponCode != "" {
		if err := e.applyCoupon(ctx, totals, sel.CouponCode); err != nil {
			return nil, err
		}
	}

	// 5. Additive, capped at subtotal
	discount := decimal.Min(totals.OfferDiscount.Add(totals.CouponDiscount), subtotal)
	totals.DiscountAmount = discount
	totals.FinalAmount = subtotal.Sub(discount)
	return totals, nil
}

func (e *PricingEngine) applyCoupon(ctx context.Context, totals *models.Totals, code string) error {
	code = models.NormalizeCouponCode(code)
	totals.CouponCode = code

	coupon, err := e.coupons.GetByCode(ctx, code)
	if err != nil {
		return apperr.Internal(err)
	}
	if coupon == nil {
		return apperr.NotFound("coupon")
	}

	ok, reason := coupon.Applicable(totals.BookingDate, totals.TargetType, totals.TargetID)
	if !ok {
		totals.CouponReason = reason
		return nil
	}
	discount, reason := coupon.Discount(totals.Subtotal)
	if reason != "" {
		totals.CouponReason = reason
		e.logger.WithFields(logrus.Fields{
			"coupon_code": code,
			"reason":      reason,
		}).Debug("Coupon gave no discount")
		return nil
	}
	totals.CouponDiscount = discount
	totals.CouponApplied = true
	return nil
}

// selectBestRule picks the matching rule with the lowest priority, then the
// most specific target, then the lowest rule id
func selectBestRule(rules []models.OfferRule, q models.OfferQuery) *models.OfferRule {
	var candidates []models.OfferRule
	for _, r := range rules {
		if r.Matches(q) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Specificity() != b.Specificity() {
			return a.Specificity() > b.Specificity()
		}
		return a.ID.String() < b.ID.String()
	})
	best := candidates[0]
	return &best
}

// rawRuleDiscount is the rule discount before the max_discount and subtotal caps
func rawRuleDiscount(r *models.OfferRule, subtotal decimal.Decimal) decimal.Decimal {
	switch r.DiscountType {
	case models.DiscountAmount:
		return r.DiscountValue
	case models.DiscountPercent:
		return subtotal.Mul(r.DiscountValue).Div(hundred)
	}
	return decimal.Zero
}
