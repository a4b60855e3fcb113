package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/parkpass/ticketing-backend/internal/apperr"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, money(want).StringFixed(2), got.StringFixed(2), msgAndArgs...)
}

func addCoupon(s *memStore, code string, kind models.CouponKind, value string) *models.Coupon {
	c := &models.Coupon{
		ID:        uuid.New(),
		Code:      code,
		Kind:      kind,
		Value:     money(value),
		MinAmount: decimal.Zero,
		ValidFrom: day("2024-01-01"),
		ValidTo:   day("2030-12-31"),
		Active:    true,
	}
	s.coupons[code] = c
	return c
}

func percentRule(priority int, value string) models.OfferRule {
	return models.OfferRule{
		ID:            uuid.New(),
		OfferID:       uuid.New(),
		OfferTitle:    "Season sale",
		AppliesToAll:  true,
		DiscountType:  models.DiscountPercent,
		DiscountValue: money(value),
		Priority:      priority,
	}
}

func TestPricingEngine_CouponPercent(t *testing.T) {
	env := newTestEnv()
	item := env.store.addCatalogItem("410.00")
	addCoupon(env.store, "SAVE10", models.CouponPercent, "10")

	totals, err := env.pricing.ComputeTotals(context.Background(), models.Selection{
		TargetType:  models.TargetAttraction,
		TargetID:    item.ID,
		Quantity:    3,
		CouponCode:  "save10",
		BookingDate: day("2025-06-01"),
	})
	require.NoError(t, err)

	assertMoney(t, "1230.00", totals.Subtotal)
	assertMoney(t, "123.00", totals.CouponDiscount)
	assertMoney(t, "123.00", totals.DiscountAmount)
	assertMoney(t, "1107.00", totals.FinalAmount)
	assert.True(t, totals.CouponApplied)
	assert.Equal(t, "SAVE10", totals.CouponCode)
	assert.Nil(t, totals.MatchedOffer)
}

func TestPricingEngine_OfferCappedByMaxDiscount(t *testing.T) {
	env := newTestEnv()
	item := env.store.addCatalogItem("250.00")
	rule := percentRule(1, "20")
	rule.MaxDiscount = decimal.NewNullDecimal(money("50"))
	env.store.rules = []models.OfferRule{rule}

	totals, err := env.pricing.ComputeTotals(context.Background(), models.Selection{
		TargetType:  models.TargetAttraction,
		TargetID:    item.ID,
		Quantity:    2,
		BookingDate: day("2025-06-01"),
	})
	require.NoError(t, err)

	require.NotNil(t, totals.MatchedOffer)
	assertMoney(t, "500.00", totals.Subtotal)
	assertMoney(t, "100.00", totals.MatchedOffer.RawAmount)
	assertMoney(t, "50.00", totals.OfferDiscount)
	assertMoney(t, "450.00", totals.FinalAmount)
	assert.Equal(t, rule.ID, totals.MatchedOffer.RuleID)
}

func TestPricingEngine_Deterministic(t *testing.T) {
	env := newTestEnv()
	item := env.store.addCatalogItem("99.99")
	addCoupon(env.store, "FLAT5", models.CouponFlat, "5")
	env.store.rules = []models.OfferRule{percentRule(2, "7.5"), percentRule(2, "12.5")}

	sel := models.Selection{
		TargetType:  models.TargetAttraction,
		TargetID:    item.ID,
		Quantity:    7,
		CouponCode:  "FLAT5",
		BookingDate: day("2025-06-01"),
	}
	first, err := env.pricing.ComputeTotals(context.Background(), sel)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := env.pricing.ComputeTotals(context.Background(), sel)
		require.NoError(t, err)
		assert.Equal(t, first.FinalAmount.String(), again.FinalAmount.String())
		assert.Equal(t, first.MatchedOffer.RuleID, again.MatchedOffer.RuleID)
	}
}

func TestPricingEngine_SlotPriceOverride(t *testing.T) {
	env := newTestEnv()
	item := env.store.addCatalogItem("100.00")
	slot := env.store.addSlot(models.SlotKindAttraction, item.ID, day("2025-06-01"), 10)
	slot.UnitPrice = decimal.NewNullDecimal(money("80.00"))

	totals, err := env.pricing.ComputeTotals(context.Background(), models.Selection{
		TargetType: models.TargetAttraction,
		TargetID:   item.ID,
		SlotID:     &slot.ID,
		Quantity:   2,
	})
	require.NoError(t, err)

	assertMoney(t, "80.00", totals.UnitPrice)
	assertMoney(t, "160.00", totals.FinalAmount)
	assert.Equal(t, day("2025-06-01"), totals.BookingDate)
}

func TestPricingEngine_SlotValidation(t *testing.T) {
	env := newTestEnv()
	item := env.store.addCatalogItem("100.00")
	other := env.store.addCatalogItem("100.00")
	slot := env.store.addSlot(models.SlotKindAttraction, item.ID, day("2025-06-01"), 10)

	t.Run("slot of another attraction", func(t *testing.T) {
		_, err := env.pricing.ComputeTotals(context.Background(), models.Selection{
			TargetType: models.TargetAttraction, TargetID: other.ID, SlotID: &slot.ID, Quantity: 1,
		})
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("date outside slot", func(t *testing.T) {
		_, err := env.pricing.ComputeTotals(context.Background(), models.Selection{
			TargetType: models.TargetAttraction, TargetID: item.ID, SlotID: &slot.ID, Quantity: 1,
			BookingDate: day("2025-06-02"),
		})
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("unknown slot", func(t *testing.T) {
		missing := uuid.New()
		_, err := env.pricing.ComputeTotals(context.Background(), models.Selection{
			TargetType: models.TargetAttraction, TargetID: item.ID, SlotID: &missing, Quantity: 1,
		})
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("unknown target", func(t *testing.T) {
		_, err := env.pricing.ComputeTotals(context.Background(), models.Selection{
			TargetType: models.TargetAttraction, TargetID: uuid.New(), Quantity: 1, BookingDate: day("2025-06-01"),
		})
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("zero quantity", func(t *testing.T) {
		_, err := env.pricing.ComputeTotals(context.Background(), models.Selection{
			TargetType: models.TargetAttraction, TargetID: item.ID, Quantity: 0, BookingDate: day("2025-06-01"),
		})
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})
}

func TestPricingEngine_AddonsUseOwnDiscount(t *testing.T) {
	env := newTestEnv()
	item := env.store.addCatalogItem("100.00")
	addon := &models.Addon{ID: uuid.New(), Name: "Locker", Price: money("40.00"), DiscountPercent: money("25"), Active: true}
	env.store.addons[addon.ID] = addon

	totals, err := env.pricing.ComputeTotals(context.Background(), models.Selection{
		TargetType:  models.TargetAttraction,
		TargetID:    item.ID,
		Quantity:    1,
		Addons:      []models.AddonSelection{{AddonID: addon.ID, Quantity: 2}},
		BookingDate: day("2025-06-01"),
	})
	require.NoError(t, err)

	require.Len(t, totals.Addons, 1)
	assertMoney(t, "30.00", totals.Addons[0].UnitPrice)
	assertMoney(t, "60.00", totals.AddonsAmount)
	assertMoney(t, "160.00", totals.Subtotal)
}

func TestPricingEngine_RejectsInvalidAddons(t *testing.T) {
	env := newTestEnv()
	item := env.store.addCatalogItem("100.00")
	addon := &models.Addon{ID: uuid.New(), Name: "Locker", Price: money("30.00"), DiscountPercent: decimal.Zero, Active: true}
	env.store.addons[addon.ID] = addon

	tests := []struct {
		name   string
		addons []models.AddonSelection
	}{
		{"negative quantity", []models.AddonSelection{{AddonID: addon.ID, Quantity: -3}}},
		{"zero quantity", []models.AddonSelection{{AddonID: addon.ID, Quantity: 0}}},
		{"above line maximum", []models.AddonSelection{{AddonID: addon.ID, Quantity: models.MaxQuantity + 1}}},
		{"listed twice", []models.AddonSelection{{AddonID: addon.ID, Quantity: 1}, {AddonID: addon.ID, Quantity: 1}}},
		{"missing id", []models.AddonSelection{{Quantity: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals, err := env.pricing.ComputeTotals(context.Background(), models.Selection{
				TargetType:  models.TargetAttraction,
				TargetID:    item.ID,
				Quantity:    1,
				Addons:      tt.addons,
				BookingDate: day("2025-06-01"),
			})
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Nil(t, totals)
		})
	}
}

func TestSelectBestRule(t *testing.T) {
	target := uuid.New()
	slotID := uuid.New()
	attraction := models.TargetAttraction
	query := models.OfferQuery{
		TargetType:  models.TargetAttraction,
		TargetID:    target,
		SlotKind:    models.SlotKindAttraction,
		SlotID:      &slotID,
		BookingDate: day("2025-06-01"),
		BookingTime: "10:00",
	}

	global := percentRule(5, "10")
	targeted := percentRule(5, "5")
	targeted.AppliesToAll = false
	targeted.TargetType = &attraction
	targeted.TargetID = &target
	slotRule := percentRule(5, "1")
	slotRule.SlotID = &slotID

	t.Run("lower priority wins", func(t *testing.T) {
		urgent := percentRule(1, "2")
		best := selectBestRule([]models.OfferRule{slotRule, urgent, targeted}, query)
		require.NotNil(t, best)
		assert.Equal(t, urgent.ID, best.ID)
	})

	t.Run("specificity breaks priority ties", func(t *testing.T) {
		best := selectBestRule([]models.OfferRule{global, targeted, slotRule}, query)
		require.NotNil(t, best)
		assert.Equal(t, slotRule.ID, best.ID)

		best = selectBestRule([]models.OfferRule{global, targeted}, query)
		require.NotNil(t, best)
		assert.Equal(t, targeted.ID, best.ID)
	})

	t.Run("lowest id breaks full ties", func(t *testing.T) {
		a := percentRule(3, "10")
		b := percentRule(3, "10")
		a.ID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
		b.ID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
		best := selectBestRule([]models.OfferRule{b, a}, query)
		require.NotNil(t, best)
		assert.Equal(t, a.ID, best.ID)
	})

	t.Run("time window excludes rule", func(t *testing.T) {
		evening := percentRule(1, "50")
		from, to := "18:00", "22:00"
		evening.TimeFrom, evening.TimeTo = &from, &to
		best := selectBestRule([]models.OfferRule{evening, global}, query)
		require.NotNil(t, best)
		assert.Equal(t, global.ID, best.ID)
	})

	t.Run("date window excludes rule", func(t *testing.T) {
		expired := percentRule(1, "50")
		end := day("2025-05-31")
		expired.DateTo = &end
		assert.Nil(t, selectBestRule([]models.OfferRule{expired}, query))
	})

	t.Run("no rules", func(t *testing.T) {
		assert.Nil(t, selectBestRule(nil, query))
	})
}

func TestPricingEngine_CouponEdgeCases(t *testing.T) {
	env := newTestEnv()
	item := env.store.addCatalogItem("100.00")
	sel := func(code string) models.Selection {
		return models.Selection{
			TargetType:  models.TargetAttraction,
			TargetID:    item.ID,
			Quantity:    1,
			CouponCode:  code,
			BookingDate: day("2025-06-01"),
		}
	}

	t.Run("unknown coupon", func(t *testing.T) {
		_, err := env.pricing.ComputeTotals(context.Background(), sel("NOPE"))
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("bogo gives zero with reason", func(t *testing.T) {
		addCoupon(env.store, "BOGO", models.CouponBogo, "1")
		totals, err := env.pricing.ComputeTotals(context.Background(), sel("BOGO"))
		require.NoError(t, err)
		assert.False(t, totals.CouponApplied)
		assert.NotEmpty(t, totals.CouponReason)
		assertMoney(t, "100.00", totals.FinalAmount)
	})

	t.Run("minimum amount not met", func(t *testing.T) {
		c := addCoupon(env.store, "BIG", models.CouponFlat, "20")
		c.MinAmount = money("500")
		totals, err := env.pricing.ComputeTotals(context.Background(), sel("BIG"))
		require.NoError(t, err)
		assert.False(t, totals.CouponApplied)
		assert.Contains(t, totals.CouponReason, "500.00")
	})

	t.Run("scoped to another attraction", func(t *testing.T) {
		c := addCoupon(env.store, "ELSEWHERE", models.CouponFlat, "20")
		otherID := uuid.New()
		c.AttractionID = &otherID
		totals, err := env.pricing.ComputeTotals(context.Background(), sel("ELSEWHERE"))
		require.NoError(t, err)
		assert.False(t, totals.CouponApplied)
		assertMoney(t, "0", totals.CouponDiscount)
	})

	t.Run("inactive", func(t *testing.T) {
		c := addCoupon(env.store, "OFF", models.CouponFlat, "20")
		c.Active = false
		totals, err := env.pricing.ComputeTotals(context.Background(), sel("OFF"))
		require.NoError(t, err)
		assert.Equal(t, "coupon is not active", totals.CouponReason)
	})
}

func TestPricingEngine_DiscountsAreAdditiveAndCapped(t *testing.T) {
	env := newTestEnv()
	item := env.store.addCatalogItem("100.00")
	env.store.rules = []models.OfferRule{percentRule(1, "70")}
	addCoupon(env.store, "HALF", models.CouponPercent, "50")

	totals, err := env.pricing.ComputeTotals(context.Background(), models.Selection{
		TargetType:  models.TargetAttraction,
		TargetID:    item.ID,
		Quantity:    1,
		CouponCode:  "HALF",
		BookingDate: day("2025-06-01"),
	})
	require.NoError(t, err)

	assertMoney(t, "70.00", totals.OfferDiscount)
	assertMoney(t, "50.00", totals.CouponDiscount)
	assertMoney(t, "100.00", totals.DiscountAmount)
	assertMoney(t, "0.00", totals.FinalAmount)
}
