package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/parkpass/ticketing-backend/internal/apperr"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionOwner(id string) models.CartOwner {
	return models.CartOwner{SessionID: id}
}

func itemRequest(targetID uuid.UUID, slotID *uuid.UUID, qty int) *models.PreviewRequest {
	return &models.PreviewRequest{TargetID: targetID, SlotID: slotID, Quantity: qty}
}

func TestCartService_GetCart(t *testing.T) {
	env := newTestEnv()

	t.Run("anonymous without session", func(t *testing.T) {
		_, err := env.carts.GetCart(context.Background(), models.CartOwner{})
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("opens one cart per owner", func(t *testing.T) {
		first, err := env.carts.GetCart(context.Background(), sessionOwner("sess-1"))
		require.NoError(t, err)
		second, err := env.carts.GetCart(context.Background(), sessionOwner("sess-1"))
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, models.CartStatusOpen, first.Status)
		assert.Empty(t, first.Items)
		assert.Equal(t, "0.00", first.FinalAmount.StringFixed(2))
	})
}

func TestCartService_ItemsRecomputeTotals(t *testing.T) {
	env := newTestEnv()
	owner := sessionOwner("sess-items")
	park := env.store.addCatalogItem("100.00")
	zoo := env.store.addCatalogItem("45.50")
	slot := env.store.addSlot(models.SlotKindAttraction, park.ID, day("2025-06-01"), 10)
	addCoupon(env.store, "SAVE10", models.CouponPercent, "10")

	cart, err := env.carts.AddItem(context.Background(), owner, itemRequest(park.ID, &slot.ID, 2))
	require.NoError(t, err)
	assert.Equal(t, "200.00", cart.TotalAmount.StringFixed(2))

	req := itemRequest(zoo.ID, nil, 2)
	req.BookingDate = "2025-06-02"
	req.CouponCode = "SAVE10"
	cart, err = env.carts.AddItem(context.Background(), owner, req)
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, "291.00", cart.TotalAmount.StringFixed(2))
	assert.Equal(t, "9.10", cart.DiscountAmount.StringFixed(2))
	assert.Equal(t, "281.90", cart.FinalAmount.StringFixed(2))

	parkItem := cart.Items[0]
	cart, err = env.carts.UpdateItem(context.Background(), owner, parkItem.ID, &models.UpdateCartItemRequest{Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, "391.00", cart.TotalAmount.StringFixed(2))

	cart, err = env.carts.RemoveItem(context.Background(), owner, parkItem.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "81.90", cart.FinalAmount.StringFixed(2))

	_, err = env.carts.RemoveItem(context.Background(), owner, uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCartService_AddItemPrechecksCapacity(t *testing.T) {
	env := newTestEnv()
	item := env.store.addCatalogItem("10")
	slot := env.store.addSlot(models.SlotKindAttraction, item.ID, day("2025-06-01"), 3)
	env.store.seedBooked(slot, 2)

	_, err := env.carts.AddItem(context.Background(), sessionOwner("sess-cap"), itemRequest(item.ID, &slot.ID, 2))
	assert.True(t, apperr.HasReason(err, apperr.ErrCapacityExceeded))
}

func TestCartService_Abandon(t *testing.T) {
	env := newTestEnv()
	owner := sessionOwner("sess-abandon")
	_, err := env.carts.GetCart(context.Background(), owner)
	require.NoError(t, err)

	require.NoError(t, env.carts.Abandon(context.Background(), owner))

	err = env.carts.Abandon(context.Background(), owner)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	fresh, err := env.carts.GetCart(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, models.CartStatusOpen, fresh.Status)
}

func TestCartService_UpdateItemRejectsInvalidAddons(t *testing.T) {
	env := newTestEnv()
	owner := sessionOwner("sess-addons")
	item := env.store.addCatalogItem("100.00")
	addon := &models.Addon{ID: uuid.New(), Name: "Locker", Price: money("30.00"), DiscountPercent: money("0"), Active: true}
	env.store.addons[addon.ID] = addon

	req := itemRequest(item.ID, nil, 1)
	req.BookingDate = "2025-06-01"
	cart, err := env.carts.AddItem(context.Background(), owner, req)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	itemID := cart.Items[0].ID

	for name, addons := range map[string][]models.AddonSelection{
		"negative quantity": {{AddonID: addon.ID, Quantity: -3}},
		"zero quantity":     {{AddonID: addon.ID, Quantity: 0}},
		"listed twice":      {{AddonID: addon.ID, Quantity: 1}, {AddonID: addon.ID, Quantity: 1}},
	} {
		t.Run(name, func(t *testing.T) {
			addons := addons
			_, err := env.carts.UpdateItem(context.Background(), owner, itemID, &models.UpdateCartItemRequest{Quantity: 1, Addons: &addons})
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}

	fresh, err := env.carts.GetCart(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, "100.00", fresh.FinalAmount.StringFixed(2))
}

func TestCartService_FrozenAfterCheckout(t *testing.T) {
	env := newTestEnv()
	owner := sessionOwner("sess-frozen")
	item := env.store.addCatalogItem("10.00")
	req := itemRequest(item.ID, nil, 1)
	req.BookingDate = "2025-06-01"
	cart, err := env.carts.AddItem(context.Background(), owner, req)
	require.NoError(t, err)
	itemID := cart.Items[0].ID

	_, err = env.payments.InitiateCartPayment(context.Background(), owner, testCustomer, models.RequestMeta{})
	require.NoError(t, err)

	t.Run("add", func(t *testing.T) {
		big := env.store.addCatalogItem("1000.00")
		more := itemRequest(big.ID, nil, 5)
		more.BookingDate = "2025-06-01"
		_, err := env.carts.AddItem(context.Background(), owner, more)
		assert.True(t, apperr.HasReason(err, apperr.ErrInvalidState))
	})

	t.Run("update", func(t *testing.T) {
		_, err := env.carts.UpdateItem(context.Background(), owner, itemID, &models.UpdateCartItemRequest{Quantity: 4})
		assert.True(t, apperr.HasReason(err, apperr.ErrInvalidState))
	})

	t.Run("remove", func(t *testing.T) {
		_, err := env.carts.RemoveItem(context.Background(), owner, itemID)
		assert.True(t, apperr.HasReason(err, apperr.ErrInvalidState))
	})

	fresh, err := env.carts.GetCart(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, fresh.ID)
	assert.Equal(t, models.CartStatusCheckout, fresh.Status)
	assert.Len(t, fresh.Items, 1)
	assert.Equal(t, "10.00", fresh.FinalAmount.StringFixed(2))
}

func TestCartService_CreateBookingsRejectsDriftedItems(t *testing.T) {
	env := newTestEnv()
	owner := sessionOwner("sess-drift")
	item := env.store.addCatalogItem("10.00")
	req := itemRequest(item.ID, nil, 1)
	req.BookingDate = "2025-06-01"
	cart := paidCart(t, env, owner, req)

	env.store.mu.Lock()
	env.store.carts[cart.ID].FinalAmount = money("5010.00")
	env.store.mu.Unlock()

	_, created, err := env.carts.CreateBookingsFromCart(context.Background(), cart.ID, nil)
	assert.True(t, apperr.HasReason(err, apperr.ErrInvalidState))
	assert.False(t, created)
}

func paidCart(t *testing.T, env *testEnv, owner models.CartOwner, reqs ...*models.PreviewRequest) *models.Cart {
	t.Helper()
	var cart *models.Cart
	for _, req := range reqs {
		var err error
		cart, err = env.carts.AddItem(context.Background(), owner, req)
		require.NoError(t, err)
	}
	ok, err := memCarts{env.store}.MarkPaid(context.Background(), cart.ID, "tranctx-paid", cart.Ref+"-paid")
	require.NoError(t, err)
	require.True(t, ok)
	return cart
}

func TestCartService_CreateBookingsFromCart(t *testing.T) {
	t.Run("one completed booking per item", func(t *testing.T) {
		env := newTestEnv()
		user := uuid.New()
		owner := models.CartOwner{UserID: &user}
		a := env.store.addCatalogItem("50")
		b := env.store.addCatalogItem("70")
		slotA := env.store.addSlot(models.SlotKindAttraction, a.ID, day("2025-06-01"), 10)
		slotB := env.store.addSlot(models.SlotKindAttraction, b.ID, day("2025-06-01"), 10)
		cart := paidCart(t, env, owner, itemRequest(a.ID, &slotA.ID, 2), itemRequest(b.ID, &slotB.ID, 1))

		bookings, created, err := env.carts.CreateBookingsFromCart(context.Background(), cart.ID, nil)
		require.NoError(t, err)

		assert.True(t, created)
		require.Len(t, bookings, 2)
		for _, bk := range bookings {
			assert.Equal(t, models.PaymentStatusCompleted, bk.PaymentStatus)
			assert.Equal(t, &cart.ID, bk.CartID)
			assert.Equal(t, &user, bk.UserID)
		}
		assert.Equal(t, 2, env.store.bookedOn(slotA))
		assert.Equal(t, 1, env.store.bookedOn(slotB))
	})

	t.Run("second conversion returns the same bookings", func(t *testing.T) {
		env := newTestEnv()
		item := env.store.addCatalogItem("50")
		slot := env.store.addSlot(models.SlotKindAttraction, item.ID, day("2025-06-01"), 10)
		cart := paidCart(t, env, sessionOwner("sess-conv"), itemRequest(item.ID, &slot.ID, 2))

		first, created, err := env.carts.CreateBookingsFromCart(context.Background(), cart.ID, nil)
		require.NoError(t, err)
		require.True(t, created)

		second, created, err := env.carts.CreateBookingsFromCart(context.Background(), cart.ID, nil)
		require.NoError(t, err)
		assert.False(t, created)
		require.Len(t, second, 1)
		assert.Equal(t, first[0].ID, second[0].ID)
		assert.Equal(t, 2, env.store.bookedOn(slot))
	})

	t.Run("concurrent conversions create one set", func(t *testing.T) {
		env := newTestEnv()
		item := env.store.addCatalogItem("50")
		slot := env.store.addSlot(models.SlotKindAttraction, item.ID, day("2025-06-01"), 10)
		cart := paidCart(t, env, sessionOwner("sess-race"), itemRequest(item.ID, &slot.ID, 3))

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			creates int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				bookings, created, err := env.carts.CreateBookingsFromCart(context.Background(), cart.ID, nil)
				assert.NoError(t, err)
				assert.Len(t, bookings, 1)
				if created {
					mu.Lock()
					creates++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, creates)
		assert.Equal(t, 3, env.store.bookedOn(slot))
	})

	t.Run("unpaid cart", func(t *testing.T) {
		env := newTestEnv()
		item := env.store.addCatalogItem("50")
		cart, err := env.carts.AddItem(context.Background(), sessionOwner("sess-unpaid"), &models.PreviewRequest{
			TargetID: item.ID, Quantity: 1, BookingDate: "2025-06-01",
		})
		require.NoError(t, err)

		_, _, err = env.carts.CreateBookingsFromCart(context.Background(), cart.ID, nil)
		assert.True(t, apperr.HasReason(err, apperr.ErrInvalidState))
	})

	t.Run("capacity taken since add rolls back every item", func(t *testing.T) {
		env := newTestEnv()
		a := env.store.addCatalogItem("50")
		b := env.store.addCatalogItem("50")
		slotA := env.store.addSlot(models.SlotKindAttraction, a.ID, day("2025-06-01"), 10)
		slotB := env.store.addSlot(models.SlotKindAttraction, b.ID, day("2025-06-01"), 2)
		cart := paidCart(t, env, sessionOwner("sess-full"), itemRequest(a.ID, &slotA.ID, 1), itemRequest(b.ID, &slotB.ID, 2))
		env.store.seedBooked(slotB, 1)

		_, _, err := env.carts.CreateBookingsFromCart(context.Background(), cart.ID, nil)
		assert.True(t, apperr.HasReason(err, apperr.ErrCapacityExceeded))
		assert.Zero(t, env.store.bookedOn(slotA))
		assert.Equal(t, 1, env.store.bookedOn(slotB))
	})

	t.Run("unknown cart", func(t *testing.T) {
		env := newTestEnv()
		_, _, err := env.carts.CreateBookingsFromCart(context.Background(), uuid.New(), nil)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}
