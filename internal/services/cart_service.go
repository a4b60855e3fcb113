package services

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/parkpass/ticketing-backend/internal/apperr"
	"github.com/parkpass/ticketing-backend/internal/cache"
	"github.com/parkpass/ticketing-backend/internal/database"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// CartService manages the pre-payment cart and its one-time conversion into bookings
type CartService struct {
	txManager database.TxManager
	ledger    *CapacityLedger
	pricing   *PricingEngine
	carts     CartStore
	bookings  BookingStore
	cache     *cache.AvailabilityCache
	logger    *logrus.Logger
}

// NewCartService creates a new CartService. availability may be nil.
func NewCartService(
	txManager database.TxManager,
	ledger *CapacityLedger,
	pricing *PricingEngine,
	carts CartStore,
	bookings BookingStore,
	availability *cache.AvailabilityCache,
	logger *logrus.Logger,
) *CartService {
	return &CartService{
		txManager: txManager,
		ledger:    ledger,
		pricing:   pricing,
		carts:     carts,
		bookings:  bookings,
		cache:     availability,
		logger:    logger,
	}
}

// ============================================================================
// CART READS
// ============================================================================

// GetCart returns the owner's open cart, creating an empty one if needed
func (s *CartService) GetCart(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	cart, err := s.openCart(ctx, owner, true)
	if err != nil {
		return nil, err
	}
	return s.withItems(ctx, cart)
}

func (s *CartService) openCart(ctx context.Context, owner models.CartOwner, create bool) (*models.Cart, error) {
	if !owner.Valid() {
		return nil, apperr.Validation("sign in or send an X-Session-ID header to use the cart")
	}
	cart, err := s.carts.GetOpenByOwner(ctx, owner)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if cart != nil || !create {
		return cart, nil
	}

	ref, err := s.carts.GenerateCartRef(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	cart, err = models.NewCart(ref, owner)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	if err := s.carts.Create(ctx, cart); err != nil {
		if database.IsUniqueViolation(err) {
			// A concurrent request opened the cart first
			existing, getErr := s.carts.GetOpenByOwner(ctx, owner)
			if getErr != nil {
				return nil, apperr.Internal(getErr)
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, apperr.Internal(err)
	}
	s.logger.WithField("cart_ref", cart.Ref).Info("Cart opened")
	return cart, nil
}

func (s *CartService) withItems(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	items, err := s.carts.ListItems(ctx, nil, cart.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if items == nil {
		items = []models.CartItem{}
	}
	cart.Items = items
	return cart, nil
}

func (s *CartService) reload(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	cart, err := s.carts.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if cart == nil {
		return nil, apperr.NotFound("cart")
	}
	return s.withItems(ctx, cart)
}

// ============================================================================
// ITEM MUTATIONS
// ============================================================================

// AddItem prices a selection and appends it to the owner's open cart
func (s *CartService) AddItem(ctx context.Context, owner models.CartOwner, req *models.PreviewRequest) (*models.Cart, error) {
	sel, err := req.ToSelection()
	if err != nil {
		return nil, err
	}
	totals, err := s.pricing.ComputeTotals(ctx, sel)
	if err != nil {
		return nil, err
	}
	if err := s.precheckCapacity(ctx, totals); err != nil {
		return nil, err
	}

	cart, err := s.openCart(ctx, owner, true)
	if err != nil {
		return nil, err
	}
	if !cart.IsOpen() {
		return nil, checkoutStarted(cart)
	}

	item := &models.CartItem{ID: uuid.New(), CartID: cart.ID, Metadata: models.JSONB{}}
	if err := item.ApplyTotals(totals); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	err = s.txManager.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		if err := s.lockEditable(ctx, tx, cart.ID); err != nil {
			return err
		}
		if err := s.carts.InsertItem(ctx, tx, item); err != nil {
			return apperr.Internal(err)
		}
		return s.recomputeTotals(ctx, tx, cart.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"cart_ref":  cart.Ref,
		"item_id":   item.ID,
		"target_id": item.TargetID,
		"quantity":  item.Quantity,
	}).Info("Cart item added")
	return s.reload(ctx, cart.ID)
}

// UpdateItem changes quantity and optionally add-ons or coupon, then reprices
func (s *CartService) UpdateItem(ctx context.Context, owner models.CartOwner, itemID uuid.UUID, req *models.UpdateCartItemRequest) (*models.Cart, error) {
	if req.Quantity <= 0 || req.Quantity > models.MaxQuantity {
		return nil, apperr.Validation("quantity must be between 1 and %d", models.MaxQuantity)
	}
	if req.Addons != nil {
		if err := models.ValidateAddons(*req.Addons); err != nil {
			return nil, err
		}
	}
	cart, err := s.requireActiveCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	if !cart.IsOpen() {
		return nil, checkoutStarted(cart)
	}
	item, err := s.carts.GetItem(ctx, nil, cart.ID, itemID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if item == nil {
		return nil, apperr.NotFound("cart item")
	}

	sel := item.Selection()
	sel.Quantity = req.Quantity
	if req.Addons != nil {
		sel.Addons = *req.Addons
	}
	if req.CouponCode != nil {
		sel.CouponCode = models.NormalizeCouponCode(*req.CouponCode)
	}
	totals, err := s.pricing.ComputeTotals(ctx, sel)
	if err != nil {
		return nil, err
	}
	if err := s.precheckCapacity(ctx, totals); err != nil {
		return nil, err
	}
	if err := item.ApplyTotals(totals); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	err = s.txManager.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		if err := s.lockEditable(ctx, tx, cart.ID); err != nil {
			return err
		}
		if err := s.carts.UpdateItem(ctx, tx, item); err != nil {
			return apperr.Internal(err)
		}
		return s.recomputeTotals(ctx, tx, cart.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, cart.ID)
}

// RemoveItem deletes an item from the owner's open cart
func (s *CartService) RemoveItem(ctx context.Context, owner models.CartOwner, itemID uuid.UUID) (*models.Cart, error) {
	cart, err := s.requireActiveCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	if !cart.IsOpen() {
		return nil, checkoutStarted(cart)
	}
	err = s.txManager.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		if err := s.lockEditable(ctx, tx, cart.ID); err != nil {
			return err
		}
		deleted, err := s.carts.DeleteItem(ctx, tx, cart.ID, itemID)
		if err != nil {
			return apperr.Internal(err)
		}
		if !deleted {
			return apperr.NotFound("cart item")
		}
		return s.recomputeTotals(ctx, tx, cart.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, cart.ID)
}

// Abandon moves the owner's active cart to Abandoned. A checkout that the
// gateway later confirms still converts the abandoned cart.
func (s *CartService) Abandon(ctx context.Context, owner models.CartOwner) error {
	cart, err := s.requireActiveCart(ctx, owner)
	if err != nil {
		return err
	}
	ok, err := s.carts.MarkAbandoned(ctx, cart.ID)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return apperr.Conflict(apperr.ErrInvalidState, "cart is no longer open")
	}
	s.logger.WithFields(logrus.Fields{
		"cart_ref": cart.Ref,
		"status":   cart.Status,
	}).Info("Cart abandoned")
	return nil
}

// requireActiveCart returns the owner's Open or CheckoutPending cart
func (s *CartService) requireActiveCart(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	cart, err := s.openCart(ctx, owner, false)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, apperr.NotFound("cart")
	}
	return cart, nil
}

// lockEditable locks the cart row and checks that no checkout started since it was read
func (s *CartService) lockEditable(ctx context.Context, tx database.Tx, cartID uuid.UUID) error {
	cart, err := s.carts.LockByID(ctx, tx, cartID)
	if err != nil {
		return apperr.Internal(err)
	}
	if cart == nil {
		return apperr.NotFound("cart")
	}
	if !cart.IsOpen() {
		return checkoutStarted(cart)
	}
	return nil
}

func checkoutStarted(cart *models.Cart) error {
	return apperr.Conflict(apperr.ErrInvalidState, "checkout already started for cart %s; abandon it to change items", cart.Ref)
}

// recomputeTotals derives the cart totals from its items. Totals are never set directly.
func (s *CartService) recomputeTotals(ctx context.Context, tx database.Tx, cartID uuid.UUID) error {
	items, err := s.carts.ListItems(ctx, tx, cartID)
	if err != nil {
		return apperr.Internal(err)
	}
	amounts, err := models.SumCartItems(items)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.carts.UpdateTotals(ctx, tx, cartID, amounts); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// precheckCapacity is an advisory, lock-free check; the authoritative one runs at conversion
func (s *CartService) precheckCapacity(ctx context.Context, totals *models.Totals) error {
	if totals.SlotID == nil {
		return nil
	}
	view, err := s.ledger.Availability(ctx, totals.TargetType.SlotKind(), *totals.SlotID)
	if err != nil {
		return err
	}
	if !view.Available && view.Remaining > 0 {
		return apperr.Conflict(apperr.ErrSlotUnavailable, "slot is not available for booking")
	}
	if view.Remaining < totals.Quantity {
		return apperr.Conflict(apperr.ErrCapacityExceeded,
			"not enough capacity in slot (available: %d, requested: %d)", view.Remaining, totals.Quantity)
	}
	return nil
}

// ============================================================================
// CONVERSION
// ============================================================================

// CreateBookingsFromCart converts a paid cart into one booking per item.
//
// It is idempotent: the cart row is locked and, if bookings for the cart
// already exist, they are returned unchanged with created=false.
func (s *CartService) CreateBookingsFromCart(ctx context.Context, cartID uuid.UUID, userID *uuid.UUID) ([]*models.Booking, bool, error) {
	var (
		bookings []*models.Booking
		created  bool
	)

	err := s.txManager.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		cart, err := s.carts.LockByID(ctx, tx, cartID)
		if err != nil {
			return apperr.Internal(err)
		}
		if cart == nil {
			return apperr.NotFound("cart")
		}

		existing, err := s.bookings.ListByCartID(ctx, tx, cartID)
		if err != nil {
			return apperr.Internal(err)
		}
		if len(existing) > 0 {
			bookings = existing
			return nil
		}

		if cart.Status != models.CartStatusPaid {
			return apperr.Conflict(apperr.ErrInvalidState, "cart %s is not paid", cart.Ref)
		}
		items, err := s.carts.ListItems(ctx, tx, cartID)
		if err != nil {
			return apperr.Internal(err)
		}
		if len(items) == 0 {
			return apperr.Validation("cart %s has no items", cart.Ref)
		}
		// Items are frozen at checkout; they must still add up to what was paid
		sum, err := models.SumCartItems(items)
		if err != nil {
			return apperr.Internal(err)
		}
		if !sum.FinalAmount.Equal(cart.FinalAmount) {
			return apperr.Conflict(apperr.ErrInvalidState, "cart %s items total %s but %s was paid",
				cart.Ref, sum.FinalAmount.StringFixed(2), cart.FinalAmount.StringFixed(2))
		}

		// Lock slots in a stable order so two conversions cannot deadlock
		sort.SliceStable(items, func(i, j int) bool {
			return slotSortKey(items[i]) < slotSortKey(items[j])
		})

		owner := userID
		if owner == nil {
			owner = cart.UserID
		}
		out := make([]*models.Booking, 0, len(items))
		for i := range items {
			item := items[i]
			if item.SlotID != nil {
				if _, err := s.ledger.LockAndCheck(ctx, tx, item.ItemType.SlotKind(), *item.SlotID, item.Quantity); err != nil {
					return err
				}
			}

			ref, err := s.bookings.GenerateBookingRef(ctx)
			if err != nil {
				return apperr.Internal(err)
			}
			params := models.NewBookingParams{
				Ref:        ref,
				UserID:     owner,
				Totals:     item.Totals(),
				CartID:     &cart.ID,
				CartItemID: &item.ID,
			}
			if cart.CustomerEmail != nil {
				params.CustomerEmail = *cart.CustomerEmail
			}
			if cart.CustomerMobile != nil {
				params.CustomerMobile = *cart.CustomerMobile
			}
			b, err := models.NewBooking(params)
			if err != nil {
				return apperr.Internal(err)
			}
			b.PaymentStatus = models.PaymentStatusCompleted
			b.PaymentRef = cart.PaymentRef
			b.PaymentTxnNo = cart.PaymentTxnNo

			if err := s.bookings.Create(ctx, tx, b); err != nil {
				if database.IsUniqueViolation(err) {
					return apperr.Conflict(apperr.ErrDuplicate, "cart %s is already converted", cart.Ref)
				}
				return apperr.Internal(err)
			}
			out = append(out, b)
		}
		bookings = out
		created = true
		return nil
	})

	if apperr.HasReason(err, apperr.ErrDuplicate) {
		// Lost the race to a concurrent conversion; return its result
		existing, listErr := s.bookings.ListByCartID(ctx, nil, cartID)
		if listErr != nil {
			return nil, false, apperr.Internal(listErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if created {
		for _, b := range bookings {
			if kind, slotID := b.SlotRef(); slotID != nil {
				s.cache.Invalidate(ctx, kind, *slotID)
			}
		}
		s.logger.WithFields(logrus.Fields{
			"cart_id":  cartID,
			"bookings": len(bookings),
		}).Info("Cart converted to bookings")
	}
	return bookings, created, nil
}

func slotSortKey(item models.CartItem) string {
	if item.SlotID == nil {
		return ""
	}
	return string(item.ItemType.SlotKind()) + ":" + item.SlotID.String()
}
