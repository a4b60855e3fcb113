package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/parkpass/ticketing-backend/internal/apperr"
	"github.com/parkpass/ticketing-backend/internal/cache"
	"github.com/parkpass/ticketing-backend/internal/database"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// BookingService handles single-shot bookings (no cart)
type BookingService struct {
	txManager database.TxManager
	ledger    *CapacityLedger
	pricing   *PricingEngine
	bookings  BookingStore
	cache     *cache.AvailabilityCache
	logger    *logrus.Logger
}

// NewBookingService creates a new BookingService. availability may be nil.
func NewBookingService(
	txManager database.TxManager,
	ledger *CapacityLedger,
	pricing *PricingEngine,
	bookings BookingStore,
	availability *cache.AvailabilityCache,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		txManager: txManager,
		ledger:    ledger,
		pricing:   pricing,
		bookings:  bookings,
		cache:     availability,
		logger:    logger,
	}
}

// ============================================================================
// CREATE
// ============================================================================

// CreateBooking books an attraction
func (s *BookingService) CreateBooking(ctx context.Context, userID *uuid.UUID, req *models.CreateBookingRequest) (*models.Booking, *models.Totals, error) {
	return s.create(ctx, userID, models.TargetAttraction, req)
}

// CreateComboBooking books a combo
func (s *BookingService) CreateComboBooking(ctx context.Context, userID *uuid.UUID, req *models.CreateBookingRequest) (*models.Booking, *models.Totals, error) {
	return s.create(ctx, userID, models.TargetCombo, req)
}

// create prices the selection, then locks the slot, checks capacity and
// inserts the booking in one transaction
func (s *BookingService) create(ctx context.Context, userID *uuid.UUID, target models.TargetType, req *models.CreateBookingRequest) (*models.Booking, *models.Totals, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	if req.TargetType != "" && req.TargetType != target {
		return nil, nil, apperr.Validation("target_type must be '%s' on this endpoint", target)
	}
	req.TargetType = target

	sel, err := req.ToSelection()
	if err != nil {
		return nil, nil, err
	}
	totals, err := s.pricing.ComputeTotals(ctx, sel)
	if err != nil {
		return nil, nil, err
	}

	ref, err := s.bookings.GenerateBookingRef(ctx)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	booking, err := models.NewBooking(models.NewBookingParams{
		Ref:            ref,
		UserID:         userID,
		Totals:         totals,
		PaymentMode:    req.PaymentMode,
		CustomerEmail:  req.CustomerEmail,
		CustomerMobile: req.CustomerMobile,
	})
	if err != nil {
		return nil, nil, apperr.Validation("%s", err.Error())
	}

	kind := target.SlotKind()
	err = s.txManager.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		if sel.SlotID != nil {
			if _, err := s.ledger.LockAndCheck(ctx, tx, kind, *sel.SlotID, sel.Quantity); err != nil {
				return err
			}
		}
		if err := s.bookings.Create(ctx, tx, booking); err != nil {
			if database.IsUniqueViolation(err) {
				return apperr.Conflict(apperr.ErrDuplicate, "booking already exists")
			}
			return apperr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if sel.SlotID != nil {
		s.cache.Invalidate(ctx, kind, *sel.SlotID)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_ref":  booking.Ref,
		"target_type":  target,
		"target_id":    sel.TargetID,
		"quantity":     booking.Quantity,
		"final_amount": booking.FinalAmount.StringFixed(2),
	}).Info("Booking created")

	return booking, totals, nil
}

// ============================================================================
// READ / CANCEL
// ============================================================================

// GetBooking returns a booking visible to the caller. Bookings of other users
// are reported as not found.
func (s *BookingService) GetBooking(ctx context.Context, ref string, userID uuid.UUID, isAdmin bool) (*models.Booking, error) {
	b, err := s.bookings.GetByRef(ctx, ref)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if b == nil || (!isAdmin && !b.BelongsTo(userID)) {
		return nil, apperr.NotFound("booking")
	}
	return b, nil
}

// CancelBooking sets booking_status to Cancelled. A pending payment is
// cancelled with it; a completed payment is left alone and needs a refund.
func (s *BookingService) CancelBooking(ctx context.Context, ref string, userID uuid.UUID, isAdmin bool) (*models.Booking, error) {
	b, err := s.GetBooking(ctx, ref, userID, isAdmin)
	if err != nil {
		return nil, err
	}
	switch b.BookingStatus {
	case models.BookingStatusCancelled:
		return b, nil
	case models.BookingStatusRedeemed, models.BookingStatusExpired:
		return nil, apperr.Conflict(apperr.ErrInvalidState, "booking is %s and cannot be cancelled", b.BookingStatus)
	}

	if _, err := s.bookings.Cancel(ctx, b.ID); err != nil {
		return nil, apperr.Internal(err)
	}
	if kind, slotID := b.SlotRef(); slotID != nil {
		s.cache.Invalidate(ctx, kind, *slotID)
	}

	updated, err := s.bookings.GetByID(ctx, b.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if updated == nil {
		return nil, apperr.NotFound("booking")
	}

	s.logger.WithFields(logrus.Fields{
		"booking_ref":    updated.Ref,
		"payment_status": updated.PaymentStatus,
	}).Info("Booking cancelled")
	return updated, nil
}

// GetAvailability returns the slot's availability, served from the cache when possible
func (s *BookingService) GetAvailability(ctx context.Context, kind models.SlotKind, slotID uuid.UUID) (*models.SlotAvailability, error) {
	if !kind.Valid() {
		return nil, apperr.Validation("kind must be 'slot' or 'combo_slot'")
	}
	if view, ok := s.cache.Get(ctx, kind, slotID); ok {
		return view, nil
	}
	view, err := s.ledger.Availability(ctx, kind, slotID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, *view)
	return view, nil
}
