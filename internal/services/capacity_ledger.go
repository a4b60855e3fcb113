package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/parkpass/ticketing-backend/internal/apperr"
	"github.com/parkpass/ticketing-backend/internal/database"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// CapacityLedger serializes capacity decisions per slot.
// The slot row lock is the only mutual-exclusion point of the booking paths.
type CapacityLedger struct {
	slots  SlotStore
	logger *logrus.Logger
}

// NewCapacityLedger creates a new CapacityLedger
func NewCapacityLedger(slots SlotStore, logger *logrus.Logger) *CapacityLedger {
	return &CapacityLedger{slots: slots, logger: logger}
}

// LockAndCheck locks the slot row for the rest of tx and verifies that
// quantity more seats fit. It must run in the transaction that inserts the booking.
func (l *CapacityLedger) LockAndCheck(ctx context.Context, tx database.Tx, kind models.SlotKind, slotID uuid.UUID, quantity int) (*models.Slot, error) {
	if quantity <= 0 {
		return nil, apperr.Validation("quantity must be positive")
	}

	slot, err := l.slots.LockSlot(ctx, tx, kind, slotID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to lock slot: %w", err))
	}
	if slot == nil {
		return nil, apperr.NotFound(string(kind))
	}
	if !slot.Available {
		return nil, apperr.Conflict(apperr.ErrSlotUnavailable, "slot is not available for booking")
	}

	booked, err := l.slots.SumBookedQuantity(ctx, tx, kind, slotID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if booked+quantity > slot.Capacity {
		remaining := slot.Capacity - booked
		if remaining < 0 {
			remaining = 0
		}
		l.logger.WithFields(logrus.Fields{
			"slot_id":   slotID,
			"capacity":  slot.Capacity,
			"booked":    booked,
			"requested": quantity,
		}).Info("Capacity check rejected booking")
		return nil, apperr.Conflict(apperr.ErrCapacityExceeded,
			"not enough capacity in slot (available: %d, requested: %d)", remaining, quantity)
	}
	return slot, nil
}

// CheckOverlap rejects a new slot that shares any (date, time) point with an
// existing slot of the same owner
func (l *CapacityLedger) CheckOverlap(ctx context.Context, tx database.Tx, slot *models.Slot) error {
	n, err := l.slots.CountOverlapping(ctx, tx, slot)
	if err != nil {
		return apperr.Internal(err)
	}
	if n > 0 {
		return apperr.Conflict(apperr.ErrSlotOverlap,
			"slot %s %s-%s overlaps an existing slot", slot.StartDate.Format(models.DateLayout), slot.StartTime, slot.EndTime)
	}
	return nil
}

// Availability returns a lock-free, possibly stale, availability view
func (l *CapacityLedger) Availability(ctx context.Context, kind models.SlotKind, slotID uuid.UUID) (*models.SlotAvailability, error) {
	slot, err := l.slots.GetSlot(ctx, kind, slotID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if slot == nil {
		return nil, apperr.NotFound(string(kind))
	}
	booked, err := l.slots.SumBookedQuantity(ctx, nil, kind, slotID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	view := models.NewSlotAvailability(slot, booked)
	return &view, nil
}
