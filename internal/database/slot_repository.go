package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/parkpass/ticketing-backend/internal/models"
)

// slotTable maps a slot kind to its table and foreign-key columns
type slotTable struct {
	name          string
	ownerColumn   string
	bookingColumn string
}

var slotTables = map[models.SlotKind]slotTable{
	models.SlotKindAttraction: {name: "slots", ownerColumn: "attraction_id", bookingColumn: "slot_id"},
	models.SlotKindCombo:      {name: "combo_slots", ownerColumn: "combo_id", bookingColumn: "combo_slot_id"},
}

func tableFor(kind models.SlotKind) (slotTable, error) {
	t, ok := slotTables[kind]
	if !ok {
		return slotTable{}, fmt.Errorf("unknown slot kind: %s", kind)
	}
	return t, nil
}

func slotColumns(t slotTable) string {
	return fmt.Sprintf(`id, %s AS owner_id, start_date, end_date,
		to_char(start_time, 'HH24:MI') AS start_time, to_char(end_time, 'HH24:MI') AS end_time,
		capacity, unit_price, available, created_at, updated_at`, t.ownerColumn)
}

// SlotRepository handles slots and combo slots, which share one shape
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository creates a new SlotRepository
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// GetSlot returns a slot without locking it, or nil if not found
func (r *SlotRepository) GetSlot(ctx context.Context, kind models.SlotKind, id uuid.UUID) (*models.Slot, error) {
	return r.getSlot(ctx, nil, kind, id, false)
}

// LockSlot returns the slot row locked FOR UPDATE until tx ends, or nil if not found
func (r *SlotRepository) LockSlot(ctx context.Context, tx Tx, kind models.SlotKind, id uuid.UUID) (*models.Slot, error) {
	if tx == nil {
		return nil, fmt.Errorf("lock slot requires a transaction")
	}
	return r.getSlot(ctx, tx, kind, id, true)
}

func (r *SlotRepository) getSlot(ctx context.Context, tx Tx, kind models.SlotKind, id uuid.UUID, forUpdate bool) (*models.Slot, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, slotColumns(t), t.name)
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var slot models.Slot
	if err := sqlx.GetContext(ctx, pick(r.db, tx), &slot, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}
	slot.Kind = kind
	return &slot, nil
}

// SumBookedQuantity returns the live total of non-cancelled booking quantities on a slot
func (r *SlotRepository) SumBookedQuantity(ctx context.Context, tx Tx, kind models.SlotKind, id uuid.UUID) (int, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(quantity), 0) FROM bookings
		WHERE %s = $1 AND booking_status <> $2`, t.bookingColumn)

	var booked int
	if err := sqlx.GetContext(ctx, pick(r.db, tx), &booked, query, id, models.BookingStatusCancelled); err != nil {
		return 0, fmt.Errorf("failed to sum booked quantity: %w", err)
	}
	return booked, nil
}

// CountOverlapping counts other slots of the same owner intersecting slot in date and time
func (r *SlotRepository) CountOverlapping(ctx context.Context, tx Tx, slot *models.Slot) (int, error) {
	t, err := tableFor(slot.Kind)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE %s = $1 AND id <> $2
		  AND NOT ($3::date > end_date OR $4::date < start_date)
		  AND start_time < $6::time AND end_time > $5::time`, t.name, t.ownerColumn)

	var count int
	err = sqlx.GetContext(ctx, pick(r.db, tx), &count, query,
		slot.OwnerID, slot.ID,
		slot.StartDate, slot.EndDate,
		slot.StartTime, slot.EndTime,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to check overlapping slots: %w", err)
	}
	return count, nil
}

// CreateSlot inserts a slot
func (r *SlotRepository) CreateSlot(ctx context.Context, tx Tx, slot *models.Slot) error {
	t, err := tableFor(slot.Kind)
	if err != nil {
		return err
	}
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, %s, start_date, end_date, start_time, end_time, capacity, unit_price, available)
		VALUES ($1, $2, $3, $4, $5::time, $6::time, $7, $8, $9)
		RETURNING created_at, updated_at`, t.name, t.ownerColumn)

	row := pick(r.db, tx).QueryRowxContext(ctx, query,
		slot.ID, slot.OwnerID, slot.StartDate, slot.EndDate,
		slot.StartTime, slot.EndTime, slot.Capacity, slot.UnitPrice, slot.Available,
	)
	if err := row.Scan(&slot.CreatedAt, &slot.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create %s: %w", slot.Kind, err)
	}
	return nil
}

// ListByOwnerAndDate returns the slots of an owner covering date, ordered by start time
func (r *SlotRepository) ListByOwnerAndDate(ctx context.Context, kind models.SlotKind, ownerID uuid.UUID, date time.Time) ([]models.Slot, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s = $1 AND start_date <= $2 AND end_date >= $2
		ORDER BY start_time`, slotColumns(t), t.name, t.ownerColumn)

	var slots []models.Slot
	if err := sqlx.SelectContext(ctx, r.db, &slots, query, ownerID, models.DateOnly(date)); err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	for i := range slots {
		slots[i].Kind = kind
	}
	return slots, nil
}
