package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SlotKind distinguishes attraction slots from combo slots.
// Both share the same shape and capacity rules.
type SlotKind string

const (
	SlotKindAttraction SlotKind = "slot"
	SlotKindCombo      SlotKind = "combo_slot"
)

// Valid reports whether k is a known slot kind
func (k SlotKind) Valid() bool {
	return k == SlotKindAttraction || k == SlotKindCombo
}

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// Slot is a fixed-capacity inventory unit for one attraction or combo
type Slot struct {
	ID        uuid.UUID           `json:"id" db:"id"`
	Kind      SlotKind            `json:"kind" db:"-"`
	OwnerID   uuid.UUID           `json:"owner_id" db:"owner_id"`
	StartDate time.Time           `json:"start_date" db:"start_date"`
	EndDate   time.Time           `json:"end_date" db:"end_date"`
	StartTime string              `json:"start_time" db:"start_time"` // HH:MM
	EndTime   string              `json:"end_time" db:"end_time"`     // HH:MM, exclusive
	Capacity  int                 `json:"capacity" db:"capacity"`
	UnitPrice decimal.NullDecimal `json:"unit_price" db:"unit_price"`
	Available bool                `json:"available" db:"available"`
	CreatedAt time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt time.Time           `json:"updated_at" db:"updated_at"`
}

// NewSlot builds a slot and validates its ranges
func NewSlot(kind SlotKind, ownerID uuid.UUID, startDate, endDate time.Time, startTime, endTime string, capacity int, unitPrice decimal.NullDecimal) (*Slot, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid slot kind: %s", kind)
	}
	if ownerID == uuid.Nil {
		return nil, fmt.Errorf("owner_id is required")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive")
	}
	startDate, endDate = DateOnly(startDate), DateOnly(endDate)
	if endDate.Before(startDate) {
		return nil, fmt.Errorf("end_date must not be before start_date")
	}
	start, err := ParseClock(startTime)
	if err != nil {
		return nil, err
	}
	end, err := ParseClock(endTime)
	if err != nil {
		return nil, err
	}
	if start >= end {
		return nil, fmt.Errorf("start_time must be before end_time")
	}
	if unitPrice.Valid && unitPrice.Decimal.IsNegative() {
		return nil, fmt.Errorf("unit_price must not be negative")
	}

	return &Slot{
		ID:        uuid.New(),
		Kind:      kind,
		OwnerID:   ownerID,
		StartDate: startDate,
		EndDate:   endDate,
		StartTime: FormatClock(start),
		EndTime:   FormatClock(end),
		Capacity:  capacity,
		UnitPrice: unitPrice,
		Available: true,
	}, nil
}

// Overlaps reports whether two slots of the same owner share any (date, time) point.
// Time ranges are half-open: a slot ending at 10:00 does not overlap one starting at 10:00.
func (s *Slot) Overlaps(other *Slot) bool {
	if s.Kind != other.Kind || s.OwnerID != other.OwnerID {
		return false
	}
	if s.StartDate.After(other.EndDate) || s.EndDate.Before(other.StartDate) {
		return false
	}
	sStart, _ := ParseClock(s.StartTime)
	sEnd, _ := ParseClock(s.EndTime)
	oStart, _ := ParseClock(other.StartTime)
	oEnd, _ := ParseClock(other.EndTime)
	return oStart < sEnd && oEnd > sStart
}

// CoversDate reports whether date falls inside the slot's date range
func (s *Slot) CoversDate(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(DateOnly(s.StartDate)) && !d.After(DateOnly(s.EndDate))
}

// SlotAvailability is the lock-free availability view of a slot
type SlotAvailability struct {
	SlotID    uuid.UUID `json:"slot_id"`
	Kind      SlotKind  `json:"kind"`
	Capacity  int       `json:"capacity"`
	Booked    int       `json:"booked"`
	Remaining int       `json:"remaining"`
	Available bool      `json:"available"`
}

// NewSlotAvailability derives the remaining seats, floored at zero
func NewSlotAvailability(slot *Slot, booked int) SlotAvailability {
	remaining := slot.Capacity - booked
	if remaining < 0 {
		remaining = 0
	}
	return SlotAvailability{
		SlotID:    slot.ID,
		Kind:      slot.Kind,
		Capacity:  slot.Capacity,
		Booked:    booked,
		Remaining: remaining,
		Available: slot.Available && remaining > 0,
	}
}

// ParseClock parses "HH:MM" (or "HH:MM:SS") into minutes after midnight
func ParseClock(s string) (int, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	if s == "24:00" {
		return 24 * 60, nil
	}
	return 0, fmt.Errorf("invalid time of day %q, expected HH:MM", s)
}

// FormatClock renders minutes after midnight as HH:MM
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// DateOnly truncates t to midnight UTC of its calendar date
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// SlotTemplate holds the generation parameters used by the nightly extension job
type SlotTemplate struct {
	ID              uuid.UUID           `json:"id" db:"id"`
	Kind            SlotKind            `json:"kind" db:"slot_kind"`
	OwnerID         uuid.UUID           `json:"owner_id" db:"owner_id"`
	StartHour       int                 `json:"start_hour" db:"start_hour"`
	EndHour         int                 `json:"end_hour" db:"end_hour"`
	DurationMinutes int                 `json:"duration_minutes" db:"duration_minutes"`
	Capacity        int                 `json:"capacity" db:"capacity"`
	UnitPrice       decimal.NullDecimal `json:"unit_price" db:"unit_price"`
	DaysAhead       int                 `json:"days_ahead" db:"days_ahead"`
	SkipHolidays    bool                `json:"skip_holidays" db:"skip_holidays"`
	Active          bool                `json:"active" db:"active"`
}
