package services

import (
	"context"
	"fmt"
	"time"

	"github.com/parkpass/ticketing-backend/internal/apperr"
	"github.com/parkpass/ticketing-backend/internal/database"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// SlotScheduler generates slot inventory in fixed-duration blocks.
// Generation is create-if-not-conflicting, so runs can be repeated safely.
type SlotScheduler struct {
	slots     SlotStore
	ledger    *CapacityLedger
	holidays  HolidayReader
	templates SlotTemplateReader
	txManager database.TxManager
	logger    *logrus.Logger
	now       func() time.Time
}

// NewSlotScheduler creates a new SlotScheduler
func NewSlotScheduler(
	slots SlotStore,
	ledger *CapacityLedger,
	holidays HolidayReader,
	templates SlotTemplateReader,
	txManager database.TxManager,
	logger *logrus.Logger,
) *SlotScheduler {
	return &SlotScheduler{
		slots:     slots,
		ledger:    ledger,
		holidays:  holidays,
		templates: templates,
		txManager: txManager,
		logger:    logger,
		now:       time.Now,
	}
}

// GenerateSlots creates one slot per (date, block) over p.Days days starting at
// p.StartDate. Overlapping or duplicate blocks are counted as skipped; only
// infrastructure failures abort the run.
func (s *SlotScheduler) GenerateSlots(ctx context.Context, p models.GenerateSlotsParams) (*models.GenerateSlotsResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	start := models.DateOnly(p.StartDate)
	end := start.AddDate(0, 0, p.Days-1)

	holidays := map[string]bool{}
	if p.SkipHolidays {
		dates, err := s.holidays.ListBetween(ctx, start, end)
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("failed to load holidays: %w", err))
		}
		for _, d := range dates {
			holidays[d.Format(models.DateLayout)] = true
		}
	}

	blocks := blockStarts(p.StartHour, p.EndHour, p.DurationMinutes)
	result := &models.GenerateSlotsResult{}

	for day := 0; day < p.Days; day++ {
		date := start.AddDate(0, 0, day)
		if holidays[date.Format(models.DateLayout)] {
			result.HolidaySkipped += len(blocks)
			continue
		}

		for _, from := range blocks {
			slot, err := models.NewSlot(p.Kind, p.OwnerID, date, date,
				models.FormatClock(from), models.FormatClock(from+p.DurationMinutes), p.Capacity, p.UnitPrice)
			if err != nil {
				return result, apperr.Validation("%s", err.Error())
			}

			err = s.txManager.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
				if err := s.ledger.CheckOverlap(ctx, tx, slot); err != nil {
					return err
				}
				return s.slots.CreateSlot(ctx, tx, slot)
			})
			switch {
			case err == nil:
				result.Created++
			case apperr.Is(err, apperr.KindConflict) || database.IsUniqueViolation(err):
				result.Skipped++
			default:
				s.logger.WithError(err).WithFields(logrus.Fields{
					"owner_id": p.OwnerID,
					"date":     date.Format(models.DateLayout),
				}).Error("Slot generation aborted")
				return result, apperr.Internal(err)
			}
		}
	}

	s.logger.WithFields(logrus.Fields{
		"kind":            p.Kind,
		"owner_id":        p.OwnerID,
		"start_date":      start.Format(models.DateLayout),
		"days":            p.Days,
		"created":         result.Created,
		"skipped":         result.Skipped,
		"holiday_skipped": result.HolidaySkipped,
	}).Info("Slot generation finished")
	return result, nil
}

// CreateSlot inserts one manually defined slot after the overlap check
func (s *SlotScheduler) CreateSlot(ctx context.Context, req *models.CreateSlotRequest) (*models.Slot, error) {
	slot, err := req.ToSlot()
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		if err := s.ledger.CheckOverlap(ctx, tx, slot); err != nil {
			return err
		}
		return s.slots.CreateSlot(ctx, tx, slot)
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Conflict(apperr.ErrDuplicate, "slot already exists")
		}
		if apperr.KindOf(err) != apperr.KindInternal {
			return nil, err
		}
		return nil, apperr.Internal(err)
	}

	s.logger.WithFields(logrus.Fields{
		"kind":     slot.Kind,
		"slot_id":  slot.ID,
		"owner_id": slot.OwnerID,
	}).Info("Slot created")
	return slot, nil
}

// blockStarts returns the start minute of every whole block between the hours
func blockStarts(startHour, endHour, duration int) []int {
	var starts []int
	for m := startHour * 60; m+duration <= endHour*60; m += duration {
		starts = append(starts, m)
	}
	return starts
}

// ExtensionResult summarizes one template extension run
type ExtensionResult struct {
	Templates int `json:"templates"`
	Failed    int `json:"failed"`
	models.GenerateSlotsResult
}

// ExtendFromTemplates runs GenerateSlots for every active template from today
// over its days_ahead window. A failing template is logged and the run continues.
func (s *SlotScheduler) ExtendFromTemplates(ctx context.Context) (*ExtensionResult, error) {
	templates, err := s.templates.ListActive(ctx)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to list slot templates: %w", err))
	}

	today := models.DateOnly(s.now())
	out := &ExtensionResult{Templates: len(templates)}
	for _, t := range templates {
		res, err := s.GenerateSlots(ctx, models.GenerateSlotsParams{
			Kind:            t.Kind,
			OwnerID:         t.OwnerID,
			StartDate:       today,
			Days:            t.DaysAhead,
			StartHour:       t.StartHour,
			EndHour:         t.EndHour,
			DurationMinutes: t.DurationMinutes,
			Capacity:        t.Capacity,
			UnitPrice:       t.UnitPrice,
			SkipHolidays:    t.SkipHolidays,
		})
		if res != nil {
			out.Created += res.Created
			out.Skipped += res.Skipped
			out.HolidaySkipped += res.HolidaySkipped
		}
		if err != nil {
			out.Failed++
			s.logger.WithError(err).WithField("template_id", t.ID).Error("Slot template extension failed")
		}
	}
	return out, nil
}
