package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/parkpass/ticketing-backend/internal/models"
)

// HolidayRepository reads the holiday calendar
type HolidayRepository struct {
	db *sqlx.DB
}

// NewHolidayRepository creates a new HolidayRepository
func NewHolidayRepository(db *sqlx.DB) *HolidayRepository {
	return &HolidayRepository{db: db}
}

// ListBetween returns holiday dates in [from, to]
func (r *HolidayRepository) ListBetween(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	dates := []time.Time{}
	err := r.db.SelectContext(ctx, &dates, `
		SELECT holiday_date FROM holidays
		WHERE holiday_date BETWEEN $1 AND $2
		ORDER BY holiday_date`, models.DateOnly(from), models.DateOnly(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", err)
	}
	return dates, nil
}
