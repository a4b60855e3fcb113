package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/parkpass/ticketing-backend/internal/models"
)

// SlotTemplateRepository reads the per-owner slot generation templates
type SlotTemplateRepository struct {
	db *sqlx.DB
}

// NewSlotTemplateRepository creates a new SlotTemplateRepository
func NewSlotTemplateRepository(db *sqlx.DB) *SlotTemplateRepository {
	return &SlotTemplateRepository{db: db}
}

// ListActive returns all active templates
func (r *SlotTemplateRepository) ListActive(ctx context.Context) ([]models.SlotTemplate, error) {
	templates := []models.SlotTemplate{}
	err := r.db.SelectContext(ctx, &templates, `
		SELECT id, slot_kind, owner_id, start_hour, end_hour, duration_minutes, capacity,
		       unit_price, days_ahead, skip_holidays, active
		FROM slot_templates
		WHERE active = TRUE
		ORDER BY owner_id, start_hour`)
	if err != nil {
		return nil, fmt.Errorf("failed to list slot templates: %w", err)
	}
	return templates, nil
}
