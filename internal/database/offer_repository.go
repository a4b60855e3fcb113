package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/parkpass/ticketing-backend/internal/models"
)

// OfferRepository provides offer rule lookups
type OfferRepository struct {
	db *sqlx.DB
}

// NewOfferRepository creates a new OfferRepository
func NewOfferRepository(db *sqlx.DB) *OfferRepository {
	return &OfferRepository{db: db}
}

// ListActiveRules returns the rules of offers active on date, joined with
// their offer's title and max_discount. Rule-level matching is done by the caller.
func (r *OfferRepository) ListActiveRules(ctx context.Context, date time.Time) ([]models.OfferRule, error) {
	rules := []models.OfferRule{}
	err := r.db.SelectContext(ctx, &rules, `
		SELECT r.id, r.offer_id, o.title AS offer_title, o.max_discount,
		       r.target_type, r.target_id, r.applies_to_all, r.slot_type, r.slot_id,
		       r.date_from, r.date_to,
		       to_char(r.time_from, 'HH24:MI') AS time_from, to_char(r.time_to, 'HH24:MI') AS time_to,
		       r.discount_type, r.discount_value, r.priority
		FROM offer_rules r
		JOIN offers o ON o.id = r.offer_id
		WHERE o.active = TRUE
		  AND (o.valid_from IS NULL OR o.valid_from <= $1)
		  AND (o.valid_to IS NULL OR o.valid_to >= $1)
		ORDER BY r.priority, r.id`, models.DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("failed to list offer rules: %w", err)
	}
	return rules, nil
}
