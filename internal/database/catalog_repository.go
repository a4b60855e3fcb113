package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/parkpass/ticketing-backend/internal/models"
)

var catalogTables = map[models.TargetType]string{
	models.TargetAttraction: "attractions",
	models.TargetCombo:      "combos",
}

// CatalogRepository provides read-only lookups of attractions, combos and add-ons
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository creates a new CatalogRepository
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetItem returns an active attraction or combo, or nil if not found
func (r *CatalogRepository) GetItem(ctx context.Context, targetType models.TargetType, id uuid.UUID) (*models.CatalogItem, error) {
	table, ok := catalogTables[targetType]
	if !ok {
		return nil, fmt.Errorf("unknown target type: %s", targetType)
	}

	var item models.CatalogItem
	query := fmt.Sprintf(`SELECT id, name, base_price, active FROM %s WHERE id = $1 AND active = TRUE`, table)
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s: %w", targetType, err)
	}
	return &item, nil
}

// GetAddon returns an active add-on, or nil if not found
func (r *CatalogRepository) GetAddon(ctx context.Context, id uuid.UUID) (*models.Addon, error) {
	var addon models.Addon
	err := r.db.GetContext(ctx, &addon, `
		SELECT id, name, price, discount_percent, active
		FROM addons WHERE id = $1 AND active = TRUE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get addon: %w", err)
	}
	return &addon, nil
}
