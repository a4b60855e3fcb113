package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/parkpass/ticketing-backend/internal/models"
)

// CouponRepository provides coupon lookups
type CouponRepository struct {
	db *sqlx.DB
}

// NewCouponRepository creates a new CouponRepository
func NewCouponRepository(db *sqlx.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// GetByCode returns a coupon by its code (case-insensitive), or nil if not found.
// Active flag, validity window and scope are checked by the caller.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.GetContext(ctx, &coupon, `
		SELECT id, code, discount_kind, value, attraction_id, min_amount, valid_from, valid_to, active
		FROM coupons WHERE UPPER(code) = UPPER($1)`, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return &coupon, nil
}
