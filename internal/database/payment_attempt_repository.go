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

// PaymentAttemptRepository keeps one row per gateway initiation
type PaymentAttemptRepository struct {
	db *sqlx.DB
}

// NewPaymentAttemptRepository creates a new PaymentAttemptRepository
func NewPaymentAttemptRepository(db *sqlx.DB) *PaymentAttemptRepository {
	return &PaymentAttemptRepository{db: db}
}

// Create records an attempt. Token and txn number are unique across attempts.
func (r *PaymentAttemptRepository) Create(ctx context.Context, a *models.PaymentAttempt) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_attempts (id, target_type, booking_id, cart_id, token, txn_no, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Target, a.BookingID, a.CartID, a.Token, a.TxnNo, a.Amount, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment attempt: %w", err)
	}
	return nil
}

// GetByToken resolves a gateway token or our merchant transaction number to
// the attempt that produced it, or nil if none
func (r *PaymentAttemptRepository) GetByToken(ctx context.Context, token string) (*models.PaymentAttempt, error) {
	var a models.PaymentAttempt
	err := r.db.GetContext(ctx, &a, `
		SELECT id, target_type, booking_id, cart_id, token, txn_no, amount, created_at
		FROM payment_attempts WHERE token = $1 OR txn_no = $1
		ORDER BY created_at DESC LIMIT 1`, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment attempt: %w", err)
	}
	return &a, nil
}
