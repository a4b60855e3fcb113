package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/parkpass/ticketing-backend/internal/models"
)

const bookingColumns = `id, booking_ref, user_id, target_type, attraction_id, combo_id,
	slot_id, combo_slot_id, cart_id, cart_item_id, quantity, booking_date,
	total_amount, discount_amount, final_amount, coupon_code, offer_rule_id,
	payment_status, payment_mode, payment_ref, payment_txn_no, booking_status,
	ticket_artifact_ref, customer_email, customer_mobile, created_at, updated_at`

// BookingRepository handles booking rows and their add-on lines
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// GenerateBookingRef generates a unique booking reference
// Format: BK-YYYYMMDD-XXXXXX (6 char hex)
func (r *BookingRepository) GenerateBookingRef(ctx context.Context) (string, error) {
	return generateReference(ctx, r.db, "BK", `SELECT COUNT(*) FROM bookings WHERE booking_ref = $1`)
}

// generateReference mints PREFIX-YYYYMMDD-XXXXXX and retries on collision
func generateReference(ctx context.Context, db *sqlx.DB, prefix, existsQuery string) (string, error) {
	todayStr := time.Now().Format("20060102")

	for attempts := 0; attempts < 10; attempts++ {
		randomBytes := make([]byte, 3)
		if _, err := rand.Read(randomBytes); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		ref := fmt.Sprintf("%s-%s-%s", prefix, todayStr, strings.ToUpper(hex.EncodeToString(randomBytes)))

		var count int
		if err := db.GetContext(ctx, &count, existsQuery, ref); err != nil {
			return "", fmt.Errorf("failed to check reference uniqueness: %w", err)
		}
		if count == 0 {
			return ref, nil
		}
	}

	return "", fmt.Errorf("failed to generate unique %s reference after 10 attempts", prefix)
}

// Create inserts a booking and its add-on lines on tx
func (r *BookingRepository) Create(ctx context.Context, tx Tx, b *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, booking_ref, user_id, target_type, attraction_id, combo_id,
			slot_id, combo_slot_id, cart_id, cart_item_id, quantity, booking_date,
			total_amount, discount_amount, final_amount, coupon_code, offer_rule_id,
			payment_status, payment_mode, payment_ref, payment_txn_no, booking_status,
			customer_email, customer_mobile
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22,
			$23, $24
		)
		RETURNING created_at, updated_at`

	q := pick(r.db, tx)
	err := q.QueryRowxContext(ctx, query,
		b.ID, b.Ref, b.UserID, b.TargetType, b.AttractionID, b.ComboID,
		b.SlotID, b.ComboSlotID, b.CartID, b.CartItemID, b.Quantity, b.BookingDate,
		b.TotalAmount, b.DiscountAmount, b.FinalAmount, b.CouponCode, b.OfferRuleID,
		b.PaymentStatus, b.PaymentMode, b.PaymentRef, b.PaymentTxnNo, b.BookingStatus,
		b.CustomerEmail, b.CustomerMobile,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	for _, addon := range b.Addons {
		_, err := q.ExecContext(ctx, `
			INSERT INTO booking_addons (id, booking_id, addon_id, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			addon.ID, b.ID, addon.AddonID, addon.Quantity, addon.UnitPrice, addon.LineTotal,
		)
		if err != nil {
			return fmt.Errorf("failed to insert booking addon: %w", err)
		}
	}
	return nil
}

func (r *BookingRepository) getOne(ctx context.Context, where string, arg interface{}) (*models.Booking, error) {
	var b models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + where
	if err := r.db.GetContext(ctx, &b, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

// GetByID returns a booking by id, or nil if not found
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return r.getOne(ctx, `id = $1`, id)
}

// GetByRef returns a booking with its add-on lines, or nil if not found
func (r *BookingRepository) GetByRef(ctx context.Context, ref string) (*models.Booking, error) {
	b, err := r.getOne(ctx, `booking_ref = $1`, ref)
	if err != nil || b == nil {
		return b, err
	}
	if err := r.db.SelectContext(ctx, &b.Addons, `
		SELECT id, booking_id, addon_id, quantity, unit_price, line_total
		FROM booking_addons WHERE booking_id = $1 ORDER BY id`, b.ID); err != nil {
		return nil, fmt.Errorf("failed to get booking addons: %w", err)
	}
	return b, nil
}

// ListByCartID returns bookings already produced from a cart
func (r *BookingRepository) ListByCartID(ctx context.Context, tx Tx, cartID uuid.UUID) ([]*models.Booking, error) {
	var bookings []*models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE cart_id = $1 ORDER BY created_at, id`
	if err := sqlx.SelectContext(ctx, pick(r.db, tx), &bookings, query, cartID); err != nil {
		return nil, fmt.Errorf("failed to list cart bookings: %w", err)
	}
	return bookings, nil
}

// SetPaymentAttempt stores the correlation of a new initiation on a pending booking
func (r *BookingRepository) SetPaymentAttempt(ctx context.Context, id uuid.UUID, token, txnNo string, customer models.Customer) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET payment_ref = $2, payment_txn_no = $3,
		    customer_email = COALESCE(NULLIF($4, ''), customer_email),
		    customer_mobile = COALESCE(NULLIF($5, ''), customer_mobile),
		    updated_at = NOW()
		WHERE id = $1 AND payment_status = $6`,
		id, token, txnNo, customer.Email, customer.Mobile, models.PaymentStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to store payment attempt: %w", err)
	}
	return affected(result)
}

// MarkPaymentCompleted moves Pending to Completed. It returns false when the
// booking was not Pending, which makes a repeated call a no-op.
func (r *BookingRepository) MarkPaymentCompleted(ctx context.Context, id uuid.UUID, token, txnNo string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET payment_status = $2, payment_ref = $4, payment_txn_no = $5, updated_at = NOW()
		WHERE id = $1 AND payment_status = $3`,
		id, models.PaymentStatusCompleted, models.PaymentStatusPending, token, txnNo,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark booking paid: %w", err)
	}
	return affected(result)
}

// Cancel sets booking_status to Cancelled and cancels a still-pending payment.
// A Completed payment keeps its status.
func (r *BookingRepository) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET booking_status = $2,
		    payment_status = CASE WHEN payment_status = $3 THEN $4 ELSE payment_status END,
		    updated_at = NOW()
		WHERE id = $1 AND booking_status <> $2`,
		id, models.BookingStatusCancelled, models.PaymentStatusPending, models.PaymentStatusCancelled,
	)
	if err != nil {
		return false, fmt.Errorf("failed to cancel booking: %w", err)
	}
	return affected(result)
}

// SetTicketArtifact stores the ticket reference once; later calls are no-ops
func (r *BookingRepository) SetTicketArtifact(ctx context.Context, id uuid.UUID, artifactRef string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET ticket_artifact_ref = $2, updated_at = NOW()
		WHERE id = $1 AND ticket_artifact_ref IS NULL`,
		id, artifactRef,
	)
	if err != nil {
		return false, fmt.Errorf("failed to set ticket artifact: %w", err)
	}
	return affected(result)
}

// TicketArtifactExists reports whether a ticket reference is already taken
func (r *BookingRepository) TicketArtifactExists(ctx context.Context, artifactRef string) (bool, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM bookings WHERE ticket_artifact_ref = $1`, artifactRef); err != nil {
		return false, fmt.Errorf("failed to check ticket reference: %w", err)
	}
	return count > 0, nil
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}
