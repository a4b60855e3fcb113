package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/shopspring/decimal"
)

const cartColumns = `id, cart_ref, user_id, session_id, total_amount, discount_amount, final_amount,
	payment_status, payment_ref, payment_txn_no, status, customer_email, customer_mobile,
	created_at, updated_at`

const cartItemColumns = `id, cart_id, item_type, target_id, slot_id, quantity, booking_date,
	unit_price, subtotal, discount_amount, line_total, coupon_code, offer_rule_id,
	addons, metadata, created_at, updated_at`

// CartRepository handles carts and cart items
type CartRepository struct {
	db *sqlx.DB
}

// NewCartRepository creates a new CartRepository
func NewCartRepository(db *sqlx.DB) *CartRepository {
	return &CartRepository{db: db}
}

// GenerateCartRef generates a unique cart reference
// Format: CT-YYYYMMDD-XXXXXX
func (r *CartRepository) GenerateCartRef(ctx context.Context) (string, error) {
	return generateReference(ctx, r.db, "CT", `SELECT COUNT(*) FROM carts WHERE cart_ref = $1`)
}

func (r *CartRepository) getOne(ctx context.Context, q sqlx.QueryerContext, where string, args ...interface{}) (*models.Cart, error) {
	var cart models.Cart
	query := `SELECT ` + cartColumns + ` FROM carts WHERE ` + where
	if err := sqlx.GetContext(ctx, q, &cart, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &cart, nil
}

// GetOpenByOwner returns the owner's active cart (Open or CheckoutPending), or nil if none
func (r *CartRepository) GetOpenByOwner(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	if owner.UserID != nil {
		return r.getOne(ctx, r.db, `user_id = $1 AND status IN ($2, $3)`,
			*owner.UserID, models.CartStatusOpen, models.CartStatusCheckout)
	}
	return r.getOne(ctx, r.db, `session_id = $1 AND user_id IS NULL AND status IN ($2, $3)`,
		owner.SessionID, models.CartStatusOpen, models.CartStatusCheckout)
}

// GetByID returns a cart by id, or nil if not found
func (r *CartRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	return r.getOne(ctx, r.db, `id = $1`, id)
}

// GetByRef returns a cart by reference, or nil if not found
func (r *CartRepository) GetByRef(ctx context.Context, ref string) (*models.Cart, error) {
	return r.getOne(ctx, r.db, `cart_ref = $1`, ref)
}

// LockByID returns the cart locked FOR UPDATE until tx ends
func (r *CartRepository) LockByID(ctx context.Context, tx Tx, id uuid.UUID) (*models.Cart, error) {
	if tx == nil {
		return nil, fmt.Errorf("lock cart requires a transaction")
	}
	return r.getOne(ctx, tx, `id = $1 FOR UPDATE`, id)
}

// Create inserts a new cart. A second active cart for the same owner violates
// the partial unique index and surfaces as a unique violation.
func (r *CartRepository) Create(ctx context.Context, cart *models.Cart) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO carts (id, cart_ref, user_id, session_id, total_amount, discount_amount,
			final_amount, payment_status, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		cart.ID, cart.Ref, cart.UserID, cart.SessionID, cart.TotalAmount, cart.DiscountAmount,
		cart.FinalAmount, cart.PaymentStatus, cart.Status,
	).Scan(&cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create cart: %w", err)
	}
	return nil
}

// ListItems returns the items of a cart in insertion order
func (r *CartRepository) ListItems(ctx context.Context, tx Tx, cartID uuid.UUID) ([]models.CartItem, error) {
	items := []models.CartItem{}
	query := `SELECT ` + cartItemColumns + ` FROM cart_items WHERE cart_id = $1 ORDER BY created_at, id`
	if err := sqlx.SelectContext(ctx, pick(r.db, tx), &items, query, cartID); err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	return items, nil
}

// GetItem returns one item of a cart, or nil if not found
func (r *CartRepository) GetItem(ctx context.Context, tx Tx, cartID, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	query := `SELECT ` + cartItemColumns + ` FROM cart_items WHERE cart_id = $1 AND id = $2`
	if err := sqlx.GetContext(ctx, pick(r.db, tx), &item, query, cartID, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}
	return &item, nil
}

// InsertItem adds a priced item to a cart
func (r *CartRepository) InsertItem(ctx context.Context, tx Tx, item *models.CartItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	err := pick(r.db, tx).QueryRowxContext(ctx, `
		INSERT INTO cart_items (id, cart_id, item_type, target_id, slot_id, quantity, booking_date,
			unit_price, subtotal, discount_amount, line_total, coupon_code, offer_rule_id, addons, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at`,
		item.ID, item.CartID, item.ItemType, item.TargetID, item.SlotID, item.Quantity, item.BookingDate,
		item.UnitPrice, item.Subtotal, item.DiscountAmount, item.LineTotal, item.CouponCode, item.OfferRuleID,
		item.Addons, item.Metadata,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert cart item: %w", err)
	}
	return nil
}

// UpdateItem rewrites the priced fields of an item
func (r *CartRepository) UpdateItem(ctx context.Context, tx Tx, item *models.CartItem) error {
	_, err := pick(r.db, tx).ExecContext(ctx, `
		UPDATE cart_items
		SET quantity = $3, unit_price = $4, subtotal = $5, discount_amount = $6, line_total = $7,
		    coupon_code = $8, offer_rule_id = $9, addons = $10, metadata = $11, updated_at = NOW()
		WHERE cart_id = $1 AND id = $2`,
		item.CartID, item.ID, item.Quantity, item.UnitPrice, item.Subtotal, item.DiscountAmount, item.LineTotal,
		item.CouponCode, item.OfferRuleID, item.Addons, item.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}
	return nil
}

// DeleteItem removes an item; false means it did not exist
func (r *CartRepository) DeleteItem(ctx context.Context, tx Tx, cartID, itemID uuid.UUID) (bool, error) {
	result, err := pick(r.db, tx).ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`, cartID, itemID)
	if err != nil {
		return false, fmt.Errorf("failed to delete cart item: %w", err)
	}
	return affected(result)
}

// UpdateTotals stores the derived cart totals
func (r *CartRepository) UpdateTotals(ctx context.Context, tx Tx, cartID uuid.UUID, amounts models.Amounts) error {
	_, err := pick(r.db, tx).ExecContext(ctx, `
		UPDATE carts SET total_amount = $2, discount_amount = $3, final_amount = $4, updated_at = NOW()
		WHERE id = $1`,
		cartID, amounts.TotalAmount, amounts.DiscountAmount, amounts.FinalAmount,
	)
	if err != nil {
		return fmt.Errorf("failed to update cart totals: %w", err)
	}
	return nil
}

// SetPaymentAttempt records the latest initiation on an active cart and moves
// it to CheckoutPending. It only matches while the cart total still equals
// amount, so an item change racing the initiation makes it return false.
func (r *CartRepository) SetPaymentAttempt(ctx context.Context, id uuid.UUID, token, txnNo string, amount decimal.Decimal, customer models.Customer) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE carts
		SET status = $6, payment_ref = $2, payment_txn_no = $3, customer_email = $4, customer_mobile = $5, updated_at = NOW()
		WHERE id = $1 AND status IN ($6, $7) AND payment_status = $8 AND final_amount = $9`,
		id, token, txnNo, customer.Email, customer.Mobile,
		models.CartStatusCheckout, models.CartStatusOpen, models.PaymentStatusPending, amount,
	)
	if err != nil {
		return false, fmt.Errorf("failed to store cart payment attempt: %w", err)
	}
	return affected(result)
}

// MarkPaid moves an unpaid cart to Paid/Completed; false means it already moved.
// An Abandoned cart is accepted too: a sale verified by the gateway is never dropped.
func (r *CartRepository) MarkPaid(ctx context.Context, id uuid.UUID, token, txnNo string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE carts SET status = $2, payment_status = $3, payment_ref = $7, payment_txn_no = $8, updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $5, $6) AND payment_status <> $3`,
		id, models.CartStatusPaid, models.PaymentStatusCompleted,
		models.CartStatusOpen, models.CartStatusCheckout, models.CartStatusAbandoned,
		token, txnNo,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark cart paid: %w", err)
	}
	return affected(result)
}

// MarkAbandoned moves an Open or CheckoutPending cart to Abandoned
func (r *CartRepository) MarkAbandoned(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE carts SET status = $2, payment_status = CASE WHEN payment_status = $4 THEN $5 ELSE payment_status END,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $6)`,
		id, models.CartStatusAbandoned, models.CartStatusOpen, models.PaymentStatusPending, models.PaymentStatusCancelled,
		models.CartStatusCheckout,
	)
	if err != nil {
		return false, fmt.Errorf("failed to abandon cart: %w", err)
	}
	return affected(result)
}
