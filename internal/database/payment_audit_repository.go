package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// PaymentAuditRepository handles payment audit operations
type PaymentAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log appends an audit entry
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}
	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (
			id, booking_id, cart_id, payment_reference, correlation_token,
			event_type, event_source,
			amount, payment_status, gateway_code,
			request_payload, response_payload, error_message,
			processing_time_ms, is_duplicate,
			ip_address, user_agent, device_info,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10,
			$11, $12, $13,
			$14, $15,
			$16, $17, $18,
			$19
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.BookingID, audit.CartID, audit.PaymentReference, audit.CorrelationToken,
		audit.EventType, audit.EventSource,
		audit.Amount, audit.PaymentStatus, audit.GatewayCode,
		audit.RequestPayload, audit.ResponsePayload, audit.ErrorMessage,
		audit.ProcessingTimeMs, audit.IsDuplicate,
		audit.IPAddress, audit.UserAgent, audit.DeviceInfo,
		audit.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type":        audit.EventType,
			"payment_reference": audit.PaymentReference,
		}).Error("Failed to log payment audit")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
	}).Debug("Payment audit logged")

	return nil
}

// ListByReference returns the audit trail of a booking or cart reference, oldest first
func (r *PaymentAuditRepository) ListByReference(ctx context.Context, ref string) ([]models.PaymentAudit, error) {
	audits := []models.PaymentAudit{}
	err := r.db.SelectContext(ctx, &audits, `
		SELECT id, booking_id, cart_id, payment_reference, correlation_token,
		       event_type, event_source, amount, payment_status, gateway_code,
		       request_payload, response_payload, error_message,
		       processing_time_ms, is_duplicate, ip_address, user_agent, device_info, created_at
		FROM payment_audits
		WHERE payment_reference = $1
		ORDER BY created_at`, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment audits: %w", err)
	}
	return audits, nil
}
