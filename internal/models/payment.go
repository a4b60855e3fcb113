package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Customer is the payer contact sent to the gateway
type Customer struct {
	Email  string `json:"customer_email"`
	Mobile string `json:"customer_mobile"`
}

// InitiateParams is the gateway-agnostic initiation input
type InitiateParams struct {
	CorrelationID string
	Amount        decimal.Decimal
	Customer      Customer
}

// PaymentInitiation is the gateway-agnostic initiation result
type PaymentInitiation struct {
	CorrelationID string                 `json:"correlation_id"`
	Token         string                 `json:"token"`
	RedirectURL   string                 `json:"redirect_url"`
	Raw           map[string]interface{} `json:"-"`
}

// GatewayResult is the normalized outcome of a status or refund command
type GatewayResult struct {
	Success bool                   `json:"success"`
	Code    string                 `json:"code,omitempty"`
	Message string                 `json:"message,omitempty"`
	Amount  decimal.NullDecimal    `json:"amount,omitempty"`
	Raw     map[string]interface{} `json:"raw,omitempty"`
}

// PaymentAttempt is one gateway sale started for a booking or a cart. Every
// attempt keeps its own token and merchant transaction number, so an earlier
// attempt still resolves after the customer retries.
type PaymentAttempt struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Target    PaymentTarget   `json:"target_type" db:"target_type"`
	BookingID *uuid.UUID      `json:"booking_id,omitempty" db:"booking_id"`
	CartID    *uuid.UUID      `json:"cart_id,omitempty" db:"cart_id"`
	Token     string          `json:"token" db:"token"`
	TxnNo     string          `json:"txn_no" db:"txn_no"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// PaymentTarget says which entity a correlation token resolved to
type PaymentTarget string

const (
	PaymentTargetBooking PaymentTarget = "booking"
	PaymentTargetCart    PaymentTarget = "cart"
)

// ReconcileChannel is the entry point that triggered reconciliation
type ReconcileChannel string

const (
	ChannelBrowserReturn ReconcileChannel = "browser_return"
	ChannelWebhook       ReconcileChannel = "webhook"
)

// ReconcileStatus is the outcome shown to the browser
type ReconcileStatus string

const (
	ReconcileSuccess ReconcileStatus = "success"
	ReconcilePending ReconcileStatus = "pending"
)

// ReconcileResult is the outcome of verify-then-mark-paid
type ReconcileResult struct {
	Target           PaymentTarget   `json:"target"`
	Reference        string          `json:"reference"`
	Token            string          `json:"token"`
	Status           ReconcileStatus `json:"status"`
	AlreadyCompleted bool            `json:"already_completed"`
	BookingRefs      []string        `json:"booking_refs,omitempty"`
}

// InitiatePaymentRequest is the body of the initiate endpoints
type InitiatePaymentRequest struct {
	CustomerEmail  string `json:"customer_email" binding:"required,email"`
	CustomerMobile string `json:"customer_mobile" binding:"required"`
}

// InitiatePaymentResponse is returned to the client before redirecting to the gateway
type InitiatePaymentResponse struct {
	Reference        string          `json:"reference"`
	RedirectURL      string          `json:"redirect_url"`
	CorrelationToken string          `json:"correlation_token"`
	Amount           decimal.Decimal `json:"amount"`
}

// RefundRequest is the admin refund body; a nil amount refunds the final amount
type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// RefundResponse reports a refund attempt
type RefundResponse struct {
	Reference      string          `json:"reference"`
	RefundTxnNo    string          `json:"refund_txn_no"`
	Amount         decimal.Decimal `json:"amount"`
	Success        bool            `json:"success"`
	BookingStatus  BookingStatus   `json:"booking_status"`
	GatewayCode    string          `json:"gateway_code,omitempty"`
	GatewayMessage string          `json:"gateway_message,omitempty"`
}
