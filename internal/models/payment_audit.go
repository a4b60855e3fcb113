package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventInitiated            PaymentEventType = "payment_initiated"
	PaymentEventInitiateFailed       PaymentEventType = "payment_initiate_failed"
	PaymentEventWebhookReceived      PaymentEventType = "webhook_received"
	PaymentEventBrowserReturn        PaymentEventType = "browser_return"
	PaymentEventStatusCheckResponse  PaymentEventType = "status_check_response"
	PaymentEventStatusCheckFailed    PaymentEventType = "status_check_failed"
	PaymentEventSuccess              PaymentEventType = "payment_success"
	PaymentEventPending              PaymentEventType = "payment_pending"
	PaymentEventBookingConfirmed     PaymentEventType = "booking_confirmed"
	PaymentEventBookingConfirmFailed PaymentEventType = "booking_confirmation_failed"
	PaymentEventRefundInitiated      PaymentEventType = "refund_initiated"
	PaymentEventRefundCompleted      PaymentEventType = "refund_completed"
	PaymentEventRefundFailed         PaymentEventType = "refund_failed"
	PaymentEventError                PaymentEventType = "error"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceBackend        PaymentEventSource = "backend"
	PaymentSourceGatewayWebhook PaymentEventSource = "gateway_webhook"
	PaymentSourceGatewayAPI     PaymentEventSource = "gateway_api"
	PaymentSourceBrowser        PaymentEventSource = "browser"
	PaymentSourceAdmin          PaymentEventSource = "admin"
)

// PaymentAudit represents an immutable audit log entry for payment events
type PaymentAudit struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	BookingID        *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`
	CartID           *uuid.UUID `json:"cart_id,omitempty" db:"cart_id"`
	PaymentReference *string    `json:"payment_reference,omitempty" db:"payment_reference"`
	CorrelationToken *string    `json:"correlation_token,omitempty" db:"correlation_token"`

	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	Amount        decimal.NullDecimal `json:"amount,omitempty" db:"amount"`
	PaymentStatus *string             `json:"payment_status,omitempty" db:"payment_status"`
	GatewayCode   *string             `json:"gateway_code,omitempty" db:"gateway_code"`

	RequestPayload  JSONB `json:"request_payload,omitempty" db:"request_payload"`
	ResponsePayload JSONB `json:"response_payload,omitempty" db:"response_payload"`

	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	ProcessingTimeMs *int `json:"processing_time_ms,omitempty" db:"processing_time_ms"`
	IsDuplicate      bool `json:"is_duplicate" db:"is_duplicate"`

	IPAddress  *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  *string `json:"user_agent,omitempty" db:"user_agent"`
	DeviceInfo JSONB   `json:"device_info,omitempty" db:"device_info"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetBooking links the audit to a booking
func (pa *PaymentAudit) SetBooking(b *Booking) *PaymentAudit {
	if b == nil {
		return pa
	}
	id := b.ID
	pa.BookingID = &id
	return pa.SetPaymentReference(b.Ref)
}

// SetCart links the audit to a cart
func (pa *PaymentAudit) SetCart(c *Cart) *PaymentAudit {
	if c == nil {
		return pa
	}
	id := c.ID
	pa.CartID = &id
	return pa.SetPaymentReference(c.Ref)
}

// SetPaymentReference sets our booking or cart reference
func (pa *PaymentAudit) SetPaymentReference(ref string) *PaymentAudit {
	pa.PaymentReference = &ref
	return pa
}

// SetCorrelationToken sets the gateway correlation token
func (pa *PaymentAudit) SetCorrelationToken(token string) *PaymentAudit {
	if token != "" {
		pa.CorrelationToken = &token
	}
	return pa
}

// SetAmount records the amount involved in the event
func (pa *PaymentAudit) SetAmount(amount decimal.Decimal) *PaymentAudit {
	pa.Amount = decimal.NewNullDecimal(amount)
	return pa
}

// SetGatewayResult records a normalized gateway response
func (pa *PaymentAudit) SetGatewayResult(res *GatewayResult) *PaymentAudit {
	if res == nil {
		return pa
	}
	status := "failed"
	if res.Success {
		status = "success"
	}
	pa.PaymentStatus = &status
	if res.Code != "" {
		code := res.Code
		pa.GatewayCode = &code
	}
	if res.Raw != nil {
		pa.ResponsePayload = JSONB(res.Raw)
	}
	return pa
}

// SetPaymentStatus sets the payment status string
func (pa *PaymentAudit) SetPaymentStatus(status string) *PaymentAudit {
	pa.PaymentStatus = &status
	return pa
}

// SetError sets error information
func (pa *PaymentAudit) SetError(err error) *PaymentAudit {
	if err != nil {
		msg := err.Error()
		pa.ErrorMessage = &msg
	}
	return pa
}

// SetRequestPayload sets the inbound or outbound request payload
func (pa *PaymentAudit) SetRequestPayload(payload map[string]interface{}) *PaymentAudit {
	pa.RequestPayload = JSONB(payload)
	return pa
}

// SetMetadata sets request metadata
func (pa *PaymentAudit) SetMetadata(meta RequestMeta) *PaymentAudit {
	if meta.IP != "" {
		pa.IPAddress = &meta.IP
	}
	if meta.UserAgent != "" {
		pa.UserAgent = &meta.UserAgent
	}
	if meta.Device != nil {
		pa.DeviceInfo = meta.Device
	}
	return pa
}

// SetProcessingTime calculates and sets processing time
func (pa *PaymentAudit) SetProcessingTime(startTime time.Time) *PaymentAudit {
	durationMs := int(time.Since(startTime).Milliseconds())
	pa.ProcessingTimeMs = &durationMs
	return pa
}

// MarkAsDuplicate marks this event as a duplicate
func (pa *PaymentAudit) MarkAsDuplicate() *PaymentAudit {
	pa.IsDuplicate = true
	return pa
}

// RequestMeta carries caller details of an inbound payment request
type RequestMeta struct {
	IP        string
	UserAgent string
	Device    JSONB
	Payload   map[string]interface{}
}
