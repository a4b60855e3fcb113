package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/parkpass/ticketing-backend/internal/database"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/shopspring/decimal"
)

// Storage ports. The database repositories satisfy these; tests use an in-memory store.
// Getters return (nil, nil) when the row does not exist.

// SlotStore is the persistence the capacity ledger and scheduler need
type SlotStore interface {
	GetSlot(ctx context.Context, kind models.SlotKind, id uuid.UUID) (*models.Slot, error)
	LockSlot(ctx context.Context, tx database.Tx, kind models.SlotKind, id uuid.UUID) (*models.Slot, error)
	SumBookedQuantity(ctx context.Context, tx database.Tx, kind models.SlotKind, id uuid.UUID) (int, error)
	CountOverlapping(ctx context.Context, tx database.Tx, slot *models.Slot) (int, error)
	CreateSlot(ctx context.Context, tx database.Tx, slot *models.Slot) error
}

// CatalogReader resolves base prices and add-ons
type CatalogReader interface {
	GetItem(ctx context.Context, targetType models.TargetType, id uuid.UUID) (*models.CatalogItem, error)
	GetAddon(ctx context.Context, id uuid.UUID) (*models.Addon, error)
}

// OfferReader lists offer rules active on a date
type OfferReader interface {
	ListActiveRules(ctx context.Context, date time.Time) ([]models.OfferRule, error)
}

// CouponReader looks up coupons by code
type CouponReader interface {
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
}

// HolidayReader lists holiday dates in a closed range
type HolidayReader interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]time.Time, error)
}

// SlotTemplateReader lists active generation templates
type SlotTemplateReader interface {
	ListActive(ctx context.Context) ([]models.SlotTemplate, error)
}

// BookingStore is the booking persistence
type BookingStore interface {
	GenerateBookingRef(ctx context.Context) (string, error)
	Create(ctx context.Context, tx database.Tx, b *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetByRef(ctx context.Context, ref string) (*models.Booking, error)
	ListByCartID(ctx context.Context, tx database.Tx, cartID uuid.UUID) ([]*models.Booking, error)
	SetPaymentAttempt(ctx context.Context, id uuid.UUID, token, txnNo string, customer models.Customer) (bool, error)
	MarkPaymentCompleted(ctx context.Context, id uuid.UUID, token, txnNo string) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
	SetTicketArtifact(ctx context.Context, id uuid.UUID, artifactRef string) (bool, error)
	TicketArtifactExists(ctx context.Context, artifactRef string) (bool, error)
}

// CartStore is the cart persistence
type CartStore interface {
	GenerateCartRef(ctx context.Context) (string, error)
	GetOpenByOwner(ctx context.Context, owner models.CartOwner) (*models.Cart, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Cart, error)
	GetByRef(ctx context.Context, ref string) (*models.Cart, error)
	LockByID(ctx context.Context, tx database.Tx, id uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	ListItems(ctx context.Context, tx database.Tx, cartID uuid.UUID) ([]models.CartItem, error)
	GetItem(ctx context.Context, tx database.Tx, cartID, itemID uuid.UUID) (*models.CartItem, error)
	InsertItem(ctx context.Context, tx database.Tx, item *models.CartItem) error
	UpdateItem(ctx context.Context, tx database.Tx, item *models.CartItem) error
	DeleteItem(ctx context.Context, tx database.Tx, cartID, itemID uuid.UUID) (bool, error)
	UpdateTotals(ctx context.Context, tx database.Tx, cartID uuid.UUID, amounts models.Amounts) error
	SetPaymentAttempt(ctx context.Context, id uuid.UUID, token, txnNo string, amount decimal.Decimal, customer models.Customer) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, token, txnNo string) (bool, error)
	MarkAbandoned(ctx context.Context, id uuid.UUID) (bool, error)
}

// PaymentAttemptStore keeps every gateway initiation resolvable by its token
type PaymentAttemptStore interface {
	Create(ctx context.Context, a *models.PaymentAttempt) error
	GetByToken(ctx context.Context, token string) (*models.PaymentAttempt, error)
}

// AuditLogger appends payment audit entries
type AuditLogger interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
}

// Collaborator ports.

// PaymentGateway is the gateway-agnostic payment contract
type PaymentGateway interface {
	Initiate(ctx context.Context, p models.InitiateParams) (*models.PaymentInitiation, error)
	Status(ctx context.Context, correlationID string) (*models.GatewayResult, error)
	Refund(ctx context.Context, refundID, originalID string, amount decimal.Decimal) (*models.GatewayResult, error)
}

// TicketIssuer produces the ticket artifact of a paid booking. minted is true
// only for the call that stored the artifact.
type TicketIssuer interface {
	Issue(ctx context.Context, b *models.Booking) (ref string, minted bool, err error)
}

// NotificationDispatcher delivers one notification
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, n models.Notification) error
}

// TaskDistributor hands fulfillment work to a durable, retrying task queue
type TaskDistributor interface {
	DistributeTaskIssueTicket(ctx context.Context, bookingID uuid.UUID) error
	DistributeTaskSendNotification(ctx context.Context, n models.Notification) error
}
