package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/parkpass/ticketing-backend/internal/apperr"
	"github.com/parkpass/ticketing-backend/internal/middleware"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/parkpass/ticketing-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

// BookingManager is the booking workflow the handler drives
type BookingManager interface {
	CreateBooking(ctx context.Context, userID *uuid.UUID, req *models.CreateBookingRequest) (*models.Booking, *models.Totals, error)
	CreateComboBooking(ctx context.Context, userID *uuid.UUID, req *models.CreateBookingRequest) (*models.Booking, *models.Totals, error)
	GetBooking(ctx context.Context, ref string, userID uuid.UUID, isAdmin bool) (*models.Booking, error)
	CancelBooking(ctx context.Context, ref string, userID uuid.UUID, isAdmin bool) (*models.Booking, error)
	GetAvailability(ctx context.Context, kind models.SlotKind, slotID uuid.UUID) (*models.SlotAvailability, error)
}

// PaymentInitiator starts gateway payments for bookings and carts
type PaymentInitiator interface {
	InitiateBookingPayment(ctx context.Context, ref string, userID *uuid.UUID, customer models.Customer, meta models.RequestMeta) (*models.InitiatePaymentResponse, error)
	InitiateCartPayment(ctx context.Context, owner models.CartOwner, customer models.Customer, meta models.RequestMeta) (*models.InitiatePaymentResponse, error)
}

// BookingHandler handles single-shot bookings and their payment initiation
type BookingHandler struct {
	bookings BookingManager
	payments PaymentInitiator
	logger   *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings BookingManager, payments PaymentInitiator, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, payments: payments, logger: logger}
}

// ============================================================================
// CREATE
// ============================================================================

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	h.create(c, h.bookings.CreateBooking)
}

// CreateComboBooking handles POST /api/v1/bookings/combo
func (h *BookingHandler) CreateComboBooking(c *gin.Context) {
	h.create(c, h.bookings.CreateComboBooking)
}

type createFunc func(ctx context.Context, userID *uuid.UUID, req *models.CreateBookingRequest) (*models.Booking, *models.Totals, error)

func (h *BookingHandler) create(c *gin.Context, create createFunc) {
	var req models.CreateBookingRequest
	if !bindJSON(c, &req) {
		return
	}

	booking, totals, err := create(c.Request.Context(), middleware.UserIDPtr(c), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"booking": booking,
		"totals":  totals,
	})
}

// ============================================================================
// READ / CANCEL
// ============================================================================

// GetBooking handles GET /api/v1/bookings/:ref
func (h *BookingHandler) GetBooking(c *gin.Context) {
	user, _ := middleware.GetUserContext(c)
	booking, err := h.bookings.GetBooking(c.Request.Context(), c.Param("ref"), user.UserID, user.IsAdmin())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// CancelBooking handles POST /api/v1/bookings/:ref/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	user, _ := middleware.GetUserContext(c)
	booking, err := h.bookings.CancelBooking(c.Request.Context(), c.Param("ref"), user.UserID, user.IsAdmin())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Booking cancelled",
		"booking": booking,
	})
}

// ============================================================================
// PAYMENT
// ============================================================================

// InitiatePayment handles POST /api/v1/bookings/:ref/payment
func (h *BookingHandler) InitiatePayment(c *gin.Context) {
	var req models.InitiatePaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	customer := models.Customer{Email: req.CustomerEmail, Mobile: req.CustomerMobile}
	resp, err := h.payments.InitiateBookingPayment(c.Request.Context(), c.Param("ref"),
		middleware.UserIDPtr(c), customer, utils.RequestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ============================================================================
// AVAILABILITY
// ============================================================================

// GetAvailability handles GET /api/v1/slots/:kind/:id/availability
func (h *BookingHandler) GetAvailability(c *gin.Context) {
	kind := models.SlotKind(c.Param("kind"))
	if !kind.Valid() {
		respondError(c, h.logger, apperr.Validation("kind must be 'slot' or 'combo_slot'"))
		return
	}
	slotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, apperr.Validation("invalid slot id"))
		return
	}

	view, err := h.bookings.GetAvailability(c.Request.Context(), kind, slotID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
