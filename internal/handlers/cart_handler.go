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

// CartManager is the cart workflow the handler drives
type CartManager interface {
	GetCart(ctx context.Context, owner models.CartOwner) (*models.Cart, error)
	AddItem(ctx context.Context, owner models.CartOwner, req *models.PreviewRequest) (*models.Cart, error)
	UpdateItem(ctx context.Context, owner models.CartOwner, itemID uuid.UUID, req *models.UpdateCartItemRequest) (*models.Cart, error)
	RemoveItem(ctx context.Context, owner models.CartOwner, itemID uuid.UUID) (*models.Cart, error)
	Abandon(ctx context.Context, owner models.CartOwner) error
}

// CartHandler handles cart requests for signed-in users and anonymous sessions.
// Routes sit behind OptionalAuth and RequireCartOwner.
type CartHandler struct {
	carts    CartManager
	payments PaymentInitiator
	logger   *logrus.Logger
}

// NewCartHandler creates a new cart handler
func NewCartHandler(carts CartManager, payments PaymentInitiator, logger *logrus.Logger) *CartHandler {
	return &CartHandler{carts: carts, payments: payments, logger: logger}
}

func (h *CartHandler) owner(c *gin.Context) (models.CartOwner, bool) {
	owner, ok := middleware.CartOwner(c)
	if !ok {
		respondError(c, h.logger, apperr.Validation("sign in or send an %s header", middleware.SessionHeader))
	}
	return owner, ok
}

func (h *CartHandler) itemID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("item_id"))
	if err != nil {
		respondError(c, h.logger, apperr.Validation("invalid cart item id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *CartHandler) respondCart(c *gin.Context, cart *models.Cart, err error) {
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(c *gin.Context) {
	owner, ok := h.owner(c)
	if !ok {
		return
	}
	cart, err := h.carts.GetCart(c.Request.Context(), owner)
	h.respondCart(c, cart, err)
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(c *gin.Context) {
	owner, ok := h.owner(c)
	if !ok {
		return
	}
	var req models.PreviewRequest
	if !bindJSON(c, &req) {
		return
	}
	cart, err := h.carts.AddItem(c.Request.Context(), owner, &req)
	h.respondCart(c, cart, err)
}

// UpdateItem handles PUT /api/v1/cart/items/:item_id
func (h *CartHandler) UpdateItem(c *gin.Context) {
	owner, ok := h.owner(c)
	if !ok {
		return
	}
	itemID, ok := h.itemID(c)
	if !ok {
		return
	}
	var req models.UpdateCartItemRequest
	if !bindJSON(c, &req) {
		return
	}
	cart, err := h.carts.UpdateItem(c.Request.Context(), owner, itemID, &req)
	h.respondCart(c, cart, err)
}

// RemoveItem handles DELETE /api/v1/cart/items/:item_id
func (h *CartHandler) RemoveItem(c *gin.Context) {
	owner, ok := h.owner(c)
	if !ok {
		return
	}
	itemID, ok := h.itemID(c)
	if !ok {
		return
	}
	cart, err := h.carts.RemoveItem(c.Request.Context(), owner, itemID)
	h.respondCart(c, cart, err)
}

// Abandon handles DELETE /api/v1/cart
func (h *CartHandler) Abandon(c *gin.Context) {
	owner, ok := h.owner(c)
	if !ok {
		return
	}
	if err := h.carts.Abandon(c.Request.Context(), owner); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart abandoned"})
}

// Checkout handles POST /api/v1/cart/checkout
func (h *CartHandler) Checkout(c *gin.Context) {
	owner, ok := h.owner(c)
	if !ok {
		return
	}
	var req models.InitiatePaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	customer := models.Customer{Email: req.CustomerEmail, Mobile: req.CustomerMobile}
	resp, err := h.payments.InitiateCartPayment(c.Request.Context(), owner, customer, utils.RequestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
