package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// PriceCalculator computes a side-effect free price breakdown
type PriceCalculator interface {
	ComputeTotals(ctx context.Context, sel models.Selection) (*models.Totals, error)
}

// PricingHandler serves price previews
type PricingHandler struct {
	pricing PriceCalculator
	logger  *logrus.Logger
}

// NewPricingHandler creates a new pricing handler
func NewPricingHandler(pricing PriceCalculator, logger *logrus.Logger) *PricingHandler {
	return &PricingHandler{pricing: pricing, logger: logger}
}

// Preview handles POST /api/v1/pricing/preview
func (h *PricingHandler) Preview(c *gin.Context) {
	var req models.PreviewRequest
	if !bindJSON(c, &req) {
		return
	}

	sel, err := req.ToSelection()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	totals, err := h.pricing.ComputeTotals(c.Request.Context(), sel)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"totals": totals})
}
