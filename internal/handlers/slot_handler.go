package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/parkpass/ticketing-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// SlotGenerator creates slot inventory
type SlotGenerator interface {
	CreateSlot(ctx context.Context, req *models.CreateSlotRequest) (*models.Slot, error)
	GenerateSlots(ctx context.Context, p models.GenerateSlotsParams) (*models.GenerateSlotsResult, error)
}

// SlotJobRunner exposes the scheduled template extension job
type SlotJobRunner interface {
	RunExtendNow(ctx context.Context) (*services.ExtensionResult, error)
	GetJobStatus() map[string]interface{}
}

// SlotHandler handles the admin slot endpoints
type SlotHandler struct {
	scheduler SlotGenerator
	jobs      SlotJobRunner
	logger    *logrus.Logger
}

// NewSlotHandler creates a new slot handler
func NewSlotHandler(scheduler SlotGenerator, jobs SlotJobRunner, logger *logrus.Logger) *SlotHandler {
	return &SlotHandler{scheduler: scheduler, jobs: jobs, logger: logger}
}

// CreateSlot handles POST /api/v1/admin/slots
func (h *SlotHandler) CreateSlot(c *gin.Context) {
	var req models.CreateSlotRequest
	if !bindJSON(c, &req) {
		return
	}

	slot, err := h.scheduler.CreateSlot(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"slot": slot})
}

// GenerateSlots handles POST /api/v1/admin/slots/generate
func (h *SlotHandler) GenerateSlots(c *gin.Context) {
	var p models.GenerateSlotsParams
	if !bindJSON(c, &p) {
		return
	}

	result, err := h.scheduler.GenerateSlots(c.Request.Context(), p)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RunExtension handles POST /api/v1/admin/slots/extend
func (h *SlotHandler) RunExtension(c *gin.Context) {
	result, err := h.jobs.RunExtendNow(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// JobStatus handles GET /api/v1/admin/cron/status
func (h *SlotHandler) JobStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobs.GetJobStatus())
}
