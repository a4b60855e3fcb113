package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/parkpass/ticketing-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

// PaymentReconciler turns gateway callbacks into booking and cart state
type PaymentReconciler interface {
	Reconcile(ctx context.Context, token string, channel models.ReconcileChannel, meta models.RequestMeta) (*models.ReconcileResult, error)
	RefundBooking(ctx context.Context, ref string, req *models.RefundRequest, meta models.RequestMeta) (*models.RefundResponse, error)
}

// tokenFields are the callback parameters that may carry the correlation token
var tokenFields = []string{"tranCtx", "token", "correlation_token"}

// PaymentHandler handles the gateway browser return, the server webhook and refunds
type PaymentHandler struct {
	payments        PaymentReconciler
	clientReturnURL string
	logger          *logrus.Logger
}

// NewPaymentHandler creates a new payment handler. clientReturnURL is the
// frontend page the browser lands on after a return.
func NewPaymentHandler(payments PaymentReconciler, clientReturnURL string, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, clientReturnURL: clientReturnURL, logger: logger}
}

// Return handles GET|POST /api/v1/payments/return
func (h *PaymentHandler) Return(c *gin.Context) {
	token := callbackToken(c, nil)
	status := models.ReconcilePending
	reference := ""

	meta := utils.RequestMeta(c)
	meta.Payload = formPayload(c)

	result, err := h.payments.Reconcile(c.Request.Context(), token, models.ChannelBrowserReturn, meta)
	if err != nil {
		h.logger.WithError(err).WithField("token", token).Warn("Payment return could not be reconciled")
	} else {
		status = result.Status
		reference = result.Reference
	}

	c.Redirect(http.StatusFound, h.returnURL(status, reference, token))
}

func (h *PaymentHandler) returnURL(status models.ReconcileStatus, reference, token string) string {
	q := url.Values{}
	q.Set("status", string(status))
	q.Set("reference", reference)
	q.Set("token", token)

	separator := "?"
	if strings.Contains(h.clientReturnURL, "?") {
		separator = "&"
	}
	return h.clientReturnURL + separator + q.Encode()
}

// Webhook handles POST /api/v1/payments/webhook. It always answers 200 so the
// provider does not retry; the outcome only affects internal state.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	var payload map[string]interface{}
	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&payload); err != nil {
			h.logger.WithError(err).Warn("Webhook body is not valid JSON")
		}
	}

	if payload == nil {
		payload = formPayload(c)
	}

	token := callbackToken(c, payload)
	fields := logrus.Fields{"token": token}

	meta := utils.RequestMeta(c)
	meta.Payload = payload

	result, err := h.payments.Reconcile(c.Request.Context(), token, models.ChannelWebhook, meta)
	switch {
	case err != nil:
		h.logger.WithError(err).WithFields(fields).Error("Webhook reconciliation failed")
	default:
		fields["reference"] = result.Reference
		fields["status"] = result.Status
		fields["already_completed"] = result.AlreadyCompleted
		h.logger.WithFields(fields).Info("Webhook processed")
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// callbackToken reads the correlation token from the JSON payload, the form
// body or the query string, in that order
func callbackToken(c *gin.Context, payload map[string]interface{}) string {
	for _, field := range tokenFields {
		if v, ok := payload[field].(string); ok && v != "" {
			return strings.TrimSpace(v)
		}
	}
	for _, field := range tokenFields {
		if v := c.PostForm(field); v != "" {
			return strings.TrimSpace(v)
		}
	}
	for _, field := range tokenFields {
		if v := c.Query(field); v != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// formPayload flattens the query string and form body for the audit trail
func formPayload(c *gin.Context) map[string]interface{} {
	payload := map[string]interface{}{}
	for k, v := range c.Request.URL.Query() {
		payload[k] = strings.Join(v, ",")
	}
	if err := c.Request.ParseForm(); err == nil {
		for k, v := range c.Request.PostForm {
			payload[k] = strings.Join(v, ",")
		}
	}
	return payload
}

// Refund handles POST /api/v1/admin/bookings/:ref/refund. An empty body
// refunds the full final amount.
func (h *PaymentHandler) Refund(c *gin.Context) {
	var req models.RefundRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	resp, err := h.payments.RefundBooking(c.Request.Context(), c.Param("ref"), &req, utils.RequestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
