package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/parkpass/ticketing-backend/internal/apperr"
	"github.com/sirupsen/logrus"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation: http.StatusBadRequest,
	apperr.KindNotFound:   http.StatusNotFound,
	apperr.KindConflict:   http.StatusConflict,
	apperr.KindGateway:    http.StatusBadGateway,
	apperr.KindInternal:   http.StatusInternalServerError,
}

// respondError writes err as an ErrorResponse with the status of its kind
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	kind := apperr.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	entry := logger.WithError(err).WithFields(logrus.Fields{
		"path":   c.Request.URL.Path,
		"kind":   kind,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	c.JSON(status, ErrorResponse{
		Error:   string(kind),
		Message: apperr.Message(err),
		Code:    apperr.Reason(err),
	})
}

// bindJSON binds the body into req, writing a 400 on failure
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   string(apperr.KindValidation),
			Message: err.Error(),
		})
		return false
	}
	return true
}
