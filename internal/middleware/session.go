package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/parkpass/ticketing-backend/internal/models"
)

// SessionHeader carries the anonymous cart session id
const SessionHeader = "X-Session-ID"

const maxSessionIDLength = 128

// CartOwner resolves who owns the cart of this request: the signed-in user
// when OptionalAuth set one, otherwise the X-Session-ID header.
func CartOwner(c *gin.Context) (models.CartOwner, bool) {
	if id := UserIDPtr(c); id != nil {
		return models.CartOwner{UserID: id}, true
	}
	sessionID := strings.TrimSpace(c.GetHeader(SessionHeader))
	if sessionID == "" || len(sessionID) > maxSessionIDLength {
		return models.CartOwner{}, false
	}
	return models.CartOwner{SessionID: sessionID}, true
}

// RequireCartOwner rejects requests with neither a token nor a session id
func RequireCartOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CartOwner(c); !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "Sign in or send an X-Session-ID header to use the cart",
				"code":    "MISSING_CART_OWNER",
			})
			return
		}
		c.Next()
	}
}
