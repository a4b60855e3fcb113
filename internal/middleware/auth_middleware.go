package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/parkpass/ticketing-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
)

// UserContextKey is the key used to store user information in Gin context
const UserContextKey = "user"

// UserContext represents the authenticated user's information
type UserContext struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Roles  []string  `json:"roles"`
}

// IsAdmin reports whether the user carries the admin role
func (u UserContext) IsAdmin() bool {
	for _, r := range u.Roles {
		if r == jwt.RoleAdmin {
			return true
		}
	}
	return false
}

type authFailure struct {
	status  int
	kind    string
	message string
	code    string
}

func (f *authFailure) abort(c *gin.Context) {
	c.AbortWithStatusJSON(f.status, gin.H{
		"error":   f.kind,
		"message": f.message,
		"code":    f.code,
	})
}

// authenticate parses the Authorization header. It returns (nil, nil) when
// no header is present.
func authenticate(c *gin.Context, jwtService *jwt.Service, logger *logrus.Logger) (*UserContext, *authFailure) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, nil
	}

	fields := logrus.Fields{"path": c.Request.URL.Path, "ip": c.ClientIP()}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		logger.WithFields(fields).Warn("Auth failed: invalid header format")
		return nil, &authFailure{http.StatusUnauthorized, "unauthorized",
			"Invalid authorization header format. Expected: Bearer <token>", "INVALID_AUTH_FORMAT"}
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		logger.WithFields(fields).Warn("Auth failed: empty token")
		return nil, &authFailure{http.StatusUnauthorized, "unauthorized", "Token cannot be empty", "INVALID_AUTH_FORMAT"}
	}

	claims, err := jwtService.ValidateAccessToken(tokenString)
	if err != nil {
		if jwt.IsExpired(err) {
			logger.WithFields(fields).Info("Auth failed: token expired")
			return nil, &authFailure{http.StatusUnauthorized, "token_expired", "Access token has expired", "TOKEN_EXPIRED"}
		}
		logger.WithFields(fields).WithError(err).Warn("Auth failed: invalid token")
		return nil, &authFailure{http.StatusUnauthorized, "invalid_token", "Invalid access token", "INVALID_TOKEN"}
	}

	return &UserContext{
		UserID: claims.UserID,
		Email:  claims.Email,
		Roles:  claims.Roles,
	}, nil
}

// AuthMiddleware requires a valid Bearer token
func AuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, failure := authenticate(c, jwtService, logger)
		if failure != nil {
			failure.abort(c)
			return
		}
		if user == nil {
			logger.WithFields(logrus.Fields{"path": c.Request.URL.Path, "ip": c.ClientIP()}).
				Warn("Auth failed: missing authorization header")
			(&authFailure{http.StatusUnauthorized, "unauthorized", "Authorization header is required", "MISSING_AUTH_HEADER"}).abort(c)
			return
		}

		c.Set(UserContextKey, *user)
		c.Next()
	}
}

// OptionalAuth sets the user context when a token is sent. Requests without
// an Authorization header pass through anonymously; a bad token is still rejected.
func OptionalAuth(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, failure := authenticate(c, jwtService, logger)
		if failure != nil {
			failure.abort(c)
			return
		}
		if user != nil {
			c.Set(UserContextKey, *user)
		}
		c.Next()
	}
}

// RequireRole creates a middleware that checks if user has required role
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			(&authFailure{http.StatusUnauthorized, "unauthorized",
				"User context not found. Auth middleware may not be applied.", "MISSING_USER_CONTEXT"}).abort(c)
			return
		}

		for _, required := range roles {
			for _, have := range userCtx.Roles {
				if have == required {
					c.Next()
					return
				}
			}
		}

		(&authFailure{http.StatusForbidden, "forbidden",
			"You don't have permission to access this resource", "INSUFFICIENT_PERMISSIONS"}).abort(c)
	}
}

// GetUserContext retrieves the user context from Gin context
func GetUserContext(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return UserContext{}, false
	}

	userCtx, ok := value.(UserContext)
	if !ok {
		return UserContext{}, false
	}

	return userCtx, true
}

// UserIDPtr returns the authenticated user's id, or nil for anonymous requests
func UserIDPtr(c *gin.Context) *uuid.UUID {
	userCtx, ok := GetUserContext(c)
	if !ok {
		return nil
	}
	id := userCtx.UserID
	return &id
}
