package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/parkpass/ticketing-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-access-secret-key-123456789"

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthMiddleware(t *testing.T) {
	jwtService := jwt.NewService(testSecret, time.Hour)
	userID := uuid.New()
	token, err := jwtService.GenerateAccessToken(userID, "visitor@example.com", []string{"customer"})
	require.NoError(t, err)

	expired, err := jwt.NewService(testSecret, -time.Minute).GenerateAccessToken(userID, "", nil)
	require.NoError(t, err)
	foreign, err := jwt.NewService("another-secret-key-0000000000000", time.Hour).GenerateAccessToken(userID, "", nil)
	require.NoError(t, err)

	router := setupTestRouter()
	router.GET("/protected", AuthMiddleware(jwtService, testLogger()), func(c *gin.Context) {
		userCtx, ok := GetUserContext(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user_id": userCtx.UserID, "email": userCtx.Email})
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"valid token", "Bearer " + token, http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, "MISSING_AUTH_HEADER"},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "INVALID_AUTH_FORMAT"},
		{"empty bearer", "Bearer   ", http.StatusUnauthorized, "INVALID_AUTH_FORMAT"},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"wrong secret", "Bearer " + foreign, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, "TOKEN_EXPIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeBody(t, w)
			if tt.wantCode == "" {
				assert.Equal(t, userID.String(), body["user_id"])
				assert.Equal(t, "visitor@example.com", body["email"])
			} else {
				assert.Equal(t, tt.wantCode, body["code"])
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	jwtService := jwt.NewService(testSecret, time.Hour)
	userID := uuid.New()
	token, err := jwtService.GenerateAccessToken(userID, "", nil)
	require.NoError(t, err)

	router := setupTestRouter()
	router.GET("/cart", OptionalAuth(jwtService, testLogger()), func(c *gin.Context) {
		id := UserIDPtr(c)
		if id == nil {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, id.String())
	})

	t.Run("anonymous passes", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cart", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "anonymous", w.Body.String())
	})

	t.Run("token sets user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, userID.String(), w.Body.String())
	})

	t.Run("bad token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set("Authorization", "Bearer broken")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	jwtService := jwt.NewService(testSecret, time.Hour)
	logger := testLogger()

	router := setupTestRouter()
	router.GET("/admin", AuthMiddleware(jwtService, logger), RequireRole(jwt.RoleAdmin), func(c *gin.Context) {
		userCtx, _ := GetUserContext(c)
		assert.True(t, userCtx.IsAdmin())
		c.Status(http.StatusNoContent)
	})
	router.GET("/unguarded", RequireRole(jwt.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	request := func(path string, roles []string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if roles != nil {
			token, err := jwtService.GenerateAccessToken(uuid.New(), "", roles)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, request("/admin", []string{"customer", jwt.RoleAdmin}).Code)

	w := request("/admin", []string{"customer"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", decodeBody(t, w)["code"])

	w = request("/unguarded", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "MISSING_USER_CONTEXT", decodeBody(t, w)["code"])
}

func TestCartOwner(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("user wins over session", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Request.Header.Set(SessionHeader, "sess-1")
		userID := uuid.New()
		c.Set(UserContextKey, UserContext{UserID: userID})

		owner, ok := CartOwner(c)
		require.True(t, ok)
		require.NotNil(t, owner.UserID)
		assert.Equal(t, userID, *owner.UserID)
		assert.Empty(t, owner.SessionID)
	})

	t.Run("session header", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Request.Header.Set(SessionHeader, "  sess-1 ")

		owner, ok := CartOwner(c)
		require.True(t, ok)
		assert.Nil(t, owner.UserID)
		assert.Equal(t, "sess-1", owner.SessionID)
	})

	t.Run("missing owner is rejected", func(t *testing.T) {
		router := setupTestRouter()
		router.GET("/cart", RequireCartOwner(), func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cart", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "MISSING_CART_OWNER", decodeBody(t, w)["code"])
	})
}

func TestRequestLogger(t *testing.T) {
	logger, hook := logtest.NewNullLogger()

	router := setupTestRouter()
	router.Use(RequestLogger(logger))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, path := range []string{"/ok", "/missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, 200, entries[0].Data["status"])
	assert.Equal(t, logrus.WarnLevel, entries[1].Level)
	assert.Equal(t, "/missing", entries[1].Data["path"])
}
