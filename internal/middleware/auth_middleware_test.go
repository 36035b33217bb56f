package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travelhub/booking-service/pkg/jwt"
)

func setupTestJWTService() *jwt.Service {
	return jwt.NewService("test-access-secret-key-123456789", time.Hour)
}

func setupTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupTestRouter(jwtService *jwt.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/protected", AuthMiddleware(jwtService, setupTestLogger()), func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userCtx.UserID, "admin": userCtx.IsAdmin()})
	})
	return router
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthMiddleware_Success(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter(jwtService)

	token, err := jwtService.GenerateAccessToken("user-1", "a@example.com", []string{"customer"})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "user-1", body["user_id"])
	assert.Equal(t, false, body["admin"])
}

func TestAuthMiddleware_Failures(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter(jwtService)

	expired, err := jwt.NewService("test-access-secret-key-123456789", -time.Minute).GenerateAccessToken("user-1", "", nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"Missing Header", "", "MISSING_AUTH_HEADER"},
		{"Wrong Scheme", "Basic abc", "INVALID_AUTH_FORMAT"},
		{"Empty Token", "Bearer   ", "INVALID_AUTH_FORMAT"},
		{"Invalid Token", "Bearer not.a.token", "INVALID_TOKEN"},
		{"Expired Token", "Bearer " + expired, "TOKEN_EXPIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			req.Header.Set(RequestIDHeader, "trace-123")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, "trace-123", body["traceId"])
		})
	}
}

func TestRequireRole(t *testing.T) {
	jwtService := setupTestJWTService()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/admin", AuthMiddleware(jwtService, setupTestLogger()), RequireRole(jwt.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	admin, _ := jwtService.GenerateAccessToken("admin-1", "", []string{jwt.RoleAdmin})
	customer, _ := jwtService.GenerateAccessToken("user-1", "", []string{"customer"})

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+customer)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUserContext_CanAccess(t *testing.T) {
	assert.True(t, UserContext{UserID: "u1"}.CanAccess("u1"))
	assert.False(t, UserContext{UserID: "u1"}.CanAccess("u2"))
	assert.True(t, UserContext{UserID: "a", Roles: []string{jwt.RoleAdmin}}.CanAccess("u2"))
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "client-id")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "client-id", w.Header().Get(RequestIDHeader))
}
