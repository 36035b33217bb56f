package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travelhub/booking-service/internal/middleware"
	"github.com/travelhub/booking-service/pkg/jwt"
)

type fakeScheduler struct {
	deleted   int64
	err       error
	purgeRuns int
}

func (s *fakeScheduler) GetJobStatus() map[string]interface{} {
	return map[string]interface{}{"running": true, "job_count": 1}
}

func (s *fakeScheduler) RunPurgeNow(ctx context.Context) (int64, error) {
	s.purgeRuns++
	return s.deleted, s.err
}

func setupAdminRouter(scheduler JobScheduler, user middleware.UserContext) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	router := gin.New()
	router.Use(middleware.RequestID())
	api := router.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Set(middleware.UserContextKey, user)
		c.Next()
	})
	NewAdminHandler(scheduler, logger).RegisterRoutes(api)
	return router
}

var adminUser = middleware.UserContext{UserID: "ops-1", Roles: []string{jwt.RoleAdmin}}

func TestAdminHandler_CronStatus(t *testing.T) {
	t.Run("Admin", func(t *testing.T) {
		router := setupAdminRouter(&fakeScheduler{}, adminUser)

		w := doRequest(router, http.MethodGet, "/api/v1/admin/cron/status", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, true, body["running"])
		assert.Equal(t, float64(1), body["job_count"])
	})

	t.Run("Customer Forbidden", func(t *testing.T) {
		scheduler := &fakeScheduler{}
		router := setupAdminRouter(scheduler, customer)

		w := doRequest(router, http.MethodGet, "/api/v1/admin/cron/status", nil, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = doRequest(router, http.MethodPost, "/api/v1/admin/cron/purge-idempotency", nil, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, 0, scheduler.purgeRuns)
	})
}

func TestAdminHandler_PurgeIdempotency(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		scheduler := &fakeScheduler{deleted: 12}
		router := setupAdminRouter(scheduler, adminUser)

		w := doRequest(router, http.MethodPost, "/api/v1/admin/cron/purge-idempotency", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"deleted":12}`, w.Body.String())
		assert.Equal(t, 1, scheduler.purgeRuns)
	})

	t.Run("Store Error", func(t *testing.T) {
		router := setupAdminRouter(&fakeScheduler{err: errors.New("db down")}, adminUser)

		w := doRequest(router, http.MethodPost, "/api/v1/admin/cron/purge-idempotency", nil, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "persistence_failure", string(decodeError(t, w).Code))
	})
}
