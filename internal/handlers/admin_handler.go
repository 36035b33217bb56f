package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-service/internal/middleware"
	"github.com/travelhub/booking-service/internal/models"
	"github.com/travelhub/booking-service/pkg/jwt"
)

// JobScheduler exposes the background jobs to operators
type JobScheduler interface {
	GetJobStatus() map[string]interface{}
	RunPurgeNow(ctx context.Context) (int64, error)
}

// AdminHandler serves operator routes under /admin
type AdminHandler struct {
	scheduler JobScheduler
	logger    *logrus.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(scheduler JobScheduler, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{scheduler: scheduler, logger: logger}
}

// RegisterRoutes mounts the admin routes. group must already authenticate.
func (h *AdminHandler) RegisterRoutes(group *gin.RouterGroup) {
	admin := group.Group("/admin")
	admin.Use(middleware.RequireRole(jwt.RoleAdmin))
	{
		admin.GET("/cron/status", h.CronStatus)
		admin.POST("/cron/purge-idempotency", h.PurgeIdempotency)
	}
}

// CronStatus handles GET /admin/cron/status
func (h *AdminHandler) CronStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.GetJobStatus())
}

// PurgeIdempotency handles POST /admin/cron/purge-idempotency
func (h *AdminHandler) PurgeIdempotency(c *gin.Context) {
	deleted, err := h.scheduler.RunPurgeNow(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, models.NewSagaError(models.ErrCodePersistenceFailure, "failed to purge idempotency records", err))
		return
	}

	userCtx, _ := middleware.GetUserContext(c)
	h.logger.WithFields(logrus.Fields{
		"deleted":    deleted,
		"triggered":  userCtx.UserID,
		"request_id": middleware.GetRequestID(c),
	}).Info("Idempotency purge triggered manually")

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
