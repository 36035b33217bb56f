package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-service/internal/middleware"
	"github.com/travelhub/booking-service/internal/models"
)

// BookingService is the orchestrator surface used by the HTTP layer
type BookingService interface {
	CreateBooking(ctx context.Context, req *models.CreateBookingRequest, idempotencyKey string) (*models.CreateBookingResult, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	ListUserBookings(ctx context.Context, userID string, limit, offset int) ([]models.Booking, error)
	CancelBooking(ctx context.Context, bookingID uuid.UUID) (*models.CancelBookingResponse, error)
}

// BookingHandler handles booking endpoints
type BookingHandler struct {
	bookingService BookingService
	logger         *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookingService BookingService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookingService: bookingService,
		logger:         logger,
	}
}

// RegisterRoutes mounts the booking routes on a protected group
func (h *BookingHandler) RegisterRoutes(group *gin.RouterGroup) {
	bookings := group.Group("/bookings")
	bookings.POST("", h.CreateBooking)
	bookings.GET("/user/:userId", h.ListUserBookings)
	bookings.GET("/:id", h.GetBooking)
	bookings.PUT("/:id/cancel", h.CancelBooking)
}

// ============================================================================
// CREATE BOOKING - POST /api/v1/bookings
// ============================================================================

// CreateBooking runs the booking saga
// @Summary Create booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param X-Idempotency-Key header string false "Idempotency key"
// @Param request body models.CreateBookingRequest true "Booking request"
// @Success 201 {object} models.BookingResponse
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /bookings [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		respondCode(c, http.StatusUnauthorized, "unauthorized", "user not authenticated")
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondCode(c, http.StatusBadRequest, models.ErrCodeValidation, "invalid request body")
		return
	}

	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = userCtx.UserID
	}
	if !userCtx.CanAccess(strings.TrimSpace(req.UserID)) {
		respondCode(c, http.StatusForbidden, "forbidden", "cannot create bookings for another user")
		return
	}

	result, err := h.bookingService.CreateBooking(c.Request.Context(), &req, idempotencyKey(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if result.Replayed {
		c.Header("Idempotent-Replayed", "true")
	}
	c.Data(http.StatusCreated, "application/json; charset=utf-8", result.Response)
}

func idempotencyKey(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader("X-Idempotency-Key")); key != "" {
		return key
	}
	return strings.TrimSpace(c.GetHeader("Idempotency-Key"))
}

// ============================================================================
// GET BOOKING - GET /api/v1/bookings/:id
// ============================================================================

// GetBooking returns a booking with its items
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		respondCode(c, http.StatusUnauthorized, "unauthorized", "user not authenticated")
		return
	}

	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}

	booking, err := h.bookingService.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	// Other users' bookings are reported as missing
	if !userCtx.CanAccess(booking.UserID) {
		respondCode(c, http.StatusNotFound, models.ErrCodeNotFound, "booking not found")
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ============================================================================
// LIST USER BOOKINGS - GET /api/v1/bookings/user/:userId
// ============================================================================

// ListUserBookings returns a user's bookings, newest first
func (h *BookingHandler) ListUserBookings(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		respondCode(c, http.StatusUnauthorized, "unauthorized", "user not authenticated")
		return
	}

	userID := c.Param("userId")
	if !userCtx.CanAccess(userID) {
		respondCode(c, http.StatusForbidden, "forbidden", "cannot list bookings of another user")
		return
	}

	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		respondCode(c, http.StatusBadRequest, models.ErrCodeValidation, "limit must be an integer")
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		respondCode(c, http.StatusBadRequest, models.ErrCodeValidation, "offset must be an integer")
		return
	}

	bookings, err := h.bookingService.ListUserBookings(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}

	c.JSON(http.StatusOK, bookings)
}

// ============================================================================
// CANCEL BOOKING - PUT /api/v1/bookings/:id/cancel
// ============================================================================

// CancelBooking cancels a booking and releases its reservations
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		respondCode(c, http.StatusUnauthorized, "unauthorized", "user not authenticated")
		return
	}

	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}

	booking, err := h.bookingService.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !userCtx.CanAccess(booking.UserID) {
		respondCode(c, http.StatusNotFound, models.ErrCodeNotFound, "booking not found")
		return
	}

	resp, err := h.bookingService.CancelBooking(c.Request.Context(), bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func parseBookingID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		// Ids are uuids, so anything else cannot exist
		respondCode(c, http.StatusNotFound, models.ErrCodeNotFound, "booking not found")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
