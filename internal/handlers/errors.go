package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-service/internal/middleware"
	"github.com/travelhub/booking-service/internal/models"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Code    models.ErrorCode `json:"code"`
	Message string           `json:"message"`
	TraceID string           `json:"traceId"`
}

// statusForCode maps an error code to its HTTP status
func statusForCode(code models.ErrorCode) int {
	switch code {
	case models.ErrCodeValidation:
		return http.StatusBadRequest
	case models.ErrCodePricingUnavailable,
		models.ErrCodeReservationFailed,
		models.ErrCodeCurrencyMismatch,
		models.ErrCodeMultiplierInvalid,
		models.ErrCodeTotalInvalid:
		return http.StatusUnprocessableEntity
	case models.ErrCodePaymentFailure:
		return http.StatusBadGateway
	case models.ErrCodeNotFound:
		return http.StatusNotFound
	case models.ErrCodeConflict, models.ErrCodeInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {code, message, traceId}. Internal causes are
// logged but never returned to the caller.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	code := models.ErrorCodeOf(err)
	status := statusForCode(code)

	message := "internal server error"
	var sagaErr *models.SagaError
	if errors.As(err, &sagaErr) {
		message = sagaErr.Message
	}

	traceID := middleware.GetRequestID(c)
	entry := logger.WithFields(logrus.Fields{
		"request_id": traceID,
		"code":       code,
		"status":     status,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:    code,
		Message: message,
		TraceID: traceID,
	})
}

func respondCode(c *gin.Context, status int, code models.ErrorCode, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:    code,
		Message: message,
		TraceID: middleware.GetRequestID(c),
	})
}
