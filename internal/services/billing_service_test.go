package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travelhub/booking-service/internal/models"
)

func TestBillingService_CreatePaymentIntent(t *testing.T) {
	bookingID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/billing/create-payment-intent", r.URL.Path)
			assert.Equal(t, "Bearer billing-key", r.Header.Get("Authorization"))

			var req models.PaymentIntentRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, 599.98, req.Amount)
			assert.Equal(t, "USD", req.Currency)
			assert.Equal(t, bookingID, req.BookingID)
			assert.Equal(t, "user-1", req.UserID)

			w.Write([]byte(`{"paymentId":"pi_123","clientSecret":"secret_456"}`))
		}))
		defer server.Close()

		svc := NewBillingService(BillingConfig{BaseURL: server.URL + "/", APIKey: "billing-key", Timeout: time.Second}, newTestLogger())
		intent, err := svc.CreatePaymentIntent(context.Background(), models.PaymentIntentRequest{
			Amount: 599.98, Currency: "USD", BookingID: bookingID, UserID: "user-1",
		})
		require.NoError(t, err)
		assert.Equal(t, "pi_123", intent.PaymentID)
		assert.Equal(t, "secret_456", intent.ClientSecret)
	})

	t.Run("Gateway Error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error":"upstream down"}`))
		}))
		defer server.Close()

		svc := NewBillingService(BillingConfig{BaseURL: server.URL}, newTestLogger())
		intent, err := svc.CreatePaymentIntent(context.Background(), models.PaymentIntentRequest{Amount: 10, Currency: "USD"})
		assert.Error(t, err)
		assert.Nil(t, intent)
		assert.Contains(t, err.Error(), "status 502")
	})

	t.Run("Missing Payment ID", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"clientSecret":"x"}`))
		}))
		defer server.Close()

		svc := NewBillingService(BillingConfig{BaseURL: server.URL}, newTestLogger())
		_, err := svc.CreatePaymentIntent(context.Background(), models.PaymentIntentRequest{Amount: 10, Currency: "USD"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no payment id")
	})
}
