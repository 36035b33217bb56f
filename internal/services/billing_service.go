package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-service/internal/models"
)

// BillingConfig holds billing service connection settings
type BillingConfig struct {
	BaseURL string
	APIKey  string // SECRET - never log
	Timeout time.Duration
}

// BillingService creates payment intents against the billing collaborator
type BillingService struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logrus.Logger
}

// NewBillingService creates a new billing client
func NewBillingService(config BillingConfig, logger *logrus.Logger) *BillingService {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BillingService{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// CreatePaymentIntent calls POST /billing/create-payment-intent
func (s *BillingService) CreatePaymentIntent(ctx context.Context, req models.PaymentIntentRequest) (*models.PaymentIntent, error) {
	jsonBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/billing/create-payment-intent", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": req.BookingID,
		"amount":     req.Amount,
		"currency":   req.Currency,
	}).Info("Creating payment intent")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		s.logger.WithError(err).Error("Failed to call billing service")
		return nil, fmt.Errorf("failed to call billing service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		s.logger.WithFields(logrus.Fields{
			"booking_id":  req.BookingID,
			"status_code": resp.StatusCode,
		}).Warn("Billing service rejected payment intent")
		return nil, fmt.Errorf("billing service returned status %d", resp.StatusCode)
	}

	var intent models.PaymentIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if intent.PaymentID == "" {
		return nil, fmt.Errorf("billing service returned no payment id")
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": req.BookingID,
		"payment_id": intent.PaymentID,
	}).Info("Payment intent created")

	return &intent, nil
}
