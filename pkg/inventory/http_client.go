package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds connection settings for one resource service
type Config struct {
	BaseURL      string
	APIKey       string        // Optional: sent as X-API-Key
	Timeout      time.Duration // Per HTTP request
	MaxRetries   int           // Retries for fetch/confirm/compensate on transient errors
	RetryBackoff time.Duration // Linear backoff step between retries
}

// variant captures what differs between the three backends
type variant struct {
	resource  string
	priceKeys []string
}

var (
	flightVariant = variant{resource: "flights", priceKeys: []string{"price", "unitPrice", "fare"}}
	hotelVariant  = variant{resource: "hotels", priceKeys: []string{"pricePerNight", "price", "unitPrice"}}
	carVariant    = variant{resource: "cars", priceKeys: []string{"pricePerDay", "dailyRate", "price", "unitPrice"}}
)

// HTTPClient implements ResourceClient over the resource service REST API
type HTTPClient struct {
	baseURL      string
	apiKey       string
	variant      variant
	maxRetries   int
	retryBackoff time.Duration
	client       *http.Client
	logger       *logrus.Logger
}

// NewFlightClient creates a client for the flight service
func NewFlightClient(config Config, logger *logrus.Logger) *HTTPClient {
	return newHTTPClient(config, flightVariant, logger)
}

// NewHotelClient creates a client for the hotel service
func NewHotelClient(config Config, logger *logrus.Logger) *HTTPClient {
	return newHTTPClient(config, hotelVariant, logger)
}

// NewCarClient creates a client for the car rental service
func NewCarClient(config Config, logger *logrus.Logger) *HTTPClient {
	return newHTTPClient(config, carVariant, logger)
}

func newHTTPClient(config Config, v variant, logger *logrus.Logger) *HTTPClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	backoff := config.RetryBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &HTTPClient{
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		apiKey:       config.APIKey,
		variant:      v,
		maxRetries:   config.MaxRetries,
		retryBackoff: backoff,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Fetch calls GET /{resource}/:id
func (c *HTTPClient) Fetch(ctx context.Context, referenceID string) (*Pricing, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, c.variant.resource, url.PathEscape(referenceID))

	var body map[string]any
	err := c.withRetry(ctx, "fetch", func() error {
		status, raw, err := c.do(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return c.transportError("fetch", err)
		}
		if status != http.StatusOK {
			return c.statusError("fetch", status, raw)
		}
		body = nil
		if err := json.Unmarshal(raw, &body); err != nil {
			return &Error{Kind: KindConflict, Resource: c.variant.resource, Op: "fetch", Message: "invalid response body", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Some services wrap the payload in {"data": {...}}
	if data, ok := body["data"].(map[string]any); ok {
		body = data
	}

	pricing := &Pricing{
		ReferenceID: referenceID,
		Metadata:    make(map[string]any),
	}
	priceFound := false
	for _, key := range c.variant.priceKeys {
		if price, ok := toFloat(body[key]); ok {
			pricing.UnitPrice = price
			priceFound = true
			break
		}
	}
	if !priceFound {
		return nil, &Error{Kind: KindNotFound, Resource: c.variant.resource, Op: "fetch", Message: "no price for reference " + referenceID}
	}
	if currency, ok := body["currency"].(string); ok {
		pricing.Currency = strings.ToUpper(strings.TrimSpace(currency))
	}
	for k, v := range body {
		if k == "currency" || containsKey(c.variant.priceKeys, k) {
			continue
		}
		pricing.Metadata[k] = v
	}

	return pricing, nil
}

// Reserve calls POST /{resource}/:id/reservations. Side-effecting, so a single attempt.
func (c *HTTPClient) Reserve(ctx context.Context, referenceID, bookingID string, quantity int) (*Reservation, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/reservations", c.baseURL, c.variant.resource, url.PathEscape(referenceID))

	payload, err := json.Marshal(ReserveRequest{BookingID: bookingID, Quantity: quantity})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reserve request: %w", err)
	}

	status, raw, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, c.transportError("reserve", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, c.statusError("reserve", status, raw)
	}

	var reservation Reservation
	if err := json.Unmarshal(raw, &reservation); err != nil {
		return nil, &Error{Kind: KindConflict, Resource: c.variant.resource, Op: "reserve", Message: "invalid response body", Err: err}
	}

	c.logger.WithFields(logrus.Fields{
		"resource":       c.variant.resource,
		"reference_id":   referenceID,
		"booking_id":     bookingID,
		"quantity":       quantity,
		"reservation_id": reservation.ReservationID,
	}).Debug("Reservation placed")

	return &reservation, nil
}

// Confirm calls PATCH /{resource}/reservations/:id. A 409 is only accepted when
// the body reports the reservation as already confirmed; expired or released
// holds stay conflicts.
func (c *HTTPClient) Confirm(ctx context.Context, reservationID string) error {
	endpoint := fmt.Sprintf("%s/%s/reservations/%s", c.baseURL, c.variant.resource, url.PathEscape(reservationID))
	payload := []byte(`{"status":"confirmed"}`)

	return c.withRetry(ctx, "confirm", func() error {
		status, raw, err := c.do(ctx, http.MethodPatch, endpoint, payload)
		if err != nil {
			return c.transportError("confirm", err)
		}
		if isSuccess(status) {
			return nil
		}
		if status == http.StatusConflict && reportsConfirmed(raw) {
			c.logger.WithFields(logrus.Fields{
				"resource":       c.variant.resource,
				"reservation_id": reservationID,
			}).Debug("Reservation already confirmed")
			return nil
		}
		return c.statusError("confirm", status, raw)
	})
}

// Compensate calls DELETE /{resource}/reservations/:id. 404 and 410 mean already released.
func (c *HTTPClient) Compensate(ctx context.Context, reservationID string) error {
	endpoint := fmt.Sprintf("%s/%s/reservations/%s", c.baseURL, c.variant.resource, url.PathEscape(reservationID))

	return c.withRetry(ctx, "compensate", func() error {
		status, raw, err := c.do(ctx, http.MethodDelete, endpoint, nil)
		if err != nil {
			return c.transportError("compensate", err)
		}
		if isSuccess(status) || status == http.StatusNotFound || status == http.StatusGone {
			return nil
		}
		return c.statusError("compensate", status, raw)
	})
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, payload []byte) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

// withRetry retries fn on transient errors with linear backoff
func (c *HTTPClient) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(logrus.Fields{
				"resource": c.variant.resource,
				"op":       op,
				"attempt":  attempt,
			}).WithError(err).Warn("Retrying resource call")

			select {
			case <-ctx.Done():
				return c.transportError(op, ctx.Err())
			case <-time.After(time.Duration(attempt) * c.retryBackoff):
			}
		}

		err = fn()
		if err == nil || !IsTransient(err) {
			return err
		}
	}
	return err
}

func (c *HTTPClient) transportError(op string, err error) error {
	return &Error{Kind: KindTransient, Resource: c.variant.resource, Op: op, Err: err}
}

func (c *HTTPClient) statusError(op string, status int, raw []byte) error {
	return &Error{
		Kind:       kindForStatus(status),
		Resource:   c.variant.resource,
		Op:         op,
		StatusCode: status,
		Message:    errorMessage(raw),
	}
}

// errorMessage extracts a message from an error body without echoing it whole
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		return body.Error
	}
	return ""
}

// reportsConfirmed reads a reservation status from a body, wrapped or not
func reportsConfirmed(raw []byte) bool {
	var body struct {
		Status string `json:"status"`
		Data   struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return false
	}
	status := body.Status
	if status == "" {
		status = body.Data.Status
	}
	return strings.EqualFold(strings.TrimSpace(status), "confirmed")
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(val, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
