package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentOutcome is the logical result carried by a payment event
type PaymentOutcome string

const (
	PaymentOutcomeSucceeded PaymentOutcome = "succeeded"
	PaymentOutcomeFailed    PaymentOutcome = "failed"
	PaymentOutcomeUnknown   PaymentOutcome = "unknown"
)

// NormalizePaymentOutcome maps legacy and canonical event type spellings
func NormalizePaymentOutcome(eventType string) PaymentOutcome {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "payment_succeeded", "payment.succeeded":
		return PaymentOutcomeSucceeded
	case "payment_failed", "payment.failed":
		return PaymentOutcomeFailed
	default:
		return PaymentOutcomeUnknown
	}
}

// PaymentEvent is a decoded payment outcome event
type PaymentEvent struct {
	BookingID uuid.UUID
	Outcome   PaymentOutcome
	RawType   string
	PaymentID string
}

type rawPaymentEvent struct {
	BookingIDSnake string `json:"booking_id"`
	BookingIDCamel string `json:"bookingId"`
	Type           string `json:"type"`
	EventTypeSnake string `json:"event_type"`
	EventTypeCamel string `json:"eventType"`
	PaymentIDSnake string `json:"payment_id"`
	PaymentIDCamel string `json:"paymentId"`
}

// ErrMissingBookingID is returned when an event carries no booking id
var ErrMissingBookingID = errors.New("payment event has no booking id")

// ParsePaymentEvent decodes an event accepting both snake and camel case fields
func ParsePaymentEvent(data []byte) (*PaymentEvent, error) {
	var raw rawPaymentEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode payment event: %w", err)
	}

	idStr := firstNonEmpty(raw.BookingIDSnake, raw.BookingIDCamel)
	if idStr == "" {
		return nil, ErrMissingBookingID
	}
	bookingID, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid booking id %q: %w", idStr, err)
	}

	eventType := firstNonEmpty(raw.Type, raw.EventTypeSnake, raw.EventTypeCamel)
	return &PaymentEvent{
		BookingID: bookingID,
		Outcome:   NormalizePaymentOutcome(eventType),
		RawType:   eventType,
		PaymentID: firstNonEmpty(raw.PaymentIDSnake, raw.PaymentIDCamel),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// BaseEvent holds envelope fields common to published events
type BaseEvent struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventTypeBookingConfirmed is the type of BookingConfirmedEvent
const EventTypeBookingConfirmed = "booking.confirmed"

// BookingConfirmedEvent is published once every reservation is confirmed
type BookingConfirmedEvent struct {
	BaseEvent
	BookingID          uuid.UUID            `json:"booking_id"`
	UserID             string               `json:"user_id"`
	ConfirmationNumber string               `json:"confirmation_number"`
	TotalAmount        float64              `json:"total_amount"`
	Currency           string               `json:"currency"`
	Items              []BookingItemSummary `json:"items"`
}

// NewBookingConfirmedEvent builds the confirmation event for a booking
func NewBookingConfirmedEvent(booking *Booking, items []BookingItem) BookingConfirmedEvent {
	return BookingConfirmedEvent{
		BaseEvent: BaseEvent{
			EventID:       uuid.NewString(),
			EventType:     EventTypeBookingConfirmed,
			OccurredAt:    time.Now().UTC(),
			CorrelationID: booking.ID.String(),
		},
		BookingID:          booking.ID,
		UserID:             booking.UserID,
		ConfirmationNumber: booking.ConfirmationNumber,
		TotalAmount:        booking.TotalAmount,
		Currency:           booking.Currency,
		Items:              Summaries(items),
	}
}
