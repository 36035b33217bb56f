package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord maps a user's key to the exact response first returned
type IdempotencyRecord struct {
	UserID      string          `db:"user_id"`
	Key         string          `db:"idempotency_key"`
	BookingID   uuid.UUID       `db:"booking_id"`
	RequestHash string          `db:"request_hash"`
	Response    json.RawMessage `db:"response"`
	CreatedAt   time.Time       `db:"created_at"`
}

// PaymentIntentRequest is sent to the billing collaborator
type PaymentIntentRequest struct {
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	BookingID uuid.UUID `json:"bookingId"`
	UserID    string    `json:"userId"`
}

// PaymentIntent is the billing collaborator's answer
type PaymentIntent struct {
	PaymentID    string `json:"paymentId"`
	ClientSecret string `json:"clientSecret"`
}
