package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// BOOKING TYPES & STATUSES (matches DB CHECK constraints)
// ============================================================================

// BookingStatus represents the saga state of a booking
type BookingStatus string

const (
	BookingStatusPending         BookingStatus = "pending"          // Row written, reservations held
	BookingStatusAwaitingPayment BookingStatus = "awaiting_payment" // Payment intent requested
	BookingStatusConfirmed       BookingStatus = "confirmed"        // All holds confirmed after payment
	BookingStatusFailed          BookingStatus = "failed"           // Saga aborted, holds released
	BookingStatusCancelled       BookingStatus = "cancelled"        // Cancelled by the customer
)

// CancellableStatuses lists the states a booking may be cancelled from
var CancellableStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusAwaitingPayment,
	BookingStatusConfirmed,
}

// IsCancellable reports whether a booking in this status may be cancelled
func (s BookingStatus) IsCancellable() bool {
	for _, st := range CancellableStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// ResourceType identifies the inventory service owning a booking item
type ResourceType string

const (
	ResourceFlight ResourceType = "flight"
	ResourceHotel  ResourceType = "hotel"
	ResourceCar    ResourceType = "car"
)

// IsValid reports whether the resource type is one of the supported backends
func (r ResourceType) IsValid() bool {
	return r == ResourceFlight || r == ResourceHotel || r == ResourceCar
}

// BookingType is the composite type of a booking derived from its items
type BookingType string

const (
	BookingTypeFlight  BookingType = "flight"
	BookingTypeHotel   BookingType = "hotel"
	BookingTypeCar     BookingType = "car"
	BookingTypePackage BookingType = "package"
)

// IsValid reports whether the booking type is known
func (t BookingType) IsValid() bool {
	switch t {
	case BookingTypeFlight, BookingTypeHotel, BookingTypeCar, BookingTypePackage:
		return true
	}
	return false
}

// ============================================================================
// BOOKING AGGREGATE
// ============================================================================

// Booking is the aggregate root of one purchase
type Booking struct {
	ID                 uuid.UUID     `db:"id" json:"id"`
	UserID             string        `db:"user_id" json:"userId"`
	Type               BookingType   `db:"type" json:"type"`
	Status             BookingStatus `db:"status" json:"status"`
	TotalAmount        float64       `db:"total_amount" json:"totalAmount"`
	Currency           string        `db:"currency" json:"currency"`
	ConfirmationNumber string        `db:"confirmation_number" json:"confirmationNumber"`
	PaymentID          *string       `db:"payment_id" json:"paymentId,omitempty"`
	StartDate          *time.Time    `db:"start_date" json:"startDate,omitempty"`
	EndDate            *time.Time    `db:"end_date" json:"endDate,omitempty"`
	FailureReason      *string       `db:"failure_reason" json:"failureReason,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updatedAt"`

	Items []BookingItem `db:"-" json:"items,omitempty"`
}

// BookingItem is one reserved unit of inventory owned by a booking.
// Rows are immutable once inserted.
type BookingItem struct {
	ID            uuid.UUID    `db:"id" json:"id"`
	BookingID     uuid.UUID    `db:"booking_id" json:"bookingId"`
	Position      int          `db:"position" json:"-"` // Input order within the booking
	Type          ResourceType `db:"type" json:"type"`
	ReferenceID   string       `db:"reference_id" json:"referenceId"`
	Quantity      int          `db:"quantity" json:"quantity"`
	UnitPrice     float64      `db:"unit_price" json:"unitPrice"`
	TotalPrice    float64      `db:"total_price" json:"totalPrice"`
	StartDate     *time.Time   `db:"start_date" json:"startDate,omitempty"`
	EndDate       *time.Time   `db:"end_date" json:"endDate,omitempty"`
	ReservationID string       `db:"reservation_id" json:"reservationId"`
	Details       ItemDetails  `db:"details" json:"details"`
	CreatedAt     time.Time    `db:"created_at" json:"createdAt"`
}

// ItemDetailsVersion is the current schema version of ItemDetails
const ItemDetailsVersion = 1

// ItemDetails is the versioned JSONB record stored alongside each item
type ItemDetails struct {
	Version       int            `json:"version"`
	ReservationID string         `json:"reservation_id"`
	Extras        map[string]any `json:"extras,omitempty"`
	ExtrasCharge  float64        `json:"extras_charge"`
	BaseUnitPrice float64        `json:"base_unit_price"`
	Multiplier    int            `json:"multiplier"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (d ItemDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *ItemDetails) Scan(value interface{}) error {
	if value == nil {
		*d = ItemDetails{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed for ItemDetails")
	}
	return json.Unmarshal(bytes, d)
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// CreateBookingRequest is the inbound payload for POST /bookings
type CreateBookingRequest struct {
	UserID   string                     `json:"userId"`
	Type     BookingType                `json:"type,omitempty"`
	Currency string                     `json:"currency,omitempty"`
	Items    []CreateBookingItemRequest `json:"items"`
}

// CreateBookingItemRequest describes one requested item
type CreateBookingItemRequest struct {
	Type        ResourceType   `json:"type"`
	ReferenceID string         `json:"referenceId"`
	Quantity    int            `json:"quantity,omitempty"`
	StartDate   string         `json:"startDate,omitempty"`
	EndDate     string         `json:"endDate,omitempty"`
	Extras      map[string]any `json:"extras,omitempty"`
}

// Validate checks the request shape
func (r *CreateBookingRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return NewSagaError(ErrCodeValidation, "userId is required", nil)
	}
	if len(r.Items) == 0 {
		return NewSagaError(ErrCodeValidation, "at least one item is required", nil)
	}
	if r.Currency != "" && len(strings.TrimSpace(r.Currency)) != 3 {
		return NewSagaError(ErrCodeValidation, "currency must be a 3-letter ISO code", nil)
	}

	for i := range r.Items {
		item := &r.Items[i]
		if !item.Type.IsValid() {
			return NewSagaError(ErrCodeValidation, fmt.Sprintf("items[%d].type must be one of flight, hotel, car", i), nil)
		}
		if strings.TrimSpace(item.ReferenceID) == "" {
			return NewSagaError(ErrCodeValidation, fmt.Sprintf("items[%d].referenceId is required", i), nil)
		}
		if item.Quantity < 0 {
			return NewSagaError(ErrCodeValidation, fmt.Sprintf("items[%d].quantity cannot be negative", i), nil)
		}
		if _, _, err := item.ParsedDates(); err != nil {
			return NewSagaError(ErrCodeValidation, fmt.Sprintf("items[%d]: %s", i, err.Error()), nil)
		}
	}

	return nil
}

// ResolveType returns the explicit type when valid, the shared item type when
// all items agree, and package otherwise.
func (r *CreateBookingRequest) ResolveType() BookingType {
	if r.Type.IsValid() {
		return r.Type
	}
	if len(r.Items) == 0 {
		return BookingTypePackage
	}
	first := r.Items[0].Type
	for _, item := range r.Items[1:] {
		if item.Type != first {
			return BookingTypePackage
		}
	}
	return BookingType(first)
}

// dateLayouts are the accepted formats for startDate/endDate
var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q", value)
}

// ParsedDates parses the optional start and end dates of the item
func (i *CreateBookingItemRequest) ParsedDates() (*time.Time, *time.Time, error) {
	start, err := parseDate(i.StartDate)
	if err != nil {
		return nil, nil, fmt.Errorf("startDate: %w", err)
	}
	end, err := parseDate(i.EndDate)
	if err != nil {
		return nil, nil, fmt.Errorf("endDate: %w", err)
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, errors.New("endDate must not be before startDate")
	}
	return start, end, nil
}

// ============================================================================
// RESPONSE DTOs
// ============================================================================

// BookingItemSummary is the item view returned by create and carried on events
type BookingItemSummary struct {
	ID          uuid.UUID    `json:"id"`
	Type        ResourceType `json:"type"`
	ReferenceID string       `json:"referenceId"`
	Quantity    int          `json:"quantity"`
	UnitPrice   float64      `json:"unitPrice"`
	TotalPrice  float64      `json:"totalPrice"`
}

// BookingResponse is the body returned on successful creation
type BookingResponse struct {
	ID                 uuid.UUID            `json:"id"`
	UserID             string               `json:"userId"`
	Type               BookingType          `json:"type"`
	Status             BookingStatus        `json:"status"`
	TotalAmount        float64              `json:"totalAmount"`
	Currency           string               `json:"currency"`
	ConfirmationNumber string               `json:"confirmationNumber"`
	PaymentID          string               `json:"paymentId"`
	ClientSecret       string               `json:"clientSecret"`
	Items              []BookingItemSummary `json:"items"`
	CreatedAt          time.Time            `json:"createdAt"`
}

// CreateBookingResult carries the exact response bytes of a create call
type CreateBookingResult struct {
	BookingID uuid.UUID
	Response  json.RawMessage
	Replayed  bool
}

// CancelBookingResponse is returned by PUT /bookings/:id/cancel
type CancelBookingResponse struct {
	ID     uuid.UUID     `json:"id"`
	Status BookingStatus `json:"status"`
}

// Summaries converts items to their summary view
func Summaries(items []BookingItem) []BookingItemSummary {
	out := make([]BookingItemSummary, 0, len(items))
	for _, item := range items {
		out = append(out, BookingItemSummary{
			ID:          item.ID,
			Type:        item.Type,
			ReferenceID: item.ReferenceID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
		})
	}
	return out
}
