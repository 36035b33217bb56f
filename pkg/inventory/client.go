// Package inventory contains clients for the flight, hotel and car
// reservation services. All three share one calling convention.
package inventory

import "context"

// ResourceClient is the capability set every inventory backend exposes
type ResourceClient interface {
	// Fetch returns canonical price and metadata for a reference
	Fetch(ctx context.Context, referenceID string) (*Pricing, error)
	// Reserve places a provisional hold. It is never retried.
	Reserve(ctx context.Context, referenceID, bookingID string, quantity int) (*Reservation, error)
	// Confirm turns a hold into a durable booking. Confirming twice is not an error.
	Confirm(ctx context.Context, reservationID string) error
	// Compensate releases a hold or reverses a confirmation. Releasing twice is not an error.
	Compensate(ctx context.Context, reservationID string) error
}

// Pricing is the canonical price of a reference
type Pricing struct {
	ReferenceID string
	UnitPrice   float64
	Currency    string
	Metadata    map[string]any
}

// Reservation is the hold granted by a resource service
type Reservation struct {
	ReservationID string `json:"reservationId"`
	Status        string `json:"status,omitempty"`
	ExpiresAt     string `json:"expiresAt,omitempty"`
}

// ReserveRequest is the body of POST /{resource}/:id/reservations
type ReserveRequest struct {
	BookingID string `json:"bookingId"`
	Quantity  int    `json:"quantity"`
}
