package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/travelhub/booking-service/internal/models"
)

// ErrBookingNotFound is returned by updates that matched no booking row
var ErrBookingNotFound = errors.New("booking not found")

const bookingColumns = `
	id, user_id, type, status, total_amount, currency, confirmation_number,
	payment_id, start_date, end_date, failure_reason, created_at, updated_at`

const bookingItemColumns = `
	id, booking_id, position, type, reference_id, quantity, unit_price, total_price,
	start_date, end_date, reservation_id, details, created_at`

// BookingTx is the unit of work used to persist a new booking aggregate
type BookingTx interface {
	InsertBooking(ctx context.Context, booking *models.Booking) error
	InsertItem(ctx context.Context, item *models.BookingItem) error
	MarkAwaitingPayment(ctx context.Context, bookingID uuid.UUID, start, end *time.Time) error
	Commit() error
	Rollback() error
}

// BookingRepository handles booking and booking item persistence
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// ============================================================================
// TRANSACTIONAL WRITES
// ============================================================================

type bookingTx struct {
	tx *sqlx.Tx
}

// BeginTx opens a transaction for writing a booking with its items
func (r *BookingRepository) BeginTx(ctx context.Context) (BookingTx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &bookingTx{tx: tx}, nil
}

// InsertBooking inserts the booking row and fills its timestamps
func (t *bookingTx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, user_id, type, status, total_amount, currency,
			confirmation_number, start_date, end_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := t.tx.QueryRowxContext(ctx, query,
		booking.ID, booking.UserID, booking.Type, booking.Status, booking.TotalAmount,
		booking.Currency, booking.ConfirmationNumber, booking.StartDate, booking.EndDate,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

// InsertItem inserts one booking item. Items without a reservation are refused.
func (t *bookingTx) InsertItem(ctx context.Context, item *models.BookingItem) error {
	if item.ReservationID == "" {
		return fmt.Errorf("booking item %s has no reservation id", item.ReferenceID)
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}

	query := `
		INSERT INTO booking_items (
			id, booking_id, position, type, reference_id, quantity, unit_price,
			total_price, start_date, end_date, reservation_id, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`

	err := t.tx.QueryRowxContext(ctx, query,
		item.ID, item.BookingID, item.Position, item.Type, item.ReferenceID, item.Quantity,
		item.UnitPrice, item.TotalPrice, item.StartDate, item.EndDate, item.ReservationID, item.Details,
	).Scan(&item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert booking item: %w", err)
	}
	return nil
}

// MarkAwaitingPayment stores the trip window and moves the booking to awaiting_payment
func (t *bookingTx) MarkAwaitingPayment(ctx context.Context, bookingID uuid.UUID, start, end *time.Time) error {
	query := `
		UPDATE bookings
		SET status = $2, start_date = $3, end_date = $4, updated_at = NOW()
		WHERE id = $1`

	result, err := t.tx.ExecContext(ctx, query, bookingID, models.BookingStatusAwaitingPayment, start, end)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	return requireRow(result)
}

func (t *bookingTx) Commit() error {
	return t.tx.Commit()
}

func (t *bookingTx) Rollback() error {
	return t.tx.Rollback()
}

// ============================================================================
// READS
// ============================================================================

// GetByID returns a booking without items, or nil when it does not exist
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	err := r.db.GetContext(ctx, &booking, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// GetItems returns the items of a booking in input order
func (r *BookingRepository) GetItems(ctx context.Context, bookingID uuid.UUID) ([]models.BookingItem, error) {
	items := []models.BookingItem{}
	query := `SELECT ` + bookingItemColumns + ` FROM booking_items WHERE booking_id = $1 ORDER BY position ASC`

	if err := r.db.SelectContext(ctx, &items, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to get booking items: %w", err)
	}
	return items, nil
}

// ListByUser returns a user's bookings, newest first
func (r *BookingRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	if err := r.db.SelectContext(ctx, &bookings, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// ConfirmationNumberExists checks whether a confirmation number is taken
func (r *BookingRepository) ConfirmationNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM bookings WHERE confirmation_number = $1)`, number)
	if err != nil {
		return false, fmt.Errorf("failed to check confirmation number: %w", err)
	}
	return exists, nil
}

// ============================================================================
// STATUS UPDATES
// ============================================================================

// SetPaymentID records the payment intent id on a booking
func (r *BookingRepository) SetPaymentID(ctx context.Context, id uuid.UUID, paymentID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET payment_id = $2, updated_at = NOW() WHERE id = $1`,
		id, paymentID,
	)
	if err != nil {
		return fmt.Errorf("failed to set payment id: %w", err)
	}
	return requireRow(result)
}

// MarkFailed moves a booking to failed with reason while it is in one of from.
// Returns false when the booking had already left those states.
func (r *BookingRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, from []models.BookingStatus) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)`

	result, err := r.db.ExecContext(ctx, query, id, models.BookingStatusFailed, reason, pq.Array(statusStrings(from)))
	if err != nil {
		return false, fmt.Errorf("failed to mark booking failed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows > 0, nil
}

// TransitionStatus moves a booking to status only while it is in one of from.
// Returns false when the booking was not in an allowed state.
func (r *BookingRepository) TransitionStatus(ctx context.Context, id uuid.UUID, status models.BookingStatus, from []models.BookingStatus) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)`

	result, err := r.db.ExecContext(ctx, query, id, status, pq.Array(statusStrings(from)))
	if err != nil {
		return false, fmt.Errorf("failed to transition booking status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows > 0, nil
}

// ConfirmBooking assigns the final confirmation number while payment is outstanding
func (r *BookingRepository) ConfirmBooking(ctx context.Context, id uuid.UUID, confirmationNumber string) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $2, confirmation_number = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'awaiting_payment')`

	result, err := r.db.ExecContext(ctx, query, id, models.BookingStatusConfirmed, confirmationNumber)
	if err != nil {
		return false, fmt.Errorf("failed to confirm booking: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows > 0, nil
}

func statusStrings(statuses []models.BookingStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, string(st))
	}
	return out
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrBookingNotFound
	}
	return nil
}
