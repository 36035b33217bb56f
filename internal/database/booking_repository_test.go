package database

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travelhub/booking-service/internal/models"
)

func setupMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	cleanup := func() {
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

var bookingRowColumns = []string{
	"id", "user_id", "type", "status", "total_amount", "currency", "confirmation_number",
	"payment_id", "start_date", "end_date", "failure_reason", "created_at", "updated_at",
}

func TestBookingRepository_PersistAggregate(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	repo := NewBookingRepository(db)
	ctx := context.Background()

	bookingID := uuid.New()
	now := time.Now()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO bookings`).
		WithArgs(bookingID, "user-1", models.BookingTypeHotel, models.BookingStatusPending, 300.0, "USD", "PENDING-12345678", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectQuery(`INSERT INTO booking_items`).
		WithArgs(sqlmock.AnyArg(), bookingID, 0, models.ResourceHotel, "H-1", 2, 150.0, 300.0, &start, &end, "res-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectExec(`UPDATE bookings\s+SET status = \$2, start_date = \$3, end_date = \$4`).
		WithArgs(bookingID, models.BookingStatusAwaitingPayment, &start, &end).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)

	booking := &models.Booking{
		ID:                 bookingID,
		UserID:             "user-1",
		Type:               models.BookingTypeHotel,
		Status:             models.BookingStatusPending,
		TotalAmount:        300,
		Currency:           "USD",
		ConfirmationNumber: "PENDING-12345678",
	}
	require.NoError(t, tx.InsertBooking(ctx, booking))
	assert.Equal(t, now, booking.CreatedAt)

	item := &models.BookingItem{
		BookingID:     bookingID,
		Type:          models.ResourceHotel,
		ReferenceID:   "H-1",
		Quantity:      2,
		UnitPrice:     150,
		TotalPrice:    300,
		StartDate:     &start,
		EndDate:       &end,
		ReservationID: "res-1",
		Details:       models.ItemDetails{Version: models.ItemDetailsVersion, ReservationID: "res-1", Multiplier: 2},
	}
	require.NoError(t, tx.InsertItem(ctx, item))
	assert.NotEqual(t, uuid.Nil, item.ID)

	require.NoError(t, tx.MarkAwaitingPayment(ctx, bookingID, &start, &end))
	require.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_InsertItemRequiresReservation(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	repo := NewBookingRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)

	err = tx.InsertItem(ctx, &models.BookingItem{ReferenceID: "FL-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no reservation id")

	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_GetByID(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	repo := NewBookingRepository(db)
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		id := uuid.New()
		now := time.Now()
		mock.ExpectQuery(`SELECT .+ FROM bookings WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(bookingRowColumns).AddRow(
				id.String(), "user-1", "flight", "awaiting_payment", 599.98, "USD", "PENDING-abc",
				"pay-1", nil, nil, nil, now, now,
			))

		booking, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, booking)
		assert.Equal(t, id, booking.ID)
		assert.Equal(t, models.BookingStatusAwaitingPayment, booking.Status)
		require.NotNil(t, booking.PaymentID)
		assert.Equal(t, "pay-1", *booking.PaymentID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(`SELECT .+ FROM bookings WHERE id = \$1`).
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)

		booking, err := repo.GetByID(ctx, id)
		assert.NoError(t, err)
		assert.Nil(t, booking)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(`SELECT .+ FROM bookings WHERE id = \$1`).
			WithArgs(id).
			WillReturnError(fmt.Errorf("connection reset"))

		booking, err := repo.GetByID(ctx, id)
		assert.Error(t, err)
		assert.Nil(t, booking)
		assert.Contains(t, err.Error(), "failed to get booking")
	})
}

func TestBookingRepository_GetItems(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	bookingID := uuid.New()
	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM booking_items WHERE booking_id = \$1 ORDER BY position ASC`).
		WithArgs(bookingID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "booking_id", "position", "type", "reference_id", "quantity", "unit_price", "total_price",
			"start_date", "end_date", "reservation_id", "details", "created_at",
		}).
			AddRow(uuid.NewString(), bookingID.String(), 0, "hotel", "H-1", 2, 150.0, 300.0, nil, nil, "res-h", []byte(`{"version":1,"reservation_id":"res-h","multiplier":2}`), now).
			AddRow(uuid.NewString(), bookingID.String(), 1, "flight", "FL-1", 1, 299.99, 299.99, nil, nil, "res-f", []byte(`{"version":1,"reservation_id":"res-f","multiplier":1}`), now))

	items, err := repo.GetItems(context.Background(), bookingID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "res-h", items[0].ReservationID)
	assert.Equal(t, 2, items[0].Details.Multiplier)
	assert.Equal(t, models.ResourceFlight, items[1].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_ListByUser(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM bookings\s+WHERE user_id = \$1\s+ORDER BY created_at DESC`).
		WithArgs("user-1", 20, 0).
		WillReturnRows(sqlmock.NewRows(bookingRowColumns).
			AddRow(uuid.NewString(), "user-1", "car", "confirmed", 80.0, "EUR", "TH-20250601-ABCDEF", nil, nil, nil, nil, now, now).
			AddRow(uuid.NewString(), "user-1", "hotel", "failed", 300.0, "USD", "PENDING-1", nil, nil, nil, "payment failed", now.Add(-time.Hour), now))

	bookings, err := repo.ListByUser(context.Background(), "user-1", 20, 0)
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, models.BookingStatusConfirmed, bookings[0].Status)
	require.NotNil(t, bookings[1].FailureReason)
	assert.Equal(t, "payment failed", *bookings[1].FailureReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_StatusUpdates(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	repo := NewBookingRepository(db)
	ctx := context.Background()
	id := uuid.New()

	t.Run("MarkFailed", func(t *testing.T) {
		mock.ExpectExec(`UPDATE bookings\s+SET status = \$2, failure_reason = \$3, updated_at = NOW\(\)\s+WHERE id = \$1 AND status = ANY\(\$4\)`).
			WithArgs(id, models.BookingStatusFailed, "payment failed", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.MarkFailed(ctx, id, "payment failed", []models.BookingStatus{models.BookingStatusAwaitingPayment})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("MarkFailed after cancel", func(t *testing.T) {
		mock.ExpectExec(`UPDATE bookings`).
			WithArgs(id, models.BookingStatusFailed, "confirmation failed", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.MarkFailed(ctx, id, "confirmation failed", []models.BookingStatus{models.BookingStatusAwaitingPayment})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("TransitionStatus allowed", func(t *testing.T) {
		mock.ExpectExec(`UPDATE bookings\s+SET status = \$2, updated_at = NOW\(\)\s+WHERE id = \$1 AND status = ANY\(\$3\)`).
			WithArgs(id, models.BookingStatusCancelled, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.TransitionStatus(ctx, id, models.BookingStatusCancelled, models.CancellableStatuses)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("TransitionStatus lost race", func(t *testing.T) {
		mock.ExpectExec(`UPDATE bookings`).
			WithArgs(id, models.BookingStatusCancelled, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.TransitionStatus(ctx, id, models.BookingStatusCancelled, models.CancellableStatuses)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ConfirmBooking", func(t *testing.T) {
		mock.ExpectExec(`UPDATE bookings\s+SET status = \$2, confirmation_number = \$3`).
			WithArgs(id, models.BookingStatusConfirmed, "TH-20250601-ABCDEF").
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.ConfirmBooking(ctx, id, "TH-20250601-ABCDEF")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("SetPaymentID", func(t *testing.T) {
		mock.ExpectExec(`UPDATE bookings SET payment_id = \$2`).
			WithArgs(id, "pay-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.SetPaymentID(ctx, id, "pay-1"))
	})

	t.Run("ConfirmationNumberExists", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("TH-20250601-ABCDEF").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		exists, err := repo.ConfirmationNumberExists(ctx, "TH-20250601-ABCDEF")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepository(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()
	bookingID := uuid.New()

	t.Run("Get absent", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .+ FROM idempotency_records\s+WHERE user_id = \$1 AND idempotency_key = \$2`).
			WithArgs("user-1", "key-1").
			WillReturnError(sql.ErrNoRows)

		record, err := repo.Get(ctx, "user-1", "key-1")
		assert.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("Get stored", func(t *testing.T) {
		body := []byte(`{"id":"x","status":"awaiting_payment"}`)
		mock.ExpectQuery(`SELECT .+ FROM idempotency_records`).
			WithArgs("user-1", "key-2").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "idempotency_key", "booking_id", "request_hash", "response", "created_at"}).
				AddRow("user-1", "key-2", bookingID.String(), "abc", body, time.Now()))

		record, err := repo.Get(ctx, "user-1", "key-2")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, "user-1", record.UserID)
		assert.Equal(t, bookingID, record.BookingID)
		assert.Equal(t, string(body), string(record.Response))
	})

	t.Run("Put", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO idempotency_records`).
			WithArgs("user-1", "key-3", bookingID, "hash", []byte(`{}`)).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

		err := repo.Put(ctx, &models.IdempotencyRecord{UserID: "user-1", Key: "key-3", BookingID: bookingID, RequestHash: "hash", Response: []byte(`{}`)})
		assert.NoError(t, err)
	})

	t.Run("Put duplicate", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO idempotency_records`).
			WithArgs("user-1", "key-3", bookingID, "hash", []byte(`{}`)).
			WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

		err := repo.Put(ctx, &models.IdempotencyRecord{UserID: "user-1", Key: "key-3", BookingID: bookingID, RequestHash: "hash", Response: []byte(`{}`)})
		assert.ErrorIs(t, err, ErrDuplicateIdempotencyKey)
	})

	t.Run("DeleteOlderThan", func(t *testing.T) {
		cutoff := time.Now().Add(-72 * time.Hour)
		mock.ExpectExec(`DELETE FROM idempotency_records WHERE created_at < \$1`).
			WithArgs(cutoff).
			WillReturnResult(sqlmock.NewResult(0, 4))

		deleted, err := repo.DeleteOlderThan(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(4), deleted)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
