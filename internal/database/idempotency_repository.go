package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/travelhub/booking-service/internal/models"
)

// ErrDuplicateIdempotencyKey is returned when a key already has a stored response
var ErrDuplicateIdempotencyKey = errors.New("idempotency key already stored")

const uniqueViolation = "23505"

// IdempotencyRepository stores the first response returned for each idempotency
// key. Keys are scoped to the user that sent them.
type IdempotencyRepository struct {
	db *sqlx.DB
}

// NewIdempotencyRepository creates a new IdempotencyRepository
func NewIdempotencyRepository(db *sqlx.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Get returns the record userID stored under key, or nil when absent
func (r *IdempotencyRepository) Get(ctx context.Context, userID, key string) (*models.IdempotencyRecord, error) {
	var record models.IdempotencyRecord
	query := `
		SELECT user_id, idempotency_key, booking_id, request_hash, response, created_at
		FROM idempotency_records
		WHERE user_id = $1 AND idempotency_key = $2`

	err := r.db.GetContext(ctx, &record, query, userID, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}
	return &record, nil
}

// Put stores a record once. A second put for the same user and key returns ErrDuplicateIdempotencyKey.
func (r *IdempotencyRepository) Put(ctx context.Context, record *models.IdempotencyRecord) error {
	query := `
		INSERT INTO idempotency_records (user_id, idempotency_key, booking_id, request_hash, response)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRowxContext(ctx, query,
		record.UserID, record.Key, record.BookingID, record.RequestHash, []byte(record.Response),
	).Scan(&record.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to store idempotency record: %w", err)
	}
	return nil
}

// DeleteOlderThan removes records created before cutoff
func (r *IdempotencyRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_records WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge idempotency records: %w", err)
	}
	return result.RowsAffected()
}
