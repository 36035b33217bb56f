package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-service/internal/database"
	"github.com/travelhub/booking-service/internal/models"
	"github.com/travelhub/booking-service/internal/pricing"
	"github.com/travelhub/booking-service/internal/utils"
	"github.com/travelhub/booking-service/pkg/inventory"
)

// BookingStore is the booking persistence used by the orchestrator
type BookingStore interface {
	BeginTx(ctx context.Context) (database.BookingTx, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetItems(ctx context.Context, bookingID uuid.UUID) ([]models.BookingItem, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Booking, error)
	SetPaymentID(ctx context.Context, id uuid.UUID, paymentID string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, from []models.BookingStatus) (bool, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, status models.BookingStatus, from []models.BookingStatus) (bool, error)
	ConfirmBooking(ctx context.Context, id uuid.UUID, confirmationNumber string) (bool, error)
	ConfirmationNumberExists(ctx context.Context, number string) (bool, error)
}

// IdempotencyStore keeps the first response returned for a user's key
type IdempotencyStore interface {
	Get(ctx context.Context, userID, key string) (*models.IdempotencyRecord, error)
	Put(ctx context.Context, record *models.IdempotencyRecord) error
}

// PaymentProvider creates payment intents
type PaymentProvider interface {
	CreatePaymentIntent(ctx context.Context, req models.PaymentIntentRequest) (*models.PaymentIntent, error)
}

// EventPublisher publishes downstream events keyed by booking id
type EventPublisher interface {
	Publish(ctx context.Context, key string, v any) error
}

// ResourceClients selects the inventory client for an item type
type ResourceClients map[models.ResourceType]inventory.ResourceClient

// BookingOrchestratorConfig holds configuration for the orchestrator
type BookingOrchestratorConfig struct {
	DefaultCurrency    string        // Used when a resource service omits currency
	CallTimeout        time.Duration // Applied to every outbound call
	ConfirmationPrefix string        // Prefix of final confirmation numbers
}

// DefaultOrchestratorConfig returns default configuration
func DefaultOrchestratorConfig() BookingOrchestratorConfig {
	return BookingOrchestratorConfig{
		DefaultCurrency:    "USD",
		CallTimeout:        10 * time.Second,
		ConfirmationPrefix: "TH",
	}
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Payment has not settled in these states, so a failure may still be recorded
var unsettledStatuses = []models.BookingStatus{
	models.BookingStatusPending,
	models.BookingStatusAwaitingPayment,
}

// A failed payment may arrive after a confirmation and still fail the booking
var paymentFailableStatuses = []models.BookingStatus{
	models.BookingStatusPending,
	models.BookingStatusAwaitingPayment,
	models.BookingStatusConfirmed,
}

// BookingOrchestratorService runs the reserve → persist → pay saga and its
// asynchronous confirm/compensate completion
type BookingOrchestratorService struct {
	bookingStore     BookingStore
	idempotencyStore IdempotencyStore
	clients          ResourceClients
	payment          PaymentProvider
	publisher        EventPublisher
	config           BookingOrchestratorConfig
	logger           *logrus.Logger
}

// NewBookingOrchestratorService creates a new orchestrator service
func NewBookingOrchestratorService(
	bookingStore BookingStore,
	idempotencyStore IdempotencyStore,
	clients ResourceClients,
	payment PaymentProvider,
	publisher EventPublisher,
	config BookingOrchestratorConfig,
	logger *logrus.Logger,
) *BookingOrchestratorService {
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultOrchestratorConfig().CallTimeout
	}
	if config.ConfirmationPrefix == "" {
		config.ConfirmationPrefix = DefaultOrchestratorConfig().ConfirmationPrefix
	}
	return &BookingOrchestratorService{
		bookingStore:     bookingStore,
		idempotencyStore: idempotencyStore,
		clients:          clients,
		payment:          payment,
		publisher:        publisher,
		config:           config,
		logger:           logger,
	}
}

// compensation is one entry of the undo log built while reserving
type compensation struct {
	resourceType  models.ResourceType
	reservationID string
	client        inventory.ResourceClient
}

// tripWindow tracks min(start) and max(end) across items
type tripWindow struct {
	start *time.Time
	end   *time.Time
}

func (w *tripWindow) expand(start, end *time.Time) {
	if start != nil && (w.start == nil || start.Before(*w.start)) {
		w.start = start
	}
	if end != nil && (w.end == nil || end.After(*w.end)) {
		w.end = end
	}
}

// ============================================================================
// CREATE BOOKING
// ============================================================================

// CreateBooking executes the booking saga. On replay of a known idempotency key
// the stored response bytes are returned and nothing else happens.
func (s *BookingOrchestratorService) CreateBooking(
	ctx context.Context,
	req *models.CreateBookingRequest,
	idempotencyKey string,
) (*models.CreateBookingResult, error) {
	fingerprint := utils.RequestFingerprint(req)
	userID := strings.TrimSpace(req.UserID)

	// 1. Check idempotency key if provided
	if idempotencyKey != "" && userID != "" {
		record, err := s.idempotencyStore.Get(ctx, userID, idempotencyKey)
		if err != nil {
			return nil, models.NewSagaError(models.ErrCodePersistenceFailure, "failed to check idempotency key", err)
		}
		if record != nil {
			if record.RequestHash != fingerprint {
				s.logger.WithFields(logrus.Fields{
					"idempotency_key": idempotencyKey,
					"user_id":         userID,
					"booking_id":      record.BookingID,
				}).Warn("Idempotency key reused with a different request body")
			}
			return &models.CreateBookingResult{
				BookingID: record.BookingID,
				Response:  record.Response,
				Replayed:  true,
			}, nil
		}
	}

	// 2. Validate request
	if err := req.Validate(); err != nil {
		return nil, err
	}

	bookingID := uuid.New()
	var undo []compensation

	// 3-5. Reserve every item and price it
	items, currency, window, totalAmount, sagaErr := s.reserveItems(ctx, bookingID, req, &undo)
	if sagaErr != nil {
		return nil, s.abortSaga(ctx, bookingID, undo, false, sagaErr)
	}

	// 6. Persist booking and items atomically
	booking := &models.Booking{
		ID:                 bookingID,
		UserID:             userID,
		Type:               req.ResolveType(),
		Status:             models.BookingStatusPending,
		TotalAmount:        totalAmount,
		Currency:           currency,
		ConfirmationNumber: utils.ProvisionalConfirmationNumber(bookingID),
	}
	if err := s.persistBooking(ctx, booking, items, window); err != nil {
		return nil, s.abortSaga(ctx, bookingID, undo, false,
			models.NewSagaError(models.ErrCodePersistenceFailure, "failed to save booking", err))
	}

	// 7. Create payment intent outside the transaction
	callCtx, cancel := s.callContext(ctx)
	intent, err := s.payment.CreatePaymentIntent(callCtx, models.PaymentIntentRequest{
		Amount:    booking.TotalAmount,
		Currency:  booking.Currency,
		BookingID: booking.ID,
		UserID:    booking.UserID,
	})
	cancel()
	if err != nil {
		return nil, s.abortSaga(ctx, bookingID, undo, true,
			models.NewSagaError(models.ErrCodePaymentFailure, "failed to create payment intent", err))
	}
	if err := s.bookingStore.SetPaymentID(ctx, booking.ID, intent.PaymentID); err != nil {
		return nil, s.abortSaga(ctx, bookingID, undo, true,
			models.NewSagaError(models.ErrCodePersistenceFailure, "failed to save payment id", err))
	}
	booking.PaymentID = &intent.PaymentID

	// 8. Assemble response
	response := models.BookingResponse{
		ID:                 booking.ID,
		UserID:             booking.UserID,
		Type:               booking.Type,
		Status:             booking.Status,
		TotalAmount:        booking.TotalAmount,
		Currency:           booking.Currency,
		ConfirmationNumber: booking.ConfirmationNumber,
		PaymentID:          intent.PaymentID,
		ClientSecret:       intent.ClientSecret,
		Items:              models.Summaries(items),
		CreatedAt:          booking.CreatedAt,
	}
	body, err := json.Marshal(response)
	if err != nil {
		return nil, s.abortSaga(ctx, bookingID, undo, true,
			models.NewSagaError(models.ErrCodePersistenceFailure, "failed to encode booking response", err))
	}

	// 9. Store response for replays (best effort)
	if idempotencyKey != "" {
		s.storeIdempotentResponse(ctx, userID, idempotencyKey, booking.ID, fingerprint, body)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":   booking.ID,
		"user_id":      booking.UserID,
		"type":         booking.Type,
		"items":        len(items),
		"total_amount": booking.TotalAmount,
		"currency":     booking.Currency,
		"payment_id":   intent.PaymentID,
	}).Info("Booking created, awaiting payment")

	return &models.CreateBookingResult{BookingID: booking.ID, Response: body}, nil
}

// reserveItems fetches, prices and reserves each item in input order. Every
// successful reservation is appended to undo before anything else can fail.
func (s *BookingOrchestratorService) reserveItems(
	ctx context.Context,
	bookingID uuid.UUID,
	req *models.CreateBookingRequest,
	undo *[]compensation,
) ([]models.BookingItem, string, tripWindow, float64, *models.SagaError) {
	var (
		items       []models.BookingItem
		currency    string
		window      tripWindow
		totalAmount float64
	)
	requestCurrency := strings.ToUpper(strings.TrimSpace(req.Currency))

	for i, itemReq := range req.Items {
		client, ok := s.clients[itemReq.Type]
		if !ok {
			return nil, "", window, 0, models.NewSagaError(models.ErrCodeReservationFailed,
				fmt.Sprintf("no inventory client for %s", itemReq.Type), nil)
		}
		start, end, _ := itemReq.ParsedDates()

		// a. Canonical pricing
		callCtx, cancel := s.callContext(ctx)
		canonical, err := client.Fetch(callCtx, itemReq.ReferenceID)
		cancel()
		if err != nil {
			return nil, "", window, 0, models.NewSagaError(models.ErrCodePricingUnavailable,
				fmt.Sprintf("pricing unavailable for %s %s", itemReq.Type, itemReq.ReferenceID), err)
		}
		if canonical == nil || math.IsNaN(canonical.UnitPrice) || canonical.UnitPrice <= 0 {
			return nil, "", window, 0, models.NewSagaError(models.ErrCodePricingUnavailable,
				fmt.Sprintf("no price for %s %s", itemReq.Type, itemReq.ReferenceID), nil)
		}

		// Currency is known from pricing, so mismatches stop before another hold is taken
		itemCurrency := canonical.Currency
		if itemCurrency == "" {
			itemCurrency = requestCurrency
		}
		if itemCurrency == "" {
			itemCurrency = s.config.DefaultCurrency
		}
		if requestCurrency != "" && itemCurrency != requestCurrency {
			return nil, "", window, 0, models.NewSagaError(models.ErrCodeCurrencyMismatch,
				fmt.Sprintf("item %d is priced in %s, request uses %s", i, itemCurrency, requestCurrency), nil)
		}
		if currency == "" {
			currency = itemCurrency
		} else if itemCurrency != currency {
			return nil, "", window, 0, models.NewSagaError(models.ErrCodeCurrencyMismatch,
				fmt.Sprintf("item %d is priced in %s, booking uses %s", i, itemCurrency, currency), nil)
		}

		// b. Extras and surcharge
		extras, surcharge := pricing.NormalizeExtras(itemReq.Type, itemReq.Extras)

		// c-d. Multiplier
		multiplier := pricing.Multiplier(itemReq.Type, itemReq.Quantity, start, end)
		if multiplier <= 0 {
			return nil, "", window, 0, models.NewSagaError(models.ErrCodeMultiplierInvalid,
				fmt.Sprintf("invalid quantity for item %d", i), nil)
		}

		// e. Reserve and push the undo entry
		callCtx, cancel = s.callContext(ctx)
		reservation, err := client.Reserve(callCtx, itemReq.ReferenceID, bookingID.String(), multiplier)
		cancel()
		if err != nil {
			return nil, "", window, 0, models.NewSagaError(models.ErrCodeReservationFailed,
				fmt.Sprintf("could not reserve %s %s", itemReq.Type, itemReq.ReferenceID), err)
		}
		if reservation == nil || reservation.ReservationID == "" {
			return nil, "", window, 0, models.NewSagaError(models.ErrCodeReservationFailed,
				fmt.Sprintf("%s service returned no reservation id for %s", itemReq.Type, itemReq.ReferenceID), nil)
		}
		*undo = append(*undo, compensation{
			resourceType:  itemReq.Type,
			reservationID: reservation.ReservationID,
			client:        client,
		})

		// f. Prices
		unitPrice, totalPrice, err := pricing.ItemTotal(canonical.UnitPrice, surcharge, multiplier)
		if err != nil {
			return nil, "", window, 0, models.NewSagaError(models.ErrCodeTotalInvalid,
				fmt.Sprintf("invalid price for item %d", i), err)
		}

		// g. Accumulate
		totalAmount = pricing.Round(totalAmount + totalPrice)
		window.expand(start, end)

		items = append(items, models.BookingItem{
			ID:            uuid.New(),
			BookingID:     bookingID,
			Position:      i,
			Type:          itemReq.Type,
			ReferenceID:   itemReq.ReferenceID,
			Quantity:      multiplier,
			UnitPrice:     unitPrice,
			TotalPrice:    totalPrice,
			StartDate:     start,
			EndDate:       end,
			ReservationID: reservation.ReservationID,
			Details: models.ItemDetails{
				Version:       models.ItemDetailsVersion,
				ReservationID: reservation.ReservationID,
				Extras:        extras,
				ExtrasCharge:  surcharge,
				BaseUnitPrice: canonical.UnitPrice,
				Multiplier:    multiplier,
				Metadata:      canonical.Metadata,
			},
		})
	}

	if totalAmount <= 0 {
		return nil, "", window, 0, models.NewSagaError(models.ErrCodeTotalInvalid, "booking total must be positive", nil)
	}

	return items, currency, window, totalAmount, nil
}

// persistBooking writes the booking, its items and the awaiting_payment
// transition in one transaction
func (s *BookingOrchestratorService) persistBooking(
	ctx context.Context,
	booking *models.Booking,
	items []models.BookingItem,
	window tripWindow,
) error {
	tx, err := s.bookingStore.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.InsertBooking(ctx, booking); err != nil {
		return err
	}
	for i := range items {
		if err := tx.InsertItem(ctx, &items[i]); err != nil {
			return err
		}
	}
	if err := tx.MarkAwaitingPayment(ctx, booking.ID, window.start, window.end); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.Status = models.BookingStatusAwaitingPayment
	booking.StartDate = window.start
	booking.EndDate = window.end
	return nil
}

func (s *BookingOrchestratorService) storeIdempotentResponse(ctx context.Context, userID, key string, bookingID uuid.UUID, fingerprint string, body []byte) {
	err := s.idempotencyStore.Put(ctx, &models.IdempotencyRecord{
		UserID:      userID,
		Key:         key,
		BookingID:   bookingID,
		RequestHash: fingerprint,
		Response:    body,
	})
	if err == nil {
		return
	}

	entry := s.logger.WithFields(logrus.Fields{
		"idempotency_key": key,
		"user_id":         userID,
		"booking_id":      bookingID,
	}).WithError(err)
	if errors.Is(err, database.ErrDuplicateIdempotencyKey) {
		entry.Warn("Idempotency key stored by a concurrent request, duplicate booking created")
		return
	}
	entry.Warn("Failed to store idempotent response")
}

// abortSaga unwinds reservations and marks a durable booking failed
func (s *BookingOrchestratorService) abortSaga(
	ctx context.Context,
	bookingID uuid.UUID,
	undo []compensation,
	persisted bool,
	sagaErr *models.SagaError,
) error {
	s.logger.WithFields(logrus.Fields{
		"booking_id":   bookingID,
		"code":         sagaErr.Code,
		"reservations": len(undo),
		"persisted":    persisted,
	}).WithError(sagaErr).Warn("Booking saga aborted")

	s.runCompensations(ctx, bookingID, undo)

	if persisted {
		ok, err := s.bookingStore.MarkFailed(context.WithoutCancel(ctx), bookingID, sagaErr.Message, unsettledStatuses)
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", bookingID).Error("Failed to mark booking as failed")
		} else if !ok {
			s.logger.WithField("booking_id", bookingID).Warn("Booking left awaiting_payment before it could be marked failed")
		}
	}

	return sagaErr
}

// runCompensations releases reservations in reverse order. Failures are
// logged and never stop the unwind.
func (s *BookingOrchestratorService) runCompensations(ctx context.Context, bookingID uuid.UUID, undo []compensation) int {
	failures := 0
	for i := len(undo) - 1; i >= 0; i-- {
		c := undo[i]
		callCtx, cancel := s.callContext(context.WithoutCancel(ctx))
		err := c.client.Compensate(callCtx, c.reservationID)
		cancel()
		if err != nil {
			failures++
			s.logger.WithFields(logrus.Fields{
				"booking_id":     bookingID,
				"resource_type":  c.resourceType,
				"reservation_id": c.reservationID,
				"critical":       true,
			}).WithError(err).Error("CRITICAL: Compensation failed, reservation may still be held")
		}
	}
	return failures
}

func (s *BookingOrchestratorService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.CallTimeout)
}

// ============================================================================
// QUERIES
// ============================================================================

// GetBooking returns a booking with its items
func (s *BookingOrchestratorService) GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookingStore.GetByID(ctx, bookingID)
	if err != nil {
		return nil, models.NewSagaError(models.ErrCodePersistenceFailure, "failed to load booking", err)
	}
	if booking == nil {
		return nil, models.NewSagaError(models.ErrCodeNotFound, "booking not found", nil)
	}

	items, err := s.bookingStore.GetItems(ctx, bookingID)
	if err != nil {
		return nil, models.NewSagaError(models.ErrCodePersistenceFailure, "failed to load booking items", err)
	}
	booking.Items = items
	return booking, nil
}

// ListUserBookings returns a page of a user's bookings, newest first
func (s *BookingOrchestratorService) ListUserBookings(ctx context.Context, userID string, limit, offset int) ([]models.Booking, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	bookings, err := s.bookingStore.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, models.NewSagaError(models.ErrCodePersistenceFailure, "failed to list bookings", err)
	}
	return bookings, nil
}

// ============================================================================
// CANCEL BOOKING
// ============================================================================

// CancelBooking releases every persisted reservation and marks the booking cancelled
func (s *BookingOrchestratorService) CancelBooking(ctx context.Context, bookingID uuid.UUID) (*models.CancelBookingResponse, error) {
	booking, err := s.bookingStore.GetByID(ctx, bookingID)
	if err != nil {
		return nil, models.NewSagaError(models.ErrCodePersistenceFailure, "failed to load booking", err)
	}
	if booking == nil {
		return nil, models.NewSagaError(models.ErrCodeNotFound, "booking not found", nil)
	}

	switch {
	case booking.Status == models.BookingStatusCancelled:
		return nil, models.NewSagaError(models.ErrCodeConflict, "booking is already cancelled", nil)
	case !booking.Status.IsCancellable():
		return nil, models.NewSagaError(models.ErrCodeInvalidState,
			fmt.Sprintf("booking cannot be cancelled from status %s", booking.Status), nil)
	}

	items, err := s.bookingStore.GetItems(ctx, bookingID)
	if err != nil {
		return nil, models.NewSagaError(models.ErrCodePersistenceFailure, "failed to load booking items", err)
	}

	failures := s.runCompensations(ctx, bookingID, s.compensationsFor(bookingID, items))

	ok, err := s.bookingStore.TransitionStatus(ctx, bookingID, models.BookingStatusCancelled, models.CancellableStatuses)
	if err != nil {
		return nil, models.NewSagaError(models.ErrCodePersistenceFailure, "failed to cancel booking", err)
	}
	if !ok {
		return nil, models.NewSagaError(models.ErrCodeConflict, "booking status changed during cancellation", nil)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":            bookingID,
		"previous_status":       booking.Status,
		"compensation_failures": failures,
	}).Info("Booking cancelled")

	return &models.CancelBookingResponse{ID: bookingID, Status: models.BookingStatusCancelled}, nil
}

// compensationsFor rebuilds the undo log of a persisted booking in item order
func (s *BookingOrchestratorService) compensationsFor(bookingID uuid.UUID, items []models.BookingItem) []compensation {
	undo := make([]compensation, 0, len(items))
	for _, item := range items {
		if item.ReservationID == "" {
			continue
		}
		client, ok := s.clients[item.Type]
		if !ok {
			s.logger.WithFields(logrus.Fields{
				"booking_id":     bookingID,
				"resource_type":  item.Type,
				"reservation_id": item.ReservationID,
				"critical":       true,
			}).Error("CRITICAL: No inventory client for reservation")
			continue
		}
		undo = append(undo, compensation{
			resourceType:  item.Type,
			reservationID: item.ReservationID,
			client:        client,
		})
	}
	return undo
}

// ============================================================================
// PAYMENT OUTCOMES
// ============================================================================

// HandlePaymentSucceeded confirms every reservation of a booking. Redelivery is a no-op.
func (s *BookingOrchestratorService) HandlePaymentSucceeded(ctx context.Context, bookingID uuid.UUID) error {
	booking, err := s.bookingStore.GetByID(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return models.NewSagaError(models.ErrCodeNotFound, "booking not found", nil)
	}

	log := s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"status":     booking.Status,
	})

	switch booking.Status {
	case models.BookingStatusConfirmed:
		log.Debug("Payment success redelivered for confirmed booking")
		return nil
	case models.BookingStatusCancelled, models.BookingStatusFailed:
		log.Warn("Payment succeeded for a booking that is no longer active")
		return nil
	}

	items, err := s.bookingStore.GetItems(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("failed to load booking items: %w", err)
	}

	// Siblings confirmed before a failure are left confirmed
	failed := 0
	for _, item := range items {
		client, ok := s.clients[item.Type]
		if !ok {
			failed++
			log.WithField("reservation_id", item.ReservationID).Error("No inventory client for reservation")
			continue
		}
		callCtx, cancel := s.callContext(ctx)
		err := client.Confirm(callCtx, item.ReservationID)
		cancel()
		if err != nil {
			failed++
			log.WithFields(logrus.Fields{
				"resource_type":  item.Type,
				"reservation_id": item.ReservationID,
			}).WithError(err).Error("Failed to confirm reservation")
		}
	}

	if failed > 0 {
		reason := fmt.Sprintf("confirmation failed for %d of %d items", failed, len(items))
		ok, err := s.bookingStore.MarkFailed(ctx, bookingID, reason, unsettledStatuses)
		if err != nil {
			return fmt.Errorf("failed to mark booking failed: %w", err)
		}
		if !ok {
			log.Warn("Booking changed state during confirmation, keeping it")
			return nil
		}
		log.WithField("failed_items", failed).Error("Booking failed during confirmation")
		return nil
	}

	confirmationNumber, err := s.newConfirmationNumber(ctx)
	if err != nil {
		return err
	}

	ok, err := s.bookingStore.ConfirmBooking(ctx, bookingID, confirmationNumber)
	if err != nil {
		return fmt.Errorf("failed to confirm booking: %w", err)
	}
	if !ok {
		log.Warn("Booking changed state while confirming, skipping")
		return nil
	}

	booking.Status = models.BookingStatusConfirmed
	booking.ConfirmationNumber = confirmationNumber

	if s.publisher != nil {
		event := models.NewBookingConfirmedEvent(booking, items)
		if err := s.publisher.Publish(ctx, booking.ID.String(), event); err != nil {
			log.WithError(err).Error("Failed to publish booking confirmation event")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":          bookingID,
		"confirmation_number": confirmationNumber,
		"total_amount":        booking.TotalAmount,
		"currency":            booking.Currency,
	}).Info("Booking confirmed")

	return nil
}

// HandlePaymentFailed releases every reservation and marks the booking failed
func (s *BookingOrchestratorService) HandlePaymentFailed(ctx context.Context, bookingID uuid.UUID) error {
	booking, err := s.bookingStore.GetByID(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return models.NewSagaError(models.ErrCodeNotFound, "booking not found", nil)
	}

	if booking.Status == models.BookingStatusFailed || booking.Status == models.BookingStatusCancelled {
		s.logger.WithFields(logrus.Fields{
			"booking_id": bookingID,
			"status":     booking.Status,
		}).Debug("Payment failure for inactive booking ignored")
		return nil
	}

	items, err := s.bookingStore.GetItems(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("failed to load booking items: %w", err)
	}

	failures := s.runCompensations(ctx, bookingID, s.compensationsFor(bookingID, items))

	ok, err := s.bookingStore.MarkFailed(ctx, bookingID, "payment failed", paymentFailableStatuses)
	if err != nil {
		return fmt.Errorf("failed to mark booking failed: %w", err)
	}
	if !ok {
		s.logger.WithField("booking_id", bookingID).Warn("Booking changed state during payment failure handling, keeping it")
		return nil
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":            bookingID,
		"previous_status":       booking.Status,
		"compensation_failures": failures,
	}).Info("Booking failed after payment failure")

	return nil
}

// newConfirmationNumber generates a unique confirmation number
func (s *BookingOrchestratorService) newConfirmationNumber(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		number, err := utils.ConfirmationNumber(s.config.ConfirmationPrefix, time.Now())
		if err != nil {
			return "", err
		}
		exists, err := s.bookingStore.ConfirmationNumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique confirmation number")
}
