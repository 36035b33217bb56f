package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-service/internal/models"
)

// MessageSource is a committable stream of payment events
type MessageSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// PaymentEventHandler reacts to payment outcomes for a booking
type PaymentEventHandler interface {
	HandlePaymentSucceeded(ctx context.Context, bookingID uuid.UUID) error
	HandlePaymentFailed(ctx context.Context, bookingID uuid.UUID) error
}

// PaymentEventConsumerConfig holds retry tuning for the consumer loop
type PaymentEventConsumerConfig struct {
	NotFoundRetries   int           // Attempts while the booking row is not visible yet
	NotFoundBackoff   time.Duration // Delay between those attempts
	FetchErrorBackoff time.Duration
}

// PaymentEventConsumer polls the payment stream and drives bookings to
// confirmed or failed
type PaymentEventConsumer struct {
	source  MessageSource
	handler PaymentEventHandler
	config  PaymentEventConsumerConfig
	logger  *logrus.Logger
}

// NewPaymentEventConsumer creates a new consumer
func NewPaymentEventConsumer(source MessageSource, handler PaymentEventHandler, config PaymentEventConsumerConfig, logger *logrus.Logger) *PaymentEventConsumer {
	if config.NotFoundRetries < 1 {
		config.NotFoundRetries = 1
	}
	if config.FetchErrorBackoff <= 0 {
		config.FetchErrorBackoff = 500 * time.Millisecond
	}
	return &PaymentEventConsumer{
		source:  source,
		handler: handler,
		config:  config,
		logger:  logger,
	}
}

// Run consumes until ctx is cancelled
func (c *PaymentEventConsumer) Run(ctx context.Context) {
	c.logger.Info("Payment event consumer started")

	for {
		m, err := c.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Payment event consumer stopped")
				return
			}
			c.logger.WithError(err).Error("Payment event fetch failed")
			if !sleepContext(ctx, c.config.FetchErrorBackoff) {
				c.logger.Info("Payment event consumer stopped")
				return
			}
			continue
		}

		// An event interrupted by shutdown stays uncommitted for redelivery
		if !c.process(ctx, m) {
			c.logger.WithFields(logrus.Fields{
				"partition": m.Partition,
				"offset":    m.Offset,
			}).Info("Payment event consumer stopped, leaving event uncommitted")
			return
		}

		if err := c.source.Commit(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"partition": m.Partition,
				"offset":    m.Offset,
			}).Error("Failed to commit payment event offset")
		}
	}
}

// process handles a single message and reports whether its offset may be
// committed. Only cancellation of ctx leaves a message unsettled.
func (c *PaymentEventConsumer) process(ctx context.Context, m kafka.Message) bool {
	log := c.logger.WithFields(logrus.Fields{
		"partition": m.Partition,
		"offset":    m.Offset,
	})

	event, err := models.ParsePaymentEvent(m.Value)
	if err != nil {
		log.WithError(err).Warn("Skipping malformed payment event")
		return true
	}
	log = log.WithFields(logrus.Fields{
		"booking_id": event.BookingID,
		"event_type": event.RawType,
	})
	if event.PaymentID != "" {
		log = log.WithField("payment_id", event.PaymentID)
	}

	var handle func(context.Context, uuid.UUID) error
	switch event.Outcome {
	case models.PaymentOutcomeSucceeded:
		handle = c.handler.HandlePaymentSucceeded
	case models.PaymentOutcomeFailed:
		handle = c.handler.HandlePaymentFailed
	default:
		log.Debug("Ignoring payment event")
		return true
	}

	for attempt := 1; ; attempt++ {
		err := handle(ctx, event.BookingID)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		if attempt >= c.config.NotFoundRetries {
			log.WithError(err).WithField("attempts", attempt).Error("Giving up on payment event")
			return true
		}

		log.WithError(err).WithField("attempt", attempt).Warn("Payment event handling failed, retrying")
		if !sleepContext(ctx, c.config.NotFoundBackoff) {
			return false
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
