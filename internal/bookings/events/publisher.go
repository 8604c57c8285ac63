package events

import (
	"context"
	"time"

	"roomly/pkg/kafka"
	kafka_config "roomly/pkg/kafka/config"
	kafkamiddleware "roomly/pkg/kafka/middleware"
	"roomly/pkg/logger"
)

const (
	EventBookingCreated     = "booking.created"
	EventBookingRoomChanged = "booking.room_changed"

	eventSource        = "roomly-bookings"
	eventSchemaVersion = "1.0"
)

// BookingEvent is the payload published for every allocation decision that
// changed state.
type BookingEvent struct {
	BookingID  string    `json:"booking_id"`
	UserID     string    `json:"user_id"`
	RoomID     string    `json:"room_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits booking lifecycle events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	BookingCreated(ctx context.Context, event BookingEvent) error
	BookingRoomChanged(ctx context.Context, event BookingEvent) error
	Close() error
}

type kafkaPublisher struct {
	producer *kafka.Producer
}

func NewKafkaPublisher(cfg *kafka_config.Config, topic string, dlqTopic string, log *logger.Logger) (Publisher, error) {
	producer, err := kafka.NewProducer(cfg, topic, dlqTopic)
	if err != nil {
		return nil, err
	}
	if cfg.EnableMiddleware {
		producer.Use(kafkamiddleware.LoggingProducerMiddleware(log))
	}
	return &kafkaPublisher{producer: producer}, nil
}

func (p *kafkaPublisher) BookingCreated(ctx context.Context, event BookingEvent) error {
	return p.publish(ctx, EventBookingCreated, event)
}

func (p *kafkaPublisher) BookingRoomChanged(ctx context.Context, event BookingEvent) error {
	return p.publish(ctx, EventBookingRoomChanged, event)
}

func (p *kafkaPublisher) publish(ctx context.Context, eventType string, event BookingEvent) error {
	msg := kafka.NewMessage().
		WithKey(event.BookingID).
		WithValue(event).
		WithEventType(eventType).
		WithSchemaVersion(eventSchemaVersion).
		WithSource(eventSource).
		Build()

	return p.producer.Publish(ctx, msg)
}

func (p *kafkaPublisher) Close() error {
	return p.producer.Close()
}
