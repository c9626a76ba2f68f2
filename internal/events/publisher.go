package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/velora-labs/storefront-api/internal/models"
)

// OrderEvent is the lifecycle notification published for downstream
// consumers (notifications, analytics). Keyed by order number so all events
// for one order land in the same partition.
type OrderEvent struct {
	Type          string               `json:"type"` // created, confirmed, cancelled
	OrderNumber   string               `json:"order_number"`
	UserID        string               `json:"user_id"`
	OrderStatus   models.OrderStatus   `json:"order_status"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	TotalAmount   float64              `json:"total_amount"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// Publisher emits order lifecycle events to Kafka. A nil *Publisher is valid
// and publishes nothing, so the service runs without a broker.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher builds a Kafka publisher for the given brokers and topic.
func NewPublisher(brokers, topic string) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Compression:  kafka.Snappy,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error().Msgf("kafka producer: "+msg, args...)
		}),
	}
	return &Publisher{writer: writer}
}

// PublishOrderEvent emits one event. Failures are logged, never propagated:
// eventing is best-effort and must not fail the order path.
func (p *Publisher) PublishOrderEvent(ctx context.Context, eventType string, order *models.Order) {
	if p == nil {
		return
	}

	event := OrderEvent{
		Type:          eventType,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		OrderStatus:   order.OrderStatus,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount,
		OccurredAt:    time.Now().UTC(),
	}

	value, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("order", order.OrderNumber).Msg("failed to encode order event")
		return
	}

	msg := kafka.Message{
		Key:   []byte(order.OrderNumber),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Error().Err(err).Str("order", order.OrderNumber).Str("type", eventType).Msg("failed to publish order event")
	}
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
