package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kirinyoku/airbook-go/internal/domain"
)

const (
	TypeOrderCreated      = "order.created"
	TypeOrderPaid         = "order.paid"
	TypeOrderCancelled    = "order.cancelled"
	TypeOrderSeatSelected = "order.seat_selected"
	TypeOrderCheckedIn    = "order.checked_in"
	TypeOrderCompleted    = "order.completed"
)

// OrderEvent is published after an order change commits.
type OrderEvent struct {
	Type          string               `json:"type"`
	OrderID       int64                `json:"order_id"`
	OrderNumber   string               `json:"order_number"`
	UserID        int64                `json:"user_id"`
	FlightID      int64                `json:"flight_id"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	TripStatus    domain.TripStatus    `json:"trip_status"`
	TotalCents    int64                `json:"total_cents"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

func NewOrderEvent(typ string, o *domain.Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:          typ,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		FlightID:      o.FlightID,
		PaymentStatus: o.PaymentStatus,
		TripStatus:    o.TripStatus,
		TotalCents:    o.TotalCents,
		OccurredAt:    at.UTC(),
	}
}

type Producer struct {
	writer *kafka.Writer
}

// NewProducer writes to topic, keyed by order number so every event of one
// order lands on the same partition.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *Producer) PublishOrderEvent(ctx context.Context, ev OrderEvent) error {
	const op = "events.Producer.PublishOrderEvent"

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.OrderNumber),
		Value: data,
		Time:  ev.OccurredAt,
	}); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, groupID, topic string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume reads order events until ctx is done or handler fails. Messages
// that do not decode are handed to onBadMessage and skipped.
func (c *Consumer) Consume(
	ctx context.Context,
	handler func(context.Context, OrderEvent) error,
	onBadMessage func(kafka.Message, error),
) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			return err
		}

		ev, err := DecodeOrderEvent(msg.Value)
		if err != nil {
			if onBadMessage != nil {
				onBadMessage(msg, err)
			}
			continue
		}

		if err := handler(ctx, ev); err != nil {
			return err
		}
	}
}

func DecodeOrderEvent(data []byte) (OrderEvent, error) {
	var ev OrderEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return OrderEvent{}, err
	}
	if ev.Type == "" || ev.OrderID == 0 {
		return OrderEvent{}, fmt.Errorf("order event missing type or order id")
	}
	return ev, nil
}
