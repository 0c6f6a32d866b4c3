package orderevents

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/segmentio/kafka-go"
)

const EventOrderPersisted = "order.persisted"

type OrderPersisted struct {
	EventID     string       `json:"event_id"`
	Type        string       `json:"type"`
	OrderID     snowflake.ID `json:"order_id"`
	UserID      snowflake.ID `json:"user_id"`
	VoucherID   snowflake.ID `json:"voucher_id"`
	PersistedAt time.Time    `json:"persisted_at"`
}

// Publisher announces orders that reached durable storage.
type Publisher interface {
	PublishOrderPersisted(ctx context.Context, event OrderPersisted) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) PublishOrderPersisted(context.Context, OrderPersisted) error { return nil }

func (NopPublisher) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}, nil
}

func (p *KafkaPublisher) PublishOrderPersisted(ctx context.Context, event OrderPersisted) error {
	event.Type = EventOrderPersisted
	if event.EventID == "" {
		event.EventID = ulid.Make().String()
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventOrderPersisted)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
