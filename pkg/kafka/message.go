package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// Event types published by the reservation ledger.
const (
	EventReservationCreated     = "reservation.created"
	EventReservationCancelled   = "reservation.cancelled"
	EventReservationRescheduled = "reservation.rescheduled"
)

// Envelope wraps every published event with routing metadata so
// consumers can dispatch without inspecting the payload.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// MessageBuilder assembles a kafka-go message for one event. The key
// should be a stable entity identifier so all events for the same
// entity land on one partition, preserving their order.
type MessageBuilder struct {
	topic     string
	key       string
	eventType string
	payload   any
	headers   []kafkago.Header
}

func NewMessage(topic string) *MessageBuilder {
	return &MessageBuilder{topic: topic}
}

func (b *MessageBuilder) WithKey(key string) *MessageBuilder {
	b.key = key
	return b
}

func (b *MessageBuilder) WithEventType(eventType string) *MessageBuilder {
	b.eventType = eventType
	return b
}

func (b *MessageBuilder) WithPayload(payload any) *MessageBuilder {
	b.payload = payload
	return b
}

func (b *MessageBuilder) WithHeader(key, value string) *MessageBuilder {
	b.headers = append(b.headers, kafkago.Header{Key: key, Value: []byte(value)})
	return b
}

func (b *MessageBuilder) Build() (kafkago.Message, error) {
	if b.topic == "" {
		return kafkago.Message{}, ErrEmptyTopic
	}

	rawPayload, err := json.Marshal(b.payload)
	if err != nil {
		return kafkago.Message{}, err
	}

	envelope := Envelope{
		EventID:    uuid.NewString(),
		EventType:  b.eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    rawPayload,
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		return kafkago.Message{}, err
	}

	headers := append(b.headers, kafkago.Header{
		Key:   "event-type",
		Value: []byte(b.eventType),
	})

	return kafkago.Message{
		Topic:   b.topic,
		Key:     []byte(b.key),
		Value:   value,
		Headers: headers,
	}, nil
}
