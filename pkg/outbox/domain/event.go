package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type OutboxEvent struct {
	Id            int64           `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	Headers       json.RawMessage `db:"headers"`
	CreatedAt     time.Time       `db:"created_at"`
	PublishedAt   *time.Time      `db:"published_at"`
	Attempts      int64           `db:"attempts"`
	LastError     *string         `db:"last_error"`
	Topic         string          `db:"topic"`
}

// Envelope is the wire shape of every published event. EventID is filled in by the publisher.
type Envelope struct {
	Event   string          `json:"event"`
	EventID int64           `json:"event_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

func NewEvent(topic, aggregateType, aggregateID, eventType string, payload any) (*OutboxEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	envelopeBytes, err := json.Marshal(Envelope{
		Event:   eventType,
		Payload: payloadBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}

	return &OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       envelopeBytes,
		Topic:         topic,
	}, nil
}
