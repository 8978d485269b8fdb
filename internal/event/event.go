// Package event defines the immutable envelope every message on the event log
// carries, and the topic catalogue the pipeline is built from.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	id "vitaex/pkg/domain"
)

// SchemaVersion is stamped on every event this build produces. Consumers
// tolerate older payloads; they never mutate an event to upgrade it.
const SchemaVersion = 1

// Outcome classifies a completion event. Request events carry no outcome.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Event is the immutable record exchanged over the event log. ID is the
// deduplication key; CorrelationID threads one logical run across topics;
// SubjectID is the partition key, so all events for one subject on one topic
// reach a consumer group in publish order.
type Event struct {
	ID            id.EventID       `json:"event_id"`
	Topic         string           `json:"topic"`
	Type          string           `json:"type"`
	SubjectID     id.SubjectID     `json:"subject_id,omitempty"`
	CorrelationID id.CorrelationID `json:"correlation_id"`
	OccurredAt    time.Time        `json:"occurred_at"`
	SchemaVersion int              `json:"schema_version"`
	Outcome       Outcome          `json:"outcome,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Payload       json.RawMessage  `json:"payload,omitempty"`
}

// New builds a request event with a fresh event id.
func New(topic, eventType string, subject id.SubjectID, correlationID id.CorrelationID, payload any) (Event, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:            id.NewEventID(),
		Topic:         topic,
		Type:          eventType,
		SubjectID:     subject,
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Payload:       raw,
	}, nil
}

// NewCompletion builds a completion event for cause, preserving subject and
// correlation so the orchestrator can advance the right run.
func NewCompletion(topic, eventType string, cause Event, outcome Outcome, reason string, payload any) (Event, error) {
	ev, err := New(topic, eventType, cause.SubjectID, cause.CorrelationID, payload)
	if err != nil {
		return Event{}, err
	}
	ev.Outcome = outcome
	ev.Reason = reason
	return ev, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return raw, nil
}

// Key returns the partition key. Events without a subject (e.g. research
// imports) partition by correlation id so one run still stays ordered.
func (e Event) Key() string {
	if !e.SubjectID.IsZero() {
		return e.SubjectID.String()
	}
	return e.CorrelationID.String()
}

// Encode serializes the event for the wire.
func (e Event) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return b, nil
}

// Decode deserializes an event from the wire.
func Decode(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}

// DecodePayload unmarshals the event payload into v.
func (e Event) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.ID)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode payload of %s: %w", e.ID, err)
	}
	return nil
}
