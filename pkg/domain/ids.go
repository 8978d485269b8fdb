package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "vitaex/pkg/domain-errors"
)

// SubjectID identifies the person whose data is being processed. Subject ids
// arrive from external connectors and are opaque strings, not UUIDs; they are
// also the partition key for event ordering.
type SubjectID string

// ParseSubjectID constructs a SubjectID from external input.
//
// Usage: call from handlers/adapters when parsing requests.
func ParseSubjectID(s string) (SubjectID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject id cannot be empty")
	}
	return SubjectID(s), nil
}

func (s SubjectID) IsZero() bool { return s == "" }

func (s SubjectID) String() string { return string(s) }

// CorrelationID threads all events of one logical run across topics. It is the
// run id of the task run the orchestrator owns.
type CorrelationID uuid.UUID

// NewCorrelationID returns a fresh random correlation id.
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.New())
}

// ParseCorrelationID constructs a CorrelationID from external input.
func ParseCorrelationID(s string) (CorrelationID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return CorrelationID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid correlation id")
	}
	return CorrelationID(u), nil
}

func (c CorrelationID) IsNil() bool { return uuid.UUID(c) == uuid.Nil }

func (c CorrelationID) String() string { return uuid.UUID(c).String() }

// MarshalText renders the canonical UUID form so JSON and map keys stay
// human-readable.
func (c CorrelationID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *CorrelationID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*c = CorrelationID(u)
	return nil
}

// EventID uniquely identifies one event and is the default idempotency key.
type EventID uuid.UUID

func NewEventID() EventID { return EventID(uuid.New()) }

// ParseEventID constructs an EventID from external input.
func ParseEventID(s string) (EventID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return EventID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid event id")
	}
	return EventID(u), nil
}

func (e EventID) IsNil() bool { return uuid.UUID(e) == uuid.Nil }

func (e EventID) String() string { return uuid.UUID(e).String() }

func (e EventID) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *EventID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*e = EventID(u)
	return nil
}
