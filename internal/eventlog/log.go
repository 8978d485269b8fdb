// Package eventlog abstracts the durable publish/subscribe medium the pipeline
// runs on. Delivery is at-least-once: a handler error means no commit and a
// redelivery, so consumers must be idempotent. Within one topic, events for
// one partition key arrive in publish order; across keys and topics no order
// is guaranteed.
package eventlog

import (
	"context"

	"vitaex/internal/event"
)

// Handler processes one delivered event. Returning an error signals the log to
// redeliver; returning nil commits.
type Handler func(ctx context.Context, ev event.Event) error

// Log is the publish/subscribe contract shared by the Kafka and in-process
// implementations.
type Log interface {
	// Publish appends ev to its topic, keyed by ev.Key().
	Publish(ctx context.Context, ev event.Event) error

	// Subscribe consumes the given topics as the named consumer group,
	// invoking fn per event. It blocks until ctx is cancelled.
	Subscribe(ctx context.Context, group string, topics []string, fn Handler) error

	// Health reports whether the log is reachable.
	Health(ctx context.Context) error

	Close() error
}
