// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// This package defines context keys and getter/setter functions for values that are
// typically set by middleware or event consumers but consumed by services. By keeping
// this package free of net/http dependencies, services can import only what they need.
//
// Usage in services (read values):
//
//	correlationID := requestcontext.CorrelationID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware and consumers (set values):
//
//	ctx = requestcontext.WithCorrelationID(ctx, id)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "vitaex/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	subjectIDKey     struct{}
	correlationIDKey struct{}
	actorKey         struct{}
	requestTimeKey   struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeySubjectID     = subjectIDKey{}
	ContextKeyCorrelationID = correlationIDKey{}
	ContextKeyActor         = actorKey{}
	ContextKeyRequestTime   = requestTimeKey{}
)

// SubjectID retrieves the subject id from the context.
// Returns the zero value if not set.
func SubjectID(ctx context.Context) id.SubjectID {
	if s, ok := ctx.Value(ContextKeySubjectID).(id.SubjectID); ok {
		return s
	}
	return ""
}

// WithSubjectID injects a subject id into the context.
func WithSubjectID(ctx context.Context, subject id.SubjectID) context.Context {
	return context.WithValue(ctx, ContextKeySubjectID, subject)
}

// CorrelationID retrieves the correlation id threading the current run.
// Returns the zero value (nil UUID) if not set.
func CorrelationID(ctx context.Context) id.CorrelationID {
	if c, ok := ctx.Value(ContextKeyCorrelationID).(id.CorrelationID); ok {
		return c
	}
	return id.CorrelationID{}
}

// WithCorrelationID injects a correlation id into the context.
func WithCorrelationID(ctx context.Context, correlationID id.CorrelationID) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, correlationID)
}

// Actor retrieves the acting component or reviewer identity ("orchestrator",
// an agent id, or a human reviewer id). Defaults to "system".
func Actor(ctx context.Context) string {
	if a, ok := ctx.Value(ContextKeyActor).(string); ok && a != "" {
		return a
	}
	return "system"
}

// WithActor injects an actor identity into the context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that don't run the full HTTP middleware chain
//   - Consumers that need consistent time within one delivery
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
