// Package agent hosts the execution runtime shared by every agent in the
// pipeline. Agents never call each other: each one consumes request events,
// does its work, and emits completion events. The runtime around them owns
// idempotency, retries, timeouts, auditing and metrics, so handler code stays
// pure domain logic.
package agent

import (
	"context"
	"errors"

	"vitaex/internal/event"
)

// Route binds one consumed request topic to the completion topic the agent
// answers on. Emit may be empty for agents that terminate a flow.
type Route struct {
	Consume string
	Emit    string
}

// Result carries the events an agent wants published. The runtime persists
// the result before publishing, so a redelivered request replays these exact
// events instead of re-running the handler.
type Result struct {
	Events []event.Event
}

// Handler is one agent's domain logic. Handle must be side-effect safe under
// retry: the runtime reruns it on transient failure until the attempt cap.
type Handler interface {
	ID() string
	Routes() []Route
	Handle(ctx context.Context, ev event.Event) (Result, error)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying: malformed payloads, business
// rule rejections, anything a rerun cannot fix. The runtime fails the stage
// immediately instead of burning the attempt budget.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
