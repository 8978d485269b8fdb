// Package testutil holds the shared test vocabulary: scenario-style
// subtest wrappers and the bounded wait the pipeline tests use to observe
// asynchronous event delivery.
package testutil

import (
	"testing"
	"time"
)

// Given, When, and Then wrap t.Run so pipeline scenarios (grant consent,
// publish a signal, observe the run) read as prose without a BDD framework.
func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Given "+desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("When "+desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Then "+desc, fn)
}

// Eventually polls cond until it returns true or the deadline passes. Agent
// completions and run transitions are asynchronous even on the in-memory
// event log, so assertions about them need a bounded wait rather than a
// fixed sleep.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
