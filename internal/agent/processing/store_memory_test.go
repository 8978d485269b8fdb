package processing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "vitaex/pkg/domain"
	"vitaex/pkg/platform/sentinel"
)

func TestInMemoryStore_ClaimLifecycle(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	eventID := id.NewEventID()

	rec, err := store.Claim(ctx, "twin", eventID)
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, rec.Outcome)
	assert.Equal(t, 1, rec.Attempts)

	// Reclaim of a pending record is a retry, not a duplicate.
	rec, err = store.Claim(ctx, "twin", eventID)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Attempts)

	require.NoError(t, store.Complete(ctx, "twin", eventID, OutcomeSucceeded, []byte(`[]`)))

	rec, err = store.Claim(ctx, "twin", eventID)
	require.ErrorIs(t, err, sentinel.ErrDuplicate)
	assert.Equal(t, OutcomeSucceeded, rec.Outcome)
	assert.Equal(t, []byte(`[]`), rec.Result)
}

func TestInMemoryStore_ClaimIsScopedPerAgent(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	eventID := id.NewEventID()

	_, err := store.Claim(ctx, "twin", eventID)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "twin", eventID, OutcomeSucceeded, nil))

	rec, err := store.Claim(ctx, "simulation", eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts)
}

func TestInMemoryStore_CompleteRequiresPendingClaim(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	eventID := id.NewEventID()

	err := store.Complete(ctx, "twin", eventID, OutcomeSucceeded, nil)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = store.Claim(ctx, "twin", eventID)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "twin", eventID, OutcomeFailed, nil))

	err = store.Complete(ctx, "twin", eventID, OutcomeSucceeded, nil)
	require.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestInMemoryStore_ConcurrentClaimsAfterCompletionAllDuplicate(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	eventID := id.NewEventID()

	_, err := store.Claim(ctx, "twin", eventID)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "twin", eventID, OutcomeSucceeded, []byte(`[]`)))

	var duplicates atomic.Int64
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Claim(ctx, "twin", eventID); err == sentinel.ErrDuplicate {
				duplicates.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(32), duplicates.Load())
}
