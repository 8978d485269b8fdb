//go:build integration

package processing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "vitaex/pkg/domain"
	"vitaex/pkg/platform/sentinel"
	"vitaex/pkg/testutil/containers"
)

func TestRedisStore_ClaimLifecycle(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	defer rc.Close(t)

	store := NewRedisStore(rc.Client, time.Hour)
	ctx := context.Background()
	eventID := id.NewEventID()

	rec, err := store.Claim(ctx, "twin", eventID)
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, rec.Outcome)
	assert.Equal(t, 1, rec.Attempts)

	rec, err = store.Claim(ctx, "twin", eventID)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Attempts)

	require.NoError(t, store.Complete(ctx, "twin", eventID, OutcomeSucceeded, []byte(`[{"topic":"twin.update.completed"}]`)))

	rec, err = store.Claim(ctx, "twin", eventID)
	require.ErrorIs(t, err, sentinel.ErrDuplicate)
	assert.Equal(t, OutcomeSucceeded, rec.Outcome)
	assert.Equal(t, []byte(`[{"topic":"twin.update.completed"}]`), rec.Result)
	assert.False(t, rec.ProcessedAt.IsZero())
}

func TestRedisStore_ConcurrentClaimsSingleFirstAttempt(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	defer rc.Close(t)

	store := NewRedisStore(rc.Client, time.Hour)
	ctx := context.Background()
	eventID := id.NewEventID()

	var firstAttempts atomic.Int64
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := store.Claim(ctx, "twin", eventID)
			require.NoError(t, err)
			if rec.Attempts == 1 {
				firstAttempts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), firstAttempts.Load())
}
