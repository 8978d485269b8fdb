package consent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "vitaex/pkg/domain"
)

func TestMemoryCache_ExpiredEntriesAreEvictedOnGet(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(10 * time.Millisecond).(*memoryCache)

	cache.Set(ctx, "subj-1", id.PurposePersonalization, "protocols", Decision{Allow: true})
	_, hit := cache.Get(ctx, "subj-1", id.PurposePersonalization, "protocols")
	require.True(t, hit)

	time.Sleep(20 * time.Millisecond)
	_, hit = cache.Get(ctx, "subj-1", id.PurposePersonalization, "protocols")
	assert.False(t, hit)

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Empty(t, cache.entries)
}

func TestMemoryCache_SetSweepsExpiredEntriesPastThreshold(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(time.Nanosecond).(*memoryCache)

	for i := 0; i < sweepThreshold; i++ {
		cache.Set(ctx, "subj-sweep", id.PurposeDataProcessing, fmt.Sprintf("scope-%d", i), Decision{Allow: true})
	}
	time.Sleep(time.Millisecond)
	cache.Set(ctx, "subj-final", id.PurposeDataProcessing, "wearables", Decision{Allow: true})

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Less(t, len(cache.entries), sweepThreshold)
}
