package consent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	id "vitaex/pkg/domain"
)

// Cache bounds how often repeated consent checks hit the ledger. Only the
// service controls what gets cached; Invalidate is called on every grant and
// revocation so a stale allow never outlives a write by more than the TTL.
type Cache interface {
	Get(ctx context.Context, subject id.SubjectID, purpose id.ConsentPurpose, scopeKey string) (Decision, bool)
	Set(ctx context.Context, subject id.SubjectID, purpose id.ConsentPurpose, scopeKey string, d Decision)
	Invalidate(ctx context.Context, subject id.SubjectID, purpose id.ConsentPurpose)
}

// ScopeKey canonicalizes a required scope for cache keying.
func ScopeKey(scope id.Scope) string {
	return strings.Join(scope.Strings(), ",")
}

// memoryCache is a TTL map cache for single-process deployments.
type memoryCache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	decision  Decision
	expiresAt time.Time
}

// NewMemoryCache builds an in-process cache with the given TTL.
func NewMemoryCache(ttl time.Duration) Cache {
	return &memoryCache{ttl: ttl, entries: make(map[string]memoryEntry)}
}

func cacheKey(subject id.SubjectID, purpose id.ConsentPurpose, scopeKey string) string {
	return subject.String() + "|" + purpose.String() + "|" + scopeKey
}

func (c *memoryCache) Get(_ context.Context, subject id.SubjectID, purpose id.ConsentPurpose, scopeKey string) (Decision, bool) {
	key := cacheKey(subject, purpose, scopeKey)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Decision{}, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return Decision{}, false
	}
	return e.decision, true
}

// sweepThreshold bounds the map: once the cache holds this many entries,
// every Set first drops the expired ones.
const sweepThreshold = 1024

func (c *memoryCache) Set(_ context.Context, subject id.SubjectID, purpose id.ConsentPurpose, scopeKey string, d Decision) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= sweepThreshold {
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
	c.entries[cacheKey(subject, purpose, scopeKey)] = memoryEntry{decision: d, expiresAt: now.Add(c.ttl)}
}

func (c *memoryCache) Invalidate(_ context.Context, subject id.SubjectID, purpose id.ConsentPurpose) {
	prefix := subject.String() + "|" + purpose.String() + "|"
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// redisCache shares decisions across processes. A per-(subject,purpose)
// version key makes invalidation a single INCR: decision keys embed the
// version, so stale entries simply stop being addressed and expire.
type redisCache struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewRedisCache builds a cache on an existing redis client.
func NewRedisCache(client *goredis.Client, ttl time.Duration) Cache {
	return &redisCache{client: client, ttl: ttl}
}

func (c *redisCache) versionKey(subject id.SubjectID, purpose id.ConsentPurpose) string {
	return "vitaex:consent:ver:" + subject.String() + ":" + purpose.String()
}

func (c *redisCache) decisionKey(subject id.SubjectID, purpose id.ConsentPurpose, scopeKey string, version int64) string {
	return fmt.Sprintf("vitaex:consent:dec:%s:%s:%s:%d", subject, purpose, scopeKey, version)
}

func (c *redisCache) Get(ctx context.Context, subject id.SubjectID, purpose id.ConsentPurpose, scopeKey string) (Decision, bool) {
	version, err := c.client.Get(ctx, c.versionKey(subject, purpose)).Int64()
	if err != nil && err != goredis.Nil {
		return Decision{}, false
	}
	val, err := c.client.Get(ctx, c.decisionKey(subject, purpose, scopeKey, version)).Result()
	if err != nil {
		return Decision{}, false
	}
	if val == "allow" {
		return Decision{Allow: true}, true
	}
	reason, ok := strings.CutPrefix(val, "deny:")
	if !ok {
		return Decision{}, false
	}
	return Decision{Allow: false, Reason: reason}, true
}

func (c *redisCache) Set(ctx context.Context, subject id.SubjectID, purpose id.ConsentPurpose, scopeKey string, d Decision) {
	version, err := c.client.Get(ctx, c.versionKey(subject, purpose)).Int64()
	if err != nil && err != goredis.Nil {
		return
	}
	val := "allow"
	if !d.Allow {
		val = "deny:" + d.Reason
	}
	c.client.Set(ctx, c.decisionKey(subject, purpose, scopeKey, version), val, c.ttl)
}

func (c *redisCache) Invalidate(ctx context.Context, subject id.SubjectID, purpose id.ConsentPurpose) {
	c.client.Incr(ctx, c.versionKey(subject, purpose))
}
