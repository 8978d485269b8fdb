// Package config centralizes every deployment tunable so main stays lean and
// nothing hard-codes retry caps or backoff curves.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures the full service configuration, read once at startup.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string

	// KafkaBrokers is the bootstrap broker list; empty means the in-process
	// event log (single-node and test deployments).
	KafkaBrokers []string

	// ConsumerGroup names the consumer group all components of this
	// deployment share.
	ConsumerGroup string

	// PostgresDSN enables the postgres stores when set; empty means the
	// in-memory stores.
	PostgresDSN string

	// RedisURL enables the redis consent cache and processing-claim store
	// when set.
	RedisURL string

	// RetryMaxAttempts caps attempts per stage before a run is failed.
	RetryMaxAttempts int

	// RetryBackoffBase is the first retry delay; doubled per attempt up to
	// RetryBackoffCap.
	RetryBackoffBase time.Duration
	RetryBackoffCap  time.Duration

	// HandleTimeout bounds one agent attempt, including external calls.
	HandleTimeout time.Duration

	// JoinTimeout abandons a run whose fan-in never completes.
	JoinTimeout time.Duration

	// ReviewExpiry abandons a compliance-blocked run that no practitioner
	// resolves in time. Zero means blocked runs wait indefinitely.
	ReviewExpiry time.Duration

	// ConsentCacheTTL bounds how stale a cached consent decision may be.
	// Revocations write through, so this only delays repeated allows.
	ConsentCacheTTL time.Duration

	// ReviewersRequired is how many practitioner approvals release a
	// blocked protocol.
	ReviewersRequired int
}

// FromEnv builds a Config from VITAEX_* environment variables with documented
// defaults.
func FromEnv() Config {
	return Config{
		Addr:              envString("VITAEX_ADDR", ":8080"),
		KafkaBrokers:      envList("VITAEX_KAFKA_BROKERS"),
		ConsumerGroup:     envString("VITAEX_CONSUMER_GROUP", "vitaex-agents"),
		PostgresDSN:       os.Getenv("VITAEX_POSTGRES_DSN"),
		RedisURL:          os.Getenv("VITAEX_REDIS_URL"),
		RetryMaxAttempts:  envInt("VITAEX_RETRY_MAX_ATTEMPTS", 3),
		RetryBackoffBase:  envDuration("VITAEX_RETRY_BACKOFF_BASE", 500*time.Millisecond),
		RetryBackoffCap:   envDuration("VITAEX_RETRY_BACKOFF_CAP", 30*time.Second),
		HandleTimeout:     envDuration("VITAEX_HANDLE_TIMEOUT", 30*time.Second),
		JoinTimeout:       envDuration("VITAEX_JOIN_TIMEOUT", 10*time.Minute),
		ReviewExpiry:      envDuration("VITAEX_REVIEW_EXPIRY", 0),
		ConsentCacheTTL:   envDuration("VITAEX_CONSENT_CACHE_TTL", 2*time.Second),
		ReviewersRequired: envInt("VITAEX_REVIEWERS_REQUIRED", 1),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return fallback
}
