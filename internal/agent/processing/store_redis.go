package processing

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	id "vitaex/pkg/domain"
	"vitaex/pkg/platform/sentinel"
)

// claimScript performs the claim atomically on the redis side. Completed
// records short-circuit; pending or absent records get their attempt count
// bumped under a single script execution so two consumers racing the same
// delivery cannot both see attempt 1.
var claimScript = goredis.NewScript(`
local outcome = redis.call('HGET', KEYS[1], 'outcome')
if outcome == 'succeeded' or outcome == 'failed' then
  return {outcome, redis.call('HGET', KEYS[1], 'result'), redis.call('HGET', KEYS[1], 'attempts'), redis.call('HGET', KEYS[1], 'processed_at')}
end
local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
redis.call('HSET', KEYS[1], 'outcome', 'pending')
if tonumber(ARGV[1]) > 0 then
  redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return {'pending', '', attempts, ''}
`)

// RedisStore is the shared-ledger variant for multi-process deployments.
// Records expire after retention so the keyspace stays bounded; retention
// must exceed the event log's redelivery horizon.
type RedisStore struct {
	client    *goredis.Client
	retention time.Duration
}

func NewRedisStore(client *goredis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, retention: retention}
}

func (s *RedisStore) key(agentID string, eventID id.EventID) string {
	return "vitaex:processing:" + agentID + ":" + eventID.String()
}

func (s *RedisStore) Claim(ctx context.Context, agentID string, eventID id.EventID) (Record, error) {
	retentionSec := int64(s.retention / time.Second)
	raw, err := claimScript.Run(ctx, s.client, []string{s.key(agentID, eventID)}, retentionSec).Slice()
	if err != nil {
		return Record{}, fmt.Errorf("claim processing record: %w", err)
	}
	if len(raw) != 4 {
		return Record{}, fmt.Errorf("claim processing record: unexpected reply shape")
	}

	rec := Record{AgentID: agentID, EventID: eventID}
	rec.Outcome = Outcome(toString(raw[0]))
	rec.Attempts = int(toInt64(raw[2]))
	if encoded := toString(raw[1]); encoded != "" {
		rec.Result, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return Record{}, fmt.Errorf("decode processing result: %w", err)
		}
	}
	if ts := toString(raw[3]); ts != "" {
		rec.ProcessedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}

	if rec.Outcome != OutcomePending {
		return rec, sentinel.ErrDuplicate
	}
	return rec, nil
}

func (s *RedisStore) Complete(ctx context.Context, agentID string, eventID id.EventID, outcome Outcome, result []byte) error {
	fields := map[string]any{
		"outcome":      string(outcome),
		"result":       base64.StdEncoding.EncodeToString(result),
		"processed_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.client.HSet(ctx, s.key(agentID, eventID), fields).Err(); err != nil {
		return fmt.Errorf("complete processing record: %w", err)
	}
	return nil
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		var out int64
		fmt.Sscan(n, &out)
		return out
	default:
		return 0
	}
}
