package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the Redis-backed Store implementation, grounded on the
// teacher's CacheService wrapper around *redis.Client — extended with
// CAS, pub/sub and sorted-set queue operations the core needs.
type RedisStore struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedisStore creates a Redis-backed statestore.Store.
func NewRedisStore(client *redis.Client, logger *log.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Version uint64          `json:"version"`
}

func (r *RedisStore) Get(ctx context.Context, key string) (Value, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return Value{}, ErrNotFound
	}
	if err != nil {
		return Value{}, fmt.Errorf("statestore get %s: %w", key, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Value{}, fmt.Errorf("statestore decode %s: %w", key, err)
	}
	return Value{Data: env.Data, Version: env.Version}, nil
}

// casSetScript atomically compares the stored envelope's version against
// ARGV[1] (expected) and, if it matches (or the key is absent and
// expected is 0), writes ARGV[2], the new envelope, whose version is
// expected+1.
var casSetScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
local expected = tonumber(ARGV[1])
if raw then
  local env = cjson.decode(raw)
  if env.version ~= expected then
    return 0
  end
end
if (not raw) and expected ~= 0 then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2])
return 1
`)

func (r *RedisStore) CASSet(ctx context.Context, key string, expectedVersion uint64, data []byte) error {
	env := envelope{Data: data, Version: expectedVersion + 1}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("statestore encode %s: %w", key, err)
	}
	res, err := casSetScript.Run(ctx, r.client, []string{key}, expectedVersion, string(payload)).Int()
	if err != nil {
		return fmt.Errorf("statestore cas_set %s: %w", key, err)
	}
	if res == 0 {
		return ErrConflict
	}
	return nil
}

func (r *RedisStore) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := r.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("statestore publish %s: %w", topic, err)
	}
	return nil
}

func (r *RedisStore) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	pubsub := r.client.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("statestore subscribe %s: %w", topic, err)
	}
	sub := &redisSubscription{pubsub: pubsub, out: make(chan Event, 32)}
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan Event
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	ch := s.pubsub.Channel()
	for msg := range ch {
		s.out <- Event{Topic: msg.Channel, Payload: []byte(msg.Payload)}
	}
}

func (s *redisSubscription) Events() <-chan Event { return s.out }
func (s *redisSubscription) Close() error         { return s.pubsub.Close() }

func (r *RedisStore) ZAdd(ctx context.Context, queueKey string, score float64, member string) error {
	err := r.client.ZAdd(ctx, queueKey, redis.Z{Score: score, Member: member}).Err()
	if err != nil {
		return fmt.Errorf("statestore zadd %s: %w", queueKey, err)
	}
	return nil
}

func (r *RedisStore) ZRem(ctx context.Context, queueKey string, member string) error {
	if err := r.client.ZRem(ctx, queueKey, member).Err(); err != nil {
		return fmt.Errorf("statestore zrem %s: %w", queueKey, err)
	}
	return nil
}

// zPeekScript returns the lowest-score members (up to ARGV[1]) with their
// scores, without removing them. A true multi-candidate atomic predicate
// pop isn't expressible without shipping the predicate itself into Lua,
// so ZPopMinIf instead peeks the 50 lowest-score members, evaluates the
// predicate locally in ascending-score order, and ZRems the first one
// accepted. Rejected members are never removed; members beyond the first
// 50 are not considered.
var zPeekScript = redis.NewScript(`
return redis.call('ZRANGE', KEYS[1], 0, ARGV[1] - 1, 'WITHSCORES')
`)

func (r *RedisStore) ZPopMinIf(ctx context.Context, queueKey string, pred Predicate) (ZMember, error) {
	const scanWidth = 50
	res, err := zPeekScript.Run(ctx, r.client, []string{queueKey}, scanWidth).StringSlice()
	if err != nil {
		return ZMember{}, fmt.Errorf("statestore zpop_min_if peek %s: %w", queueKey, err)
	}
	for i := 0; i+1 < len(res); i += 2 {
		member := res[i]
		var score float64
		if _, err := fmt.Sscanf(res[i+1], "%g", &score); err != nil {
			continue
		}
		if !pred(member, score) {
			continue
		}
		removed, err := r.client.ZRem(ctx, queueKey, member).Result()
		if err != nil {
			return ZMember{}, fmt.Errorf("statestore zpop_min_if rem %s: %w", queueKey, err)
		}
		if removed == 0 {
			continue // lost the race to a concurrent popper, try next candidate
		}
		return ZMember{Score: score, Member: member}, nil
	}
	return ZMember{}, ErrNotFound
}

func (r *RedisStore) ZCard(ctx context.Context, queueKey string) (int64, error) {
	n, err := r.client.ZCard(ctx, queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("statestore zcard %s: %w", queueKey, err)
	}
	return n, nil
}

func (r *RedisStore) SAdd(ctx context.Context, setKey string, member string) error {
	if err := r.client.SAdd(ctx, setKey, member).Err(); err != nil {
		return fmt.Errorf("statestore sadd %s: %w", setKey, err)
	}
	return nil
}

func (r *RedisStore) SRem(ctx context.Context, setKey string, member string) error {
	if err := r.client.SRem(ctx, setKey, member).Err(); err != nil {
		return fmt.Errorf("statestore srem %s: %w", setKey, err)
	}
	return nil
}

func (r *RedisStore) SMembers(ctx context.Context, setKey string) ([]string, error) {
	members, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("statestore smembers %s: %w", setKey, err)
	}
	return members, nil
}
