package buffer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisFactory creates Redis-backed turn buffers. Each turn's staged
// fields live in one hash under prefix+turnID with a TTL, so a turn that
// is abandoned mid-flight (crash, dropped connection) expires on its own
// instead of leaking into a later turn.
type RedisFactory struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures a RedisFactory.
type Option func(*RedisFactory)

// WithPrefix sets the key prefix for turn hashes.
func WithPrefix(prefix string) Option {
	return func(f *RedisFactory) { f.prefix = prefix }
}

// WithTTL sets the expiration for abandoned turn buffers.
func WithTTL(ttl time.Duration) Option {
	return func(f *RedisFactory) { f.ttl = ttl }
}

// NewRedisFactory connects a factory to Redis at addr.
func NewRedisFactory(addr, password string, dbNum int, opts ...Option) *RedisFactory {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       dbNum,
	})
	return newRedisFactory(client, opts...)
}

// NewRedisFactoryFromClient wraps an existing client, e.g. for tests.
func NewRedisFactoryFromClient(client *backend.Client, opts ...Option) *RedisFactory {
	return newRedisFactory(client, opts...)
}

func newRedisFactory(client *backend.Client, opts ...Option) *RedisFactory {
	f := &RedisFactory{
		client: client,
		prefix: "toolgate:turn:",
		ttl:    15 * time.Minute,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *RedisFactory) ForTurn(turnID string) TurnBuffer {
	return &redisBuffer{
		client: f.client,
		key:    f.prefix + turnID,
		ttl:    f.ttl,
	}
}

type redisBuffer struct {
	client *backend.Client
	key    string
	ttl    time.Duration
}

func (b *redisBuffer) Put(ctx context.Context, key string, value any) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("marshal staged value: %w", err)
	}

	pipe := b.client.TxPipeline()
	exists := pipe.HExists(ctx, b.key, key)
	pipe.HSet(ctx, b.key, key, data)
	pipe.Expire(ctx, b.key, b.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("stage to redis: %w", err)
	}
	return exists.Val(), nil
}

// Append concatenates onto the list staged under key. Read-modify-write is
// safe here: a turn's promotions run from one goroutine and every turn has
// its own hash.
func (b *redisBuffer) Append(ctx context.Context, key string, values []any) error {
	raw, err := b.client.HGet(ctx, b.key, key).Result()
	if err != nil && err != backend.Nil {
		return fmt.Errorf("read staged list: %w", err)
	}
	var existing []any
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &existing); err != nil {
			return fmt.Errorf("decode staged list %q: %w", key, err)
		}
	}

	data, err := json.Marshal(append(existing, values...))
	if err != nil {
		return fmt.Errorf("marshal staged list: %w", err)
	}
	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, b.key, key, data)
	pipe.Expire(ctx, b.key, b.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stage list to redis: %w", err)
	}
	return nil
}

func (b *redisBuffer) Snapshot(ctx context.Context) (map[string]any, error) {
	fields, err := b.client.HGetAll(ctx, b.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read turn buffer: %w", err)
	}
	out := make(map[string]any, len(fields))
	for k, raw := range fields {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode staged value %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func (b *redisBuffer) Clear(ctx context.Context) error {
	if err := b.client.Del(ctx, b.key).Err(); err != nil {
		return fmt.Errorf("clear turn buffer: %w", err)
	}
	return nil
}
