// Package kv is a thin wrapper over Redis exposing exactly the atomic
// primitives the coordination core's other components need: SET NX,
// EXPIRE, hash fields, list push/trim/range, and pub/sub. Modeled on the teacher's
// internal/dotaapi.Client shape (a small struct holding one external client,
// context-scoped methods, wrapped errors) rather than leaking *redis.Client
// itself into callers.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps a Redis client with the primitive set spec §5 requires.
type Store struct {
	client *redis.Client
}

// New connects to addr/db. The connection is lazy (go-redis dials on first
// use) so this never blocks or fails at construction time.
func New(addr string, db int) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   db,
		}),
	}
}

// Ping verifies connectivity, used by the admin /healthz endpoint (C13).
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("kv ping: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// SetNX performs an atomic compare-and-set: the key is set to value only if
// absent, with the given TTL. Returns true if this call won the set.
func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("kv setnx %s: %w", key, err)
	}
	return ok, nil
}

// Get returns the string value at key, or ("", false, nil) if absent.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return v, true, nil
}

// Set overwrites key unconditionally with the given TTL (0 = no expiry).
// Used for session/ownership records a holder refreshes on its own key.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// Expire refreshes a key's TTL without touching its value, used by
// heartbeat refreshes on session and ownership records.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("kv expire %s: %w", key, err)
	}
	return nil
}

// Del removes one or more keys, idempotently.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("kv del: %w", err)
	}
	return nil
}

// Exists reports whether key is currently set.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("kv exists %s: %w", key, err)
	}
	return n > 0, nil
}

// HSet sets a single hash field. No component in this repository calls it.
func (s *Store) HSet(ctx context.Context, key, field, value string) error {
	if err := s.client.HSet(ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("kv hset %s.%s: %w", key, field, err)
	}
	return nil
}

// HGetAll returns every field of a hash record.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("kv hgetall %s: %w", key, err)
	}
	return m, nil
}

// RPush appends value to the tail of a list, used by the outbox (C4) to
// enqueue a pending event.
func (s *Store) RPush(ctx context.Context, key string, value string) error {
	if err := s.client.RPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("kv rpush %s: %w", key, err)
	}
	return nil
}

// LTrimToCap keeps only the last maxLen elements of a list, dropping the
// oldest entries first — the outbox's bounded-FIFO-with-drop-oldest rule.
func (s *Store) LTrimToCap(ctx context.Context, key string, maxLen int64) error {
	if err := s.client.LTrim(ctx, key, -maxLen, -1).Err(); err != nil {
		return fmt.Errorf("kv ltrim %s: %w", key, err)
	}
	return nil
}

// LRange returns a snapshot of an entire list without draining it.
func (s *Store) LRange(ctx context.Context, key string) ([]string, error) {
	vals, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("kv lrange %s: %w", key, err)
	}
	return vals, nil
}

// Publish broadcasts a message on a pub/sub channel. No component in this
// repository calls it.
func (s *Store) Publish(ctx context.Context, channel, message string) error {
	if err := s.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("kv publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel that receives every message published to
// channel until the returned close func is called.
func (s *Store) Subscribe(ctx context.Context, channel string) (<-chan *redis.Message, func()) {
	pubsub := s.client.Subscribe(ctx, channel)
	return pubsub.Channel(), func() { pubsub.Close() }
}
