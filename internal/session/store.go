// Package session keeps one dashboard Controller per browser session. State
// lives in a Store between requests; the Manager restores it, runs one event
// to completion, and saves it back.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swarm-handbook/editor/internal/config"
	"github.com/swarm-handbook/editor/internal/dashboard"
	"github.com/swarm-handbook/editor/model"
)

// Store persists controller snapshots by session id.
type Store interface {
	// Get returns the snapshot for id, or a NOT_FOUND error if it does not
	// exist or has expired.
	Get(ctx context.Context, id string) (dashboard.Snapshot, error)

	// Save stores snap under id for ttl.
	Save(ctx context.Context, id string, snap dashboard.Snapshot, ttl time.Duration) error

	// Delete removes id. Deleting an unknown id is a NOT_FOUND error.
	Delete(ctx context.Context, id string) error

	// HealthCheck reports whether the store is reachable.
	HealthCheck(ctx context.Context) error
}

func notFound(id string) error {
	return model.NewNotFoundError(fmt.Sprintf("session %q not found", id))
}

// OpenStore builds the Store selected by cfg. The Redis address is read from
// the environment variable named by cfg.RedisAddrEnv.
func OpenStore(cfg config.SessionsConfig) (Store, error) {
	switch cfg.Store {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		addr := os.Getenv(cfg.RedisAddrEnv)
		if addr == "" {
			return nil, fmt.Errorf("session store: %s is not set", cfg.RedisAddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.RedisDB})
		return NewRedisStore(client), nil
	default:
		return nil, fmt.Errorf("session store: unsupported store %q", cfg.Store)
	}
}

// --- MemoryStore ---

// MemoryStore is an in-memory Store with TTL support. Snapshots are kept
// encoded so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	now     func() time.Time
}

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memEntry),
		now:     time.Now,
	}
}

// Get returns the snapshot for id.
func (s *MemoryStore) Get(_ context.Context, id string) (dashboard.Snapshot, error) {
	s.mu.RLock()
	entry, exists := s.entries[id]
	s.mu.RUnlock()

	if !exists {
		return dashboard.Snapshot{}, notFound(id)
	}
	if s.now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, id)
		s.mu.Unlock()
		return dashboard.Snapshot{}, notFound(id)
	}

	snap, err := dashboard.DecodeSnapshot(entry.data)
	if err != nil {
		return dashboard.Snapshot{}, fmt.Errorf("unmarshal session %q: %w", id, err)
	}
	return snap, nil
}

// Save stores snap with ttl.
func (s *MemoryStore) Save(_ context.Context, id string, snap dashboard.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session %q: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = &memEntry{data: data, expiresAt: s.now().Add(ttl)}
	return nil
}

// Delete removes id.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return notFound(id)
	}
	delete(s.entries, id)
	return nil
}

// HealthCheck always succeeds.
func (s *MemoryStore) HealthCheck(context.Context) error {
	return nil
}

// Len returns the number of entries (including expired ones). For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// --- RedisStore ---

// RedisStore is a Redis-backed Store. Each session is one JSON value under
// "editor:session:{id}" with the session TTL.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Key returns the Redis key for a session id.
func Key(id string) string {
	return "editor:session:" + id
}

// Get returns the snapshot for id.
func (s *RedisStore) Get(ctx context.Context, id string) (dashboard.Snapshot, error) {
	raw, err := s.client.Get(ctx, Key(id)).Bytes()
	if err == redis.Nil {
		return dashboard.Snapshot{}, notFound(id)
	}
	if err != nil {
		return dashboard.Snapshot{}, fmt.Errorf("redis get %q: %w", Key(id), err)
	}

	snap, err := dashboard.DecodeSnapshot(raw)
	if err != nil {
		return dashboard.Snapshot{}, fmt.Errorf("unmarshal session %q: %w", id, err)
	}
	return snap, nil
}

// Save stores snap in Redis with ttl.
func (s *RedisStore) Save(ctx context.Context, id string, snap dashboard.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session %q: %w", id, err)
	}
	if err := s.client.Set(ctx, Key(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", Key(id), err)
	}
	return nil
}

// Delete removes id from Redis.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, Key(id)).Result()
	if err != nil {
		return fmt.Errorf("redis del %q: %w", Key(id), err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

// Close closes the underlying client if it supports closing.
func (s *RedisStore) Close() error {
	if c, ok := s.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// HealthCheck pings Redis.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
