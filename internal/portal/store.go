package portal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = errors.New("portal session not found")

// SessionStore persists portal sessions with an expiry. Save refreshes it.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in process. Stored values are copies.
type MemoryStore struct {
	TTL time.Duration

	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	raw     []byte
	expires time.Time
}

// NewMemoryStore returns a MemoryStore with the given TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{TTL: ttl, items: map[string]memoryItem{}, now: time.Now}
}

// Get implements SessionStore.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !m.now().Before(it.expires) {
		delete(m.items, id)
		return nil, ErrSessionNotFound
	}
	var s Session
	if err := json.Unmarshal(it.raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save implements SessionStore.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	// Opportunistic sweep keeps abandoned flows from accumulating.
	for id, it := range m.items {
		if !now.Before(it.expires) {
			delete(m.items, id)
		}
	}
	m.items[s.ID] = memoryItem{raw: raw, expires: now.Add(m.TTL)}
	return nil
}

// Delete implements SessionStore.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}

// RedisClient is the subset of *redis.Client used by RedisStore.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps sessions as JSON values with a sliding expiry.
type RedisStore struct {
	Redis RedisClient
	TTL   time.Duration
}

// NewRedisStore returns a RedisStore.
func NewRedisStore(rdb RedisClient, ttl time.Duration) *RedisStore {
	return &RedisStore{Redis: rdb, TTL: ttl}
}

func sessionKey(id string) string { return "refunds:portal:session:" + id }

// Get implements SessionStore.
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := r.Redis.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save implements SessionStore.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.Redis.Set(ctx, sessionKey(s.ID), raw, r.TTL).Err()
}

// Delete implements SessionStore.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.Redis.Del(ctx, sessionKey(id)).Err()
}
