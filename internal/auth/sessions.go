package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sessions tracks live refresh tokens by id.
type Sessions interface {
	Save(ctx context.Context, id, subject string, ttl time.Duration) error
	// Consume deletes the session and reports the subject it belonged to.
	// A missing or expired session returns "" and no error.
	Consume(ctx context.Context, id string) (string, error)
	Revoke(ctx context.Context, id string) error
}

// MemorySessions keeps sessions in a map for dev and tests.
type MemorySessions struct {
	mu    sync.Mutex
	items map[string]memorySession
	now   func() time.Time
}

type memorySession struct {
	subject string
	expires time.Time
}

// NewMemorySessions creates an empty store.
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{items: make(map[string]memorySession), now: time.Now}
}

func (m *MemorySessions) Save(_ context.Context, id, subject string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[id] = memorySession{subject: subject, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemorySessions) Consume(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	delete(m.items, id)
	if !ok || !m.now().Before(s.expires) {
		return "", nil
	}
	return s.subject, nil
}

func (m *MemorySessions) Revoke(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

// RedisSessions stores one key per session with the token's TTL.
type RedisSessions struct {
	client *redis.Client
	prefix string
}

// NewRedisSessions builds a store under the given key prefix.
func NewRedisSessions(client *redis.Client, prefix string) *RedisSessions {
	if prefix == "" {
		prefix = "attendance:session:"
	}
	return &RedisSessions{client: client, prefix: prefix}
}

func (r *RedisSessions) Save(ctx context.Context, id, subject string, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+id, subject, ttl).Err()
}

func (r *RedisSessions) Consume(ctx context.Context, id string) (string, error) {
	subject, err := r.client.GetDel(ctx, r.prefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return subject, err
}

func (r *RedisSessions) Revoke(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.prefix+id).Err()
}
