package signaling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence records which identities are connected to a relay, so that other
// relays or tools can look them up.
type Presence interface {
	Add(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
	Online(ctx context.Context, id string) (bool, error)
	Close() error
}

// MemoryPresence keeps presence in process memory.
type MemoryPresence struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{ids: make(map[string]struct{})}
}

func (m *MemoryPresence) Add(_ context.Context, id string) error {
	m.mu.Lock()
	m.ids[id] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *MemoryPresence) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.ids, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryPresence) Online(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.ids[id]
	return ok, nil
}

func (m *MemoryPresence) Close() error { return nil }

// RedisPresence stores one key per identity, peer:<id>, expiring after ttl
// unless refreshed by another Add.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPresence connects to the Redis server at addr and checks it with a PING.
func NewRedisPresence(ctx context.Context, addr string, db int, ttl time.Duration) (*RedisPresence, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisPresence{client: client, ttl: ttl}, nil
}

func presenceKey(id string) string { return "peer:" + id }

func (p *RedisPresence) Add(ctx context.Context, id string) error {
	return p.client.Set(ctx, presenceKey(id), time.Now().Unix(), p.ttl).Err()
}

func (p *RedisPresence) Remove(ctx context.Context, id string) error {
	return p.client.Del(ctx, presenceKey(id)).Err()
}

func (p *RedisPresence) Online(ctx context.Context, id string) (bool, error) {
	n, err := p.client.Exists(ctx, presenceKey(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *RedisPresence) Close() error { return p.client.Close() }
