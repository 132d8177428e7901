package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemStore is an in-process Store for tests and credential-less deployments.
type MemStore struct {
	mu    sync.Mutex
	state State
	set   bool
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Load implements Store.
func (m *MemStore) Load(_ context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return State{}, nil
	}
	return m.state, nil
}

// Save implements Store.
func (m *MemStore) Save(_ context.Context, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.set = true
	return nil
}

// Clear implements Store.
func (m *MemStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{}
	m.set = false
	return nil
}

// RedisStore persists moderation state in Redis so it survives process
// restarts. State is stored as a JSON blob under a per-household key with a
// TTL comfortably past the decay window; expired keys read as a zero State.
type RedisStore struct {
	client *redis.Client
	key    string
}

var _ Store = (*RedisStore)(nil)

// redisTTL keeps stale state from lingering forever. Decay is still applied
// on read; the TTL is only housekeeping.
const redisTTL = time.Hour

// NewRedisStore creates a RedisStore for the given household. householdID
// must be non-empty.
func NewRedisStore(client *redis.Client, householdID string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("moderation: redis client must not be nil")
	}
	if householdID == "" {
		return nil, errors.New("moderation: householdID must not be empty")
	}
	return &RedisStore{
		client: client,
		key:    "aria:moderation:" + householdID,
	}, nil
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context) (State, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("moderation: redis get %s: %w", r.key, err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("moderation: decode state: %w", err)
	}
	return s, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, s State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("moderation: encode state: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, redisTTL).Err(); err != nil {
		return fmt.Errorf("moderation: redis set %s: %w", r.key, err)
	}
	return nil
}

// Clear implements Store.
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("moderation: redis del %s: %w", r.key, err)
	}
	return nil
}
