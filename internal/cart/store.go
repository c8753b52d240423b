package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisKeyFormat = "cart:%s"
	redisCartTTL   = 30 * 24 * time.Hour
)

// Store persists whole carts per owner. Load returns an empty cart for an
// unknown owner.
type Store interface {
	Load(ctx context.Context, ownerID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, ownerID string) error
}

// NewStore picks the redis store when a client is configured.
func NewStore(client *redis.Client) Store {
	if client == nil {
		return NewMemoryStore()
	}
	return NewRedisStore(client)
}

type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]Cart
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: map[string]Cart{}}
}

func (s *MemoryStore) Load(_ context.Context, ownerID string) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.carts[ownerID]
	if !ok {
		return New(ownerID), nil
	}
	c := stored
	c.Items = append([]Item{}, stored.Items...)
	return &c, nil
}

func (s *MemoryStore) Save(_ context.Context, c *Cart) error {
	if c == nil {
		return errors.New("cart is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *c
	stored.Items = append([]Item{}, c.Items...)
	s.carts[c.OwnerID] = stored
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, ownerID)
	return nil
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, ttl: redisCartTTL}
}

func (s *RedisStore) Load(ctx context.Context, ownerID string) (*Cart, error) {
	raw, err := s.client.Get(ctx, redisKey(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return New(ownerID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	var c Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	c.OwnerID = ownerID
	if c.Items == nil {
		c.Items = []Item{}
	}
	return &c, nil
}

func (s *RedisStore) Save(ctx context.Context, c *Cart) error {
	if c == nil {
		return errors.New("cart is nil")
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(c.OwnerID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, ownerID string) error {
	if err := s.client.Del(ctx, redisKey(ownerID)).Err(); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

func redisKey(ownerID string) string {
	return fmt.Sprintf(redisKeyFormat, ownerID)
}
