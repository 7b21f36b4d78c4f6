package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redisclient "github.com/angelmondragon/dukalink-backend/pkg/redis"
)

type kvStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartKey(sessionKey string) string
}

// Store persists carts per session.
type Store interface {
	Load(ctx context.Context, sessionKey string) (Cart, error)
	Save(ctx context.Context, sessionKey string, cart Cart) error
	Delete(ctx context.Context, sessionKey string) error
}

// RedisStore keeps each cart as a JSON document with a sliding TTL.
type RedisStore struct {
	kv  kvStore
	ttl time.Duration
}

// NewRedisStore builds a cart store on top of the shared redis client.
func NewRedisStore(kv kvStore, ttl time.Duration) (*RedisStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cart ttl must be positive")
	}
	return &RedisStore{kv: kv, ttl: ttl}, nil
}

// Load returns the session cart, or an empty one if none exists yet.
func (s *RedisStore) Load(ctx context.Context, sessionKey string) (Cart, error) {
	if strings.TrimSpace(sessionKey) == "" {
		return Cart{}, fmt.Errorf("session key required")
	}
	key := s.kv.CartKey(sessionKey)
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if redisclient.IsNil(err) {
			return Cart{Lines: []Line{}}, nil
		}
		return Cart{}, fmt.Errorf("load cart: %w", err)
	}
	var cart Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		return Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	if cart.Lines == nil {
		cart.Lines = []Line{}
	}
	if err := s.kv.Expire(ctx, key, s.ttl); err != nil {
		return Cart{}, fmt.Errorf("refresh cart ttl: %w", err)
	}
	return cart, nil
}

// Save writes the cart. An empty cart deletes the key.
func (s *RedisStore) Save(ctx context.Context, sessionKey string, cart Cart) error {
	if strings.TrimSpace(sessionKey) == "" {
		return fmt.Errorf("session key required")
	}
	if cart.IsEmpty() {
		return s.Delete(ctx, sessionKey)
	}
	payload, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.kv.Set(ctx, s.kv.CartKey(sessionKey), string(payload), s.ttl); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// Delete removes the session cart. Deleting a missing cart is not an error.
func (s *RedisStore) Delete(ctx context.Context, sessionKey string) error {
	if err := s.kv.Del(ctx, s.kv.CartKey(sessionKey)); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}
