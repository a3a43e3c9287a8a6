package redis

// Package redis provides Redis-based adapters. The token store persists the
// identity provider's opaque token material between process runs so a
// session can be restored on reload.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atelierhq/atelier/internal/ports"
)

// TokenStore is a Redis-backed ports.TokenStore.
type TokenStore struct {
	client redis.UniversalClient
	prefix string
}

var _ ports.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a token store with the default key prefix.
func NewTokenStore(client redis.UniversalClient) *TokenStore {
	return &TokenStore{client: client, prefix: "provider_token:"}
}

// NewTokenStoreWithPrefix creates a token store with a custom key prefix.
func NewTokenStoreWithPrefix(client redis.UniversalClient, prefix string) *TokenStore {
	return &TokenStore{client: client, prefix: prefix}
}

// Save stores the token bytes under the key with the given TTL. A zero TTL
// stores without expiry (refresh tokens are long-lived; the provider is the
// authority on their validity).
func (s *TokenStore) Save(ctx context.Context, key string, token []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("token key cannot be empty")
	}
	if len(token) == 0 {
		return errors.New("token cannot be empty")
	}
	if ttl < 0 {
		return errors.New("token is expired")
	}
	return s.client.Set(ctx, s.prefix+key, token, ttl).Err()
}

// Get retrieves the token bytes, or ErrNotFound when absent.
func (s *TokenStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Delete removes the token. Deleting an absent key is not an error.
func (s *TokenStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return s.client.Del(ctx, s.prefix+key).Err()
}

// ErrNotFound is returned when no token is stored under a key.
var ErrNotFound = ports.ErrTokenNotFound
