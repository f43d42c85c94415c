package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/pilab-dev/shadow-oauth/cache"
	"github.com/pilab-dev/shadow-oauth/domain"
)

// ClientCache implements cache.ClientCache on Redis so that every process
// behind a load balancer sees the same invalidations.
type ClientCache struct {
	client redis.UniversalClient
	prefix string // Optional prefix for keys
	ttl    time.Duration
}

var _ cache.ClientCache = (*ClientCache)(nil)

// NewClientCache creates a new [ClientCache] instance.
func NewClientCache(client redis.UniversalClient, prefix string, ttl time.Duration) *ClientCache {
	if ttl <= 0 {
		ttl = cache.DefaultClientTTL
	}
	return &ClientCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// redisKey returns the Redis key for a given client ID.
func (r *ClientCache) redisKey(id string) string {
	return fmt.Sprintf("%s:client:%s", r.prefix, id)
}

// Get retrieves a client from Redis. Redis failures are treated as misses.
func (r *ClientCache) Get(ctx context.Context, id string) (*domain.Client, bool) {
	raw, err := r.client.Get(ctx, r.redisKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("client_id", id).Msg("client cache read failed")
		}
		return nil, false
	}

	var c domain.Client
	if err := json.Unmarshal(raw, &c); err != nil {
		log.Warn().Err(err).Str("client_id", id).Msg("client cache entry corrupt")
		return nil, false
	}
	return &c, true
}

// Set stores a client with the configured TTL.
func (r *ClientCache) Set(ctx context.Context, c *domain.Client) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}
	if err := r.client.Set(ctx, r.redisKey(c.ID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set client in Redis: %w", err)
	}
	return nil
}

// Delete removes a client from Redis.
func (r *ClientCache) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.redisKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete client from Redis: %w", err)
	}
	return nil
}
