// Package cache holds read-through caches for client records. Client lookups
// sit on the hot path of every grant and token operation.
package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/pilab-dev/shadow-oauth/domain"
)

// DefaultClientTTL bounds how long a cached client may be served after a
// change made by another process.
const DefaultClientTTL = 30 * time.Second

// ClientCache caches clients by ID. Implementations must be safe for
// concurrent use. A miss is never an error.
type ClientCache interface {
	Get(ctx context.Context, id string) (*domain.Client, bool)
	Set(ctx context.Context, c *domain.Client) error
	Delete(ctx context.Context, id string) error
}

// MemoryClientCache implements ClientCache using ttlcache.
type MemoryClientCache struct {
	cache *ttlcache.Cache[string, domain.Client]
}

var _ ClientCache = (*MemoryClientCache)(nil)

// NewMemoryClientCache creates an in-process cache whose entries expire after
// ttl. Call Stop to end the cleanup goroutine.
func NewMemoryClientCache(ttl time.Duration) *MemoryClientCache {
	if ttl <= 0 {
		ttl = DefaultClientTTL
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, domain.Client](ttl),
		ttlcache.WithDisableTouchOnHit[string, domain.Client](),
	)

	go cache.Start()

	return &MemoryClientCache{cache: cache}
}

// Get implements ClientCache.Get.
func (m *MemoryClientCache) Get(_ context.Context, id string) (*domain.Client, bool) {
	item := m.cache.Get(id)
	if item == nil {
		return nil, false
	}
	c := item.Value()
	return &c, true
}

// Set implements ClientCache.Set.
func (m *MemoryClientCache) Set(_ context.Context, c *domain.Client) error {
	m.cache.Set(c.ID, *c, ttlcache.DefaultTTL)
	return nil
}

// Delete implements ClientCache.Delete.
func (m *MemoryClientCache) Delete(_ context.Context, id string) error {
	m.cache.Delete(id)
	return nil
}

// Len returns the number of cached clients.
func (m *MemoryClientCache) Len() int {
	return m.cache.Len()
}

// Stop halts the background expiry loop.
func (m *MemoryClientCache) Stop() {
	m.cache.Stop()
}
