package rbac

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// memoryCacheSize bounds the in-process cache to this many users.
const memoryCacheSize = 10_000

// MemoryCache is an in-process LRU of permission sets with a TTL. It is used when Redis is not
// configured, so invalidations only reach the local process; other instances catch up after the TTL.
type MemoryCache struct {
	cache *lru.LRU[uuid.UUID, []string]

	mu   sync.Mutex
	gens map[uuid.UUID]uint64
}

// NewMemoryCache creates an in-process cache holding at most size users.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		cache: lru.NewLRU[uuid.UUID, []string](size, nil, ttl),
		gens:  make(map[uuid.UUID]uint64),
	}
}

func (c *MemoryCache) Get(_ context.Context, userID uuid.UUID) ([]string, bool, error) {
	slugs, ok := c.cache.Get(userID)
	if !ok {
		return nil, false, nil
	}
	return append([]string(nil), slugs...), true, nil
}

func (c *MemoryCache) Generation(_ context.Context, userID uuid.UUID) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[userID], nil
}

// Set is a no-op when userID was invalidated after gen was read.
func (c *MemoryCache) Set(_ context.Context, userID uuid.UUID, gen uint64, slugs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[userID] != gen {
		return nil
	}
	c.cache.Add(userID, append([]string{}, slugs...))
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, userIDs ...uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		c.gens[id]++
		c.cache.Remove(id)
	}
	return nil
}
