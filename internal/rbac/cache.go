package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	cacheKeyPrefix = "rbac:perms:"
	genKeyPrefix   = "rbac:gen:"

	// genTTL outlives any in-flight load by a wide margin, so an expired counter
	// can never be mistaken for one a load read earlier.
	genTTL = 24 * time.Hour
)

// PermissionCache stores each user's effective permission slugs.
//
// Every user has a generation that Invalidate bumps. A loader reads the generation before
// querying the store and passes it to Set, which drops the write when the generation has
// moved on. A load that overlaps a permission change therefore never caches the old set.
type PermissionCache interface {
	Get(ctx context.Context, userID uuid.UUID) (slugs []string, ok bool, err error)
	Generation(ctx context.Context, userID uuid.UUID) (uint64, error)
	Set(ctx context.Context, userID uuid.UUID, gen uint64, slugs []string) error
	Invalidate(ctx context.Context, userIDs ...uuid.UUID) error
}

// NopCache never caches.
type NopCache struct{}

func (NopCache) Get(context.Context, uuid.UUID) ([]string, bool, error) { return nil, false, nil }
func (NopCache) Generation(context.Context, uuid.UUID) (uint64, error) { return 0, nil }
func (NopCache) Set(context.Context, uuid.UUID, uint64, []string) error { return nil }
func (NopCache) Invalidate(context.Context, ...uuid.UUID) error { return nil }

// setIfGeneration writes the permission set only while the user's generation still matches.
// KEYS: generation key, set key. ARGV: expected generation, payload, TTL in milliseconds.
var setIfGeneration = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisCache keeps permission sets as JSON arrays under rbac:perms:<user_id> with a TTL,
// and generations as counters under rbac:gen:<user_id>.
// An empty array is a valid cached value (user with no permissions).
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache creates a Redis-backed permission cache.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// NewCache picks RedisCache when a client is given and MemoryCache otherwise.
// A TTL of zero disables caching.
func NewCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) PermissionCache {
	if ttl <= 0 {
		return NopCache{}
	}
	if client == nil {
		return NewMemoryCache(memoryCacheSize, ttl)
	}
	return NewRedisCache(client, ttl, logger)
}

func cacheKey(userID uuid.UUID) string {
	return cacheKeyPrefix + userID.String()
}

func genKey(userID uuid.UUID) string {
	return genKeyPrefix + userID.String()
}

// Get returns the cached slugs, or ok=false on a miss.
func (c *RedisCache) Get(ctx context.Context, userID uuid.UUID) ([]string, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var slugs []string
	if err := json.Unmarshal(raw, &slugs); err != nil {
		c.logger.Warn("dropping corrupt permission cache entry", zap.String("user_id", userID.String()), zap.Error(err))
		_ = c.client.Del(ctx, cacheKey(userID)).Err()
		return nil, false, nil
	}
	return slugs, true, nil
}

// Generation returns the user's current generation; a missing counter is zero.
func (c *RedisCache) Generation(ctx context.Context, userID uuid.UUID) (uint64, error) {
	gen, err := c.client.Get(ctx, genKey(userID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation: %w", err)
	}
	return gen, nil
}

// Set stores slugs for the configured TTL unless the user was invalidated after gen was read.
func (c *RedisCache) Set(ctx context.Context, userID uuid.UUID, gen uint64, slugs []string) error {
	if slugs == nil {
		slugs = []string{}
	}
	raw, err := json.Marshal(slugs)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	keys := []string{genKey(userID), cacheKey(userID)}
	stored, err := setIfGeneration.Run(ctx, c.client, keys, strconv.FormatUint(gen, 10), raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if stored == 0 {
		c.logger.Debug("discarded stale permission set", zap.String("user_id", userID.String()))
	}
	return nil
}

// Invalidate drops the cached sets of the given users and bumps their generations.
func (c *RedisCache) Invalidate(ctx context.Context, userIDs ...uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = cacheKey(id)
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Incr(ctx, genKey(id))
			pipe.Expire(ctx, genKey(id), genTTL)
		}
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	c.logger.Debug("permission cache invalidated", zap.Int("users", len(userIDs)))
	return nil
}
