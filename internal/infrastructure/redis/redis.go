package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
)

type Cache struct {
	Client *redis.Client
}

func New(addr, pass string, db int) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr, Password: pass, DB: db,
	})
	return &Cache{Client: rdb}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.Client.Close()
}

func cacheKey(eventID uuid.UUID, scope domain.CacheScope) string {
	return "checkout:" + string(scope) + ":" + eventID.String()
}

func (c *Cache) Get(ctx context.Context, eventID uuid.UUID, scope domain.CacheScope, dst any) error {
	raw, err := c.Client.Get(ctx, cacheKey(eventID, scope)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal(raw, dst)
}

func (c *Cache) Set(ctx context.Context, eventID uuid.UUID, scope domain.CacheScope, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, cacheKey(eventID, scope), raw, ttl).Err()
}

// Invalidate drops the given views; with no scopes it drops all of them.
func (c *Cache) Invalidate(ctx context.Context, eventID uuid.UUID, scopes ...domain.CacheScope) error {
	if len(scopes) == 0 {
		scopes = []domain.CacheScope{domain.ScopeAvailability, domain.ScopeAttendees, domain.ScopeWaitlist}
	}
	keys := make([]string, 0, len(scopes))
	for _, s := range scopes {
		keys = append(keys, cacheKey(eventID, s))
	}
	return c.Client.Del(ctx, keys...).Err()
}

// AllowRequest: fixed window rate limit, fails open when Redis is down.
func (c *Cache) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	key := "checkout:ratelimit:" + ip
	count, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return true, nil
	}
	if count == 1 {
		_ = c.Client.Expire(ctx, key, window).Err()
	}
	return count <= int64(limit), nil
}
