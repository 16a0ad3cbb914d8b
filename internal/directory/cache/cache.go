// Package cache puts a redis read-through cache in front of the risk and
// user directories. Concurrent misses for one key share a single upstream
// call. Redis failures degrade to direct lookups; not-found and unavailable
// answers are never cached.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"riskaccept/internal/directory"
	id "riskaccept/pkg/domain"
)

const keyPrefix = "riskaccept:directory:"

// KV is the subset of the redis client the cache uses.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Observer receives hit/miss counts, for metrics.
type Observer interface {
	ObserveLookup(directory, result string)
}

type nopObserver struct{}

func (nopObserver) ObserveLookup(string, string) {}

type Cache struct {
	kv       KV
	ttl      time.Duration
	group    singleflight.Group
	logger   *slog.Logger
	observer Observer
}

type Option func(*Cache)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func WithObserver(o Observer) Option {
	return func(c *Cache) {
		if o != nil {
			c.observer = o
		}
	}
}

func New(kv KV, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		kv:       kv,
		ttl:      ttl,
		logger:   slog.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Risks wraps next with the cache.
func (c *Cache) Risks(next directory.RiskDirectory) *RiskCache {
	return &RiskCache{cache: c, next: next}
}

// Users wraps next with the cache.
func (c *Cache) Users(next directory.UserDirectory) *UserCache {
	return &UserCache{cache: c, next: next}
}

type RiskCache struct {
	cache *Cache
	next  directory.RiskDirectory
}

func (r *RiskCache) GetRisk(ctx context.Context, riskID id.RiskID) (*directory.Risk, error) {
	return lookup(ctx, r.cache, "risk", riskID.String(), func(ctx context.Context) (*directory.Risk, error) {
		return r.next.GetRisk(ctx, riskID)
	})
}

type UserCache struct {
	cache *Cache
	next  directory.UserDirectory
}

func (u *UserCache) GetUser(ctx context.Context, userID id.UserID) (*directory.User, error) {
	return lookup(ctx, u.cache, "user", userID.String(), func(ctx context.Context) (*directory.User, error) {
		return u.next.GetUser(ctx, userID)
	})
}

func lookup[T any](ctx context.Context, c *Cache, kind, key string, fetch func(context.Context) (*T, error)) (*T, error) {
	fullKey := keyPrefix + kind + ":" + key

	raw, err := c.kv.Get(ctx, fullKey).Bytes()
	switch {
	case err == nil:
		var v T
		if jsonErr := json.Unmarshal(raw, &v); jsonErr == nil {
			c.observer.ObserveLookup(kind, "hit")
			return &v, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cache entry", "key", fullKey)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.WarnContext(ctx, "directory cache read failed", "key", fullKey, "error", err)
	}
	c.observer.ObserveLookup(kind, "miss")

	v, err, _ := c.group.Do(fullKey, func() (any, error) {
		fetched, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if encoded, err := json.Marshal(fetched); err == nil {
			if err := c.kv.Set(ctx, fullKey, encoded, c.ttl).Err(); err != nil {
				c.logger.WarnContext(ctx, "directory cache write failed", "key", fullKey, "error", err)
			}
		}
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	// Callers may mutate the result; hand each one its own copy.
	out := *v.(*T)
	return &out, nil
}
