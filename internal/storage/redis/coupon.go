// Package redis caches coupon lookups in Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
)

// DefaultTTL is how long a resolved discount stays cached.
const DefaultTTL = 5 * time.Minute

// Cache is the key-value store behind CouponCache.
type Cache interface {
	// Get returns the value of key. ok is false on a miss.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

var _ Cache = (*Client)(nil)

// Client implements Cache on a go-redis client.
type Client struct {
	rdb redis.UniversalClient
}

// NewClient wraps rdb.
func NewClient(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb}
}

// Dial connects to the Redis server at addr and pings it.
func Dial(ctx context.Context, addr string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %s", addr)
	}
	return &Client{rdb: rdb}, nil
}

// Get implements Cache.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set implements Cache.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Ping reports whether the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

var _ coupon.Resolver = (*CouponCache)(nil)

// CouponCache is a read-through cache in front of a coupon.Resolver.
//
// Only successful lookups are cached, so an invalid coupon becomes valid as
// soon as the backing store knows it. Cache errors are logged and the
// lookup falls through to the inner resolver.
type CouponCache struct {
	next  coupon.Resolver
	cache Cache
	ttl   time.Duration
}

// NewCouponCache creates a CouponCache. A non-positive ttl selects
// DefaultTTL.
func NewCouponCache(next coupon.Resolver, cache Cache, ttl time.Duration) *CouponCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CouponCache{next: next, cache: cache, ttl: ttl}
}

func couponKey(code string) string {
	return fmt.Sprintf("kart:coupon:%s", code)
}

// Resolve implements coupon.Resolver.
func (c *CouponCache) Resolve(ctx context.Context, code string) (*coupon.Discount, error) {
	lg := zctx.From(ctx).With(zap.String("coupon", code))
	key := couponKey(code)

	v, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		lg.Warn("Coupon cache read failed", zap.Error(err))
	case ok:
		amount, perr := decimal.NewFromString(v)
		if perr == nil {
			d := coupon.NewDiscount(amount)
			return &d, nil
		}
		lg.Warn("Corrupt coupon cache entry", zap.String("value", v), zap.Error(perr))
	}

	d, err := c.next.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}
	if err := c.cache.Set(ctx, key, d.Amount.String(), c.ttl); err != nil {
		lg.Warn("Coupon cache write failed", zap.Error(err))
	}
	return d, nil
}
