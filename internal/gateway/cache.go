package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisClient is the subset of *redis.Client used for caching.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cached is a read-through cache of order details keyed per merchant. Cache
// failures degrade to a direct call. A successful refund mutation evicts
// the order.
type Cached struct {
	Next      Gateway
	Redis     RedisClient
	Namespace string
	TTL       time.Duration
}

// NewCached wraps next. namespace isolates merchants sharing a Redis.
func NewCached(next Gateway, rdb RedisClient, namespace string, ttl time.Duration) *Cached {
	return &Cached{Next: next, Redis: rdb, Namespace: namespace, TTL: ttl}
}

func (c *Cached) orderKey(id string) string {
	return "refunds:order:" + c.Namespace + ":" + id
}

// ListOrders implements Gateway. Lists are not cached.
func (c *Cached) ListOrders(ctx context.Context, q OrderQuery) ([]Order, error) {
	return c.Next.ListOrders(ctx, q)
}

// GetOrder implements Gateway.
func (c *Cached) GetOrder(ctx context.Context, id string) (*Order, error) {
	key := c.orderKey(id)
	if raw, err := c.Redis.Get(ctx, key).Bytes(); err == nil {
		var o Order
		if jerr := json.Unmarshal(raw, &o); jerr == nil {
			return &o, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		log.Ctx(ctx).Warn().Err(err).Str("order_id", id).Msg("order cache read failed")
	}

	o, err := c.Next.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if b, jerr := json.Marshal(o); jerr == nil {
		if serr := c.Redis.Set(ctx, key, b, c.TTL).Err(); serr != nil {
			log.Ctx(ctx).Warn().Err(serr).Str("order_id", id).Msg("order cache write failed")
		}
	}
	return o, nil
}

// GetMerchant implements Gateway.
func (c *Cached) GetMerchant(ctx context.Context) (*MerchantProfile, error) {
	return c.Next.GetMerchant(ctx)
}

// RefundOrderLine implements Gateway.
func (c *Cached) RefundOrderLine(ctx context.Context, in RefundInput) (*Order, error) {
	o, err := c.Next.RefundOrderLine(ctx, in)
	if err != nil {
		return nil, err
	}
	if derr := c.Redis.Del(ctx, c.orderKey(in.OrderID)).Err(); derr != nil {
		log.Ctx(ctx).Warn().Err(derr).Str("order_id", in.OrderID).Msg("order cache evict failed")
	}
	return o, nil
}
