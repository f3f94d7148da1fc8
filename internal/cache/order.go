// Package cache implements order caching and webhook deduplication on Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/order"
)

var _ order.Cache = (*OrderCache)(nil)

// OrderCache is a read-through cache of orders keyed by id.
type OrderCache struct {
	client  redis.UniversalClient
	baseTTL time.Duration
}

// NewOrderCache creates an OrderCache. Entries live for ttl plus up to a
// minute of jitter.
func NewOrderCache(client redis.UniversalClient, ttl time.Duration) *OrderCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &OrderCache{client: client, baseTTL: ttl}
}

func (c *OrderCache) Get(ctx context.Context, id string) (*order.Order, error) {
	data, err := c.client.Get(ctx, orderKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, order.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get order %q: %w", id, err)
	}

	var o order.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order %q: %w", id, err)
	}
	return &o, nil
}

func (c *OrderCache) Set(ctx context.Context, o *order.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order %q: %w", o.ID, err)
	}
	jitter := time.Duration(rand.Int64N(int64(time.Minute)))
	if err := c.client.Set(ctx, orderKey(o.ID), data, c.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set order %q: %w", o.ID, err)
	}
	return nil
}

func (c *OrderCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, orderKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete order %q: %w", id, err)
	}
	return nil
}

func orderKey(id string) string {
	return "order:" + id
}
