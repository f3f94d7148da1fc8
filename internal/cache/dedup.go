package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/order"
)

var _ order.WebhookDeduper = (*WebhookDeduper)(nil)

// WebhookDeduper claims webhook keys with SET NX so each delivery is
// processed once within the retention window.
type WebhookDeduper struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewWebhookDeduper creates a WebhookDeduper keeping claims for ttl.
func NewWebhookDeduper(client redis.UniversalClient, ttl time.Duration) *WebhookDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &WebhookDeduper{client: client, ttl: ttl}
}

func (d *WebhookDeduper) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupKey(key), time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim %q: %w", key, err)
	}
	return ok, nil
}

func (d *WebhookDeduper) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, dedupKey(key)).Err(); err != nil {
		return fmt.Errorf("redis release %q: %w", key, err)
	}
	return nil
}

func dedupKey(key string) string {
	return "webhook:" + key
}
