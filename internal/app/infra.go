package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/analytics"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/cache"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/auth"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/catalog"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/coupon"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/customer"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/discount"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/order"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/handler"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/ledger"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/mailer"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/storage/memory"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/storage/postgres"
	"github.com/nicolascaliari/barfer-api-desarrollo/pkg/health"
)

const checkTimeout = 5 * time.Second

// stores groups the repositories of one storage backend.
type stores struct {
	catalog   catalog.Repository
	customers customer.Repository
	coupons   coupon.Repository
	discounts discount.Repository
	orders    order.Repository
	apikeys   auth.Repository
}

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) Close() error {
	var err error
	for i := len(c) - 1; i >= 0; i-- {
		err = multierr.Append(err, c[i]())
	}
	return err
}

func openStores(ctx context.Context, lg *zap.Logger, cfg *Config, hs *health.Health, cl *closers) (*stores, error) {
	if cfg.Storage == StorageMemory {
		lg.Warn("Using in-memory storage, data is lost on restart")
		apikeys := memory.NewAPIKeyRepository()
		if cfg.AdminAPIKey != "" {
			if err := apikeys.UpsertAPIKey(ctx, auth.APIKeyInfo{
				ID:      "bootstrap-admin",
				KeyHash: handler.HashAPIKey([]byte(cfg.APIKeyPepper), cfg.AdminAPIKey),
				Name:    "bootstrap admin",
				Scopes:  []string{auth.ScopeAdmin},
			}); err != nil {
				return nil, errors.Wrap(err, "register admin key")
			}
		}
		return &stores{
			catalog:   memory.NewCatalogRepository(),
			customers: memory.NewCustomerRepository(),
			coupons:   memory.NewCouponRepository(),
			discounts: memory.NewDiscountRepository(),
			orders:    memory.NewOrderRepository(),
			apikeys:   apikeys,
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	cl.add(func() error { pool.Close(); return nil })

	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}
	hs.AddReadinessCheck("postgres", checkTimeout, health.PingCheck(pool))

	return &stores{
		catalog:   postgres.NewCatalogRepository(pool),
		customers: postgres.NewCustomerRepository(pool),
		coupons:   postgres.NewCouponRepository(pool),
		discounts: postgres.NewDiscountRepository(pool),
		orders:    postgres.NewOrderRepository(pool),
		apikeys:   postgres.NewAPIKeyRepository(pool),
	}, nil
}

// sinks holds the optional integrations. Nil fields are disabled.
type sinks struct {
	cache     order.Cache
	deduper   order.WebhookDeduper
	ledger    order.ZoneLedger
	analytics order.Analytics
	mailer    order.Mailer
}

func openSinks(ctx context.Context, lg *zap.Logger, cfg *Config, hs *health.Health, cl *closers) (*sinks, error) {
	var s sinks

	if cfg.Redis.Addr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cl.add(rdb.Close)
		hs.AddReadinessCheck("redis", checkTimeout, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		s.cache = cache.NewOrderCache(rdb, cfg.Redis.OrderTTL)
		s.deduper = cache.NewWebhookDeduper(rdb, cfg.Redis.DedupTTL)
	} else {
		lg.Info("Redis disabled, orders are read from storage and webhooks are not deduplicated")
	}

	if cfg.Mongo.URI != "" {
		db, err := ledger.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, errors.Wrap(err, "connect ledger")
		}
		client := db.Client()
		cl.add(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
			defer cancel()
			return client.Disconnect(ctx)
		})
		hs.AddReadinessCheck("mongo", checkTimeout, mongoPing(client))
		s.ledger = ledger.NewMongo(db)
	} else {
		lg.Info("Zone ledger disabled")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		client, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers...),
			kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		)
		if err != nil {
			return nil, errors.Wrap(err, "create kafka client")
		}
		cl.add(func() error { client.Close(); return nil })
		if err := analytics.EnsureTopics(ctx, client, cfg.Kafka.Topics, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			return nil, errors.Wrap(err, "ensure analytics topics")
		}
		hs.AddReadinessCheck("kafka", checkTimeout, health.PingCheck(client))
		s.analytics = analytics.NewKafka(client, cfg.Kafka.Topics)
	} else {
		lg.Info("Analytics disabled")
	}

	if cfg.RabbitMQ.URL != "" {
		conn, ch, err := mailer.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			return nil, errors.Wrap(err, "connect mailer")
		}
		cl.add(conn.Close)
		cl.add(ch.Close)
		s.mailer = mailer.NewAMQP(ch, cfg.RabbitMQ.Queue)
	} else {
		lg.Info("Emails disabled")
	}

	return &s, nil
}

func mongoPing(client *mongo.Client) health.CheckFunc {
	return func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	}
}
