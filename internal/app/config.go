package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/analytics"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (BARFER_ prefix), flags, or YAML config files.
// Optional integrations are disabled while their address is empty.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage      string `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (BARFER_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (BARFER_API_KEY_PEPPER)" flag:"api-key-pepper"`
	AdminAPIKey  string `usage:"Admin API key registered at startup with memory storage" flag:"admin-api-key"`
	Redis        RedisConfig
	Mongo        MongoConfig
	Kafka        KafkaConfig
	RabbitMQ     RabbitMQConfig
	MercadoPago  MercadoPagoConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// RedisConfig configures the order cache and webhook deduplication.
type RedisConfig struct {
	Addr     string        `usage:"Redis address, empty disables caching and webhook dedup"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database"`
	OrderTTL time.Duration `default:"10m" usage:"Order cache TTL" flag:"redis-order-ttl"`
	DedupTTL time.Duration `default:"24h" usage:"Webhook dedup key TTL" flag:"redis-dedup-ttl"`
}

// MongoConfig configures the same-day zone ledger.
type MongoConfig struct {
	URI      string `usage:"MongoDB URI, empty disables the zone ledger"`
	Database string `default:"barfer" usage:"MongoDB database"`
}

// KafkaConfig configures the analytics event stream.
type KafkaConfig struct {
	Brokers           []string `usage:"Kafka seed brokers, empty disables analytics"`
	Partitions        int32    `default:"3" usage:"Partitions of created topics"`
	ReplicationFactor int16    `default:"1" usage:"Replication factor of created topics" flag:"kafka-replication-factor"`
	Topics            analytics.Topics
}

// RabbitMQConfig configures the email queue.
type RabbitMQConfig struct {
	URL   string `usage:"RabbitMQ URL, empty disables emails"`
	Queue string `default:"barfer.emails" usage:"Email queue name"`
}

// MercadoPagoConfig configures the payment provider and its return URLs.
// Callback URLs may contain {order_id}.
type MercadoPagoConfig struct {
	AccessToken      string        `usage:"Mercado Pago access token (BARFER_MERCADOPAGO_ACCESSTOKEN)" flag:"mercadopago-access-token"`
	Timeout          time.Duration `default:"5s" usage:"Provider request timeout"`
	FailureThreshold uint32        `default:"5" usage:"Consecutive failures that open the breaker" flag:"mercadopago-failure-threshold"`
	OpenTimeout      time.Duration `default:"30s" usage:"How long the breaker stays open" flag:"mercadopago-open-timeout"`
	SuccessURL       string        `usage:"Checkout success return URL" flag:"mercadopago-success-url"`
	PendingURL       string        `usage:"Checkout pending return URL" flag:"mercadopago-pending-url"`
	FailureURL       string        `usage:"Checkout failure return URL" flag:"mercadopago-failure-url"`
	NotificationURL  string        `usage:"Webhook URL sent to the provider" flag:"mercadopago-notification-url"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BARFER",
		Files:     []string{"config.yaml", "/etc/barfer/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set BARFER_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}
	if c.APIKeyPepper == "" {
		return errors.New("api key pepper is required: set BARFER_API_KEY_PEPPER")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's BARFER_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_ADDR")
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = os.Getenv("MONGODB_URI")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
