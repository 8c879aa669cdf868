package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (LEDGER_ prefix), flags, or YAML config files.
type Config struct {
	Addr            string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL     string `usage:"PostgreSQL connection URL (LEDGER_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper    string `usage:"HMAC pepper for API key hashing (LEDGER_API_KEY_PEPPER)" flag:"api-key-pepper"`
	MerchantAccount string `usage:"Account that receives payments and drives order status" flag:"merchant-account"`
	Lock            LockConfig
	Events          EventsConfig
	RateLimit       RateLimitConfig
	CORS            CORSConfig
	Graceful        GracefulConfig
}

// LockConfig selects the per-order lock. Without a Redis address locks are
// held in process, which is only correct for a single replica.
type LockConfig struct {
	RedisAddr string        `usage:"Redis address for cross-replica order locks" flag:"lock-redis-addr"`
	TTL       time.Duration `default:"10s" usage:"Redis lock expiry" flag:"lock-ttl"`
}

// EventsConfig enables event sinks. Each sink is enabled by its address.
type EventsConfig struct {
	NATSURL      string   `usage:"NATS server URL" flag:"events-nats-url"`
	NATSSubject  string   `default:"ledger" usage:"NATS subject prefix" flag:"events-nats-subject"`
	KafkaBrokers []string `usage:"Kafka bootstrap brokers" flag:"events-kafka-brokers"`
	KafkaTopic   string   `default:"ledger.events" usage:"Kafka topic" flag:"events-kafka-topic"`
	AMQPURL      string   `usage:"RabbitMQ URL" flag:"events-amqp-url"`
	AMQPExchange string   `default:"ledger.events" usage:"RabbitMQ fanout exchange" flag:"events-amqp-exchange"`
	Log          bool     `default:"false" usage:"Log every event" flag:"events-log"`
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
		EnvPrefix: "LEDGER",
		Files:     []string{"config.yaml", "/etc/ledger/config.yaml"},
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
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set LEDGER_DATABASE_URL or DATABASE_URL")
	}
	if c.MerchantAccount == "" {
		return errors.New("merchant account is required: set LEDGER_MERCHANT_ACCOUNT")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's LEDGER_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
