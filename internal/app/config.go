package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
)

// EnvPrefix — префикс переменных окружения сервиса.
const EnvPrefix = "MEENAVA"

const (
	// StorageDriverMemory хранит корзины и каталог в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverRedis хранит снимки корзин и ключи идемпотентности в Redis.
	StorageDriverRedis = "redis"
	// StorageDriverPostgres хранит всё в PostgreSQL.
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr    string `envconfig:"GRPC_ADDR" default:":50051"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"memory"`

	PostgresDSN               string        `envconfig:"POSTGRES_DSN"`
	PostgresAutoMigrate       bool          `envconfig:"POSTGRES_AUTO_MIGRATE" default:"true"`
	PostgresMaxConns          int           `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
	PostgresSnapshotRetention time.Duration `envconfig:"POSTGRES_SNAPSHOT_RETENTION" default:"720h"`
	PostgresRetentionInterval time.Duration `envconfig:"POSTGRES_RETENTION_INTERVAL" default:"1h"`

	RedisURL      string `envconfig:"REDIS_URL"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	CartKeyPrefix string        `envconfig:"CART_KEY_PREFIX" default:"meenava-cart"`
	CartTTL       time.Duration `envconfig:"CART_TTL" default:"720h"`

	KafkaBrokers   string `envconfig:"KAFKA_BROKERS"`
	KafkaCartTopic string `envconfig:"KAFKA_CART_TOPIC" default:"meenava.cart.events"`
	KafkaDLQTopic  string `envconfig:"KAFKA_DLQ_TOPIC" default:"meenava.dlq"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxMaxAttempts  int           `envconfig:"OUTBOX_MAX_ATTEMPTS" default:"3"`
	OutboxRetryDelay   time.Duration `envconfig:"OUTBOX_RETRY_DELAY" default:"50ms"`

	SnapshotMaxAttempts  int           `envconfig:"SNAPSHOT_MAX_ATTEMPTS" default:"3"`
	SnapshotRetryDelay   time.Duration `envconfig:"SNAPSHOT_RETRY_DELAY" default:"50ms"`
	SnapshotWriteTimeout time.Duration `envconfig:"SNAPSHOT_WRITE_TIMEOUT" default:"2s"`

	SessionIdleTTL     time.Duration `envconfig:"SESSION_IDLE_TTL" default:"30m"`
	SessionLoadTimeout time.Duration `envconfig:"SESSION_LOAD_TIMEOUT" default:"2s"`

	IdempotencyTTL              time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	IdempotencyCleanupInterval  time.Duration `envconfig:"IDEMPOTENCY_CLEANUP_INTERVAL" default:"10m"`
	IdempotencyCleanupBatchSize int           `envconfig:"IDEMPOTENCY_CLEANUP_BATCH_SIZE" default:"500"`

	DeliveryFreeThresholdMinor int64 `envconfig:"DELIVERY_FREE_THRESHOLD_MINOR" default:"50000"`
	DeliveryChargeMinor        int64 `envconfig:"DELIVERY_CHARGE_MINOR" default:"5000"`

	WhatsAppPhone string `envconfig:"WHATSAPP_PHONE" default:"919876543210"`
}

// DefaultConfig возвращает значения по умолчанию без чтения окружения.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",
		LogLevel:    "info",

		StorageDriver: StorageDriverMemory,

		PostgresAutoMigrate:       true,
		PostgresMaxConns:          10,
		PostgresSnapshotRetention: 30 * 24 * time.Hour,
		PostgresRetentionInterval: time.Hour,

		RedisAddr: "localhost:6379",

		CartKeyPrefix: "meenava-cart",
		CartTTL:       30 * 24 * time.Hour,

		KafkaCartTopic: "meenava.cart.events",
		KafkaDLQTopic:  "meenava.dlq",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,

		SnapshotMaxAttempts:  3,
		SnapshotRetryDelay:   50 * time.Millisecond,
		SnapshotWriteTimeout: 2 * time.Second,

		SessionIdleTTL:     30 * time.Minute,
		SessionLoadTimeout: 2 * time.Second,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,

		DeliveryFreeThresholdMinor: domain.DefaultFreeDeliveryThresholdMinor,
		DeliveryChargeMinor:        domain.DefaultDeliveryChargeMinor,

		WhatsAppPhone: "919876543210",
	}
}

// LoadConfig читает конфигурацию из переменных окружения MEENAVA_*.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory, StorageDriverRedis:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("%s_POSTGRES_DSN is required for postgres storage", EnvPrefix)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if c.DeliveryFreeThresholdMinor < 0 || c.DeliveryChargeMinor < 0 {
		return fmt.Errorf("delivery amounts must not be negative")
	}
	return nil
}

// KafkaBrokerList разбирает список брокеров, разделённых запятыми.
func (c Config) KafkaBrokerList() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// DeliveryPolicy собирает политику доставки из настроек.
func (c Config) DeliveryPolicy() domain.DeliveryPolicy {
	return domain.DeliveryPolicy{
		FreeThresholdMinor: c.DeliveryFreeThresholdMinor,
		ChargeMinor:        c.DeliveryChargeMinor,
	}
}
