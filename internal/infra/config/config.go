package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"roomies/internal/domain/shared/money"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageMongo  = "mongo"
	StorageSQL    = "sql"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env      string
	HTTPAddr string
	Storage  string

	MongoURI  string
	MongoDB   string
	SQLDriver string
	SQLDSN    string

	IdempotencyStore string
	BoltPath         string
	IdempotencyTTL   time.Duration

	KafkaBrokers     []string
	KafkaTopicPrefix string
	KafkaGroupID     string

	OutboxPollInterval      time.Duration
	RetryBackoff            []time.Duration
	CompletionSweepInterval time.Duration
	NotifyQueueSize         int
	NotifyWorkers           int

	BookingFee   money.Money
	Currency     string
	FixturesPath string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	ScyllaHosts    []string
	ScyllaKeyspace string
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		Storage:          strings.ToLower(getEnv("STORAGE", StorageMemory)),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "roomies"),
		SQLDriver:        strings.ToLower(getEnv("SQL_DRIVER", "postgres")),
		SQLDSN:           os.Getenv("SQL_DSN"),
		IdempotencyStore: strings.ToLower(getEnv("IDEMPOTENCY_STORE", "")),
		BoltPath:         getEnv("BOLT_PATH", "roomies-idempotency.db"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "roomies-notifications"),
		Currency:         strings.ToUpper(getEnv("CURRENCY", money.DefaultCurrency)),
		FixturesPath:     os.Getenv("FIXTURES_PATH"),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3AccessKey:      getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:      getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:         getEnv("S3_BUCKET", "roomies-statements"),
		ScyllaKeyspace:   getEnv("SCYLLA_KEYSPACE", "roomies"),
	}
	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.ScyllaHosts = splitList(os.Getenv("SCYLLA_HOSTS"))

	var err error
	if cfg.IdempotencyTTL, err = parseDurationEnv("IDEMP_TTL", 168*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPollInterval, err = parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.CompletionSweepInterval, err = parseDurationEnv("COMPLETION_SWEEP_INTERVAL", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.NotifyQueueSize, err = parseIntEnv("NOTIFY_QUEUE_SIZE", 256); err != nil {
		return Config{}, err
	}
	if cfg.NotifyWorkers, err = parseIntEnv("NOTIFY_WORKERS", 2); err != nil {
		return Config{}, err
	}
	if cfg.S3UseSSL, err = parseBoolEnv("S3_USE_SSL", false); err != nil {
		return Config{}, err
	}

	retryStr := getEnv("RETRY_BACKOFF", "10ms,50ms,200ms")
	for _, raw := range strings.Split(retryStr, ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}

	fee, err := money.ParseMajor(getEnv("BOOKING_FEE", "999"), cfg.Currency)
	if err != nil {
		return Config{}, fmt.Errorf("invalid BOOKING_FEE: %w", err)
	}
	cfg.BookingFee = fee

	switch cfg.Storage {
	case StorageMemory:
	case StorageMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required for STORAGE=mongo")
		}
	case StorageSQL:
		if cfg.SQLDriver != "postgres" && cfg.SQLDriver != "sqlite" {
			return Config{}, fmt.Errorf("unsupported SQL_DRIVER %q", cfg.SQLDriver)
		}
		if cfg.SQLDSN == "" {
			return Config{}, fmt.Errorf("SQL_DSN is required for STORAGE=sql")
		}
	default:
		return Config{}, fmt.Errorf("unsupported STORAGE %q", cfg.Storage)
	}

	if cfg.IdempotencyStore == "" {
		cfg.IdempotencyStore = StorageMemory
		if cfg.Storage == StorageMongo {
			cfg.IdempotencyStore = StorageMongo
		}
	}
	switch cfg.IdempotencyStore {
	case StorageMemory, "bolt":
	case StorageMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required for IDEMPOTENCY_STORE=mongo")
		}
	default:
		return Config{}, fmt.Errorf("unsupported IDEMPOTENCY_STORE %q", cfg.IdempotencyStore)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}
