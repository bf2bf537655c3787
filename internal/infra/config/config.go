package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/DanielNoblero/consultorios-app/internal/app/batch"
)

const (
	StorageMemory = "memory"
	StorageMongo  = "mongo"

	TriggerInline       = "inline"
	TriggerKafka        = "kafka"
	TriggerChangeStream = "changestream"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env      string
	LogLevel string
	HTTPAddr string

	StorageMode string
	MongoURI    string
	MongoDB     string

	TriggerMode        string
	KafkaBrokers       []string
	KafkaTopicPrefix   string
	KafkaGroupID       string
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration

	IdempotencyTTL time.Duration
	RequestTimeout time.Duration
	BatchSize      int

	DiscountThreshold   int
	DefaultBaseRate     int64
	DefaultDiscountRate int64

	ReportInterval time.Duration
	ReportTimezone string

	JWTSecret string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	MetricsEnabled bool
	OTLPEndpoint   string
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		StorageMode:      strings.ToLower(getEnv("STORAGE_MODE", StorageMemory)),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "consultorios"),
		TriggerMode:      strings.ToLower(getEnv("TRIGGER_MODE", TriggerInline)),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "consultorios-pricing"),
		ReportTimezone:   getEnv("REPORT_TIMEZONE", "America/Montevideo"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3AccessKey:      getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:      getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:         getEnv("S3_BUCKET", "consultorios-reports"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	var err error
	if cfg.IdempotencyTTL, err = parseDurationEnv("IDEMP_TTL", 168*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPollInterval, err = parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = parseDurationEnv("REQUEST_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ReportInterval, err = parseDurationEnv("REPORT_SCHEDULE_INTERVAL", 0); err != nil {
		return Config{}, err
	}
	if cfg.BatchSize, err = parseIntEnv("BATCH_SIZE", batch.DefaultSize); err != nil {
		return Config{}, err
	}
	cfg.BatchSize = batch.ClampSize(cfg.BatchSize)
	if cfg.DiscountThreshold, err = parseIntEnv("DISCOUNT_THRESHOLD", 10); err != nil {
		return Config{}, err
	}
	base, err := parseIntEnv("DEFAULT_BASE_RATE", 250)
	if err != nil {
		return Config{}, err
	}
	discount, err := parseIntEnv("DEFAULT_DISCOUNT_RATE", 230)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultBaseRate, cfg.DefaultDiscountRate = int64(base), int64(discount)

	retryStr := getEnv("RETRY_BACKOFF", "1s,5s,30s")
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
	if cfg.S3UseSSL, err = parseBoolEnv("S3_USE_SSL", false); err != nil {
		return Config{}, err
	}
	if cfg.MetricsEnabled, err = parseBoolEnv("METRICS_ENABLED", true); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the combinations Load cannot express per key.
func (c Config) Validate() error {
	switch c.StorageMode {
	case StorageMemory:
	case StorageMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORAGE_MODE=%s", StorageMongo)
		}
	default:
		return fmt.Errorf("invalid STORAGE_MODE %q", c.StorageMode)
	}
	switch c.TriggerMode {
	case TriggerInline:
	case TriggerKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when TRIGGER_MODE=%s", TriggerKafka)
		}
		if c.StorageMode != StorageMongo {
			return fmt.Errorf("TRIGGER_MODE=%s needs STORAGE_MODE=%s for the outbox", TriggerKafka, StorageMongo)
		}
	case TriggerChangeStream:
		if c.StorageMode != StorageMongo {
			return fmt.Errorf("TRIGGER_MODE=%s needs STORAGE_MODE=%s", TriggerChangeStream, StorageMongo)
		}
	default:
		return fmt.Errorf("invalid TRIGGER_MODE %q", c.TriggerMode)
	}
	if c.DiscountThreshold < 1 {
		return fmt.Errorf("DISCOUNT_THRESHOLD must be positive")
	}
	if c.DefaultBaseRate <= 0 || c.DefaultDiscountRate <= 0 {
		return fmt.Errorf("default rates must be positive")
	}
	if _, err := time.LoadLocation(c.ReportTimezone); err != nil {
		return fmt.Errorf("invalid REPORT_TIMEZONE %q: %w", c.ReportTimezone, err)
	}
	return nil
}

// Location is the zone the periodic close computes "now" and months in.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return v, nil
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
