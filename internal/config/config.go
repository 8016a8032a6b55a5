package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type Config struct {
	Port     string
	LogLevel logrus.Level

	StorageDriver string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string

	ProductServiceURL   string
	LogisticsServiceURL string
	RemoteTimeout       time.Duration
	BreakerMaxFailures  int
	BreakerTimeout      time.Duration

	DefaultCarrier      string
	DefaultServiceLevel string

	// KafkaBrokers is empty when event publishing and the shipment
	// listener are disabled.
	KafkaBrokers          []string
	ShipmentConsumerGroup string

	// AllowedOrigin restricts CORS and websocket upgrades. Empty or "*"
	// allows any origin.
	AllowedOrigin string

	DLQConsumerGroup string
	DLQReplay        bool
	DLQReplayDelay   time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:                  getEnv("ORDER_SERVICE_PORT", "8081"),
		StorageDriver:         getEnv("STORAGE_DRIVER", "postgres"),
		DBHost:                getEnv("DB_HOST", "localhost"),
		DBPort:                getEnv("DB_PORT", "5432"),
		DBUser:                getEnv("DB_USER", "orderservice"),
		DBPassword:            getEnv("DB_PASSWORD", "orderservice"),
		DBName:                getEnv("DB_NAME", "orders"),
		ProductServiceURL:     getEnv("PRODUCT_SERVICE_URL", "http://localhost:5000/api"),
		LogisticsServiceURL:   getEnv("LOGISTICS_SERVICE_URL", "http://localhost:8000/api"),
		DefaultCarrier:        getEnv("DEFAULT_CARRIER", "DefaultCarrier"),
		DefaultServiceLevel:   getEnv("DEFAULT_SERVICE_LEVEL", "Standard"),
		ShipmentConsumerGroup: getEnv("SHIPMENT_CONSUMER_GROUP", "order-service-shipments"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", ""),
		DLQConsumerGroup:      getEnv("DLQ_CONSUMER_GROUP", "dlq-monitor"),
	}

	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	if cfg.RemoteTimeout, err = getDuration("REMOTE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.BreakerTimeout, err = getDuration("BREAKER_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.BreakerMaxFailures, err = getInt("BREAKER_MAX_FAILURES", 5); err != nil {
		return nil, err
	}
	if cfg.DLQReplayDelay, err = getDuration("DLQ_REPLAY_DELAY", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.DLQReplay, err = strconv.ParseBool(getEnv("DLQ_REPLAY", "false")); err != nil {
		return nil, fmt.Errorf("invalid DLQ_REPLAY: %w", err)
	}

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	switch cfg.StorageDriver {
	case "postgres", "memory":
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	return cfg, nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
