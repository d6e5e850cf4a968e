package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Reconciliation.
	Workers           int
	ReferencePath     string
	DBPath            string
	DefaultResolution float64

	// Remote field source configuration.
	FieldSourceURL       string
	FieldSourceToken     string
	FieldSourceEnabled   bool
	FieldSourceTimeout   time.Duration
	FieldSourceCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	fieldTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("FIELD_SOURCE_TIMEOUT", "5s"))
	if err != nil || fieldTimeout <= 0 {
		return nil, errors.New("invalid FIELD_SOURCE_TIMEOUT")
	}

	workers, err := parsePositiveInt("RECONCILE_WORKERS", 4)
	if err != nil {
		return nil, err
	}

	resolution, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("GRID_RESOLUTION", "0.05"), 64)
	if err != nil || resolution <= 0 {
		return nil, errors.New("invalid GRID_RESOLUTION: must be a positive number of degrees")
	}

	fieldURL := os.Getenv("FIELD_SOURCE_URL")
	fieldToken := os.Getenv("FIELD_SOURCE_TOKEN")
	fieldEnabled := fieldURL != ""
	if v := os.Getenv("FIELD_SOURCE_ENABLED"); v != "" {
		fieldEnabled = v == "true"
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "reconciliation-units"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "reconciliation-reports"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "reconciler"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		Workers:           workers,
		ReferencePath:     os.Getenv("RECONCILE_CONFIG"),
		DBPath:            sharedcfg.EnvOrDefault("REPORT_DB_PATH", "reports.db"),
		DefaultResolution: resolution,

		FieldSourceURL:       fieldURL,
		FieldSourceToken:     fieldToken,
		FieldSourceEnabled:   fieldEnabled,
		FieldSourceTimeout:   fieldTimeout,
		FieldSourceCacheSize: parseCacheSize(),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.FieldSourceEnabled && cfg.FieldSourceURL == "" {
		return nil, errors.New("FIELD_SOURCE_ENABLED is true but FIELD_SOURCE_URL is not set")
	}

	return cfg, nil
}

func parsePositiveInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", name)
	}
	return n, nil
}

func parseCacheSize() int {
	if s := os.Getenv("FIELD_SOURCE_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
