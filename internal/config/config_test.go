package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	defaultBroker  = "localhost:9092"
	testFieldURL   = "https://fields.example.org/v1"
	testFieldToken = "fs-test-token"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "reconciliation-units", cfg.KafkaSourceTopic)
	assert.Equal(t, "reconciliation-reports", cfg.KafkaSinkTopic)
	assert.Equal(t, "reconciler", cfg.KafkaGroupID)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)
	assert.Equal(t, 4, cfg.Workers)
	assert.Empty(t, cfg.ReferencePath)
	assert.Equal(t, "reports.db", cfg.DBPath)
	assert.InDelta(t, 0.05, cfg.DefaultResolution, 1e-12)
	assert.False(t, cfg.FieldSourceEnabled)
	assert.Empty(t, cfg.FieldSourceURL)
	assert.Empty(t, cfg.FieldSourceToken)
	assert.Equal(t, 5*time.Second, cfg.FieldSourceTimeout)
	assert.Equal(t, 1000, cfg.FieldSourceCacheSize)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SOURCE_TOPIC", "custom-source")
	t.Setenv("KAFKA_SINK_TOPIC", "custom-sink")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")
	t.Setenv("RECONCILE_WORKERS", "8")
	t.Setenv("RECONCILE_CONFIG", "/etc/reconciler/reference.yaml")
	t.Setenv("REPORT_DB_PATH", "/var/lib/reconciler/reports.db")
	t.Setenv("GRID_RESOLUTION", "0.1")
	t.Setenv("FIELD_SOURCE_URL", testFieldURL)
	t.Setenv("FIELD_SOURCE_TOKEN", testFieldToken)
	t.Setenv("FIELD_SOURCE_TIMEOUT", "10s")
	t.Setenv("FIELD_SOURCE_CACHE_SIZE", "500")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-source", cfg.KafkaSourceTopic)
	assert.Equal(t, "custom-sink", cfg.KafkaSinkTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 1*time.Second, cfg.BatchFlushInterval)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "/etc/reconciler/reference.yaml", cfg.ReferencePath)
	assert.Equal(t, "/var/lib/reconciler/reports.db", cfg.DBPath)
	assert.InDelta(t, 0.1, cfg.DefaultResolution, 1e-12)
	assert.True(t, cfg.FieldSourceEnabled)
	assert.Equal(t, testFieldURL, cfg.FieldSourceURL)
	assert.Equal(t, testFieldToken, cfg.FieldSourceToken)
	assert.Equal(t, 10*time.Second, cfg.FieldSourceTimeout)
	assert.Equal(t, 500, cfg.FieldSourceCacheSize)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_NegativeShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidBatchSize(t *testing.T) {
	t.Setenv("BATCH_SIZE", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}

func TestLoad_BatchSizeTooLarge(t *testing.T) {
	t.Setenv("BATCH_SIZE", "9999")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}

func TestLoad_InvalidBatchFlushInterval(t *testing.T) {
	t.Setenv("BATCH_FLUSH_INTERVAL", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_FLUSH_INTERVAL")
}

func TestLoad_InvalidWorkers(t *testing.T) {
	for _, v := range []string{"0", "-2", "many"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("RECONCILE_WORKERS", v)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "RECONCILE_WORKERS")
		})
	}
}

func TestLoad_InvalidGridResolution(t *testing.T) {
	for _, v := range []string{"0", "-0.1", "fine"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("GRID_RESOLUTION", v)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "GRID_RESOLUTION")
		})
	}
}

func TestLoad_InvalidFieldSourceTimeout(t *testing.T) {
	t.Setenv("FIELD_SOURCE_TIMEOUT", "bad")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FIELD_SOURCE_TIMEOUT")
}

func TestLoad_FieldSourceEnabledWithoutURL(t *testing.T) {
	t.Setenv("FIELD_SOURCE_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FIELD_SOURCE_URL")
}

func TestLoad_FieldSourceURLImpliesEnabled(t *testing.T) {
	t.Setenv("FIELD_SOURCE_URL", testFieldURL)
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.FieldSourceEnabled)
}

func TestLoad_FieldSourceExplicitlyDisabled(t *testing.T) {
	t.Setenv("FIELD_SOURCE_URL", testFieldURL)
	t.Setenv("FIELD_SOURCE_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.FieldSourceEnabled)
}

func TestLoad_InvalidCacheSizeFallsBack(t *testing.T) {
	t.Setenv("FIELD_SOURCE_CACHE_SIZE", "-5")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.FieldSourceCacheSize)
}
