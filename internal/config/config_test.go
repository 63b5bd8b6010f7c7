package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantops/sentinel/internal/alerting"
	"github.com/quantops/sentinel/internal/anomaly"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "sentinel.yaml", "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30, cfg.Evaluation.IntervalSeconds)
	assert.Equal(t, 10, cfg.Evaluation.EscalationSweepSecs)
	assert.Equal(t, "none", cfg.Snapshot.Source)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 8085, cfg.Server.Port)
	assert.Equal(t, "data/notifications", cfg.Queue.Path)
	assert.Equal(t, anomaly.DefaultConfig(), cfg.Anomaly)
}

func TestLoadAnomalyOverrides(t *testing.T) {
	path := writeFile(t, "sentinel.yaml", `
anomaly:
  z_score_threshold: 3.5
  min_samples: 8
  consecutive_negatives: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3.5, cfg.Anomaly.ZScoreThreshold)
	assert.Equal(t, 8, cfg.Anomaly.MinSamples)
	assert.Equal(t, 3, cfg.Anomaly.ConsecutiveNegatives)
	// Untouched thresholds keep their defaults.
	assert.Equal(t, 95.0, cfg.Anomaly.PercentileThreshold)
	assert.Equal(t, 0.5, cfg.Anomaly.CorrelationBreakThreshold)
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeFile(t, "sentinel.yaml", `
log_level: debug
evaluation:
  interval_seconds: 5
snapshot:
  source: kafka
  brokers: ["broker-1:9092", "broker-2:9092"]
  topic: trading-metrics
database:
  driver: postgres
  dsn: "host=db user=sentinel dbname=sentinel"
server:
  port: 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Evaluation.IntervalSeconds)
	assert.Equal(t, "kafka", cfg.Snapshot.Source)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Snapshot.Brokers)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load(writeFile(t, "sentinel.yaml", "log_level: loud\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "sentinel.yaml", "snapshot:\n  source: kafka\n"))
	assert.ErrorContains(t, err, "brokers")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SENTINEL_LOG_LEVEL", "warn")
	t.Setenv("SENTINEL_SERVER_PORT", "7070")

	cfg, err := Load(writeFile(t, "sentinel.yaml", "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadDefinitions(t *testing.T) {
	path := writeFile(t, "alerts.yaml", `
alerts:
  - name: low sharpe
    enabled: true
    severity: critical
    cooldown_minutes: 15
    condition:
      type: threshold
      metric: performance.strat-1.sharpeRatio
      operator: lt
      value: 0.5
    channels:
      - type: console
        enabled: true
        retry_attempts: 1
  - name: drawdown band
    enabled: true
    severity: high
    condition:
      type: threshold
      metric: performance.strat-1.maxDrawdown
      operator: between
      value: [0.1, 0.25]
    channels:
      - type: webhook
        enabled: true
        retry_attempts: 3
        retry_delay_seconds: 30
        settings:
          url: http://hooks.internal/alerts
`)

	configs, err := LoadDefinitions(path)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	assert.Equal(t, "low sharpe", configs[0].Name)
	assert.Equal(t, alerting.SeverityCritical, configs[0].Severity)
	assert.Equal(t, alerting.Scalar(0.5), configs[0].Condition.Value)
	assert.Equal(t, 15, configs[0].CooldownMinutes)

	assert.Equal(t, alerting.OpBetween, configs[1].Condition.Operator)
	assert.Equal(t, alerting.Range(0.1, 0.25), configs[1].Condition.Value)
	assert.Equal(t, "http://hooks.internal/alerts", configs[1].Channels[0].Settings["url"])
}

func TestLoadDefinitionsMissingFile(t *testing.T) {
	_, err := LoadDefinitions(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
