// Package config loads engine configuration from defaults, an optional
// YAML file and SENTINEL_-prefixed environment variables, in that order of
// precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/quantops/sentinel/internal/anomaly"
)

// Config is the full engine configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	Anomaly    anomaly.Config   `mapstructure:"anomaly"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Server     ServerConfig     `mapstructure:"server"`

	// DefinitionsPath points at a YAML file of alert configs loaded at
	// startup. Empty means none.
	DefinitionsPath string `mapstructure:"definitions_path"`
}

type EvaluationConfig struct {
	IntervalSeconds      int `mapstructure:"interval_seconds" validate:"min=1"`
	EscalationSweepSecs  int `mapstructure:"escalation_sweep_seconds" validate:"min=1"`
	DrainIntervalSeconds int `mapstructure:"drain_interval_seconds" validate:"min=1"`
}

type SnapshotConfig struct {
	Source       string   `mapstructure:"source" validate:"oneof=kafka none"`
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	GroupID      string   `mapstructure:"group_id"`
	MaxAgeSecs   int      `mapstructure:"max_age_seconds" validate:"min=1"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN             string `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifeSecs int    `mapstructure:"conn_max_life_seconds"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type QueueConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port" validate:"min=1,max=65535"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Load reads configuration. path may be empty; the file is optional and
// environment variables win regardless.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("evaluation.interval_seconds", 30)
	v.SetDefault("evaluation.escalation_sweep_seconds", 10)
	v.SetDefault("evaluation.drain_interval_seconds", 2)
	detection := anomaly.DefaultConfig()
	v.SetDefault("anomaly.z_score_threshold", detection.ZScoreThreshold)
	v.SetDefault("anomaly.percentile_threshold", detection.PercentileThreshold)
	v.SetDefault("anomaly.min_samples", detection.MinSamples)
	v.SetDefault("anomaly.min_series_samples", detection.MinSeriesSamples)
	v.SetDefault("anomaly.consecutive_negatives", detection.ConsecutiveNegatives)
	v.SetDefault("anomaly.volume_anomaly_threshold", detection.VolumeAnomalyThreshold)
	v.SetDefault("anomaly.correlation_break_threshold", detection.CorrelationBreakThreshold)
	v.SetDefault("snapshot.source", "none")
	v.SetDefault("snapshot.topic", "metric-snapshots")
	v.SetDefault("snapshot.group_id", "sentinel")
	v.SetDefault("snapshot.max_age_seconds", 120)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "sentinel.db")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("queue.path", "data/notifications")
	v.SetDefault("server.port", 8085)

	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("sentinel")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/sentinel")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Snapshot.Source == "kafka" && len(cfg.Snapshot.Brokers) == 0 {
		return nil, fmt.Errorf("invalid configuration: kafka snapshot source requires brokers")
	}
	return &cfg, nil
}
