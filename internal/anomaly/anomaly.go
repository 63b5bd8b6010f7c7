// Package anomaly implements statistical anomaly detection over metric
// time series: z-score and percentile outliers plus pattern detectors for
// losing streaks, volume spikes, correlation breaks and regime changes.
package anomaly

import (
	"time"
)

// Type classifies how an anomaly was detected.
type Type string

const (
	TypeZScore     Type = "z_score"
	TypePercentile Type = "percentile"
	TypePattern    Type = "pattern"
)

// Severity mirrors alert severity levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Anomaly is an ephemeral detection result for the latest observation of a
// metric. It is consumed immediately by the caller and never persisted here.
type Anomaly struct {
	ID          string    `json:"id"`
	Metric      string    `json:"metric"`
	Type        Type      `json:"type"`
	Pattern     string    `json:"pattern,omitempty"`
	Value       float64   `json:"value"`
	Threshold   float64   `json:"threshold"`
	ZScore      float64   `json:"z_score,omitempty"`
	Percentile  float64   `json:"percentile,omitempty"`
	Severity    Severity  `json:"severity"`
	Confidence  float64   `json:"confidence"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// Baseline is the rolling statistical summary of a metric. It is a cache:
// detection recomputes from the supplied window, so an invalidated or cold
// baseline never changes results.
type Baseline struct {
	Mean        float64         `json:"mean"`
	StdDev      float64         `json:"std_dev"`
	Percentiles map[int]float64 `json:"percentiles"`
	SampleCount int             `json:"sample_count"`
	LastUpdated time.Time       `json:"last_updated"`
}

// Ready reports whether the baseline has enough samples to be consulted.
func (b *Baseline) Ready(minSamples int) bool {
	return b != nil && b.SampleCount >= minSamples
}

// Config controls detection thresholds.
type Config struct {
	// ZScoreThreshold flags |z| above this value.
	ZScoreThreshold float64 `json:"z_score_threshold" mapstructure:"z_score_threshold"`
	// PercentileThreshold flags ranks above it or below its complement.
	PercentileThreshold float64 `json:"percentile_threshold" mapstructure:"percentile_threshold"`
	// MinSamples is the minimum history length for z-score detection and
	// for publishing baselines.
	MinSamples int `json:"min_samples" mapstructure:"min_samples"`
	// MinSeriesSamples is the minimum series length for series-wide
	// methods (percentile, correlation, regime).
	MinSeriesSamples int `json:"min_series_samples" mapstructure:"min_series_samples"`
	// ConsecutiveNegatives is the losing-streak run length that triggers
	// a pattern anomaly.
	ConsecutiveNegatives int `json:"consecutive_negatives" mapstructure:"consecutive_negatives"`
	// VolumeAnomalyThreshold flags volume z-scores above this value.
	VolumeAnomalyThreshold float64 `json:"volume_anomaly_threshold" mapstructure:"volume_anomaly_threshold"`
	// CorrelationBreakThreshold flags half-to-half correlation drops
	// larger than this value.
	CorrelationBreakThreshold float64 `json:"correlation_break_threshold" mapstructure:"correlation_break_threshold"`
}

// DefaultConfig returns the detection defaults.
func DefaultConfig() Config {
	return Config{
		ZScoreThreshold:           2.0,
		PercentileThreshold:       95.0,
		MinSamples:                5,
		MinSeriesSamples:          10,
		ConsecutiveNegatives:      5,
		VolumeAnomalyThreshold:    3.0,
		CorrelationBreakThreshold: 0.5,
	}
}
