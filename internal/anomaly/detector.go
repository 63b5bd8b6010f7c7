package anomaly

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Detector flags anomalies on the latest observation of a metric series.
// Detection methods are pure functions of the window they receive; the
// baseline cache only memoizes summary statistics for callers that want
// them and can be invalidated at any time.
type Detector struct {
	config Config
	logger *zap.Logger

	mu        sync.RWMutex
	baselines map[string]*Baseline
}

// NewDetector creates a detector. Zero config fields fall back to defaults.
func NewDetector(config Config, logger *zap.Logger) *Detector {
	def := DefaultConfig()
	if config.ZScoreThreshold == 0 {
		config.ZScoreThreshold = def.ZScoreThreshold
	}
	if config.PercentileThreshold == 0 {
		config.PercentileThreshold = def.PercentileThreshold
	}
	if config.MinSamples == 0 {
		config.MinSamples = def.MinSamples
	}
	if config.MinSeriesSamples == 0 {
		config.MinSeriesSamples = def.MinSeriesSamples
	}
	if config.ConsecutiveNegatives == 0 {
		config.ConsecutiveNegatives = def.ConsecutiveNegatives
	}
	if config.VolumeAnomalyThreshold == 0 {
		config.VolumeAnomalyThreshold = def.VolumeAnomalyThreshold
	}
	if config.CorrelationBreakThreshold == 0 {
		config.CorrelationBreakThreshold = def.CorrelationBreakThreshold
	}
	return &Detector{
		config:    config,
		logger:    logger,
		baselines: make(map[string]*Baseline),
	}
}

// DetectZScore flags the latest value of series when its z-score against the
// preceding values exceeds the configured threshold. Requires at least
// MinSamples history values before the latest one.
func (d *Detector) DetectZScore(metric string, series []float64) *Anomaly {
	if len(series) < d.config.MinSamples+1 {
		return nil
	}
	history := series[:len(series)-1]
	latest := series[len(series)-1]

	mean, std := meanStd(history)
	z := zScoreOf(latest, mean, std)
	if math.Abs(z) <= d.config.ZScoreThreshold {
		return nil
	}

	severity := SeverityMedium
	switch {
	case math.Abs(z) > 2*d.config.ZScoreThreshold:
		severity = SeverityCritical
	case math.Abs(z) > 1.5*d.config.ZScoreThreshold:
		severity = SeverityHigh
	}

	return &Anomaly{
		ID:          uuid.New().String(),
		Metric:      metric,
		Type:        TypeZScore,
		Value:       latest,
		Threshold:   d.config.ZScoreThreshold,
		ZScore:      z,
		Severity:    severity,
		Confidence:  math.Min(0.95, 0.5+math.Abs(z)/10),
		Description: fmt.Sprintf("%s deviates %.2f standard deviations from its mean", metric, z),
		Timestamp:   time.Now(),
	}
}

// DetectPercentile flags the latest value when its rank against the history
// lands in either tail beyond the configured percentile threshold.
func (d *Detector) DetectPercentile(metric string, series []float64) *Anomaly {
	if len(series) < d.config.MinSeriesSamples {
		return nil
	}
	history := series[:len(series)-1]
	latest := series[len(series)-1]

	rank := percentileRank(history, latest)
	upper := d.config.PercentileThreshold
	lower := 100 - d.config.PercentileThreshold
	if rank <= upper && rank >= lower {
		return nil
	}

	severity := SeverityMedium
	switch {
	case rank > 99 || rank < 1:
		severity = SeverityCritical
	case rank > 97 || rank < 3:
		severity = SeverityHigh
	}

	return &Anomaly{
		ID:          uuid.New().String(),
		Metric:      metric,
		Type:        TypePercentile,
		Value:       latest,
		Threshold:   upper,
		Percentile:  rank,
		Severity:    severity,
		Confidence:  0.8,
		Description: fmt.Sprintf("%s at percentile %.1f of its history", metric, rank),
		Timestamp:   time.Now(),
	}
}

// DetectAll runs every detector over the series. benchmark may be nil;
// correlation and regime checks then fall back to a synthetic series with
// reduced confidence.
func (d *Detector) DetectAll(metric string, series, benchmark []float64) []Anomaly {
	var out []Anomaly
	if a := d.DetectZScore(metric, series); a != nil {
		out = append(out, *a)
	}
	if a := d.DetectPercentile(metric, series); a != nil {
		out = append(out, *a)
	}
	if a := d.DetectNegativeRun(metric, series); a != nil {
		out = append(out, *a)
	}
	if a := d.DetectCorrelationBreak(metric, series, benchmark); a != nil {
		out = append(out, *a)
	}
	if a := d.DetectRegimeChange(metric, series); a != nil {
		out = append(out, *a)
	}
	return out
}

// UpdateBaseline recomputes and caches the summary statistics for metric
// from a window of recent observations.
func (d *Detector) UpdateBaseline(metric string, window []float64) {
	mean, std := meanStd(window)
	b := &Baseline{
		Mean:   mean,
		StdDev: std,
		Percentiles: map[int]float64{
			25: percentileValue(window, 25),
			50: percentileValue(window, 50),
			75: percentileValue(window, 75),
			95: percentileValue(window, 95),
			99: percentileValue(window, 99),
		},
		SampleCount: len(window),
		LastUpdated: time.Now(),
	}

	d.mu.Lock()
	d.baselines[metric] = b
	d.mu.Unlock()
}

// Baseline returns the cached baseline for metric, or nil when it has not
// accumulated the minimum sample count.
func (d *Detector) Baseline(metric string) *Baseline {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.baselines[metric]
	if !ok || !b.Ready(d.config.MinSamples) {
		return nil
	}
	return b
}

// InvalidateBaseline drops the cached baseline for metric. Detection is
// unaffected; the next UpdateBaseline repopulates it.
func (d *Detector) InvalidateBaseline(metric string) {
	d.mu.Lock()
	delete(d.baselines, metric)
	d.mu.Unlock()
}
