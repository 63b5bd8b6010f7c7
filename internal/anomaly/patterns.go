package anomaly

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Regime classification thresholds, tuned for daily return series.
const (
	regimeHighVol     = 0.02
	regimeTrend       = 0.001
	regimeVolDeltaMin = 0.3 // relative volatility change required for a regime flag
)

// DetectNegativeRun flags a losing streak: the run of consecutive negative
// values ending at the latest observation, once it reaches the configured
// length.
func (d *Detector) DetectNegativeRun(metric string, series []float64) *Anomaly {
	if len(series) == 0 {
		return nil
	}
	run := 0
	for i := len(series) - 1; i >= 0 && series[i] < 0; i-- {
		run++
	}
	need := d.config.ConsecutiveNegatives
	if run < need {
		return nil
	}

	severity := SeverityMedium
	switch {
	case run >= 2*need:
		severity = SeverityCritical
	case run >= need+need/2:
		severity = SeverityHigh
	}

	return &Anomaly{
		ID:          uuid.New().String(),
		Metric:      metric,
		Type:        TypePattern,
		Pattern:     "consecutive_negative",
		Value:       float64(run),
		Threshold:   float64(need),
		Severity:    severity,
		Confidence:  math.Min(0.9, 0.5+float64(run)/10),
		Description: fmt.Sprintf("%s negative for %d consecutive observations", metric, run),
		Timestamp:   time.Now(),
	}
}

// DetectVolumeSpike flags the latest count-like observation when its z-score
// against the trailing history exceeds the volume threshold.
func (d *Detector) DetectVolumeSpike(metric string, counts []float64) *Anomaly {
	if len(counts) < d.config.MinSamples+1 {
		return nil
	}
	history := counts[:len(counts)-1]
	latest := counts[len(counts)-1]

	mean, std := meanStd(history)
	z := zScoreOf(latest, mean, std)
	if math.Abs(z) <= d.config.VolumeAnomalyThreshold {
		return nil
	}

	severity := SeverityMedium
	if math.Abs(z) > 2*d.config.VolumeAnomalyThreshold {
		severity = SeverityHigh
	}

	return &Anomaly{
		ID:          uuid.New().String(),
		Metric:      metric,
		Type:        TypePattern,
		Pattern:     "volume_spike",
		Value:       latest,
		Threshold:   d.config.VolumeAnomalyThreshold,
		ZScore:      z,
		Severity:    severity,
		Confidence:  math.Min(0.9, 0.5+math.Abs(z)/10),
		Description: fmt.Sprintf("%s volume spiked %.2f standard deviations", metric, z),
		Timestamp:   time.Now(),
	}
}

// DetectCorrelationBreak splits the return series into halves and compares
// each half's Pearson correlation against the benchmark. A missing benchmark
// falls back to a synthetic stand-in and halves the resulting confidence.
func (d *Detector) DetectCorrelationBreak(metric string, series, benchmark []float64) *Anomaly {
	if len(series) < d.config.MinSeriesSamples {
		return nil
	}

	synthetic := false
	if len(benchmark) != len(series) {
		benchmark = syntheticBenchmark(series)
		synthetic = true
	}

	half := len(series) / 2
	corr1 := pearson(series[:half], benchmark[:half])
	corr2 := pearson(series[half:], benchmark[half:])
	diff := math.Abs(corr2 - corr1)
	if diff <= d.config.CorrelationBreakThreshold {
		return nil
	}

	confidence := math.Min(0.85, 0.4+diff/2)
	if synthetic {
		confidence /= 2
	}

	severity := SeverityMedium
	if diff > 2*d.config.CorrelationBreakThreshold {
		severity = SeverityHigh
	}

	return &Anomaly{
		ID:          uuid.New().String(),
		Metric:      metric,
		Type:        TypePattern,
		Pattern:     "correlation_break",
		Value:       diff,
		Threshold:   d.config.CorrelationBreakThreshold,
		Severity:    severity,
		Confidence:  confidence,
		Description: fmt.Sprintf("%s benchmark correlation moved from %.2f to %.2f", metric, corr1, corr2),
		Timestamp:   time.Now(),
	}
}

// DetectRegimeChange compares volatility and mean return between the two
// halves of the series and flags when the regime classification changes and
// the relative volatility delta exceeds the minimum.
func (d *Detector) DetectRegimeChange(metric string, series []float64) *Anomaly {
	if len(series) < d.config.MinSeriesSamples {
		return nil
	}

	half := len(series) / 2
	mean1, vol1 := meanStd(series[:half])
	mean2, vol2 := meanStd(series[half:])

	regime1 := classifyRegime(mean1, vol1)
	regime2 := classifyRegime(mean2, vol2)
	if regime1 == regime2 {
		return nil
	}

	volDelta := math.Abs(vol2-vol1) / math.Max(vol1, 1e-9)
	if volDelta <= regimeVolDeltaMin {
		return nil
	}

	// Low-confidence by nature: two small windows and coarse classes.
	confidence := math.Min(0.6, 0.2+volDelta/5)

	severity := SeverityMedium
	if regime2 == "high_volatility" {
		severity = SeverityHigh
	}

	return &Anomaly{
		ID:          uuid.New().String(),
		Metric:      metric,
		Type:        TypePattern,
		Pattern:     "regime_change",
		Value:       volDelta,
		Threshold:   regimeVolDeltaMin,
		Severity:    severity,
		Confidence:  confidence,
		Description: fmt.Sprintf("%s regime shifted from %s to %s", metric, regime1, regime2),
		Timestamp:   time.Now(),
	}
}

func classifyRegime(meanReturn, volatility float64) string {
	switch {
	case volatility > regimeHighVol:
		return "high_volatility"
	case meanReturn > regimeTrend:
		return "bull"
	case meanReturn < -regimeTrend:
		return "bear"
	default:
		return "normal"
	}
}

// syntheticBenchmark generates a deterministic stand-in series with the
// same scale as the input, used when no real benchmark is supplied.
func syntheticBenchmark(series []float64) []float64 {
	mean, std := meanStd(series)
	if std < 1e-9 {
		std = 1e-9
	}
	out := make([]float64, len(series))
	for i := range series {
		out[i] = mean + std*math.Sin(float64(i)/3)
	}
	return out
}
