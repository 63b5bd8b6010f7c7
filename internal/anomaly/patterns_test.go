package anomaly

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegativeRun(t *testing.T) {
	d := newTestDetector(Config{ConsecutiveNegatives: 3})

	tests := []struct {
		name     string
		series   []float64
		wantRun  float64
		severity Severity
	}{
		{"run of three", []float64{1, 2, -1, -2, -3}, 3, SeverityMedium},
		{"run of five", []float64{1, -1, -1, -1, -1, -1}, 5, SeverityHigh},
		{"run of six", []float64{-1, -1, -1, -1, -1, -1}, 6, SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := d.DetectNegativeRun("performance.dailyReturn", tt.series)
			require.NotNil(t, a)
			assert.Equal(t, TypePattern, a.Type)
			assert.Equal(t, "consecutive_negative", a.Pattern)
			assert.Equal(t, tt.wantRun, a.Value)
			assert.Equal(t, tt.severity, a.Severity)
			assert.LessOrEqual(t, a.Confidence, 0.9)
		})
	}

	// Streak broken by the latest value.
	assert.Nil(t, d.DetectNegativeRun("m", []float64{-1, -1, -1, -1, 2}))
	// Streak too short.
	assert.Nil(t, d.DetectNegativeRun("m", []float64{1, 1, -1, -2}))
	assert.Nil(t, d.DetectNegativeRun("m", nil))
}

func TestVolumeSpike(t *testing.T) {
	d := newTestDetector(Config{VolumeAnomalyThreshold: 3.0})

	quiet := []float64{100, 102, 98, 101, 99, 100, 101}
	assert.Nil(t, d.DetectVolumeSpike("performance.totalTrades", quiet))

	spike := append(append([]float64(nil), quiet...), 500)
	a := d.DetectVolumeSpike("performance.totalTrades", spike)
	require.NotNil(t, a)
	assert.Equal(t, "volume_spike", a.Pattern)
	assert.Greater(t, math.Abs(a.ZScore), 3.0)

	// Too little history.
	assert.Nil(t, d.DetectVolumeSpike("m", []float64{1, 2, 500}))
}

func TestCorrelationBreakWithBenchmark(t *testing.T) {
	d := newTestDetector(Config{CorrelationBreakThreshold: 0.5})

	n := 20
	series := make([]float64, n)
	benchmark := make([]float64, n)
	for i := 0; i < n; i++ {
		benchmark[i] = math.Sin(float64(i) / 2)
		if i < n/2 {
			series[i] = benchmark[i] // tracks the benchmark
		} else {
			series[i] = -benchmark[i] // inverts against it
		}
	}

	a := d.DetectCorrelationBreak("performance.dailyReturn", series, benchmark)
	require.NotNil(t, a)
	assert.Equal(t, "correlation_break", a.Pattern)
	assert.InDelta(t, 2.0, a.Value, 1e-6)
	assert.Equal(t, SeverityHigh, a.Severity)
	assert.InDelta(t, 0.85, a.Confidence, 1e-6)

	// Stable correlation across halves does not flag.
	assert.Nil(t, d.DetectCorrelationBreak("m", benchmark, benchmark))
}

func TestCorrelationBreakSyntheticFallbackHalvesConfidence(t *testing.T) {
	d := newTestDetector(Config{CorrelationBreakThreshold: 0.5})

	// Build a series that tracks the synthetic stand-in in the first half
	// and inverts in the second, so the fallback path flags it.
	n := 20
	series := make([]float64, n)
	for i := 0; i < n; i++ {
		if i < n/2 {
			series[i] = math.Sin(float64(i) / 3)
		} else {
			series[i] = -math.Sin(float64(i) / 3)
		}
	}

	a := d.DetectCorrelationBreak("performance.dailyReturn", series, nil)
	require.NotNil(t, a)
	assert.LessOrEqual(t, a.Confidence, 0.425+1e-6)
}

func TestRegimeChange(t *testing.T) {
	d := newTestDetector(Config{})

	// Calm first half, violent second half.
	series := make([]float64, 0, 20)
	for i := 0; i < 10; i++ {
		series = append(series, 0.0002)
	}
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			series = append(series, 0.05)
		} else {
			series = append(series, -0.05)
		}
	}

	a := d.DetectRegimeChange("performance.dailyReturn", series)
	require.NotNil(t, a)
	assert.Equal(t, "regime_change", a.Pattern)
	assert.Equal(t, SeverityHigh, a.Severity)
	assert.GreaterOrEqual(t, a.Confidence, 0.2)
	assert.LessOrEqual(t, a.Confidence, 0.6)

	// Same regime in both halves: no flag.
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 0.0001
	}
	assert.Nil(t, d.DetectRegimeChange("performance.dailyReturn", flat))

	// Too short.
	assert.Nil(t, d.DetectRegimeChange("m", series[:8]))
}
