package anomaly

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDetector(cfg Config) *Detector {
	return NewDetector(cfg, zap.NewNop())
}

func TestZScoreRequiresMinimumSamples(t *testing.T) {
	d := newTestDetector(Config{ZScoreThreshold: 2.0})

	// 4 points: not enough history, never an anomaly regardless of values.
	a := d.DetectZScore("performance.dailyReturn", []float64{1, 1, 1, 100})
	assert.Nil(t, a)

	all := d.DetectAll("performance.dailyReturn", []float64{1, 1, 1, 100}, nil)
	assert.Empty(t, all)
}

func TestZScoreFlagsExtremeOutlier(t *testing.T) {
	d := newTestDetector(Config{ZScoreThreshold: 2.0})

	series := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 10}
	a := d.DetectZScore("performance.dailyReturn", series)
	require.NotNil(t, a)

	assert.Equal(t, TypeZScore, a.Type)
	assert.Equal(t, SeverityCritical, a.Severity)
	assert.Equal(t, 10.0, a.Value)
	assert.Greater(t, math.Abs(a.ZScore), 2*2.0)
	assert.InDelta(t, 0.95, a.Confidence, 1e-9)
}

func TestZScoreQuietSeries(t *testing.T) {
	d := newTestDetector(Config{ZScoreThreshold: 2.0})

	series := []float64{1.0, 1.1, 0.9, 1.05, 0.95, 1.02, 0.98, 1.0}
	assert.Nil(t, d.DetectZScore("performance.dailyReturn", series))

	// Flat history with a matching latest value: z-score is exactly 0.
	flat := []float64{2, 2, 2, 2, 2, 2}
	assert.Nil(t, d.DetectZScore("performance.dailyReturn", flat))
}

func TestPercentileTails(t *testing.T) {
	d := newTestDetector(Config{PercentileThreshold: 95})

	series := make([]float64, 0, 21)
	for i := 1; i <= 20; i++ {
		series = append(series, float64(i))
	}

	// Latest far above every history value lands at rank 100.
	a := d.DetectPercentile("performance.totalPnl", append(series, 500))
	require.NotNil(t, a)
	assert.Equal(t, TypePercentile, a.Type)
	assert.Equal(t, SeverityCritical, a.Severity)
	assert.Equal(t, 0.8, a.Confidence)

	// Latest below everything lands at rank 0.
	a = d.DetectPercentile("performance.totalPnl", append(series, -500))
	require.NotNil(t, a)
	assert.Equal(t, SeverityCritical, a.Severity)

	// Median latest is unremarkable.
	assert.Nil(t, d.DetectPercentile("performance.totalPnl", append(series, 10.5)))
}

func TestPercentileRequiresSeriesSamples(t *testing.T) {
	d := newTestDetector(Config{MinSeriesSamples: 10})
	assert.Nil(t, d.DetectPercentile("m", []float64{1, 2, 3, 1000}))
}

func TestBaselineCacheLifecycle(t *testing.T) {
	d := newTestDetector(Config{MinSamples: 5})

	// Below the sample floor the baseline is not published.
	d.UpdateBaseline("m", []float64{1, 2, 3})
	assert.Nil(t, d.Baseline("m"))

	window := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	d.UpdateBaseline("m", window)
	b := d.Baseline("m")
	require.NotNil(t, b)
	assert.InDelta(t, 5.5, b.Mean, 1e-9)
	assert.Equal(t, 10, b.SampleCount)
	assert.Equal(t, 10.0, b.Percentiles[99])

	// Invalidation drops the cache without touching detection.
	d.InvalidateBaseline("m")
	assert.Nil(t, d.Baseline("m"))
	series := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 10}
	assert.NotNil(t, d.DetectZScore("m", series))
}

func TestMeanStd(t *testing.T) {
	mean, std := meanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 1e-9)
	assert.InDelta(t, 2.0, std, 1e-9)

	mean, std = meanStd(nil)
	assert.Zero(t, mean)
	assert.Zero(t, std)
}

func TestPearson(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 6, 8, 10}
	assert.InDelta(t, 1.0, pearson(x, y), 1e-9)

	inv := []float64{10, 8, 6, 4, 2}
	assert.InDelta(t, -1.0, pearson(x, inv), 1e-9)

	flat := []float64{3, 3, 3, 3, 3}
	assert.Zero(t, pearson(x, flat))
	assert.Zero(t, pearson(x, []float64{1, 2}))
}
