package anomaly

import (
	"math"
	"sort"
)

// meanStd computes mean and population stddev of a slice.
func meanStd(vals []float64) (mean, std float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	mean = sum / float64(len(vals))
	variance := 0.0
	for _, v := range vals {
		variance += (v - mean) * (v - mean)
	}
	std = math.Sqrt(variance / float64(len(vals)))
	return
}

// zScoreOf computes (v - mean) / std with a floor on std so a zero-spread
// history still yields an extreme score for a deviating value.
func zScoreOf(v, mean, std float64) float64 {
	if std < 1e-9 {
		if v == mean {
			return 0
		}
		std = 1e-9
	}
	return (v - mean) / std
}

// percentileRank returns the percentage of history values at or below v.
func percentileRank(history []float64, v float64) float64 {
	if len(history) == 0 {
		return 0
	}
	sorted := append([]float64(nil), history...)
	sort.Float64s(sorted)
	idx := sort.SearchFloat64s(sorted, v)
	// count values <= v
	for idx < len(sorted) && sorted[idx] <= v {
		idx++
	}
	return float64(idx) / float64(len(sorted)) * 100
}

// percentileValue returns the p-th percentile of vals by nearest-rank.
func percentileValue(vals []float64, p int) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	rank := int(math.Ceil(float64(p)/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// pearson computes the Pearson correlation of two equal-length series.
// Degenerate inputs (constant series, mismatched lengths) report 0.
func pearson(x, y []float64) float64 {
	n := len(x)
	if n == 0 || n != len(y) {
		return 0
	}
	meanX, stdX := meanStd(x)
	meanY, stdY := meanStd(y)
	if stdX < 1e-9 || stdY < 1e-9 {
		return 0
	}
	cov := 0.0
	for i := 0; i < n; i++ {
		cov += (x[i] - meanX) * (y[i] - meanY)
	}
	cov /= float64(n)
	return cov / (stdX * stdY)
}
