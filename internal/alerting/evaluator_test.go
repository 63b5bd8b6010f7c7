package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quantops/sentinel/internal/anomaly"
	"github.com/quantops/sentinel/internal/snapshot"
)

func snapAt(ts time.Time, metrics map[string]interface{}) snapshot.Snapshot {
	return snapshot.Snapshot{Timestamp: ts, Metrics: metrics}
}

func perfSnap(ts time.Time, sharpe float64) snapshot.Snapshot {
	return snapAt(ts, map[string]interface{}{
		"performance": map[string]interface{}{
			"sharpeRatio": sharpe,
		},
	})
}

func TestThresholdCondition(t *testing.T) {
	e := NewEvaluator(nil)
	now := time.Now()

	cond := AlertCondition{
		Type:     ConditionThreshold,
		Metric:   "performance.sharpeRatio",
		Operator: OpLessThan,
		Value:    Scalar(0.5),
	}

	triggered, actual, err := e.Evaluate(cond, perfSnap(now, 0.3))
	require.NoError(t, err)
	assert.True(t, triggered)
	assert.Equal(t, 0.3, actual)

	triggered, actual, err = e.Evaluate(cond, perfSnap(now.Add(time.Minute), 0.8))
	require.NoError(t, err)
	assert.False(t, triggered)
	assert.Equal(t, 0.8, actual)
}

func TestOperators(t *testing.T) {
	tests := []struct {
		name   string
		op     Operator
		value  ConditionValue
		actual float64
		want   bool
	}{
		{"gt true", OpGreaterThan, Scalar(1), 2, true},
		{"gt boundary", OpGreaterThan, Scalar(1), 1, false},
		{"gte boundary", OpGreaterEq, Scalar(1), 1, true},
		{"lt true", OpLessThan, Scalar(1), 0.5, true},
		{"lte boundary", OpLessEq, Scalar(1), 1, true},
		{"eq true", OpEqual, Scalar(0.3), 0.3, true},
		{"eq false", OpEqual, Scalar(0.3), 0.30001, false},
		{"between inside", OpBetween, Range(1, 3), 2, true},
		{"between low edge", OpBetween, Range(1, 3), 1, true},
		{"between high edge", OpBetween, Range(1, 3), 3, true},
		{"between outside", OpBetween, Range(1, 3), 3.01, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compare(tt.op, tt.actual, tt.value))
		})
	}
}

func TestMissingMetricDefaultsToZero(t *testing.T) {
	e := NewEvaluator(nil)

	cond := AlertCondition{
		Type:     ConditionThreshold,
		Metric:   "market.btc.missing",
		Operator: OpLessThan,
		Value:    Scalar(0.5),
	}

	triggered, actual, err := e.Evaluate(cond, snapAt(time.Now(), map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, triggered) // 0 < 0.5
	assert.Zero(t, actual)
}

func TestCompositeShortCircuit(t *testing.T) {
	e := NewEvaluator(nil)
	now := time.Now()
	snap := snapAt(now, map[string]interface{}{
		"performance": map[string]interface{}{"sharpeRatio": 0.3, "maxDrawdown": 0.25},
	})

	low := AlertCondition{Type: ConditionThreshold, Metric: "performance.sharpeRatio", Operator: OpLessThan, Value: Scalar(0.5)}
	high := AlertCondition{Type: ConditionThreshold, Metric: "performance.maxDrawdown", Operator: OpGreaterThan, Value: Scalar(0.2)}
	never := AlertCondition{Type: ConditionThreshold, Metric: "performance.sharpeRatio", Operator: OpGreaterThan, Value: Scalar(10)}

	and := AlertCondition{Type: ConditionComposite, Logic: LogicAnd, SubConditions: []AlertCondition{low, high}}
	triggered, _, err := e.Evaluate(and, snap)
	require.NoError(t, err)
	assert.True(t, triggered)

	and.SubConditions = []AlertCondition{low, never}
	triggered, _, err = e.Evaluate(and, snap)
	require.NoError(t, err)
	assert.False(t, triggered)

	or := AlertCondition{Type: ConditionComposite, Logic: LogicOr, SubConditions: []AlertCondition{never, low}}
	triggered, _, err = e.Evaluate(or, snap)
	require.NoError(t, err)
	assert.True(t, triggered)
}

func TestNestedComposite(t *testing.T) {
	e := NewEvaluator(nil)
	snap := snapAt(time.Now(), map[string]interface{}{
		"performance": map[string]interface{}{"sharpeRatio": 0.3},
		"system":      map[string]interface{}{"cpuPercent": 95.0},
	})

	inner := AlertCondition{Type: ConditionComposite, Logic: LogicOr, SubConditions: []AlertCondition{
		{Type: ConditionThreshold, Metric: "system.cpuPercent", Operator: OpGreaterThan, Value: Scalar(90)},
		{Type: ConditionThreshold, Metric: "system.memPercent", Operator: OpGreaterThan, Value: Scalar(90)},
	}}
	outer := AlertCondition{Type: ConditionComposite, Logic: LogicAnd, SubConditions: []AlertCondition{
		{Type: ConditionThreshold, Metric: "performance.sharpeRatio", Operator: OpLessThan, Value: Scalar(0.5)},
		inner,
	}}

	triggered, _, err := e.Evaluate(outer, snap)
	require.NoError(t, err)
	assert.True(t, triggered)
}

func TestPercentageChange(t *testing.T) {
	e := NewEvaluator(nil)
	base := time.Now()

	cond := AlertCondition{
		Type:          ConditionPercentageChange,
		Metric:        "performance.totalPnl",
		Operator:      OpLessThan,
		Value:         Scalar(-10),
		WindowMinutes: 60,
	}

	pnl := func(ts time.Time, v float64) snapshot.Snapshot {
		return snapAt(ts, map[string]interface{}{
			"performance": map[string]interface{}{"totalPnl": v},
		})
	}

	// Single observation cannot compute a change.
	triggered, _, err := e.Evaluate(cond, pnl(base, 1000))
	require.NoError(t, err)
	assert.False(t, triggered)

	// 1000 -> 850 is a 15% drop.
	triggered, change, err := e.Evaluate(cond, pnl(base.Add(5*time.Minute), 850))
	require.NoError(t, err)
	assert.True(t, triggered)
	assert.InDelta(t, -15.0, change, 1e-9)
}

func TestMovingAverage(t *testing.T) {
	e := NewEvaluator(nil)
	base := time.Now()

	cond := AlertCondition{
		Type:          ConditionMovingAverage,
		Metric:        "performance.dailyReturn",
		Operator:      OpLessThan,
		Value:         Scalar(0),
		WindowMinutes: 60,
	}

	ret := func(ts time.Time, v float64) snapshot.Snapshot {
		return snapAt(ts, map[string]interface{}{
			"performance": map[string]interface{}{"dailyReturn": v},
		})
	}

	for i, v := range []float64{0.01, -0.02, -0.03} {
		_, _, err := e.Evaluate(cond, ret(base.Add(time.Duration(i)*time.Minute), v))
		require.NoError(t, err)
	}

	triggered, avg, err := e.Evaluate(cond, ret(base.Add(3*time.Minute), -0.04))
	require.NoError(t, err)
	assert.True(t, triggered)
	assert.InDelta(t, -0.02, avg, 1e-9)
}

func TestAggregation(t *testing.T) {
	e := NewEvaluator(nil)
	base := time.Now()

	cond := AlertCondition{
		Type:          ConditionThreshold,
		Metric:        "performance.totalTrades",
		Operator:      OpGreaterThan,
		Value:         Scalar(250),
		Aggregation:   AggSum,
		WindowMinutes: 60,
	}

	trades := func(ts time.Time, v float64) snapshot.Snapshot {
		return snapAt(ts, map[string]interface{}{
			"performance": map[string]interface{}{"totalTrades": v},
		})
	}

	triggered, _, err := e.Evaluate(cond, trades(base, 100))
	require.NoError(t, err)
	assert.False(t, triggered)

	triggered, sum, err := e.Evaluate(cond, trades(base.Add(time.Minute), 100))
	require.NoError(t, err)
	assert.False(t, triggered)
	assert.Equal(t, 200.0, sum)

	triggered, sum, err = e.Evaluate(cond, trades(base.Add(2*time.Minute), 100))
	require.NoError(t, err)
	assert.True(t, triggered)
	assert.Equal(t, 300.0, sum)
}

func TestAnomalyCondition(t *testing.T) {
	detector := anomaly.NewDetector(anomaly.Config{ZScoreThreshold: 2.0}, zap.NewNop())
	e := NewEvaluator(detector)
	base := time.Now()

	cond := AlertCondition{
		Type:          ConditionAnomaly,
		Metric:        "performance.dailyReturn",
		WindowMinutes: 0, // full retained history
	}

	ret := func(ts time.Time, v float64) snapshot.Snapshot {
		return snapAt(ts, map[string]interface{}{
			"performance": map[string]interface{}{"dailyReturn": v},
		})
	}

	for i := 0; i < 9; i++ {
		triggered, _, err := e.Evaluate(cond, ret(base.Add(time.Duration(i)*time.Minute), 1.0))
		require.NoError(t, err)
		assert.False(t, triggered)
	}

	triggered, actual, err := e.Evaluate(cond, ret(base.Add(9*time.Minute), 10.0))
	require.NoError(t, err)
	assert.True(t, triggered)
	assert.Equal(t, 10.0, actual)
}

func TestUnknownConditionType(t *testing.T) {
	e := NewEvaluator(nil)
	_, _, err := e.Evaluate(AlertCondition{Type: "bogus"}, snapAt(time.Now(), nil))
	assert.Error(t, err)
}
