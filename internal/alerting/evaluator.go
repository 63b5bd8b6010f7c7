package alerting

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantops/sentinel/internal/anomaly"
	"github.com/quantops/sentinel/internal/snapshot"
)

// defaultHistoryRetention bounds the evaluator's per-metric history.
const defaultHistoryRetention = 24 * time.Hour

type observation struct {
	ts    time.Time
	value float64
}

// Evaluator evaluates alert conditions against metric snapshots. It retains
// a rolling per-metric history for window-based condition types
// (percentage_change, moving_average, aggregations, anomaly); evaluation
// itself is deterministic given the same snapshot and history.
type Evaluator struct {
	mu        sync.Mutex
	history   map[string][]observation
	retention time.Duration
	detector  *anomaly.Detector
}

// NewEvaluator creates an evaluator. detector may be nil; anomaly-type
// conditions then never trigger.
func NewEvaluator(detector *anomaly.Detector) *Evaluator {
	return &Evaluator{
		history:   make(map[string][]observation),
		retention: defaultHistoryRetention,
		detector:  detector,
	}
}

// Evaluate resolves the condition against the snapshot and reports whether
// it triggered along with the observed value. Missing metric paths resolve
// to 0 rather than failing the evaluation.
func (e *Evaluator) Evaluate(cond AlertCondition, snap snapshot.Snapshot) (bool, float64, error) {
	switch cond.Type {
	case ConditionComposite:
		return e.evaluateComposite(cond, snap)

	case ConditionThreshold:
		value := e.observe(cond.Metric, snap)
		if cond.Aggregation != "" {
			value = e.aggregate(cond, snap.Timestamp)
		}
		return compare(cond.Operator, value, cond.Value), value, nil

	case ConditionPercentageChange:
		latest := e.observe(cond.Metric, snap)
		change, ok := e.percentageChange(cond, snap.Timestamp)
		if !ok {
			return false, latest, nil
		}
		return compare(cond.Operator, change, cond.Value), change, nil

	case ConditionMovingAverage:
		e.observe(cond.Metric, snap)
		avg, ok := e.windowAggregate(cond.Metric, cond.WindowMinutes, snap.Timestamp, AggAvg)
		if !ok {
			return false, 0, nil
		}
		return compare(cond.Operator, avg, cond.Value), avg, nil

	case ConditionAnomaly:
		latest := e.observe(cond.Metric, snap)
		if e.detector == nil {
			return false, latest, nil
		}
		series := e.windowValues(cond.Metric, cond.WindowMinutes, snap.Timestamp)
		anomalies := e.detector.DetectAll(cond.Metric, series, nil)
		return len(anomalies) > 0, latest, nil

	default:
		return false, 0, fmt.Errorf("unknown condition type %q", cond.Type)
	}
}

func (e *Evaluator) evaluateComposite(cond AlertCondition, snap snapshot.Snapshot) (bool, float64, error) {
	if len(cond.SubConditions) == 0 {
		return false, 0, fmt.Errorf("composite condition has no sub-conditions")
	}

	first := true
	var firstValue float64
	for i := range cond.SubConditions {
		triggered, value, err := e.Evaluate(cond.SubConditions[i], snap)
		if err != nil {
			return false, 0, fmt.Errorf("sub-condition %d: %w", i, err)
		}
		if first {
			firstValue = value
			first = false
		}
		// Short-circuit.
		if cond.Logic == LogicAnd && !triggered {
			return false, firstValue, nil
		}
		if cond.Logic == LogicOr && triggered {
			return true, value, nil
		}
	}
	return cond.Logic == LogicAnd, firstValue, nil
}

// observe resolves the metric from the snapshot, records it in the history,
// and returns it. Repeated lookups within one tick record only once.
func (e *Evaluator) observe(metric string, snap snapshot.Snapshot) float64 {
	value, _ := snap.Value(metric) // missing paths default to 0

	e.mu.Lock()
	defer e.mu.Unlock()

	obs := e.history[metric]
	if n := len(obs); n > 0 && obs[n-1].ts.Equal(snap.Timestamp) {
		return value
	}
	obs = append(obs, observation{ts: snap.Timestamp, value: value})

	// Prune beyond retention.
	cutoff := snap.Timestamp.Add(-e.retention)
	start := 0
	for start < len(obs) && obs[start].ts.Before(cutoff) {
		start++
	}
	e.history[metric] = obs[start:]
	return value
}

// windowValues returns the retained values for metric within the trailing
// window. A zero window returns the full retained history.
func (e *Evaluator) windowValues(metric string, windowMinutes int, now time.Time) []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	obs := e.history[metric]
	var cutoff time.Time
	if windowMinutes > 0 {
		cutoff = now.Add(-time.Duration(windowMinutes) * time.Minute)
	}
	values := make([]float64, 0, len(obs))
	for _, o := range obs {
		if windowMinutes > 0 && o.ts.Before(cutoff) {
			continue
		}
		values = append(values, o.value)
	}
	return values
}

func (e *Evaluator) windowAggregate(metric string, windowMinutes int, now time.Time, agg Aggregation) (float64, bool) {
	values := e.windowValues(metric, windowMinutes, now)
	if len(values) == 0 {
		return 0, false
	}
	switch agg {
	case AggAvg:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values)), true
	case AggSum:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum, true
	case AggMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min, true
	case AggMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max, true
	case AggCount:
		return float64(len(values)), true
	default:
		return 0, false
	}
}

func (e *Evaluator) aggregate(cond AlertCondition, now time.Time) float64 {
	v, ok := e.windowAggregate(cond.Metric, cond.WindowMinutes, now, cond.Aggregation)
	if !ok {
		return 0
	}
	return v
}

// percentageChange computes the percent move from the oldest to the newest
// retained observation inside the window.
func (e *Evaluator) percentageChange(cond AlertCondition, now time.Time) (float64, bool) {
	values := e.windowValues(cond.Metric, cond.WindowMinutes, now)
	if len(values) < 2 {
		return 0, false
	}
	oldest, latest := values[0], values[len(values)-1]
	if oldest == 0 {
		return 0, true
	}
	change := (latest - oldest) / oldest * 100
	if oldest < 0 {
		change = -change
	}
	return change, true
}

// compare applies the operator. Equality and range bounds go through
// decimal so values arriving via JSON float round-trips still compare
// exactly.
func compare(op Operator, actual float64, value ConditionValue) bool {
	switch op {
	case OpGreaterThan:
		return actual > value.Low
	case OpLessThan:
		return actual < value.Low
	case OpGreaterEq:
		return actual >= value.Low
	case OpLessEq:
		return actual <= value.Low
	case OpEqual:
		return decimal.NewFromFloat(actual).Equal(decimal.NewFromFloat(value.Low))
	case OpBetween:
		d := decimal.NewFromFloat(actual)
		return d.GreaterThanOrEqual(decimal.NewFromFloat(value.Low)) &&
			d.LessThanOrEqual(decimal.NewFromFloat(value.High))
	default:
		return false
	}
}

// Reset drops the retained history for a metric.
func (e *Evaluator) Reset(metric string) {
	e.mu.Lock()
	delete(e.history, metric)
	e.mu.Unlock()
}
