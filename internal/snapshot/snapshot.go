// Package snapshot defines the metric snapshot consumed by alert evaluation
// and the sources that produce it.
package snapshot

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Snapshot is a single timestamped read of all metrics available for
// evaluation. Metrics is a nested mapping of namespace -> metric name ->
// numeric/string value, e.g.:
//
//	{"performance": {"strat-1": {"sharpeRatio": 1.2}}, "system": {"cpuPercent": 40}}
type Snapshot struct {
	Timestamp time.Time              `json:"timestamp"`
	Metrics   map[string]interface{} `json:"metrics"`
}

// Value resolves a dot path (e.g. "performance.strat-1.sharpeRatio") to a
// numeric value. Missing paths and non-numeric leaves report ok=false; the
// caller decides the default.
func (s Snapshot) Value(path string) (float64, bool) {
	v, ok := s.lookup(path)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// StringValue resolves a dot path to a string leaf.
func (s Snapshot) StringValue(path string) (string, bool) {
	v, ok := s.lookup(path)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

func (s Snapshot) lookup(path string) (interface{}, bool) {
	if s.Metrics == nil {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur interface{} = s.Metrics
	for _, part := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Source supplies the latest snapshot on demand. One Fetch per evaluation
// tick gives the tick a single consistent view.
type Source interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// FuncSource adapts a plain function to a Source.
type FuncSource func(ctx context.Context) (Snapshot, error)

// Fetch implements Source.
func (f FuncSource) Fetch(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}
