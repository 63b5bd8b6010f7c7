// Package metrics exposes Prometheus instrumentation for the alerting
// engine. All methods are nil-receiver safe so instrumentation stays
// optional in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the engine's Prometheus collectors.
type Metrics struct {
	alertsTriggered     *prometheus.CounterVec
	alertsAcknowledged  prometheus.Counter
	alertsResolved      prometheus.Counter
	escalations         prometheus.Counter
	evaluationErrors    prometheus.Counter
	evaluationDuration  prometheus.Histogram
	notificationsSent   *prometheus.CounterVec
	notificationsFailed *prometheus.CounterVec
	notificationRetries prometheus.Counter
	queueDepth          prometheus.Gauge
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		alertsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "alerts_triggered_total",
			Help:      "Triggered alerts by severity.",
		}, []string{"severity"}),
		alertsAcknowledged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "alerts_acknowledged_total",
			Help:      "Acknowledged alerts.",
		}),
		alertsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "alerts_resolved_total",
			Help:      "Resolved alerts.",
		}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "alert_escalations_total",
			Help:      "Fired escalation levels.",
		}),
		evaluationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "evaluation_errors_total",
			Help:      "Per-config evaluation errors.",
		}),
		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sentinel",
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of a full evaluation pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "notifications_sent_total",
			Help:      "Successful deliveries by channel type.",
		}, []string{"channel"}),
		notificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "notifications_failed_total",
			Help:      "Terminally failed deliveries by channel type.",
		}, []string{"channel"}),
		notificationRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "notification_retries_total",
			Help:      "Delivery retries.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentinel",
			Name:      "notification_queue_depth",
			Help:      "Pending notification jobs.",
		}),
	}

	reg.MustRegister(
		m.alertsTriggered,
		m.alertsAcknowledged,
		m.alertsResolved,
		m.escalations,
		m.evaluationErrors,
		m.evaluationDuration,
		m.notificationsSent,
		m.notificationsFailed,
		m.notificationRetries,
		m.queueDepth,
	)
	return m
}

func (m *Metrics) AlertTriggered(severity string) {
	if m == nil {
		return
	}
	m.alertsTriggered.WithLabelValues(severity).Inc()
}

func (m *Metrics) AlertAcknowledged() {
	if m == nil {
		return
	}
	m.alertsAcknowledged.Inc()
}

func (m *Metrics) AlertResolved() {
	if m == nil {
		return
	}
	m.alertsResolved.Inc()
}

func (m *Metrics) EscalationFired() {
	if m == nil {
		return
	}
	m.escalations.Inc()
}

func (m *Metrics) EvaluationError() {
	if m == nil {
		return
	}
	m.evaluationErrors.Inc()
}

func (m *Metrics) ObserveEvaluation(d time.Duration) {
	if m == nil {
		return
	}
	m.evaluationDuration.Observe(d.Seconds())
}

func (m *Metrics) NotificationSent(channel string) {
	if m == nil {
		return
	}
	m.notificationsSent.WithLabelValues(channel).Inc()
}

func (m *Metrics) NotificationFailed(channel string) {
	if m == nil {
		return
	}
	m.notificationsFailed.WithLabelValues(channel).Inc()
}

func (m *Metrics) NotificationRetried() {
	if m == nil {
		return
	}
	m.notificationRetries.Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
