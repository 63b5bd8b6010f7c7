// Package alerting owns the alert data model, condition evaluation and the
// triggered-alert lifecycle: cooldown, acknowledgment, resolution and
// escalation.
package alerting

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity represents alert severity levels
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRanks = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the numeric ordering of a severity, 0 for unknown values.
func (s Severity) Rank() int { return severityRanks[s] }

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// Status is the lifecycle state of a triggered alert.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
	StatusEscalated    Status = "escalated"
)

// ConditionType discriminates alert condition evaluation strategies.
type ConditionType string

const (
	ConditionThreshold        ConditionType = "threshold"
	ConditionPercentageChange ConditionType = "percentage_change"
	ConditionMovingAverage    ConditionType = "moving_average"
	ConditionComposite        ConditionType = "composite"
	ConditionAnomaly          ConditionType = "anomaly"
)

// Operator compares a metric value against the condition value.
type Operator string

const (
	OpGreaterThan Operator = "gt"
	OpLessThan    Operator = "lt"
	OpGreaterEq   Operator = "gte"
	OpLessEq      Operator = "lte"
	OpEqual       Operator = "eq"
	OpBetween     Operator = "between"
)

// Aggregation reduces a metric window to a single value before comparison.
type Aggregation string

const (
	AggAvg   Aggregation = "avg"
	AggSum   Aggregation = "sum"
	AggMin   Aggregation = "min"
	AggMax   Aggregation = "max"
	AggCount Aggregation = "count"
)

// CompositeLogic combines sub-condition results.
type CompositeLogic string

const (
	LogicAnd CompositeLogic = "and"
	LogicOr  CompositeLogic = "or"
)

// ChannelType is the closed set of notification transports.
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelSMS     ChannelType = "sms"
	ChannelChat    ChannelType = "chat"
	ChannelWebhook ChannelType = "webhook"
	ChannelConsole ChannelType = "console"
)

// EscalationCondition gates whether an escalation rule fires at its due time.
type EscalationCondition string

const (
	EscalateUnacknowledged EscalationCondition = "unacknowledged"
	EscalateUnresolved     EscalationCondition = "unresolved"
	EscalateTimeBased      EscalationCondition = "time_based"
	EscalateSeverityBased  EscalationCondition = "severity_based"
)

// NotificationStatus is the delivery state of a notification record.
type NotificationStatus string

const (
	NotificationPending  NotificationStatus = "pending"
	NotificationSent     NotificationStatus = "sent"
	NotificationFailed   NotificationStatus = "failed"
	NotificationRetrying NotificationStatus = "retrying"
)

// ConditionValue holds a scalar comparison value or an inclusive range for
// the between operator. It marshals as a bare number or a two-element array.
type ConditionValue struct {
	Low     float64 `json:"-"`
	High    float64 `json:"-"`
	IsRange bool    `json:"-"`
}

// Scalar builds a scalar condition value.
func Scalar(v float64) ConditionValue { return ConditionValue{Low: v} }

// Range builds an inclusive range condition value.
func Range(low, high float64) ConditionValue {
	return ConditionValue{Low: low, High: high, IsRange: true}
}

// MarshalJSON implements json.Marshaler.
func (v ConditionValue) MarshalJSON() ([]byte, error) {
	if v.IsRange {
		return json.Marshal([2]float64{v.Low, v.High})
	}
	return json.Marshal(v.Low)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *ConditionValue) UnmarshalJSON(data []byte) error {
	var scalar float64
	if err := json.Unmarshal(data, &scalar); err == nil {
		*v = Scalar(scalar)
		return nil
	}
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("condition value must be a number or a two-element array: %w", err)
	}
	*v = Range(pair[0], pair[1])
	return nil
}

// AlertCondition is a predicate over a metric value. Composite conditions
// form a tree combined with and/or logic.
type AlertCondition struct {
	Type          ConditionType    `json:"type"`
	Metric        string           `json:"metric,omitempty"`
	Operator      Operator         `json:"operator,omitempty"`
	Value         ConditionValue   `json:"value"`
	Aggregation   Aggregation      `json:"aggregation,omitempty"`
	WindowMinutes int              `json:"window_minutes,omitempty"`
	SubConditions []AlertCondition `json:"sub_conditions,omitempty"`
	Logic         CompositeLogic   `json:"logic,omitempty"`
}

// EscalationRule promotes an unresolved alert to additional channels after
// a delay from the previous level (or from trigger time for level 1).
type EscalationRule struct {
	Level        int                   `json:"level"`
	DelayMinutes int                   `json:"delay_minutes"`
	Condition    EscalationCondition   `json:"condition"`
	Channels     []NotificationChannel `json:"channels"`
}

// NotificationChannel is a notification transport plus its opaque
// provider settings. Settings are validated by the channel's provider,
// never inspected by the core.
type NotificationChannel struct {
	Type              ChannelType            `json:"type"`
	Name              string                 `json:"name,omitempty"`
	Enabled           bool                   `json:"enabled"`
	Settings          map[string]interface{} `json:"settings,omitempty"`
	RetryAttempts     int                    `json:"retry_attempts"`
	RetryDelaySeconds int                    `json:"retry_delay_seconds"`
}

// Key returns the stable identity used to cache provider instances.
func (c NotificationChannel) Key() string {
	if c.Name != "" {
		return string(c.Type) + ":" + c.Name
	}
	return string(c.Type)
}

// AlertConfig is a configured alert: the condition to watch, where to
// notify, and how triggers are spaced and escalated.
type AlertConfig struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	Description      string                `json:"description,omitempty"`
	Enabled          bool                  `json:"enabled"`
	Condition        AlertCondition        `json:"condition"`
	Threshold        *ConditionValue       `json:"threshold,omitempty"`
	TimeframeMinutes int                   `json:"timeframe_minutes,omitempty"`
	Channels         []NotificationChannel `json:"channels"`
	Severity         Severity              `json:"severity"`
	CooldownMinutes  int                   `json:"cooldown_minutes"`
	EscalationRules  []EscalationRule      `json:"escalation_rules,omitempty"`
	Tags             []string              `json:"tags,omitempty"`
	CreatedBy        string                `json:"created_by,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// TriggerThreshold is the threshold recorded on alerts this config fires:
// the explicit config-level value when set, otherwise the condition's own.
func (c *AlertConfig) TriggerThreshold() ConditionValue {
	if c.Threshold != nil {
		return *c.Threshold
	}
	return c.Condition.Value
}

// Clone returns a copy whose slices do not share backing storage with the
// receiver.
func (c *AlertConfig) Clone() AlertConfig {
	clone := *c
	if c.Threshold != nil {
		threshold := *c.Threshold
		clone.Threshold = &threshold
	}
	if c.Channels != nil {
		clone.Channels = append([]NotificationChannel(nil), c.Channels...)
	}
	if c.EscalationRules != nil {
		clone.EscalationRules = append([]EscalationRule(nil), c.EscalationRules...)
	}
	if c.Tags != nil {
		clone.Tags = append([]string(nil), c.Tags...)
	}
	return clone
}

// NotificationRecord tracks one delivery attempt chain for one channel.
// Mutated only by the delivery subsystem.
type NotificationRecord struct {
	ID            string              `json:"id"`
	Channel       NotificationChannel `json:"channel"`
	Status        NotificationStatus  `json:"status"`
	Attempts      int                 `json:"attempts"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
	Error         string              `json:"error,omitempty"`
	Response      string              `json:"response,omitempty"`
}

// TriggeredAlert is a fired alert instance. Owned exclusively by the
// lifecycle manager; mutated only through defined transitions.
type TriggeredAlert struct {
	ID              string               `json:"id"`
	ConfigID        string               `json:"config_id"`
	StrategyID      string               `json:"strategy_id,omitempty"`
	Severity        Severity             `json:"severity"`
	Condition       AlertCondition       `json:"condition"`
	ActualValue     float64              `json:"actual_value"`
	Threshold       ConditionValue       `json:"threshold"`
	Timestamp       time.Time            `json:"timestamp"`
	Status          Status               `json:"status"`
	AcknowledgedBy  string               `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time           `json:"acknowledged_at,omitempty"`
	ResolvedAt      *time.Time           `json:"resolved_at,omitempty"`
	EscalationLevel int                  `json:"escalation_level"`
	Notifications   []NotificationRecord `json:"notifications"`
	Metadata        map[string]string    `json:"metadata,omitempty"`
}

// Clone returns a deep copy safe to read outside the manager's lock: the
// notification records and metadata get their own backing storage.
func (a *TriggeredAlert) Clone() TriggeredAlert {
	clone := *a
	if a.AcknowledgedAt != nil {
		at := *a.AcknowledgedAt
		clone.AcknowledgedAt = &at
	}
	if a.ResolvedAt != nil {
		at := *a.ResolvedAt
		clone.ResolvedAt = &at
	}
	if a.Notifications != nil {
		clone.Notifications = append([]NotificationRecord(nil), a.Notifications...)
	}
	if a.Metadata != nil {
		clone.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}

// Terminal reports whether the alert reached its final state.
func (a *TriggeredAlert) Terminal() bool { return a.Status == StatusResolved }

// Acknowledged reports whether the alert has been acknowledged.
func (a *TriggeredAlert) Acknowledged() bool { return a.AcknowledgedAt != nil }

// Summary holds the counts exposed to the admin surface.
type Summary struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Critical     int `json:"critical"`
	Acknowledged int `json:"acknowledged"`
}
