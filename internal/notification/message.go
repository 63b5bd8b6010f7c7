// Package notification delivers alert notifications: messages are rendered
// once at submission time, queued durably, and retried per channel policy.
package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/quantops/sentinel/internal/alerting"
)

// Message is the rendered notification payload handed to providers. It is
// built once when the notification is submitted so retries always carry the
// alert state as it was at trigger time.
type Message struct {
	AlertID     string                  `json:"alert_id"`
	ConfigName  string                  `json:"config_name"`
	Severity    alerting.Severity       `json:"severity"`
	Subject     string                  `json:"subject"`
	Body        string                  `json:"body"`
	StrategyID  string                  `json:"strategy_id,omitempty"`
	ActualValue float64                 `json:"actual_value"`
	Threshold   alerting.ConditionValue `json:"threshold"`
	Timestamp   time.Time               `json:"timestamp"`
}

const defaultTemplate = "[{{severity}}] {{alertName}}: value {{actualValue}} crossed threshold {{threshold}} at {{timestamp}}"

// RenderMessage builds the message for one channel. A channel may override
// the body with a "template" setting; unknown placeholders pass through
// untouched.
func RenderMessage(alert *alerting.TriggeredAlert, cfg *alerting.AlertConfig, ch alerting.NotificationChannel) Message {
	template := defaultTemplate
	if t, ok := ch.Settings["template"].(string); ok && t != "" {
		template = t
	}

	replacer := strings.NewReplacer(
		"{{alertName}}", cfg.Name,
		"{{severity}}", string(alert.Severity),
		"{{actualValue}}", formatValue(alert.ActualValue),
		"{{threshold}}", formatThreshold(alert.Threshold),
		"{{timestamp}}", alert.Timestamp.Format(time.RFC3339),
		"{{strategyId}}", alert.StrategyID,
		"{{description}}", cfg.Description,
	)

	return Message{
		AlertID:     alert.ID,
		ConfigName:  cfg.Name,
		Severity:    alert.Severity,
		Subject:     fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), cfg.Name),
		Body:        replacer.Replace(template),
		StrategyID:  alert.StrategyID,
		ActualValue: alert.ActualValue,
		Threshold:   alert.Threshold,
		Timestamp:   alert.Timestamp,
	}
}

func formatValue(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.6f", v), "0"), ".")
}

func formatThreshold(v alerting.ConditionValue) string {
	if v.IsRange {
		return formatValue(v.Low) + " to " + formatValue(v.High)
	}
	return formatValue(v.Low)
}
