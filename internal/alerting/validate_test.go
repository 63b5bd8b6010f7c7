package alerting

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidConfigPasses(t *testing.T) {
	cfg := sampleConfig()
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AlertConfig)
	}{
		{"missing name", func(c *AlertConfig) { c.Name = "" }},
		{"bad severity", func(c *AlertConfig) { c.Severity = "urgent" }},
		{"negative cooldown", func(c *AlertConfig) { c.CooldownMinutes = -1 }},
		{"no channels", func(c *AlertConfig) { c.Channels = nil }},
		{"bad channel type", func(c *AlertConfig) { c.Channels[0].Type = "pigeon" }},
		{"zero retry attempts", func(c *AlertConfig) { c.Channels[0].RetryAttempts = 0 }},
		{"negative retry delay", func(c *AlertConfig) { c.Channels[0].RetryDelaySeconds = -5 }},
		{"unknown operator", func(c *AlertConfig) { c.Condition.SubConditions[0].Operator = "approx" }},
		{"between with scalar", func(c *AlertConfig) {
			c.Condition.SubConditions[1].Value = Scalar(1)
		}},
		{"between bounds reversed", func(c *AlertConfig) {
			c.Condition.SubConditions[1].Value = Range(5, 1)
		}},
		{"scalar op with range", func(c *AlertConfig) {
			c.Condition.SubConditions[0].Value = Range(1, 2)
		}},
		{"composite without subs", func(c *AlertConfig) { c.Condition.SubConditions = nil }},
		{"composite bad logic", func(c *AlertConfig) { c.Condition.Logic = "xor" }},
		{"condition missing metric", func(c *AlertConfig) { c.Condition.SubConditions[0].Metric = "" }},
		{"escalation level zero", func(c *AlertConfig) { c.EscalationRules[0].Level = 0 }},
		{"escalation levels not increasing", func(c *AlertConfig) { c.EscalationRules[1].Level = 1 }},
		{"escalation bad condition", func(c *AlertConfig) { c.EscalationRules[0].Condition = "moon_phase" }},
		{"escalation without channels", func(c *AlertConfig) { c.EscalationRules[0].Channels = nil }},
		{"aggregation without window", func(c *AlertConfig) {
			c.Condition.SubConditions[0].Aggregation = AggAvg
			c.Condition.SubConditions[0].WindowMinutes = 0
		}},
		{"unknown aggregation", func(c *AlertConfig) {
			c.Condition.SubConditions[0].Aggregation = "median"
			c.Condition.SubConditions[0].WindowMinutes = 5
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := sampleConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "expected ErrInvalidConfig, got %v", err)
		})
	}
}

func TestCompositeDepthLimit(t *testing.T) {
	cond := AlertCondition{
		Type:     ConditionThreshold,
		Metric:   "system.cpuPercent",
		Operator: OpGreaterThan,
		Value:    Scalar(90),
	}
	for i := 0; i < maxConditionDepth+2; i++ {
		cond = AlertCondition{
			Type:          ConditionComposite,
			Logic:         LogicAnd,
			SubConditions: []AlertCondition{cond},
		}
	}

	cfg := sampleConfig()
	cfg.Condition = cond
	assert.Error(t, cfg.Validate())
}
