package alerting

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// maxConditionDepth bounds composite nesting. Conditions are trees by
// construction; the depth limit rejects pathological configs at create time
// so evaluation never has to guard against runaway recursion.
const maxConditionDepth = 16

var validate = validator.New()

type configValidation struct {
	ID              string   `validate:"required"`
	Name            string   `validate:"required"`
	Severity        Severity `validate:"required,oneof=low medium high critical"`
	CooldownMinutes int      `validate:"gte=0"`
}

// Validate rejects malformed configs synchronously; invalid configs are
// never stored.
func (c *AlertConfig) Validate() error {
	v := configValidation{
		ID:              c.ID,
		Name:            c.Name,
		Severity:        c.Severity,
		CooldownMinutes: c.CooldownMinutes,
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if len(c.Channels) == 0 {
		return fmt.Errorf("%w: at least one notification channel is required", ErrInvalidConfig)
	}
	for i := range c.Channels {
		if err := c.Channels[i].Validate(); err != nil {
			return fmt.Errorf("%w: channel %d: %v", ErrInvalidConfig, i, err)
		}
	}

	if err := c.Condition.Validate(0); err != nil {
		return fmt.Errorf("%w: condition: %v", ErrInvalidConfig, err)
	}
	if c.Threshold != nil && c.Threshold.IsRange && c.Threshold.Low > c.Threshold.High {
		return fmt.Errorf("%w: threshold bounds out of order", ErrInvalidConfig)
	}

	prev := 0
	for i, rule := range c.EscalationRules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("%w: escalation rule %d: %v", ErrInvalidConfig, i, err)
		}
		if rule.Level <= prev {
			return fmt.Errorf("%w: escalation levels must be strictly increasing", ErrInvalidConfig)
		}
		prev = rule.Level
	}

	return nil
}

// Validate checks a condition subtree recursively.
func (c *AlertCondition) Validate(depth int) error {
	if depth > maxConditionDepth {
		return fmt.Errorf("composite nesting exceeds %d levels", maxConditionDepth)
	}

	switch c.Type {
	case ConditionComposite:
		if c.Logic != LogicAnd && c.Logic != LogicOr {
			return fmt.Errorf("composite condition requires logic and/or, got %q", c.Logic)
		}
		if len(c.SubConditions) == 0 {
			return fmt.Errorf("composite condition requires sub-conditions")
		}
		for i := range c.SubConditions {
			if err := c.SubConditions[i].Validate(depth + 1); err != nil {
				return fmt.Errorf("sub-condition %d: %w", i, err)
			}
		}
		return nil

	case ConditionThreshold, ConditionPercentageChange, ConditionMovingAverage, ConditionAnomaly:
		if c.Metric == "" {
			return fmt.Errorf("%s condition requires a metric path", c.Type)
		}
	default:
		return fmt.Errorf("unknown condition type %q", c.Type)
	}

	switch c.Operator {
	case OpGreaterThan, OpLessThan, OpGreaterEq, OpLessEq, OpEqual:
		if c.Value.IsRange {
			return fmt.Errorf("operator %s takes a scalar value", c.Operator)
		}
	case OpBetween:
		if !c.Value.IsRange {
			return fmt.Errorf("between requires a two-element value")
		}
		if c.Value.Low > c.Value.High {
			return fmt.Errorf("between bounds out of order")
		}
	default:
		if c.Type != ConditionAnomaly {
			return fmt.Errorf("unknown operator %q", c.Operator)
		}
	}

	switch c.Aggregation {
	case "", AggAvg, AggSum, AggMin, AggMax, AggCount:
	default:
		return fmt.Errorf("unknown aggregation %q", c.Aggregation)
	}
	if c.Aggregation != "" && c.WindowMinutes <= 0 {
		return fmt.Errorf("aggregation requires a positive window")
	}

	return nil
}

// Validate checks a single escalation rule.
func (r *EscalationRule) Validate() error {
	if r.Level < 1 {
		return fmt.Errorf("level must be >= 1")
	}
	if r.DelayMinutes < 0 {
		return fmt.Errorf("delay must be >= 0")
	}
	switch r.Condition {
	case EscalateUnacknowledged, EscalateUnresolved, EscalateTimeBased, EscalateSeverityBased:
	default:
		return fmt.Errorf("unknown escalation condition %q", r.Condition)
	}
	if len(r.Channels) == 0 {
		return fmt.Errorf("escalation rule requires target channels")
	}
	for i := range r.Channels {
		if err := r.Channels[i].Validate(); err != nil {
			return fmt.Errorf("channel %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks the channel shape; transport settings are validated by the
// provider that consumes them.
func (c *NotificationChannel) Validate() error {
	switch c.Type {
	case ChannelEmail, ChannelSMS, ChannelChat, ChannelWebhook, ChannelConsole:
	default:
		return fmt.Errorf("unknown channel type %q", c.Type)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be >= 1")
	}
	if c.RetryDelaySeconds < 0 {
		return fmt.Errorf("retry delay must be >= 0")
	}
	return nil
}
