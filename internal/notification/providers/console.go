package providers

import (
	"context"

	"go.uber.org/zap"

	"github.com/quantops/sentinel/internal/alerting"
	"github.com/quantops/sentinel/internal/notification"
)

// ConsoleProvider writes notifications to the process log. Used in
// development and as a channel of last resort.
type ConsoleProvider struct {
	logger *zap.Logger
}

func NewConsoleProvider(logger *zap.Logger) *ConsoleProvider {
	return &ConsoleProvider{logger: logger}
}

func (p *ConsoleProvider) Type() alerting.ChannelType { return alerting.ChannelConsole }

func (p *ConsoleProvider) Initialize(ctx context.Context, settings map[string]interface{}) error {
	return nil
}

func (p *ConsoleProvider) Send(ctx context.Context, msg notification.Message) (string, error) {
	p.logger.Warn("ALERT",
		zap.String("alert_id", msg.AlertID),
		zap.String("config", msg.ConfigName),
		zap.String("severity", string(msg.Severity)),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return "logged", nil
}

func (p *ConsoleProvider) HealthCheck(ctx context.Context) error { return nil }

func (p *ConsoleProvider) Cleanup() error { return nil }
