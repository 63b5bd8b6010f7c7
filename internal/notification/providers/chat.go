package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/quantops/sentinel/internal/alerting"
	"github.com/quantops/sentinel/internal/notification"
)

// ChatProvider posts Slack-compatible attachment payloads to an incoming
// webhook. Settings: webhook_url (required), channel, username, icon_emoji.
type ChatProvider struct {
	logger     *zap.Logger
	client     *http.Client
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
}

func NewChatProvider(logger *zap.Logger) *ChatProvider {
	return &ChatProvider{
		logger: logger,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *ChatProvider) Type() alerting.ChannelType { return alerting.ChannelChat }

func (p *ChatProvider) Initialize(ctx context.Context, settings map[string]interface{}) error {
	p.webhookURL = stringSetting(settings, "webhook_url")
	if p.webhookURL == "" {
		return errors.New("chat channel requires a webhook_url setting")
	}
	p.channel = stringSetting(settings, "channel")
	p.username = stringSetting(settings, "username")
	if p.username == "" {
		p.username = "sentinel"
	}
	p.iconEmoji = stringSetting(settings, "icon_emoji")
	if p.iconEmoji == "" {
		p.iconEmoji = ":rotating_light:"
	}
	return nil
}

func (p *ChatProvider) Send(ctx context.Context, msg notification.Message) (string, error) {
	payload := map[string]interface{}{
		"channel":    p.channel,
		"username":   p.username,
		"icon_emoji": p.iconEmoji,
		"attachments": []map[string]interface{}{
			{
				"color": severityColor(msg.Severity),
				"title": msg.Subject,
				"text":  msg.Body,
				"fields": []map[string]interface{}{
					{"title": "Alert ID", "value": msg.AlertID, "short": true},
					{"title": "Strategy", "value": msg.StrategyID, "short": true},
					{"title": "Severity", "value": string(msg.Severity), "short": true},
					{"title": "Timestamp", "value": msg.Timestamp.Format(time.RFC3339), "short": false},
				},
				"footer": "sentinel",
				"ts":     msg.Timestamp.Unix(),
			},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal chat payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewBuffer(data))
	if err != nil {
		return "", errors.Wrap(err, "failed to create chat request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to send chat webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat webhook returned status %d", resp.StatusCode)
	}
	return "ok", nil
}

func (p *ChatProvider) HealthCheck(ctx context.Context) error {
	if p.webhookURL == "" {
		return errors.New("chat provider not initialized")
	}
	return nil
}

func (p *ChatProvider) Cleanup() error {
	p.client.CloseIdleConnections()
	return nil
}

func severityColor(s alerting.Severity) string {
	switch s {
	case alerting.SeverityLow:
		return "good"
	case alerting.SeverityMedium:
		return "warning"
	case alerting.SeverityHigh:
		return "danger"
	case alerting.SeverityCritical:
		return "#FF0000"
	default:
		return "#CCCCCC"
	}
}
