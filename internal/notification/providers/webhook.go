package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/quantops/sentinel/internal/alerting"
	"github.com/quantops/sentinel/internal/notification"
)

// WebhookProvider POSTs the message as JSON to a configured endpoint.
// Settings: url (required), method, headers.
type WebhookProvider struct {
	logger  *zap.Logger
	client  *http.Client
	url     string
	method  string
	headers map[string]string
}

func NewWebhookProvider(logger *zap.Logger) *WebhookProvider {
	return &WebhookProvider{
		logger: logger,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *WebhookProvider) Type() alerting.ChannelType { return alerting.ChannelWebhook }

func (p *WebhookProvider) Initialize(ctx context.Context, settings map[string]interface{}) error {
	p.url = stringSetting(settings, "url")
	if p.url == "" {
		return errors.New("webhook channel requires a url setting")
	}
	p.method = stringSetting(settings, "method")
	if p.method == "" {
		p.method = http.MethodPost
	}
	p.headers = make(map[string]string)
	if raw, ok := settings["headers"].(map[string]interface{}); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				p.headers[k] = s
			}
		}
	}
	return nil
}

func (p *WebhookProvider) Send(ctx context.Context, msg notification.Message) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, p.method, p.url, bytes.NewBuffer(data))
	if err != nil {
		return "", errors.Wrap(err, "failed to create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to send webhook request")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return string(body), nil
}

func (p *WebhookProvider) HealthCheck(ctx context.Context) error {
	if p.url == "" {
		return errors.New("webhook provider not initialized")
	}
	return nil
}

func (p *WebhookProvider) Cleanup() error {
	p.client.CloseIdleConnections()
	return nil
}
