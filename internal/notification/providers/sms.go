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

// SMSProvider delivers through an HTTP SMS gateway. Settings: gateway_url
// and recipients (required), api_key.
type SMSProvider struct {
	logger     *zap.Logger
	client     *http.Client
	gatewayURL string
	apiKey     string
	recipients []string
}

func NewSMSProvider(logger *zap.Logger) *SMSProvider {
	return &SMSProvider{
		logger: logger,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *SMSProvider) Type() alerting.ChannelType { return alerting.ChannelSMS }

func (p *SMSProvider) Initialize(ctx context.Context, settings map[string]interface{}) error {
	p.gatewayURL = stringSetting(settings, "gateway_url")
	if p.gatewayURL == "" {
		return errors.New("sms channel requires a gateway_url setting")
	}
	p.apiKey = stringSetting(settings, "api_key")
	p.recipients = stringsSetting(settings, "recipients")
	if len(p.recipients) == 0 {
		return errors.New("sms channel requires at least one recipient")
	}
	return nil
}

func (p *SMSProvider) Send(ctx context.Context, msg notification.Message) (string, error) {
	// SMS has no room for the full body.
	text := msg.Subject
	payload := map[string]interface{}{
		"to":   p.recipients,
		"text": text,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal sms payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.gatewayURL, bytes.NewBuffer(data))
	if err != nil {
		return "", errors.Wrap(err, "failed to create sms request")
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to reach sms gateway")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return fmt.Sprintf("sent to %d recipients", len(p.recipients)), nil
}

func (p *SMSProvider) HealthCheck(ctx context.Context) error {
	if p.gatewayURL == "" {
		return errors.New("sms provider not initialized")
	}
	return nil
}

func (p *SMSProvider) Cleanup() error {
	p.client.CloseIdleConnections()
	return nil
}
