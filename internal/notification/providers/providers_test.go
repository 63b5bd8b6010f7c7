package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quantops/sentinel/internal/alerting"
	"github.com/quantops/sentinel/internal/notification"
)

func testMessage() notification.Message {
	return notification.Message{
		AlertID:     "a-1",
		ConfigName:  "low sharpe",
		Severity:    alerting.SeverityCritical,
		Subject:     "[CRITICAL] low sharpe",
		Body:        "sharpe dropped to 0.3",
		StrategyID:  "strat-1",
		ActualValue: 0.3,
		Threshold:   alerting.Scalar(0.5),
		Timestamp:   time.Now(),
	}
}

func TestFactoryCoversAllChannelTypes(t *testing.T) {
	factory := NewFactory(zap.NewNop())
	for _, typ := range []alerting.ChannelType{
		alerting.ChannelEmail, alerting.ChannelSMS, alerting.ChannelChat,
		alerting.ChannelWebhook, alerting.ChannelConsole,
	} {
		p, err := factory(alerting.NotificationChannel{Type: typ})
		require.NoError(t, err, string(typ))
		assert.Equal(t, typ, p.Type())
	}

	_, err := factory(alerting.NotificationChannel{Type: "carrier_pigeon"})
	assert.Error(t, err)
}

func TestWebhookProviderPostsPayload(t *testing.T) {
	var received notification.Message
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Write([]byte("accepted"))
	}))
	defer srv.Close()

	p := NewWebhookProvider(zap.NewNop())
	require.NoError(t, p.Initialize(context.Background(), map[string]interface{}{
		"url":     srv.URL,
		"headers": map[string]interface{}{"X-Token": "secret"},
	}))

	resp, err := p.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "accepted", resp)
	assert.Equal(t, "secret", gotHeader)
	assert.Equal(t, "a-1", received.AlertID)
	assert.Equal(t, alerting.SeverityCritical, received.Severity)
}

func TestWebhookProviderNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewWebhookProvider(zap.NewNop())
	require.NoError(t, p.Initialize(context.Background(), map[string]interface{}{"url": srv.URL}))

	_, err := p.Send(context.Background(), testMessage())
	assert.ErrorContains(t, err, "502")
}

func TestWebhookProviderRequiresURL(t *testing.T) {
	p := NewWebhookProvider(zap.NewNop())
	assert.Error(t, p.Initialize(context.Background(), nil))
}

func TestChatProviderSendsAttachment(t *testing.T) {
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	p := NewChatProvider(zap.NewNop())
	require.NoError(t, p.Initialize(context.Background(), map[string]interface{}{
		"webhook_url": srv.URL,
		"channel":     "#trading-alerts",
	}))

	_, err := p.Send(context.Background(), testMessage())
	require.NoError(t, err)

	assert.Equal(t, "#trading-alerts", payload["channel"])
	attachments := payload["attachments"].([]interface{})
	require.Len(t, attachments, 1)
	attachment := attachments[0].(map[string]interface{})
	assert.Equal(t, "#FF0000", attachment["color"])
	assert.Equal(t, "[CRITICAL] low sharpe", attachment["title"])
}

func TestSMSProviderSendsSubjectOnly(t *testing.T) {
	var payload map[string]interface{}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	p := NewSMSProvider(zap.NewNop())
	require.NoError(t, p.Initialize(context.Background(), map[string]interface{}{
		"gateway_url": srv.URL,
		"api_key":     "k-123",
		"recipients":  []interface{}{"+15550100", "+15550101"},
	}))

	resp, err := p.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "sent to 2 recipients", resp)
	assert.Equal(t, "Bearer k-123", auth)
	assert.Equal(t, "[CRITICAL] low sharpe", payload["text"])
}

func TestEmailProviderSettings(t *testing.T) {
	p := NewEmailProvider(zap.NewNop())

	err := p.Initialize(context.Background(), map[string]interface{}{"smtp_port": 25})
	assert.ErrorContains(t, err, "smtp_host")

	err = p.Initialize(context.Background(), map[string]interface{}{"smtp_host": "mail.internal"})
	assert.ErrorContains(t, err, "recipient")

	require.NoError(t, p.Initialize(context.Background(), map[string]interface{}{
		"smtp_host": "mail.internal",
		"to":        "ops@example.com, desk@example.com",
	}))
	assert.Equal(t, []string{"ops@example.com", "desk@example.com"}, p.to)
	assert.Equal(t, 587, p.port)
}

func TestConsoleProviderAlwaysSucceeds(t *testing.T) {
	p := NewConsoleProvider(zap.NewNop())
	require.NoError(t, p.Initialize(context.Background(), nil))
	resp, err := p.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "logged", resp)
	assert.NoError(t, p.HealthCheck(context.Background()))
}

func TestSeverityColors(t *testing.T) {
	assert.Equal(t, "good", severityColor(alerting.SeverityLow))
	assert.Equal(t, "warning", severityColor(alerting.SeverityMedium))
	assert.Equal(t, "danger", severityColor(alerting.SeverityHigh))
	assert.Equal(t, "#FF0000", severityColor(alerting.SeverityCritical))
	assert.Equal(t, "#CCCCCC", severityColor(alerting.Severity("unknown")))
}
