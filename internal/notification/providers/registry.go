// Package providers holds the concrete notification transports. Each
// provider validates its own settings; the core never inspects them.
package providers

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/quantops/sentinel/internal/alerting"
	"github.com/quantops/sentinel/internal/notification"
)

// NewFactory returns the provider factory covering every supported channel
// type.
func NewFactory(logger *zap.Logger) notification.ProviderFactory {
	return func(ch alerting.NotificationChannel) (notification.Provider, error) {
		switch ch.Type {
		case alerting.ChannelConsole:
			return NewConsoleProvider(logger), nil
		case alerting.ChannelWebhook:
			return NewWebhookProvider(logger), nil
		case alerting.ChannelChat:
			return NewChatProvider(logger), nil
		case alerting.ChannelEmail:
			return NewEmailProvider(logger), nil
		case alerting.ChannelSMS:
			return NewSMSProvider(logger), nil
		default:
			return nil, fmt.Errorf("unsupported channel type: %s", ch.Type)
		}
	}
}

func stringSetting(settings map[string]interface{}, key string) string {
	if v, ok := settings[key].(string); ok {
		return v
	}
	return ""
}

func intSetting(settings map[string]interface{}, key string, fallback int) int {
	switch v := settings[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// stringsSetting accepts either a list or a comma-separated string.
func stringsSetting(settings map[string]interface{}, key string) []string {
	switch v := settings[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return nil
}
