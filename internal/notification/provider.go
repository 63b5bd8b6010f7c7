package notification

import (
	"context"

	"github.com/quantops/sentinel/internal/alerting"
)

// Provider is one concrete notification transport. Implementations live in
// the providers package; the dispatcher caches one instance per channel key
// and reuses it across deliveries.
type Provider interface {
	Type() alerting.ChannelType
	// Initialize validates the channel settings and prepares the transport.
	Initialize(ctx context.Context, settings map[string]interface{}) error
	// Send delivers the message and returns the transport's response text.
	Send(ctx context.Context, msg Message) (string, error)
	HealthCheck(ctx context.Context) error
	Cleanup() error
}

// ProviderFactory builds a provider for a channel. The dispatcher calls it
// lazily, the first time a channel key is seen.
type ProviderFactory func(ch alerting.NotificationChannel) (Provider, error)

// ResultSink receives the final record state after each delivery attempt.
// The alert manager implements it; delivery never touches alert state
// directly.
type ResultSink interface {
	ApplyNotificationResult(ctx context.Context, alertID string, record alerting.NotificationRecord)
}
