package alerting

import (
	"context"
	"time"
)

// Store is the persistence boundary for configs and alert history. The
// manager treats the store as source of truth and its own maps as a
// read-through cache: a failing store degrades persistence, not evaluation.
type Store interface {
	LoadEnabledConfigs(ctx context.Context) ([]AlertConfig, error)
	LoadActiveAlerts(ctx context.Context) ([]TriggeredAlert, error)
	UpsertConfig(ctx context.Context, config *AlertConfig) error
	UpsertAlert(ctx context.Context, alert *TriggeredAlert) error
	DeleteConfig(ctx context.Context, id string) error
}

// Deliverer accepts notification work. The queue behind it is the only
// coupling between evaluation and delivery.
type Deliverer interface {
	Submit(ctx context.Context, alert *TriggeredAlert, record NotificationRecord, config *AlertConfig) error
}

// EventType classifies lifecycle events published for external consumers.
type EventType string

const (
	EventTriggered    EventType = "triggered"
	EventAcknowledged EventType = "acknowledged"
	EventResolved     EventType = "resolved"
	EventEscalated    EventType = "escalated"
)

// Event is a lifecycle notification for dashboards and other subscribers.
type Event struct {
	Type      EventType       `json:"type"`
	Alert     *TriggeredAlert `json:"alert"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventPublisher fans lifecycle events out to external consumers. Publish
// must never block lifecycle operations; failures are the publisher's
// concern.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}
