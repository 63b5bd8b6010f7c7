// Package events publishes alert lifecycle events to Redis pub/sub for
// dashboards and downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quantops/sentinel/internal/alerting"
)

// DefaultChannel is the pub/sub channel lifecycle events go out on.
const DefaultChannel = "sentinel:alerts"

// NewRedisClient creates a Redis client and verifies the connection.
func NewRedisClient(address, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisPublisher fans lifecycle events out over Redis pub/sub. Publishing
// is best effort: a failure is logged and the lifecycle operation proceeds.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher wires a publisher over client. An empty channel uses
// DefaultChannel.
func NewRedisPublisher(client *redis.Client, channel string, logger *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

// Publish sends the event. Subscribers that are not listening miss it;
// persistent state lives in the store, not the stream.
func (p *RedisPublisher) Publish(ctx context.Context, event alerting.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to encode lifecycle event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Warn("Failed to publish lifecycle event",
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}

// Close releases the underlying client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
