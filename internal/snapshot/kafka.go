package snapshot

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaSourceConfig contains configuration for the Kafka snapshot source.
type KafkaSourceConfig struct {
	Brokers     []string      `json:"brokers" mapstructure:"brokers"`
	Topic       string        `json:"topic" mapstructure:"topic"`
	GroupID     string        `json:"group_id" mapstructure:"group_id"`
	MinBytes    int           `json:"min_bytes" mapstructure:"min_bytes"`
	MaxBytes    int           `json:"max_bytes" mapstructure:"max_bytes"`
	MaxWait     time.Duration `json:"max_wait" mapstructure:"max_wait"`
	StaleWindow time.Duration `json:"stale_window" mapstructure:"stale_window"`
}

// DefaultKafkaSourceConfig returns defaults for a low-volume metrics topic.
func DefaultKafkaSourceConfig() KafkaSourceConfig {
	return KafkaSourceConfig{
		Brokers:     []string{"localhost:9092"},
		Topic:       "sentinel.metrics",
		GroupID:     "sentinel",
		MinBytes:    1,
		MaxBytes:    1048576,
		MaxWait:     500 * time.Millisecond,
		StaleWindow: 5 * time.Minute,
	}
}

// KafkaSource consumes metric snapshots pushed to a Kafka topic and serves
// the most recent one to the evaluation loop. Push and pull interfaces meet
// here: producers push at their own cadence, Fetch returns whatever arrived
// last.
type KafkaSource struct {
	mu     sync.RWMutex
	latest Snapshot
	seen   bool

	reader *kafka.Reader
	config KafkaSourceConfig
	logger *zap.Logger

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewKafkaSource creates a source reading from cfg.Topic. Call Start to
// begin consuming.
func NewKafkaSource(cfg KafkaSourceConfig, logger *zap.Logger) *KafkaSource {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	})
	return &KafkaSource{
		reader: reader,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start launches the consume loop.
func (ks *KafkaSource) Start(ctx context.Context) {
	ks.wg.Add(1)
	go ks.consume(ctx)
}

func (ks *KafkaSource) consume(ctx context.Context) {
	defer ks.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ks.stopCh:
			return
		default:
		}

		msg, err := ks.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			ks.logger.Warn("Failed to read snapshot message", zap.Error(err))
			continue
		}

		var snap Snapshot
		if err := json.Unmarshal(msg.Value, &snap); err != nil {
			ks.logger.Warn("Dropping malformed snapshot message",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			continue
		}
		if snap.Timestamp.IsZero() {
			snap.Timestamp = msg.Time
		}

		ks.mu.Lock()
		// Out-of-order messages never regress the served snapshot.
		if !ks.seen || !snap.Timestamp.Before(ks.latest.Timestamp) {
			ks.latest = snap
			ks.seen = true
		}
		ks.mu.Unlock()
	}
}

// Fetch returns the most recently consumed snapshot. It reports an error if
// nothing has arrived yet or the latest snapshot is older than StaleWindow.
func (ks *KafkaSource) Fetch(ctx context.Context) (Snapshot, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	if !ks.seen {
		return Snapshot{}, ErrNoSnapshot
	}
	if ks.config.StaleWindow > 0 && time.Since(ks.latest.Timestamp) > ks.config.StaleWindow {
		return Snapshot{}, ErrStaleSnapshot
	}
	return ks.latest, nil
}

// Close stops the consume loop and closes the reader.
func (ks *KafkaSource) Close() error {
	ks.stopped.Do(func() { close(ks.stopCh) })
	ks.wg.Wait()
	return ks.reader.Close()
}
