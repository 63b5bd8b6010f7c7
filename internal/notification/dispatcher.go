package notification

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/quantops/sentinel/internal/alerting"
	"github.com/quantops/sentinel/internal/metrics"
)

// DispatcherOptions tunes the drain loop.
type DispatcherOptions struct {
	DrainInterval time.Duration
	BatchSize     int
	Metrics       *metrics.Metrics
}

// Dispatcher owns notification delivery. Submissions are rendered and
// queued durably, then a drain loop hands due jobs to providers and applies
// the channel's retry policy. A job leaves the queue only as sent or failed.
type Dispatcher struct {
	logger  *zap.Logger
	queue   Queue
	factory ProviderFactory
	sink    ResultSink
	metrics *metrics.Metrics

	interval  time.Duration
	batchSize int

	mu        sync.Mutex
	providers map[string]Provider

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewDispatcher wires a dispatcher over the given queue and provider
// factory. Results flow back through sink.
func NewDispatcher(queue Queue, factory ProviderFactory, sink ResultSink, logger *zap.Logger, opts DispatcherOptions) *Dispatcher {
	if opts.DrainInterval == 0 {
		opts.DrainInterval = 2 * time.Second
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 64
	}
	return &Dispatcher{
		logger:    logger,
		queue:     queue,
		factory:   factory,
		sink:      sink,
		metrics:   opts.Metrics,
		interval:  opts.DrainInterval,
		batchSize: opts.BatchSize,
		providers: make(map[string]Provider),
		stopCh:    make(chan struct{}),
	}
}

// SetResultSink installs the result sink after construction. The manager
// and the dispatcher reference each other, so one side is wired late. Must
// be called before Run.
func (d *Dispatcher) SetResultSink(sink ResultSink) {
	d.sink = sink
}

// Submit implements the delivery contract used by the alert manager: render
// the message once and persist the job. Delivery happens on the drain loop.
func (d *Dispatcher) Submit(ctx context.Context, alert *alerting.TriggeredAlert, record alerting.NotificationRecord, cfg *alerting.AlertConfig) error {
	job := Job{
		ID:        record.ID,
		AlertID:   alert.ID,
		Record:    record,
		Message:   RenderMessage(alert, cfg, record.Channel),
		NotBefore: time.Now(),
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return errors.Wrap(err, "enqueuing notification")
	}
	d.observeDepth()
	return nil
}

// Run drains the queue on a fixed interval until ctx is done or Stop is
// called.
func (d *Dispatcher) Run(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case <-ticker.C:
				d.Drain(ctx, time.Now())
			}
		}
	}()
}

// Stop halts the drain loop. Queued jobs stay on disk for the next run.
func (d *Dispatcher) Stop() {
	d.stopped.Do(func() { close(d.stopCh) })
	d.wg.Wait()
}

// Drain delivers every job due at now, bounded by the batch size.
func (d *Dispatcher) Drain(ctx context.Context, now time.Time) {
	jobs, err := d.queue.DequeueDue(ctx, now, d.batchSize)
	if err != nil {
		d.logger.Error("Failed to read notification queue", zap.Error(err))
		return
	}
	for _, job := range jobs {
		d.deliver(ctx, job, now)
	}
	if len(jobs) > 0 {
		d.observeDepth()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, job Job, now time.Time) {
	record := job.Record
	record.Attempts++
	attemptAt := now
	record.LastAttemptAt = &attemptAt

	response, err := d.send(ctx, job)
	channel := string(record.Channel.Type)

	if err == nil {
		record.Status = alerting.NotificationSent
		record.Error = ""
		record.Response = response
		if ackErr := d.queue.Acknowledge(ctx, job); ackErr != nil {
			d.logger.Error("Failed to remove delivered job",
				zap.String("job_id", job.ID), zap.Error(ackErr))
		}
		d.metrics.NotificationSent(channel)
		d.logger.Info("Notification delivered",
			zap.String("alert_id", job.AlertID),
			zap.String("channel", record.Channel.Key()),
			zap.Int("attempts", record.Attempts))
	} else {
		record.Error = err.Error()
		if record.Attempts < record.Channel.RetryAttempts {
			record.Status = alerting.NotificationRetrying
			delay := time.Duration(record.Channel.RetryDelaySeconds) * time.Second
			job.Record = record
			if _, rErr := d.queue.Reschedule(ctx, job, now.Add(delay)); rErr != nil {
				d.logger.Error("Failed to reschedule notification",
					zap.String("job_id", job.ID), zap.Error(rErr))
			}
			d.metrics.NotificationRetried()
			d.logger.Warn("Notification attempt failed, will retry",
				zap.String("alert_id", job.AlertID),
				zap.String("channel", record.Channel.Key()),
				zap.Int("attempt", record.Attempts),
				zap.Int("max_attempts", record.Channel.RetryAttempts),
				zap.Error(err))
		} else {
			record.Status = alerting.NotificationFailed
			if ackErr := d.queue.Acknowledge(ctx, job); ackErr != nil {
				d.logger.Error("Failed to remove exhausted job",
					zap.String("job_id", job.ID), zap.Error(ackErr))
			}
			d.metrics.NotificationFailed(channel)
			d.logger.Error("Notification failed, retry budget exhausted",
				zap.String("alert_id", job.AlertID),
				zap.String("channel", record.Channel.Key()),
				zap.Int("attempts", record.Attempts),
				zap.Error(err))
		}
	}

	if d.sink != nil {
		d.sink.ApplyNotificationResult(ctx, job.AlertID, record)
	}
}

func (d *Dispatcher) send(ctx context.Context, job Job) (string, error) {
	provider, err := d.providerFor(ctx, job.Record.Channel)
	if err != nil {
		return "", err
	}
	return provider.Send(ctx, job.Message)
}

// providerFor returns the cached provider for the channel key, building and
// initializing it on first use.
func (d *Dispatcher) providerFor(ctx context.Context, ch alerting.NotificationChannel) (Provider, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := ch.Key()
	if p, ok := d.providers[key]; ok {
		return p, nil
	}
	p, err := d.factory(ch)
	if err != nil {
		return nil, errors.Wrapf(err, "building provider for %s", key)
	}
	if err := p.Initialize(ctx, ch.Settings); err != nil {
		return nil, errors.Wrapf(err, "initializing provider for %s", key)
	}
	d.providers[key] = p
	d.logger.Info("Notification provider initialized", zap.String("channel", key))
	return p, nil
}

// HealthCheck probes every initialized provider.
func (d *Dispatcher) HealthCheck(ctx context.Context) map[string]error {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]error, len(d.providers))
	for key, p := range d.providers {
		out[key] = p.HealthCheck(ctx)
	}
	return out
}

// Close stops the loop, cleans up providers and closes the queue.
func (d *Dispatcher) Close() error {
	d.Stop()

	d.mu.Lock()
	for key, p := range d.providers {
		if err := p.Cleanup(); err != nil {
			d.logger.Warn("Provider cleanup failed", zap.String("channel", key), zap.Error(err))
		}
	}
	d.mu.Unlock()

	return d.queue.Close()
}

func (d *Dispatcher) observeDepth() {
	if depth, err := d.queue.Depth(); err == nil {
		d.metrics.SetQueueDepth(depth)
	}
}
