package alerting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantops/sentinel/internal/metrics"
	"github.com/quantops/sentinel/internal/snapshot"
)

// ManagerOptions tunes the manager's loops and optional collaborators.
type ManagerOptions struct {
	EvaluationInterval time.Duration
	EscalationInterval time.Duration
	Events             EventPublisher
	Metrics            *metrics.Metrics
}

// Manager owns alert configs and triggered alerts. It is the single
// in-process authority over their state: every transition goes through its
// methods, per-config locks serialize cooldown checks against creation, and
// delivery results flow back in through ApplyNotificationResult.
type Manager struct {
	logger    *zap.Logger
	store     Store
	evaluator *Evaluator
	deliverer Deliverer
	events    EventPublisher
	metrics   *metrics.Metrics

	evalInterval  time.Duration
	sweepInterval time.Duration

	mu          sync.RWMutex
	configs     map[string]*AlertConfig
	active      map[string]*TriggeredAlert
	resolved    map[string]*TriggeredAlert
	lastTrigger map[string]time.Time
	locks       map[string]*sync.Mutex
	schedule    *escalationSchedule

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewManager creates a manager and loads state from the store. A store that
// cannot be reached here aborts initialization: the engine cannot safely run
// without its configuration source.
func NewManager(ctx context.Context, store Store, evaluator *Evaluator, deliverer Deliverer, logger *zap.Logger, opts ManagerOptions) (*Manager, error) {
	if opts.EvaluationInterval == 0 {
		opts.EvaluationInterval = 30 * time.Second
	}
	if opts.EscalationInterval == 0 {
		opts.EscalationInterval = 10 * time.Second
	}

	m := &Manager{
		logger:        logger,
		store:         store,
		evaluator:     evaluator,
		deliverer:     deliverer,
		events:        opts.Events,
		metrics:       opts.Metrics,
		evalInterval:  opts.EvaluationInterval,
		sweepInterval: opts.EscalationInterval,
		configs:       make(map[string]*AlertConfig),
		active:        make(map[string]*TriggeredAlert),
		resolved:      make(map[string]*TriggeredAlert),
		lastTrigger:   make(map[string]time.Time),
		locks:         make(map[string]*sync.Mutex),
		schedule:      newEscalationSchedule(),
		stopCh:        make(chan struct{}),
	}

	configs, err := store.LoadEnabledConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading alert configs: %w", err)
	}
	for i := range configs {
		cfg := configs[i]
		m.configs[cfg.ID] = &cfg
	}

	alerts, err := store.LoadActiveAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active alerts: %w", err)
	}
	for i := range alerts {
		alert := alerts[i]
		m.active[alert.ID] = &alert
		if last, ok := m.lastTrigger[alert.ConfigID]; !ok || alert.Timestamp.After(last) {
			m.lastTrigger[alert.ConfigID] = alert.Timestamp
		}
		m.scheduleNextEscalation(&alert, alert.Timestamp)
	}

	logger.Info("Alert manager initialized",
		zap.Int("configs", len(m.configs)),
		zap.Int("active_alerts", len(m.active)))

	return m, nil
}

// Start launches the evaluation loop and the escalation sweep.
func (m *Manager) Start(ctx context.Context, source snapshot.Source) {
	m.wg.Add(2)
	go m.evaluationLoop(ctx, source)
	go m.escalationLoop(ctx)
}

// Stop stops both loops and waits for them to drain.
func (m *Manager) Stop() {
	m.stopped.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Manager) evaluationLoop(ctx context.Context, source snapshot.Source) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.evalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			snap, err := source.Fetch(ctx)
			if err != nil {
				m.logger.Warn("Skipping evaluation tick, snapshot unavailable", zap.Error(err))
				continue
			}
			m.EvaluateAll(ctx, snap)
		}
	}
}

func (m *Manager) escalationLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.SweepEscalations(ctx, time.Now())
		}
	}
}

// EvaluateAll evaluates every enabled config against the snapshot. Configs
// are independent: an evaluation error in one is logged and skipped without
// aborting the pass.
func (m *Manager) EvaluateAll(ctx context.Context, snap snapshot.Snapshot) {
	started := time.Now()

	m.mu.RLock()
	configs := make([]*AlertConfig, 0, len(m.configs))
	for _, cfg := range m.configs {
		if cfg.Enabled {
			configs = append(configs, cfg)
		}
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, cfg := range configs {
		wg.Add(1)
		go func(cfg *AlertConfig) {
			defer wg.Done()
			m.evaluateConfig(ctx, cfg, snap)
		}(cfg)
	}
	wg.Wait()

	m.metrics.ObserveEvaluation(time.Since(started))
}

func (m *Manager) evaluateConfig(ctx context.Context, cfg *AlertConfig, snap snapshot.Snapshot) {
	triggered, value, err := m.evaluator.Evaluate(cfg.Condition, snap)
	if err != nil {
		m.metrics.EvaluationError()
		m.logger.Error("Skipping config for this tick",
			zap.String("config_id", cfg.ID),
			zap.String("config_name", cfg.Name),
			zap.Error(err))
		return
	}
	if !triggered {
		return
	}

	// Serialize cooldown check + creation per config so concurrent ticks
	// cannot double-trigger inside the window.
	lock := m.configLock(cfg.ID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	last, fired := m.lastTrigger[cfg.ID]
	m.mu.RUnlock()
	cooldown := time.Duration(cfg.CooldownMinutes) * time.Minute
	if fired && snap.Timestamp.Sub(last) < cooldown {
		m.logger.Debug("Condition held but config is cooling down",
			zap.String("config_id", cfg.ID),
			zap.Time("last_trigger", last))
		return
	}

	alert := &TriggeredAlert{
		ID:          uuid.New().String(),
		ConfigID:    cfg.ID,
		StrategyID:  strategyIDFrom(cfg.Condition),
		Severity:    cfg.Severity,
		Condition:   cfg.Condition,
		ActualValue: value,
		Threshold:   cfg.TriggerThreshold(),
		Timestamp:   snap.Timestamp,
		Status:      StatusActive,
		Metadata:    map[string]string{"config_name": cfg.Name},
	}

	m.mu.Lock()
	m.active[alert.ID] = alert
	m.lastTrigger[cfg.ID] = alert.Timestamp
	m.scheduleNextEscalation(alert, alert.Timestamp)
	m.mu.Unlock()

	m.logger.Info("Alert triggered",
		zap.String("alert_id", alert.ID),
		zap.String("config_id", cfg.ID),
		zap.String("config_name", cfg.Name),
		zap.String("severity", string(alert.Severity)),
		zap.Float64("actual_value", value))

	m.submitNotifications(ctx, alert, cfg, cfg.Channels)
	m.persistAlert(ctx, alert)
	m.publish(ctx, EventTriggered, alert)
	m.metrics.AlertTriggered(string(alert.Severity))
}

// submitNotifications creates one pending record per enabled channel and
// hands it to the delivery subsystem. Delivery never blocks evaluation
// beyond the enqueue itself.
func (m *Manager) submitNotifications(ctx context.Context, alert *TriggeredAlert, cfg *AlertConfig, channels []NotificationChannel) {
	for _, ch := range channels {
		if !ch.Enabled {
			continue
		}
		record := NotificationRecord{
			ID:      uuid.New().String(),
			Channel: ch,
			Status:  NotificationPending,
		}

		m.mu.Lock()
		alert.Notifications = append(alert.Notifications, record)
		m.mu.Unlock()

		if m.deliverer == nil {
			continue
		}
		if err := m.deliverer.Submit(ctx, alert, record, cfg); err != nil {
			m.logger.Error("Failed to enqueue notification",
				zap.String("alert_id", alert.ID),
				zap.String("channel", ch.Key()),
				zap.Error(err))
		}
	}
}

// Acknowledge marks an alert acknowledged. Acknowledging twice is an
// idempotent no-op; acknowledging a resolved alert reports ErrAlertResolved
// without touching state.
func (m *Manager) Acknowledge(ctx context.Context, alertID, userID, note string) error {
	m.mu.Lock()
	alert, ok := m.active[alertID]
	if !ok {
		_, wasResolved := m.resolved[alertID]
		m.mu.Unlock()
		if wasResolved {
			return ErrAlertResolved
		}
		return ErrAlertNotFound
	}
	if alert.Acknowledged() {
		m.mu.Unlock()
		m.logger.Info("Alert already acknowledged",
			zap.String("alert_id", alertID),
			zap.String("user_id", userID))
		return nil
	}

	now := time.Now()
	alert.Status = StatusAcknowledged
	alert.AcknowledgedBy = userID
	alert.AcknowledgedAt = &now
	if note != "" {
		if alert.Metadata == nil {
			alert.Metadata = make(map[string]string)
		}
		alert.Metadata["ack_note"] = note
	}
	m.mu.Unlock()

	m.logger.Info("Alert acknowledged",
		zap.String("alert_id", alertID),
		zap.String("user_id", userID))

	m.persistAlert(ctx, alert)
	m.publish(ctx, EventAcknowledged, alert)
	m.metrics.AlertAcknowledged()
	return nil
}

// Resolve transitions an alert to its terminal state and removes it from
// the active set. Resolving twice reports ErrAlertResolved.
func (m *Manager) Resolve(ctx context.Context, alertID, userID, resolution string) error {
	m.mu.Lock()
	alert, ok := m.active[alertID]
	if !ok {
		_, wasResolved := m.resolved[alertID]
		m.mu.Unlock()
		if wasResolved {
			return ErrAlertResolved
		}
		return ErrAlertNotFound
	}

	now := time.Now()
	alert.Status = StatusResolved
	alert.ResolvedAt = &now
	if alert.Metadata == nil {
		alert.Metadata = make(map[string]string)
	}
	if userID != "" {
		alert.Metadata["resolved_by"] = userID
	}
	if resolution != "" {
		alert.Metadata["resolution"] = resolution
	}
	delete(m.active, alertID)
	m.resolved[alertID] = alert
	m.schedule.cancel(alertID)
	m.mu.Unlock()

	m.logger.Info("Alert resolved",
		zap.String("alert_id", alertID),
		zap.String("user_id", userID))

	m.persistAlert(ctx, alert)
	m.publish(ctx, EventResolved, alert)
	m.metrics.AlertResolved()
	return nil
}

// SweepEscalations fires every escalation whose due time has passed. A rule
// fires only if the previous level already fired and its condition still
// holds; a failed condition drops the rest of the chain.
func (m *Manager) SweepEscalations(ctx context.Context, now time.Time) {
	m.mu.Lock()
	entries := m.schedule.due(now)
	m.mu.Unlock()

	for _, entry := range entries {
		m.fireEscalation(ctx, entry, now)
	}
}

func (m *Manager) fireEscalation(ctx context.Context, entry escalationEntry, now time.Time) {
	m.mu.Lock()
	alert, ok := m.active[entry.alertID]
	if !ok {
		m.mu.Unlock()
		return
	}
	cfg, ok := m.configs[alert.ConfigID]
	if !ok || entry.ruleIdx >= len(cfg.EscalationRules) {
		m.mu.Unlock()
		return
	}
	rule := cfg.EscalationRules[entry.ruleIdx]

	// Ordering: level n fires only after level n-1 did.
	if alert.EscalationLevel != rule.Level-1 {
		m.mu.Unlock()
		return
	}
	if !m.escalationConditionHolds(rule, alert) {
		m.mu.Unlock()
		m.logger.Debug("Escalation condition no longer holds",
			zap.String("alert_id", alert.ID),
			zap.Int("level", rule.Level),
			zap.String("condition", string(rule.Condition)))
		return
	}

	alert.EscalationLevel = rule.Level
	if alert.Status == StatusActive {
		alert.Status = StatusEscalated
	}
	if entry.ruleIdx+1 < len(cfg.EscalationRules) {
		next := cfg.EscalationRules[entry.ruleIdx+1]
		m.schedule.add(alert.ID, entry.ruleIdx+1, now.Add(time.Duration(next.DelayMinutes)*time.Minute))
	}
	m.mu.Unlock()

	m.logger.Warn("Alert escalated",
		zap.String("alert_id", alert.ID),
		zap.String("config_id", alert.ConfigID),
		zap.Int("level", rule.Level))

	m.submitNotifications(ctx, alert, cfg, rule.Channels)
	m.persistAlert(ctx, alert)
	m.publish(ctx, EventEscalated, alert)
	m.metrics.EscalationFired()
}

func (m *Manager) escalationConditionHolds(rule EscalationRule, alert *TriggeredAlert) bool {
	switch rule.Condition {
	case EscalateUnacknowledged:
		return !alert.Acknowledged()
	case EscalateUnresolved:
		return !alert.Terminal()
	case EscalateTimeBased:
		return true
	case EscalateSeverityBased:
		return alert.Severity.Rank() >= SeverityHigh.Rank()
	default:
		return false
	}
}

// scheduleNextEscalation queues the next unfired rule. Caller holds m.mu.
func (m *Manager) scheduleNextEscalation(alert *TriggeredAlert, base time.Time) {
	cfg, ok := m.configs[alert.ConfigID]
	if !ok || len(cfg.EscalationRules) == 0 {
		return
	}
	idx := alert.EscalationLevel // rules are ordered; level n lives at index n-1
	if idx >= len(cfg.EscalationRules) {
		return
	}
	// base is the trigger time. For alerts reloaded mid-chain the prior
	// levels' fire times are approximated by accumulating their delays, so
	// the next level stays delayMinutes from the previous one.
	for i := 0; i < idx; i++ {
		base = base.Add(time.Duration(cfg.EscalationRules[i].DelayMinutes) * time.Minute)
	}
	rule := cfg.EscalationRules[idx]
	m.schedule.add(alert.ID, idx, base.Add(time.Duration(rule.DelayMinutes)*time.Minute))
}

// ApplyNotificationResult replaces the matching notification record on the
// alert with the delivery subsystem's updated copy and persists it. It is
// the only path by which delivery mutates alert state.
func (m *Manager) ApplyNotificationResult(ctx context.Context, alertID string, record NotificationRecord) {
	m.mu.Lock()
	alert, ok := m.active[alertID]
	if !ok {
		alert, ok = m.resolved[alertID]
	}
	if !ok {
		m.mu.Unlock()
		return
	}
	for i := range alert.Notifications {
		if alert.Notifications[i].ID == record.ID {
			alert.Notifications[i] = record
			break
		}
	}
	m.mu.Unlock()

	m.persistAlert(ctx, alert)
}

// CreateConfig validates and registers a new alert config.
func (m *Manager) CreateConfig(ctx context.Context, cfg *AlertConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	now := time.Now()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.configs[cfg.ID] = cfg
	m.mu.Unlock()

	m.persistConfig(ctx, cfg)
	m.logger.Info("Alert config created",
		zap.String("config_id", cfg.ID),
		zap.String("name", cfg.Name))
	return nil
}

// UpdateConfig replaces an existing config in place, preserving identity
// and creation time.
func (m *Manager) UpdateConfig(ctx context.Context, cfg *AlertConfig) error {
	m.mu.RLock()
	existing, ok := m.configs[cfg.ID]
	m.mu.RUnlock()
	if !ok {
		return ErrConfigNotFound
	}

	cfg.CreatedAt = existing.CreatedAt
	cfg.CreatedBy = existing.CreatedBy
	cfg.UpdatedAt = time.Now()
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.configs[cfg.ID] = cfg
	m.mu.Unlock()

	m.persistConfig(ctx, cfg)
	m.logger.Info("Alert config updated", zap.String("config_id", cfg.ID))
	return nil
}

// DeleteConfig removes a config. Its active alerts are auto-resolved with a
// system reason first; an in-flight alert never outlives its config.
func (m *Manager) DeleteConfig(ctx context.Context, id string) error {
	m.mu.RLock()
	_, ok := m.configs[id]
	var referencing []string
	for _, alert := range m.active {
		if alert.ConfigID == id {
			referencing = append(referencing, alert.ID)
		}
	}
	m.mu.RUnlock()
	if !ok {
		return ErrConfigNotFound
	}

	for _, alertID := range referencing {
		if err := m.Resolve(ctx, alertID, "system", "config deleted"); err != nil {
			m.logger.Warn("Failed to auto-resolve alert for deleted config",
				zap.String("alert_id", alertID), zap.Error(err))
		}
	}

	m.mu.Lock()
	delete(m.configs, id)
	delete(m.lastTrigger, id)
	delete(m.locks, id)
	m.mu.Unlock()

	if err := m.store.DeleteConfig(ctx, id); err != nil {
		m.logger.Warn("Store delete failed, continuing with in-memory state",
			zap.String("config_id", id), zap.Error(err))
	}
	m.logger.Info("Alert config deleted", zap.String("config_id", id))
	return nil
}

// GetConfig returns a copy of the config.
func (m *Manager) GetConfig(id string) (AlertConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[id]
	if !ok {
		return AlertConfig{}, ErrConfigNotFound
	}
	return cfg.Clone(), nil
}

// ListConfigs returns copies of all configs.
func (m *Manager) ListConfigs() []AlertConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AlertConfig, 0, len(m.configs))
	for _, cfg := range m.configs {
		out = append(out, cfg.Clone())
	}
	return out
}

// GetAlert returns a copy of an alert, active or resolved.
func (m *Manager) GetAlert(id string) (TriggeredAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if alert, ok := m.active[id]; ok {
		return alert.Clone(), nil
	}
	if alert, ok := m.resolved[id]; ok {
		return alert.Clone(), nil
	}
	return TriggeredAlert{}, ErrAlertNotFound
}

// ActiveAlerts returns copies of all non-resolved alerts, newest first.
func (m *Manager) ActiveAlerts() []TriggeredAlert {
	m.mu.RLock()
	out := make([]TriggeredAlert, 0, len(m.active))
	for _, alert := range m.active {
		out = append(out, alert.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// AlertSummary returns the counts exposed to the admin surface.
func (m *Manager) AlertSummary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Summary{
		Total:  len(m.active) + len(m.resolved),
		Active: len(m.active),
	}
	for _, alert := range m.active {
		if alert.Severity == SeverityCritical {
			s.Critical++
		}
		if alert.Acknowledged() {
			s.Acknowledged++
		}
	}
	return s
}

func (m *Manager) configLock(configID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[configID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[configID] = lock
	}
	return lock
}

// persistAlert upserts the alert, tolerating a temporarily unavailable
// store: in-memory state remains authoritative and the failure is logged as
// degraded mode.
func (m *Manager) persistAlert(ctx context.Context, alert *TriggeredAlert) {
	m.mu.RLock()
	clone := alert.Clone()
	m.mu.RUnlock()
	if err := m.store.UpsertAlert(ctx, &clone); err != nil {
		m.logger.Warn("Store unavailable, running degraded",
			zap.String("alert_id", alert.ID), zap.Error(err))
	}
}

func (m *Manager) persistConfig(ctx context.Context, cfg *AlertConfig) {
	if err := m.store.UpsertConfig(ctx, cfg); err != nil {
		m.logger.Warn("Store unavailable, running degraded",
			zap.String("config_id", cfg.ID), zap.Error(err))
	}
}

func (m *Manager) publish(ctx context.Context, typ EventType, alert *TriggeredAlert) {
	if m.events == nil {
		return
	}
	m.mu.RLock()
	clone := alert.Clone()
	m.mu.RUnlock()
	m.events.Publish(ctx, Event{Type: typ, Alert: &clone, Timestamp: time.Now()})
}

// strategyIDFrom extracts the strategy correlation tag from a
// performance-namespace metric path (performance.<id>.<field>).
func strategyIDFrom(cond AlertCondition) string {
	if cond.Type == ConditionComposite {
		for i := range cond.SubConditions {
			if id := strategyIDFrom(cond.SubConditions[i]); id != "" {
				return id
			}
		}
		return ""
	}
	parts := strings.Split(cond.Metric, ".")
	if len(parts) >= 3 && parts[0] == "performance" {
		return parts[1]
	}
	return ""
}
