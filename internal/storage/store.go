package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quantops/sentinel/internal/alerting"
)

// configRecord is the persisted form of an alert config: a few queryable
// columns plus the full JSON document. The document is the source of truth;
// columns exist for filtering.
type configRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:255;not null"`
	Enabled   bool   `gorm:"index"`
	Severity  string `gorm:"size:16"`
	Document  string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (configRecord) TableName() string { return "alert_configs" }

type alertRecord struct {
	ID          string    `gorm:"primaryKey;size:64"`
	ConfigID    string    `gorm:"index;size:64"`
	Status      string    `gorm:"index;size:16"`
	Severity    string    `gorm:"size:16"`
	TriggeredAt time.Time `gorm:"index"`
	Document    string    `gorm:"type:text;not null"`
	UpdatedAt   time.Time
}

func (alertRecord) TableName() string { return "triggered_alerts" }

// Store is the GORM-backed implementation of the alerting persistence
// contract.
type Store struct {
	db *gorm.DB
}

// NewStore wires a store over db and runs schema migration.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&configRecord{}, &alertRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrating alerting schema")
	}
	return &Store{db: db}, nil
}

// LoadEnabledConfigs returns every enabled alert config.
func (s *Store) LoadEnabledConfigs(ctx context.Context) ([]alerting.AlertConfig, error) {
	var records []configRecord
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, "loading alert configs")
	}

	configs := make([]alerting.AlertConfig, 0, len(records))
	for _, rec := range records {
		var cfg alerting.AlertConfig
		if err := json.Unmarshal([]byte(rec.Document), &cfg); err != nil {
			return nil, errors.Wrapf(err, "decoding config %s", rec.ID)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// LoadActiveAlerts returns every alert that has not reached its terminal
// state.
func (s *Store) LoadActiveAlerts(ctx context.Context) ([]alerting.TriggeredAlert, error) {
	var records []alertRecord
	err := s.db.WithContext(ctx).
		Where("status <> ?", string(alerting.StatusResolved)).
		Order("triggered_at").
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "loading active alerts")
	}

	alerts := make([]alerting.TriggeredAlert, 0, len(records))
	for _, rec := range records {
		var alert alerting.TriggeredAlert
		if err := json.Unmarshal([]byte(rec.Document), &alert); err != nil {
			return nil, errors.Wrapf(err, "decoding alert %s", rec.ID)
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// UpsertConfig inserts or replaces a config.
func (s *Store) UpsertConfig(ctx context.Context, cfg *alerting.AlertConfig) error {
	doc, err := json.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encoding config")
	}
	rec := configRecord{
		ID:        cfg.ID,
		Name:      cfg.Name,
		Enabled:   cfg.Enabled,
		Severity:  string(cfg.Severity),
		Document:  string(doc),
		CreatedAt: cfg.CreatedAt,
		UpdatedAt: cfg.UpdatedAt,
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&rec).Error
	return errors.Wrap(err, "upserting config")
}

// UpsertAlert inserts or replaces a triggered alert.
func (s *Store) UpsertAlert(ctx context.Context, alert *alerting.TriggeredAlert) error {
	doc, err := json.Marshal(alert)
	if err != nil {
		return errors.Wrap(err, "encoding alert")
	}
	rec := alertRecord{
		ID:          alert.ID,
		ConfigID:    alert.ConfigID,
		Status:      string(alert.Status),
		Severity:    string(alert.Severity),
		TriggeredAt: alert.Timestamp,
		Document:    string(doc),
		UpdatedAt:   time.Now(),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&rec).Error
	return errors.Wrap(err, "upserting alert")
}

// DeleteConfig removes a config row. Alert history is kept.
func (s *Store) DeleteConfig(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Delete(&configRecord{}, "id = ?", id).Error
	return errors.Wrap(err, "deleting config")
}

// AlertHistory returns resolved and active alerts for a config, newest
// first, bounded by limit.
func (s *Store) AlertHistory(ctx context.Context, configID string, limit int) ([]alerting.TriggeredAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []alertRecord
	q := s.db.WithContext(ctx).Order("triggered_at desc").Limit(limit)
	if configID != "" {
		q = q.Where("config_id = ?", configID)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, "loading alert history")
	}

	alerts := make([]alerting.TriggeredAlert, 0, len(records))
	for _, rec := range records {
		var alert alerting.TriggeredAlert
		if err := json.Unmarshal([]byte(rec.Document), &alert); err != nil {
			return nil, errors.Wrapf(err, "decoding alert %s", rec.ID)
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}
