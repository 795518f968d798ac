package db

import (
	"encoding/json"
	"time"
)

// ProcessedURL maps the per-URL outcome ledger.
type ProcessedURL struct {
	URL         string    `gorm:"column:url;type:text;primaryKey"`
	Status      string    `gorm:"column:status;type:text;not null"`
	ErrorDetail *string   `gorm:"column:error_detail;type:text"`
	ProcessedAt time.Time `gorm:"column:processed_at;type:timestamptz;not null;default:now()"`
}

func (ProcessedURL) TableName() string { return "processed_urls" }

// Location maps draft and published places. The pipeline only ever inserts
// drafts (is_active=false); activation happens elsewhere.
type Location struct {
	LocationID      int64           `gorm:"column:location_id;primaryKey;autoIncrement"`
	Name            string          `gorm:"column:name;type:text;not null"`
	Description     string          `gorm:"column:description;type:text;not null"`
	IsActive        bool            `gorm:"column:is_active;type:boolean;not null;default:false"`
	SourceURL       string          `gorm:"column:source_url;type:text;not null"`
	SourceName      string          `gorm:"column:source_name;type:text;not null"`
	SourceScrapedAt time.Time       `gorm:"column:source_scraped_at;type:timestamptz;not null"`
	Language        *string         `gorm:"column:language;type:text"`
	Features        json.RawMessage `gorm:"column:features;type:jsonb"`
	CreatedAt       time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Location) TableName() string { return "locations" }

// AgentLog maps run lifecycle log entries.
type AgentLog struct {
	LogID     int64           `gorm:"column:log_id;primaryKey;autoIncrement"`
	AgentName string          `gorm:"column:agent_name;type:text;not null"`
	Status    string          `gorm:"column:status;type:text;not null"`
	Message   string          `gorm:"column:message;type:text;not null"`
	Details   json.RawMessage `gorm:"column:details;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (AgentLog) TableName() string { return "agent_logs" }

func autoMigrateModels() []any {
	return []any{
		&ProcessedURL{},
		&Location{},
		&AgentLog{},
	}
}
