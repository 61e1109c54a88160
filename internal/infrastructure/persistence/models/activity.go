package models

import (
	"time"

	"github.com/google/uuid"
)

// ActivityModel is one entry of a tenant's activity log, written by event
// handlers into the tenant datasource.
type ActivityModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	EventType     string    `gorm:"type:varchar(100);not null"`
	AggregateType string    `gorm:"type:varchar(100);not null"`
	AggregateID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Summary       string    `gorm:"type:text"`
	OccurredAt    time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (ActivityModel) TableName() string {
	return "activities"
}
