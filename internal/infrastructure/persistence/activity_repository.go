package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/ampairs/backend/internal/domain/activity"
	"github.com/ampairs/backend/internal/infrastructure/persistence/models"
)

// GormActivityRepository implements activity.Repository on the tenant's datasource.
type GormActivityRepository struct {
	sessions Sessions
}

// NewGormActivityRepository creates a new GormActivityRepository
func NewGormActivityRepository(sessions Sessions) *GormActivityRepository {
	return &GormActivityRepository{sessions: sessions}
}

// Record stores an entry. Recording the same event twice is a no-op.
func (r *GormActivityRepository) Record(ctx context.Context, e activity.Entry) error {
	if e.EventID == uuid.Nil {
		return errors.New("activity entry without event id")
	}
	db, err := r.sessions.Session(ctx)
	if err != nil {
		return err
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.ActivityModel{
		ID:            e.ID,
		EventID:       e.EventID,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Summary:       e.Summary,
		OccurredAt:    e.OccurredAt,
	}).Error
}

// Recent returns the newest entries first
func (r *GormActivityRepository) Recent(ctx context.Context, limit int) ([]activity.Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	db, err := r.sessions.Session(ctx)
	if err != nil {
		return nil, err
	}
	var rows []models.ActivityModel
	if err := db.Order("occurred_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]activity.Entry, len(rows))
	for i, m := range rows {
		entries[i] = activity.Entry{
			ID:            m.ID,
			EventID:       m.EventID,
			EventType:     m.EventType,
			AggregateType: m.AggregateType,
			AggregateID:   m.AggregateID,
			Summary:       m.Summary,
			OccurredAt:    m.OccurredAt,
		}
	}
	return entries, nil
}

// Ensure GormActivityRepository implements activity.Repository
var _ activity.Repository = (*GormActivityRepository)(nil)
