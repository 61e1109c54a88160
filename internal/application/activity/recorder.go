// Package activity turns domain events into entries of the tenant's activity log.
package activity

import (
	"context"

	"go.uber.org/zap"

	"github.com/ampairs/backend/internal/domain/activity"
	"github.com/ampairs/backend/internal/domain/shared"
	"github.com/ampairs/backend/internal/infrastructure/logger"
)

// Recorder is an event handler that writes every event it receives to the
// activity log of the event's tenant. It is usually subscribed as a wildcard
// handler and fed by PublishAsync, so it runs after the request has ended.
type Recorder struct {
	repo activity.Repository
}

// NewRecorder creates a new Recorder
func NewRecorder(repo activity.Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Handle records the event
func (r *Recorder) Handle(ctx context.Context, evt shared.DomainEvent) error {
	entry := activity.FromEvent(evt)
	if err := r.repo.Record(ctx, entry); err != nil {
		return err
	}
	logger.L(ctx).Debug("Activity recorded",
		zap.String("event_type", evt.EventType()),
		zap.String("aggregate_id", evt.AggregateID().String()),
	)
	return nil
}

// EventTypes returns nil: the recorder receives every event
func (r *Recorder) EventTypes() []string {
	return nil
}

// Recent returns the latest entries of the tenant in ctx
func (r *Recorder) Recent(ctx context.Context, limit int) ([]activity.Entry, error) {
	return r.repo.Recent(ctx, limit)
}

// Ensure Recorder implements EventHandler
var _ shared.EventHandler = (*Recorder)(nil)
