// Package activity is the per-tenant activity log. Entries are derived from
// domain events and stored in the datasource of the tenant that raised them.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ampairs/backend/internal/domain/shared"
)

// Entry is one line of a tenant's activity log
type Entry struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateType string
	AggregateID   uuid.UUID
	Summary       string
	OccurredAt    time.Time
}

// Describer is implemented by events that can summarise themselves
type Describer interface {
	Describe() string
}

// FromEvent builds the log entry recorded for evt
func FromEvent(evt shared.DomainEvent) Entry {
	summary := fmt.Sprintf("%s %s", evt.AggregateType(), evt.EventType())
	if d, ok := evt.(Describer); ok {
		summary = d.Describe()
	}
	return Entry{
		ID:            uuid.New(),
		EventID:       evt.EventID(),
		EventType:     evt.EventType(),
		AggregateType: evt.AggregateType(),
		AggregateID:   evt.AggregateID(),
		Summary:       summary,
		OccurredAt:    evt.OccurredAt(),
	}
}

// Repository stores entries in the tenant datasource selected by ctx
type Repository interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}
