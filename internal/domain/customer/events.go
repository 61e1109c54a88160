package customer

import (
	"github.com/google/uuid"

	"github.com/ampairs/backend/internal/domain/shared"
)

// AggregateType is the aggregate type recorded on customer events
const AggregateType = "Customer"

// Event type constants
const (
	EventTypeCreated = "CustomerCreated"
)

// CreatedEvent is published when a new customer is created
type CreatedEvent struct {
	shared.BaseDomainEvent
	CustomerID uuid.UUID `json:"customer_id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
}

// NewCreatedEvent creates a new CreatedEvent
func NewCreatedEvent(c *Customer, tenantID string) *CreatedEvent {
	return &CreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCreated, AggregateType, c.ID, tenantID),
		CustomerID:      c.ID,
		Code:            c.Code,
		Name:            c.Name,
	}
}

// Describe summarises the event for the activity log
func (e *CreatedEvent) Describe() string {
	return "Customer " + e.Code + " created: " + e.Name
}
