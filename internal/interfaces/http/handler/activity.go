package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ampairs/backend/internal/domain/activity"
)

// ActivityReader reads the activity log of the tenant in ctx
type ActivityReader interface {
	Recent(ctx context.Context, limit int) ([]activity.Entry, error)
}

// ActivityHandler serves the tenant activity log
type ActivityHandler struct {
	BaseHandler
	reader ActivityReader
}

// NewActivityHandler creates a new ActivityHandler
func NewActivityHandler(reader ActivityReader) *ActivityHandler {
	return &ActivityHandler{reader: reader}
}

// ActivityResponse is one activity log entry
type ActivityResponse struct {
	EventType     string    `json:"event_type" example:"CustomerCreated"`
	AggregateType string    `json:"aggregate_type" example:"Customer"`
	AggregateID   uuid.UUID `json:"aggregate_id"`
	Summary       string    `json:"summary" example:"Customer C-001 created: Sharma Traders"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Recent godoc
// @ID           listRecentActivity
// @Summary      Recent activity
// @Tags         activity
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant identifier"
// @Param        limit query int false "Number of entries" default(20) maximum(100)
// @Success      200 {object} dto.Envelope[[]ActivityResponse]
// @Failure      400 {object} dto.Response
// @Security     BearerAuth
// @Router       /activity [get]
func (h *ActivityHandler) Recent(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.reader.Recent(c.Request.Context(), limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result := make([]ActivityResponse, len(entries))
	for i, e := range entries {
		result[i] = ActivityResponse{
			EventType:     e.EventType,
			AggregateType: e.AggregateType,
			AggregateID:   e.AggregateID,
			Summary:       e.Summary,
			OccurredAt:    e.OccurredAt,
		}
	}
	h.Success(c, result)
}
