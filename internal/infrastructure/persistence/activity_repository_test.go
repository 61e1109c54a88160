package persistence

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ampairs/backend/internal/domain/activity"
)

func TestGormActivityRepository(t *testing.T) {
	repo := NewGormActivityRepository(tenantSessions(t, "acme-corp", "globex"))
	ctx := tenantCtx("acme-corp")

	older := activity.Entry{
		ID: uuid.New(), EventID: uuid.New(), EventType: "CustomerCreated",
		AggregateType: "Customer", AggregateID: uuid.New(), Summary: "first",
		OccurredAt: time.Now().Add(-time.Minute),
	}
	newer := older
	newer.ID, newer.EventID, newer.Summary, newer.OccurredAt = uuid.New(), uuid.New(), "second", time.Now()

	require.NoError(t, repo.Record(ctx, older))
	require.NoError(t, repo.Record(ctx, newer))

	dup := older
	dup.ID = uuid.New()
	require.NoError(t, repo.Record(ctx, dup), "same event recorded twice")

	entries, err := repo.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Summary)
	assert.Equal(t, "first", entries[1].Summary)

	others, err := repo.Recent(tenantCtx("globex"), 10)
	require.NoError(t, err)
	assert.Empty(t, others)

	assert.Error(t, repo.Record(ctx, activity.Entry{}))
}
