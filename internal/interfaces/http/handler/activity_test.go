package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ampairs/backend/internal/domain/activity"
	"github.com/ampairs/backend/internal/interfaces/http/dto"
)

type stubActivityReader struct {
	entries []activity.Entry
	err     error
	limit   int
}

func (s *stubActivityReader) Recent(_ context.Context, limit int) ([]activity.Entry, error) {
	s.limit = limit
	return s.entries, s.err
}

func newActivityRouter(reader ActivityReader) *gin.Engine {
	r := gin.New()
	r.GET("/activity", NewActivityHandler(reader).Recent)
	return r
}

func TestActivityHandler_Recent(t *testing.T) {
	t.Run("lists entries", func(t *testing.T) {
		reader := &stubActivityReader{entries: []activity.Entry{{
			ID:            uuid.New(),
			EventID:       uuid.New(),
			EventType:     "CustomerCreated",
			AggregateType: "Customer",
			AggregateID:   uuid.New(),
			Summary:       "Customer C-001 created: Sharma Traders",
			OccurredAt:    time.Now().UTC(),
		}}}

		w := httptest.NewRecorder()
		newActivityRouter(reader).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/activity?limit=5", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 5, reader.limit)
		var resp struct {
			Data []ActivityResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 1)
		assert.Equal(t, "CustomerCreated", resp.Data[0].EventType)
	})

	t.Run("no limit lets the reader pick", func(t *testing.T) {
		reader := &stubActivityReader{}
		w := httptest.NewRecorder()
		newActivityRouter(reader).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/activity", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, reader.limit)
	})

	t.Run("bad limit", func(t *testing.T) {
		for _, q := range []string{"abc", "0", "-3"} {
			w := httptest.NewRecorder()
			newActivityRouter(&stubActivityReader{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/activity?limit="+q, nil))
			assert.Equal(t, http.StatusBadRequest, w.Code, q)
		}
	})

	t.Run("reader failure", func(t *testing.T) {
		w := httptest.NewRecorder()
		newActivityRouter(&stubActivityReader{err: errors.New("boom")}).
			ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/activity", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, dto.ErrCodeInternal, decodeResponse(t, w).Error.Code)
	})
}
