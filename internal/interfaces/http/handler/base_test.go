package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ampairs/backend/internal/domain/shared"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
	"github.com/ampairs/backend/internal/interfaces/http/dto"
	"github.com/ampairs/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext(method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, nil)
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*gin.Context)
		expected string
	}{
		{
			name:     "from context",
			setup:    func(c *gin.Context) { c.Set(middleware.RequestIDKey, "ctx-id") },
			expected: "ctx-id",
		},
		{
			name:     "from header when context empty",
			setup:    func(c *gin.Context) { c.Request.Header.Set(middleware.RequestIDHeader, "header-id") },
			expected: "header-id",
		},
		{
			name: "context takes precedence over header",
			setup: func(c *gin.Context) {
				c.Set(middleware.RequestIDKey, "ctx-id")
				c.Request.Header.Set(middleware.RequestIDHeader, "header-id")
			},
			expected: "ctx-id",
		},
		{
			name:     "empty when not set",
			setup:    func(*gin.Context) {},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestContext(http.MethodGet, "/")
			tt.setup(c)
			assert.Equal(t, tt.expected, getRequestID(c))
		})
	}
}

func TestBaseHandler_Responses(t *testing.T) {
	h := &BaseHandler{}

	t.Run("success", func(t *testing.T) {
		c, w := newTestContext(http.MethodGet, "/")
		h.Success(c, map[string]string{"k": "v"})

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		assert.True(t, resp.Success)
		assert.Nil(t, resp.Error)
	})

	t.Run("created", func(t *testing.T) {
		c, w := newTestContext(http.MethodPost, "/")
		h.Created(c, "x")
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("success with meta", func(t *testing.T) {
		c, w := newTestContext(http.MethodGet, "/")
		h.SuccessWithMeta(c, []int{1, 2}, 42, 2, 20)

		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(42), resp.Meta.Total)
		assert.Equal(t, 2, resp.Meta.Page)
		assert.Equal(t, 3, resp.Meta.TotalPages)
	})

	t.Run("bad request carries request id", func(t *testing.T) {
		c, w := newTestContext(http.MethodGet, "/")
		c.Set(middleware.RequestIDKey, "req-7")
		h.BadRequest(c, "nope")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeBadRequest, resp.Error.Code)
		assert.Equal(t, "req-7", resp.Error.RequestID)
	})

	t.Run("validation error", func(t *testing.T) {
		c, w := newTestContext(http.MethodPost, "/")
		h.ValidationError(c, errors.New("Key: 'Name' failed on the 'required' tag"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decodeResponse(t, w).Error.Code)
	})
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
		expectedMsg    string
	}{
		{"missing tenant", tenancy.ErrMissingTenantContext, http.StatusBadRequest, dto.ErrCodeTenantRequired, "Tenant identifier is required"},
		{"unknown tenant", fmt.Errorf("route: %w", tenancy.ErrUnknownTenant), http.StatusNotFound, dto.ErrCodeTenantUnknown, "Tenant is not known"},
		{"unavailable", fmt.Errorf("acme-corp: %w", tenancy.ErrConnectionUnavailable), http.StatusServiceUnavailable, dto.ErrCodeDataSourceUnavailable, "Tenant datasource is unavailable"},
		{"mismatch", tenancy.ErrTenantMismatch, http.StatusInternalServerError, dto.ErrCodeInternal, "An internal error occurred"},
		{"domain not found", shared.ErrNotFound, http.StatusNotFound, dto.ErrCodeNotFound, "Resource not found"},
		{"domain invalid", shared.NewDomainError("INVALID_CODE", "Code is invalid"), http.StatusBadRequest, dto.ErrCodeInvalidInput, "Code is invalid"},
		{"plain error is hidden", errors.New("pq: password authentication failed"), http.StatusInternalServerError, dto.ErrCodeInternal, "An internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			c, w := newTestContext(http.MethodGet, "/")
			h.HandleError(c, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedCode, resp.Error.Code)
			assert.Equal(t, tt.expectedMsg, resp.Error.Message)

			if tt.expectedStatus >= http.StatusInternalServerError {
				assert.Len(t, c.Errors, 1)
			} else {
				assert.Empty(t, c.Errors)
			}
		})
	}

	t.Run("nil error writes nothing", func(t *testing.T) {
		h := &BaseHandler{}
		c, w := newTestContext(http.MethodGet, "/")
		h.HandleError(c, nil)
		assert.Zero(t, w.Body.Len())
	})
}
