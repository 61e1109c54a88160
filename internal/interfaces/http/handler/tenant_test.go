package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ampairs/backend/internal/infrastructure/persistence/tenant"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
	"github.com/ampairs/backend/internal/interfaces/http/dto"
)

type mapResolver map[tenancy.ID]*tenant.DataSource

func (m mapResolver) Resolve(_ context.Context, id tenancy.ID) (*tenant.DataSource, error) {
	if ds, ok := m[id]; ok {
		return ds, nil
	}
	return nil, fmt.Errorf("%s: %w", id, tenancy.ErrUnknownTenant)
}

func TestTenantHandler_Current(t *testing.T) {
	def := openDataSource(t, tenancy.DefaultID)
	acme := openDataSource(t, "acme-corp")
	h := NewTenantHandler(tenancy.NewIdentifierResolver(""), mapResolver{
		tenancy.DefaultID: def,
		"acme-corp":       acme,
	})

	tests := []struct {
		name   string
		tenant tenancy.ID
		shared bool
	}{
		{"routed tenant", "acme-corp", false},
		{"no tenant falls back to shared", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext(http.MethodGet, "/api/v1/tenant/current")
			if tt.tenant != "" {
				c.Request = c.Request.WithContext(tenancy.ContextWithTenant(c.Request.Context(), tt.tenant))
			}
			h.Current(c)

			require.Equal(t, http.StatusOK, w.Code)
			var resp struct {
				Data CurrentTenantResponse `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.shared, resp.Data.Shared)
			if tt.shared {
				assert.Equal(t, "default", resp.Data.Tenant)
				assert.Equal(t, "default", resp.Data.DataSource)
			} else {
				assert.Equal(t, "acme-corp", resp.Data.Tenant)
				assert.Equal(t, "acme-corp", resp.Data.DataSource)
			}
		})
	}

	t.Run("unknown tenant", func(t *testing.T) {
		c, w := newTestContext(http.MethodGet, "/api/v1/tenant/current")
		c.Request = c.Request.WithContext(tenancy.ContextWithTenant(c.Request.Context(), "initech"))
		h.Current(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeTenantUnknown, decodeResponse(t, w).Error.Code)
	})
}
