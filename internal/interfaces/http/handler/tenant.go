package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/ampairs/backend/internal/infrastructure/persistence/tenant"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

// DataSourceResolver routes a tenant identifier to its datasource
type DataSourceResolver interface {
	Resolve(ctx context.Context, id tenancy.ID) (*tenant.DataSource, error)
}

// TenantHandler exposes the tenant resolved for the current request
type TenantHandler struct {
	BaseHandler
	resolver   *tenancy.IdentifierResolver
	datasource DataSourceResolver
}

// NewTenantHandler creates a new TenantHandler
func NewTenantHandler(resolver *tenancy.IdentifierResolver, datasource DataSourceResolver) *TenantHandler {
	return &TenantHandler{resolver: resolver, datasource: datasource}
}

// CurrentTenantResponse describes where the request's work is routed
type CurrentTenantResponse struct {
	Tenant     string `json:"tenant" example:"acme-corp"`
	Shared     bool   `json:"shared"`
	DataSource string `json:"datasource" example:"acme-corp"`
	Schema     string `json:"schema,omitempty" example:"ws_acme_corp"`
}

// Current godoc
// @ID           getCurrentTenant
// @Summary      Current tenant
// @Description  Returns the tenant resolved for this request and the datasource serving it.
// @Description  Requests without a tenant are served by the shared datasource.
// @Tags         tenancy
// @Produce      json
// @Param        X-Tenant-ID header string false "Tenant identifier"
// @Success      200 {object} dto.Envelope[CurrentTenantResponse]
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      503 {object} dto.Response
// @Router       /tenant/current [get]
func (h *TenantHandler) Current(c *gin.Context) {
	ctx := c.Request.Context()
	id := h.resolver.ResolveCurrentTenantIdentifier(ctx)

	ds, err := h.datasource.Resolve(ctx, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, CurrentTenantResponse{
		Tenant:     id.String(),
		Shared:     ds.Tenant().IsDefault(),
		DataSource: ds.Tenant().String(),
		Schema:     ds.Schema(),
	})
}
