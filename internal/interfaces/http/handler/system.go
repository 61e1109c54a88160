package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ampairs/backend/internal/infrastructure/logger"
	"github.com/ampairs/backend/internal/infrastructure/persistence/tenant"
	"github.com/ampairs/backend/internal/interfaces/http/dto"
	"github.com/ampairs/backend/internal/interfaces/http/middleware"
)

// RouteTable is the read side of the tenant datasource router
type RouteTable interface {
	Default() *tenant.DataSource
	Len() int
}

// ReloadFunc rebuilds the tenant route table, locally or on every instance
type ReloadFunc func(ctx context.Context) error

// SystemHandler handles system-related API endpoints
type SystemHandler struct {
	BaseHandler
	routes      RouteTable
	reload      ReloadFunc
	startTime   time.Time
	pingTimeout time.Duration
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(routes RouteTable) *SystemHandler {
	return &SystemHandler{
		routes:      routes,
		startTime:   time.Now(),
		pingTimeout: 2 * time.Second,
	}
}

// WithReload enables ReloadTenants
func (h *SystemHandler) WithReload(fn ReloadFunc) *SystemHandler {
	h.reload = fn
	return h
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name" example:"Ampairs Backend API"`
	Version   string `json:"version" example:"1.0.0"`
	GoVersion string `json:"go_version" example:"go1.25.5"`
	Uptime    string `json:"uptime" example:"1h30m45s"`
}

// GetSystemInfo godoc
// @ID           getSystemInfo
// @Summary      Get system information
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Envelope[SystemInfoResponse]
// @Router       /system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	h.Success(c, SystemInfoResponse{
		Name:      "Ampairs Backend API",
		Version:   "1.0.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// HealthResponse reports the shared database and the size of the route table
type HealthResponse struct {
	Status   string                 `json:"status" example:"ok"`
	Database string                 `json:"database" example:"up"`
	Routes   int                    `json:"routes" example:"3"`
	Pool     *tenant.ConnectionStats `json:"pool,omitempty"`
}

// Health godoc
// @ID           getHealth
// @Summary      Health check
// @Description  Pings the shared (default) datasource and reports how many tenant routes are loaded
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Envelope[HealthResponse]
// @Failure      503 {object} dto.Envelope[HealthResponse]
// @Router       /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{Status: "ok", Database: "up", Routes: h.routes.Len()}

	def := h.routes.Default()
	if def == nil {
		resp.Status, resp.Database = "unavailable", "missing"
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.pingTimeout)
	defer cancel()
	stats := def.Stats()
	resp.Pool = &stats
	if err := def.Ping(ctx); err != nil {
		resp.Status, resp.Database = "unavailable", "down"
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp})
		return
	}

	h.Success(c, resp)
}

// ReloadResponse reports the route table after a reload request
type ReloadResponse struct {
	Routes int `json:"routes" example:"3"`
}

// ReloadTenants godoc
// @ID           reloadTenants
// @Summary      Reload tenant datasources
// @Description  Rebuilds the tenant route table from configuration and the workspace registry. With Redis enabled every instance reloads.
// @Tags         system
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} dto.Envelope[ReloadResponse]
// @Failure      401 {object} dto.Response
// @Failure      503 {object} dto.Response
// @Router       /system/tenants/reload [post]
func (h *SystemHandler) ReloadTenants(c *gin.Context) {
	if middleware.GetJWTUserID(c) == "" {
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Authentication required")
		return
	}
	if h.reload == nil {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeServiceUnavailable, "Tenant reload is not available")
		return
	}
	if err := h.reload(c.Request.Context()); err != nil {
		logger.L(c.Request.Context()).Warn("Tenant reload failed", zap.Error(err))
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeServiceUnavailable, "Tenant reload failed")
		return
	}
	h.Success(c, ReloadResponse{Routes: h.routes.Len()})
}
