package middleware

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ampairs/backend/internal/infrastructure/config"
	"github.com/ampairs/backend/internal/infrastructure/logger"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
	"github.com/ampairs/backend/internal/interfaces/http/dto"
)

const (
	// TenantIDKey is the gin key of the resolved tenant, for request logging
	TenantIDKey        = "tenant_id"
	TenantHeaderKey    = "X-Tenant-ID"
	WorkspaceHeaderKey = "X-Workspace-ID"
	TenantQueryKey     = "tenantId"
)

var subdomainLabel = regexp.MustCompile(`^[a-z0-9-]{3,}$`)

// TenantSource extracts a raw tenant identifier from a request.
// An empty result means the source has nothing to say.
type TenantSource interface {
	TenantFrom(c *gin.Context) string
}

// TenantSourceFunc adapts a function to TenantSource
type TenantSourceFunc func(c *gin.Context) string

// TenantFrom implements TenantSource
func (f TenantSourceFunc) TenantFrom(c *gin.Context) string {
	return f(c)
}

// HeaderSource reads the first non-empty header among names
func HeaderSource(names ...string) TenantSource {
	return TenantSourceFunc(func(c *gin.Context) string {
		for _, name := range names {
			if v := strings.TrimSpace(c.GetHeader(name)); v != "" {
				return v
			}
		}
		return ""
	})
}

// QuerySource reads a query string parameter, falling back to a form field
func QuerySource(param string) TenantSource {
	return TenantSourceFunc(func(c *gin.Context) string {
		if v := strings.TrimSpace(c.Query(param)); v != "" {
			return v
		}
		if c.Request.Method == http.MethodGet || c.ContentType() != "application/x-www-form-urlencoded" {
			return ""
		}
		return strings.TrimSpace(c.PostForm(param))
	})
}

// PrincipalSource reads the tenant affinity of the authenticated principal
func PrincipalSource() TenantSource {
	return TenantSourceFunc(func(c *gin.Context) string {
		if v, ok := c.Get(PrincipalKey); ok {
			if p, ok := v.(tenancy.Principal); ok && p != nil {
				if id := p.TenantID(); id != "" {
					return id
				}
			}
		}
		return c.GetString(JWTTenantIDKey)
	})
}

// SubdomainSource reads the first label of the request host. The host needs at
// least three labels, and when baseDomain is set it must be a subdomain of it.
// Labels in denylist (www, api, ...) never name a tenant.
func SubdomainSource(baseDomain string, denylist []string) TenantSource {
	baseDomain = strings.ToLower(strings.Trim(baseDomain, "."))
	deny := make(map[string]struct{}, len(denylist))
	for _, d := range denylist {
		deny[strings.ToLower(d)] = struct{}{}
	}

	return TenantSourceFunc(func(c *gin.Context) string {
		host := strings.ToLower(c.Request.Host)
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if host == "" || net.ParseIP(host) != nil {
			return ""
		}
		if baseDomain != "" && !strings.HasSuffix(host, "."+baseDomain) {
			return ""
		}

		labels := strings.Split(host, ".")
		if len(labels) < 3 {
			return ""
		}
		first := labels[0]
		if !subdomainLabel.MatchString(first) {
			return ""
		}
		if _, denied := deny[first]; denied {
			return ""
		}
		return first
	})
}

// MembershipChecker tells whether a user may act inside a workspace
type MembershipChecker interface {
	IsMember(ctx context.Context, slug string, userID uuid.UUID) (bool, error)
}

// TenantMiddlewareConfig holds configuration for tenant middleware
type TenantMiddlewareConfig struct {
	// Sources are consulted in order; the first non-empty value wins
	Sources []TenantSource
	// SkipPaths never get a tenant context (e.g. health checks)
	SkipPaths []string
	// Membership, when set, rejects authenticated users who are not members
	// of the resolved workspace. Anonymous requests are not checked.
	Membership MembershipChecker
	// MembershipScope limits Membership to the tenants it returns true for,
	// typically those provisioned as workspaces. Nil checks every tenant
	// except the default one.
	MembershipScope func(id tenancy.ID) bool
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultTenantConfig returns default tenant middleware configuration
// Extraction order: X-Tenant-ID header > X-Workspace-ID header > tenantId query > principal
func DefaultTenantConfig() TenantMiddlewareConfig {
	return TenantMiddlewareConfig{
		Sources: []TenantSource{
			HeaderSource(TenantHeaderKey, WorkspaceHeaderKey),
			QuerySource(TenantQueryKey),
			PrincipalSource(),
		},
		SkipPaths: []string{"/health", "/healthz", "/ready", "/metrics"},
	}
}

// NewTenantConfig builds the middleware configuration from the tenancy settings
func NewTenantConfig(cfg config.TenancyConfig) TenantMiddlewareConfig {
	headers := append([]string{cfg.HeaderName}, cfg.HeaderAliases...)
	sources := []TenantSource{
		HeaderSource(headers...),
		QuerySource(cfg.QueryParam),
	}
	if cfg.PrincipalEnabled {
		sources = append(sources, PrincipalSource())
	}
	if cfg.SubdomainEnabled {
		sources = append(sources, SubdomainSource(cfg.BaseDomain, cfg.SubdomainDenylist))
	}
	return TenantMiddlewareConfig{
		Sources:   sources,
		SkipPaths: cfg.SkipPaths,
	}
}

// TenantMiddleware resolves the tenant with the default configuration
func TenantMiddleware() gin.HandlerFunc {
	return TenantMiddlewareWithConfig(DefaultTenantConfig())
}

// TenantMiddlewareWithConfig installs a fresh tenant holder in the request
// context and activates the resolved tenant in it. The holder is cleared when
// the handler chain returns, whether normally, by abort or by panic.
// Requests that resolve no tenant pass through with an empty holder; endpoints
// that need one use RequireTenant.
func TenantMiddlewareWithConfig(cfg TenantMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if matchesPath(c.Request.URL.Path, cfg.SkipPaths) {
			c.Next()
			return
		}

		holder := tenancy.NewHolder()
		defer holder.Clear()
		c.Request = c.Request.WithContext(tenancy.NewContext(c.Request.Context(), holder))

		raw := ""
		for _, source := range cfg.Sources {
			if raw = source.TenantFrom(c); raw != "" {
				break
			}
		}
		if raw == "" {
			c.Next()
			return
		}

		id, err := tenancy.ParseID(raw)
		if err != nil {
			abortWithError(c, err)
			return
		}

		if cfg.Membership != nil && !id.IsDefault() &&
			(cfg.MembershipScope == nil || cfg.MembershipScope(id)) {
			if !checkMembership(c, cfg.Membership, id) {
				return
			}
		}

		holder.Set(id)
		c.Set(TenantIDKey, id.String())

		if cfg.Logger != nil {
			cfg.Logger.Debug("Tenant identified", zap.String("tenant_id", id.String()))
		}

		c.Next()
	}
}

// checkMembership aborts and returns false when the authenticated user is not
// a member of the workspace.
func checkMembership(c *gin.Context, checker MembershipChecker, id tenancy.ID) bool {
	rawUserID := GetJWTUserID(c)
	if rawUserID == "" {
		return true
	}

	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		abortAccessDenied(c)
		return false
	}

	ok, err := checker.IsMember(c.Request.Context(), id.String(), userID)
	if err != nil {
		logger.L(c.Request.Context()).Error("Workspace membership check failed",
			zap.String("workspace", id.String()),
			zap.Error(err))
		abortWithError(c, err)
		return false
	}
	if !ok {
		logger.L(c.Request.Context()).Warn("User is not a member of the workspace",
			zap.String("workspace", id.String()))
		abortAccessDenied(c)
		return false
	}
	return true
}

// RequireTenant rejects requests that reached it without an active tenant
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := tenancy.RequireFromContext(c.Request.Context()); err != nil {
			abortWithError(c, err)
			return
		}
		c.Next()
	}
}

// GetTenantID returns the tenant active for the request, if any
func GetTenantID(c *gin.Context) (tenancy.ID, bool) {
	return tenancy.FromContext(c.Request.Context())
}

func abortWithError(c *gin.Context, err error) {
	code, message := dto.ErrorCodeFor(err)
	c.AbortWithStatusJSON(dto.GetHTTPStatus(code),
		dto.NewErrorResponseWithRequestID(code, message, c.GetString(RequestIDKey)))
}

func abortAccessDenied(c *gin.Context) {
	c.AbortWithStatusJSON(dto.GetHTTPStatus(dto.ErrCodeAccessDenied),
		dto.NewErrorResponseWithRequestID(dto.ErrCodeAccessDenied, "You are not a member of this workspace", c.GetString(RequestIDKey)))
}
