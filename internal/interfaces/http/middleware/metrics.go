package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

// MetricsOption configures HTTPMetrics
type MetricsOption func(*metricsConfig)

type metricsConfig struct {
	knownTenant func(id tenancy.ID) bool
}

// WithKnownTenants labels only tenants known reports true for; any other
// identifier a client sent is recorded as "unknown".
func WithKnownTenants(known func(id tenancy.ID) bool) MetricsOption {
	return func(c *metricsConfig) { c.knownTenant = known }
}

// HTTPMetrics records request counts and latency per route, status class and
// tenant. Requests without a tenant are recorded under "none".
func HTTPMetrics(meter metric.Meter, opts ...MetricsOption) (gin.HandlerFunc, error) {
	var cfg metricsConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	requests, err := meter.Int64Counter("http.server.requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		tenant := c.GetString(TenantIDKey)
		switch {
		case tenant == "":
			tenant = "none"
		case cfg.knownTenant != nil && !cfg.knownTenant(tenancy.ID(tenant)):
			tenant = "unknown"
		}
		attrs := metric.WithAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.String("http.status_class", statusClass(c.Writer.Status())),
			attribute.String("tenant_id", tenant),
		)

		requests.Add(c.Request.Context(), 1, attrs)
		duration.Record(c.Request.Context(), time.Since(start).Seconds(), attrs)
	}, nil
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
