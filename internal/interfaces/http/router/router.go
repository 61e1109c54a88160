package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Router mounts route groups under a versioned API prefix. Groups marked
// tenant-scoped serve data from a tenant datasource and run behind the
// tenant guard; the others answer without one.
type Router struct {
	engine      *gin.Engine
	apiVersion  string
	middleware  []gin.HandlerFunc
	tenantGuard []gin.HandlerFunc
	groups      []*Group
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithAPIVersion sets the version segment of the prefix, e.g. "v1"
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) { r.apiVersion = version }
}

// WithTenantGuard sets the handlers that run in front of tenant-scoped groups
func WithTenantGuard(guard ...gin.HandlerFunc) RouterOption {
	return func(r *Router) { r.tenantGuard = guard }
}

// NewRouter creates a Router on engine
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Use adds middleware for every route under the API prefix
func (r *Router) Use(middleware ...gin.HandlerFunc) *Router {
	r.middleware = append(r.middleware, middleware...)
	return r
}

// Mount queues groups for Setup
func (r *Router) Mount(groups ...*Group) *Router {
	r.groups = append(r.groups, groups...)
	return r
}

// Prefix returns the API prefix, e.g. /api/v1
func (r *Router) Prefix() string {
	return "/api/" + r.apiVersion
}

// Setup registers every mounted group with the engine
func (r *Router) Setup() {
	api := r.engine.Group(r.Prefix())
	api.Use(r.middleware...)
	for _, g := range r.groups {
		g.register(api, r.tenantGuard, false)
	}
}

// Group collects the routes of one resource under a common prefix
type Group struct {
	name         string
	prefix       string
	tenantScoped bool
	middleware   []gin.HandlerFunc
	routes       []route
	children     []*Group
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewGroup creates a group served without a tenant guard
func NewGroup(name, prefix string) *Group {
	return &Group{name: name, prefix: prefix}
}

// TenantScoped marks the group, and everything nested in it, as tenant data
func (g *Group) TenantScoped() *Group {
	g.tenantScoped = true
	return g
}

// Use adds middleware to this group
func (g *Group) Use(middleware ...gin.HandlerFunc) *Group {
	g.middleware = append(g.middleware, middleware...)
	return g
}

// Handle registers a route for an arbitrary method
func (g *Group) Handle(method, path string, handlers ...gin.HandlerFunc) *Group {
	g.routes = append(g.routes, route{method: method, path: path, handlers: handlers})
	return g
}

// GET registers a GET route
func (g *Group) GET(path string, handlers ...gin.HandlerFunc) *Group {
	return g.Handle(http.MethodGet, path, handlers...)
}

// POST registers a POST route
func (g *Group) POST(path string, handlers ...gin.HandlerFunc) *Group {
	return g.Handle(http.MethodPost, path, handlers...)
}

// Group nests a child group under this one
func (g *Group) Group(name, prefix string) *Group {
	child := NewGroup(name, prefix)
	g.children = append(g.children, child)
	return child
}

// Name returns the group name
func (g *Group) Name() string { return g.name }

// Prefix returns the group prefix relative to its parent
func (g *Group) Prefix() string { return g.prefix }

// register mounts the group under parent. guarded reports whether a parent
// already runs the tenant guard.
func (g *Group) register(parent *gin.RouterGroup, guard []gin.HandlerFunc, guarded bool) {
	rg := parent.Group(g.prefix)
	if g.tenantScoped && !guarded {
		rg.Use(guard...)
		guarded = true
	}
	rg.Use(g.middleware...)
	for _, rt := range g.routes {
		rg.Handle(rt.method, rt.path, rt.handlers...)
	}
	for _, child := range g.children {
		child.register(rg, guard, guarded)
	}
}
