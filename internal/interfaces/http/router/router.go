// Package router assembles the gin engine: the middleware chain, the
// versioned API groups and the operational endpoints.
package router

import (
	"net/http"
	"path"
	"sort"

	"github.com/gin-gonic/gin"
)

// ScopeGuard returns the middleware that rejects callers lacking scope
type ScopeGuard func(scope string) gin.HandlerFunc

// RouteRegistrar mounts its routes under rg, guarding scoped ones with guard
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup, guard ScopeGuard)
}

// Route describes a mounted endpoint. An empty Scope means any
// authenticated caller, or anyone on routes the JWT middleware skips.
type Route struct {
	Method string
	Path   string
	Scope  string
}

// Router mounts domain groups under the versioned API prefix
type Router struct {
	engine     *gin.Engine
	apiVersion string
	middleware []gin.HandlerFunc
	guard      ScopeGuard
	registrars []RouteRegistrar
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithAPIVersion sets the version segment of the prefix, e.g. "v2"
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// WithScopeGuard enforces route scopes. Without it scopes are descriptive only.
func WithScopeGuard(guard ScopeGuard) RouterOption {
	return func(r *Router) {
		r.guard = guard
	}
}

// NewRouter creates a Router for engine, defaulting to v1
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Use adds middleware that runs for every route under the API prefix
func (r *Router) Use(middleware ...gin.HandlerFunc) *Router {
	r.middleware = append(r.middleware, middleware...)
	return r
}

// Register queues a registrar for Setup
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// BasePath is the versioned API prefix, e.g. /api/v1
func (r *Router) BasePath() string {
	return "/api/" + r.apiVersion
}

// Setup mounts every registered group on the engine
func (r *Router) Setup() {
	api := r.engine.Group(r.BasePath(), r.middleware...)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api, r.guard)
	}
}

// Routes lists the registered DomainGroup routes with full paths, sorted by
// path then method.
func (r *Router) Routes() []Route {
	var out []Route
	for _, registrar := range r.registrars {
		if dg, ok := registrar.(*DomainGroup); ok {
			out = append(out, dg.collect(r.BasePath())...)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// DomainGroup is a prefix with its routes and the scope each one needs
type DomainGroup struct {
	name       string
	prefix     string
	routes     []groupRoute
	subgroups  []*DomainGroup
	middleware []gin.HandlerFunc
}

type groupRoute struct {
	Route
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a group mounted at prefix
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// Use adds middleware to this group and its subgroups
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// Handle adds a route requiring scope; pass "" for none
func (dg *DomainGroup) Handle(method, relPath, scope string, handlers ...gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, groupRoute{
		Route:    Route{Method: method, Path: relPath, Scope: scope},
		handlers: handlers,
	})
	return dg
}

// GET adds a GET route
func (dg *DomainGroup) GET(relPath, scope string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.Handle(http.MethodGet, relPath, scope, handlers...)
}

// POST adds a POST route
func (dg *DomainGroup) POST(relPath, scope string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.Handle(http.MethodPost, relPath, scope, handlers...)
}

// DELETE adds a DELETE route
func (dg *DomainGroup) DELETE(relPath, scope string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.Handle(http.MethodDelete, relPath, scope, handlers...)
}

// Group creates a nested group
func (dg *DomainGroup) Group(name, prefix string) *DomainGroup {
	sub := NewDomainGroup(name, prefix)
	dg.subgroups = append(dg.subgroups, sub)
	return sub
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup, guard ScopeGuard) {
	group := rg.Group(dg.prefix, dg.middleware...)
	for _, route := range dg.routes {
		handlers := route.handlers
		if route.Scope != "" && guard != nil {
			handlers = append([]gin.HandlerFunc{guard(route.Scope)}, handlers...)
		}
		group.Handle(route.Method, route.Path, handlers...)
	}
	for _, sub := range dg.subgroups {
		sub.RegisterRoutes(group, guard)
	}
}

func (dg *DomainGroup) collect(base string) []Route {
	base = path.Join(base, dg.prefix)
	out := make([]Route, 0, len(dg.routes))
	for _, route := range dg.routes {
		full := route.Route
		full.Path = base + route.Path
		out = append(out, full)
	}
	for _, sub := range dg.subgroups {
		out = append(out, sub.collect(base)...)
	}
	return out
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}
