// Package router assembles the HTTP surface: global middleware, health
// probes, the webhook intake and the versioned admin API.
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storesync/backend/internal/infrastructure/logger"
	"github.com/storesync/backend/internal/interfaces/http/middleware"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// WebhookRegistrar registers unauthenticated intake routes at the engine root
type WebhookRegistrar interface {
	RegisterRoutes(r gin.IRouter)
}

// EngineOptions configures the base engine
type EngineOptions struct {
	Logger *zap.Logger
	// Env switches gin into release mode for "production"
	Env  string
	CORS middleware.CORSConfig
	// Metrics enables the HTTP metrics middleware when configured
	Metrics middleware.HTTPMetricsConfig
	// Webhook, when set, mounts the intake routes outside the admin API
	Webhook WebhookRegistrar
	// WebhookLimiter rate-limits the intake per client IP
	WebhookLimiter *middleware.RateLimiter
	// MaxBodySize caps webhook payload size in bytes
	MaxBodySize int64
	// ReadyCheck reports readiness; typically a database ping
	ReadyCheck func(ctx context.Context) error
}

// NewEngine builds the gin engine with the global middleware chain, health
// probes and the webhook intake. Admin routes are mounted afterwards via
// Router.Setup so they sit behind their own auth middleware.
func NewEngine(opts EngineOptions) *gin.Engine {
	if opts.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	if opts.Logger != nil {
		engine.Use(logger.GinMiddleware(opts.Logger))
	}
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(opts.CORS))
	engine.Use(middleware.HTTPMetrics(opts.Metrics))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/ready", func(c *gin.Context) {
		if opts.ReadyCheck != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			if err := opts.ReadyCheck(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if opts.Webhook != nil {
		intake := engine.Group("")
		if opts.WebhookLimiter != nil {
			intake.Use(middleware.RateLimit(opts.WebhookLimiter))
		}
		if opts.MaxBodySize > 0 {
			intake.Use(middleware.BodyLimit(opts.MaxBodySize))
		}
		opts.Webhook.RegisterRoutes(intake)
	}

	return engine
}

// Router manages admin API route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	middleware []gin.HandlerFunc
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// WithMiddleware adds middleware applied to the whole API group, e.g. JWT
// auth
func WithMiddleware(mw ...gin.HandlerFunc) RouterOption {
	return func(r *Router) {
		r.middleware = append(r.middleware, mw...)
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	if len(r.middleware) > 0 {
		api.Use(r.middleware...)
	}
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}
