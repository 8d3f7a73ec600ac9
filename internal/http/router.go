// Package httpapi wires the HTTP transport (Gin) to the metering services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, caller identity, logging/redaction, panic
// recovery, metrics, CORS, security headers, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-pdfops-backend/docs" // swagger docs registration
	"github.com/tbourn/go-pdfops-backend/internal/catalog"
	"github.com/tbourn/go-pdfops-backend/internal/config"
	"github.com/tbourn/go-pdfops-backend/internal/http/handlers"
	"github.com/tbourn/go-pdfops-backend/internal/http/middleware"
	"github.com/tbourn/go-pdfops-backend/internal/lock"
	"github.com/tbourn/go-pdfops-backend/internal/repo"
	"github.com/tbourn/go-pdfops-backend/internal/services"
)

// submitRoute is the relative route whose idempotency keys are scoped per
// document rather than per route.
const submitRoute = "/documents/:id/operations"

// corsHeaders are the request headers browser clients may send.
var corsHeaders = []string{
	"Origin", "Content-Type", "Accept", "Authorization",
	middleware.HeaderUserID, middleware.HeaderUserEmail, middleware.HeaderIdempotencyKey,
	"If-None-Match",
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It builds the metering service and operation gateway on top of db
// and locker, then mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Identity: resolve the caller (optional here, enforced per group)
//  4. Logger: request-scoped logger and access log (header dump at debug)
//  5. Recovery: capture panics after logger
//  6. Body size limiter
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS, gzip and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, locker lock.Locker, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Identity(false))
	r.Use(middleware.Logger())
	if strings.EqualFold(cfg.LogLevel, "debug") {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	}
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200, Scope: idempotencyScope},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// Balances and ledgers are per-user: never let intermediaries cache them.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← db/catalog/locker
	bypass := services.NewBypassList(cfg.Metering.BypassUserIDs, cfg.Metering.BypassEmails)
	metering := services.NewMeteringService(db, catalog.Default(), locker, bypass)
	gateway := services.NewOperationGateway(metering, cfg.IdempotencyTTL)
	h := handlers.New(metering, gateway)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Catalog (public)
		api.GET("/operations", h.ListOperations)
		api.GET("/operations/:id/estimate", h.EstimateCost)
		api.GET("/credits/packs", h.ListPacks)

		// Caller-scoped
		user := api.Group("", middleware.Identity(true))
		user.GET("/credits/balance", h.GetBalance)
		user.GET("/credits/ledger", h.ListLedger)
		user.POST("/credits/outcomes", h.RecordOutcome)
		user.POST(submitRoute, h.SubmitOperation)
		user.GET("/jobs", h.ListJobs)
		user.GET("/jobs/:id", h.GetJob)

		// Executor and billing callbacks
		exec := api.Group("", middleware.RequireExecutorToken(cfg.Metering.ExecutorToken))
		exec.POST("/jobs/:id/start", h.StartJob)
		exec.POST("/jobs/:id/outcome", h.ReportJobOutcome)
		exec.POST("/credits/purchases", h.GrantPurchase)
		exec.POST("/credits/refunds", h.Refund)
		exec.POST("/credits/reconcile", h.Reconcile)
	}
}

// idempotencyScope scopes submission keys to the target document, matching
// the scope the gateway stores; other routes use the route scope.
func idempotencyScope(c *gin.Context) string {
	if strings.HasSuffix(c.FullPath(), submitRoute) {
		return services.SubmitScope(c.Param("id"))
	}
	return middleware.RouteScope(c)
}

// corsMiddleware allows every origin when none are configured, otherwise
// only the allowlist.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     corsHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "ETag", "Retry-After", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cors.New(cc)
}

// limitBody caps the request body size for all endpoints to maxBytes using
// http.MaxBytesReader; reads past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
