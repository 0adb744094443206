// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, rate limiting and admin auth.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/civic-complaints-backend/docs"
	"github.com/tbourn/civic-complaints-backend/internal/auth"
	"github.com/tbourn/civic-complaints-backend/internal/config"
	"github.com/tbourn/civic-complaints-backend/internal/http/handlers"
	"github.com/tbourn/civic-complaints-backend/internal/http/middleware"
	"github.com/tbourn/civic-complaints-backend/internal/services"
)

// Deps are the process-wide handles the router needs. Redis is optional;
// without it submissions are rate limited in process.
type Deps struct {
	DB         *gorm.DB
	Complaints *services.ComplaintService
	Status     *services.StatusService
	Stats      *services.StatsService
	Admin      *services.AdminService
	Citizens   *services.CitizenService
	Export     *services.ExportService
	Classifier handlers.Classifier
	Tokens     *auth.TokenManager
	Redis      redis.Cmdable
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency, CORS
// and security headers, health and metrics endpoints, and then mounts the
// versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (sized for evidence uploads)
//  6. Metrics
//  7. Idempotency validator (before the rate limiter to allow bypass on replay)
//  8. gzip, CORS and security headers
//
// Rate limiting applies per route to the unauthenticated write endpoints.
// Admin routes need an operator token; "my complaints" needs a citizen token.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction of citizen contact details
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-Forwarded-For", "X-Real-IP"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit: a photo, a voice note and the form fields
	r.Use(middleware.BodyLimit(bodyCap(cfg)))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	idem := handlers.DBIdempotency{DB: d.DB, TTL: cfg.IdempotencyTTL}
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idem.Exists))

	// 8) Compression, CORS posture and security headers
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", health(d.DB))

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(handlers.Options{
		Complaints:     d.Complaints,
		Status:         d.Status,
		Stats:          d.Stats,
		Admin:          d.Admin,
		Citizens:       d.Citizens,
		Export:         d.Export,
		Classifier:     d.Classifier,
		Idempotency:    idem,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		Location:       cfg.StatsLocation,
	})
	limit := rateLimiter(d.Redis, cfg)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Citizens
		citizen := middleware.RequireCitizen(d.Tokens)
		api.POST("/auth/register", limit, h.RegisterCitizen)
		api.POST("/auth/login", limit, h.CitizenLogin)
		api.POST("/complaints", limit, middleware.OptionalCitizen(d.Tokens), h.SubmitComplaint)
		api.GET("/complaints", citizen, h.ListMyComplaints)
		api.GET("/complaints/:id", h.GetComplaint)
		api.GET("/complaints/:id/history", h.ComplaintHistory)
		api.GET("/complaints/:id/letter", h.ComplaintLetter)
		api.POST("/classify", limit, h.ClassifyText)
		api.GET("/departments", h.ListDepartments)

		// Operators
		api.POST("/admin/login", limit, h.AdminLogin)
		admin := api.Group("/admin",
			middleware.RequireAdmin(d.Tokens),
			middleware.SecurityHeaders(middleware.SecurityOptions{NoStore: true}),
		)
		admin.GET("/complaints", h.AdminListComplaints)
		admin.GET("/complaints/export", h.ExportComplaints)
		admin.PATCH("/complaints/:id/status", h.UpdateComplaintStatus)
		admin.GET("/complaints/:id/next-statuses", h.NextStatuses)
		admin.GET("/complaints/:id/notifications", h.ComplaintNotifications)
		admin.GET("/stats", h.AdminStats)
		admin.GET("/activity", h.AdminActivity)
	}
}

// bodyCap sizes the request body limit for two evidence files plus form
// fields.
func bodyCap(cfg config.Config) int64 {
	const formSlack = 1 << 20
	if cfg.Storage.MaxUploadBytes <= 0 {
		return formSlack
	}
	return 2*cfg.Storage.MaxUploadBytes + formSlack
}

// rateLimiter picks the shared Redis fixed window when Redis is configured,
// otherwise an in-process token bucket per client.
func rateLimiter(rdb redis.Cmdable, cfg config.Config) gin.HandlerFunc {
	if rdb != nil {
		return middleware.NewRedisLimiter(rdb, cfg.RateWindowLimit, cfg.RateWindow, middleware.KeyByAdminOrIP()).Handler()
	}
	return middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByAdminOrIP()).Handler()
}

func corsMiddleware(origins []string) []gin.HandlerFunc {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey, "If-None-Match"}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed", "Content-Disposition", "Retry-After"}
	methods := []string{"GET", "POST", "PATCH", "OPTIONS"}

	if len(origins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps simple health checks).
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     allowHeaders,
				ExposeHeaders:    exposeHeaders,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// health reports liveness plus database reachability.
func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				_ = c.Error(err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
