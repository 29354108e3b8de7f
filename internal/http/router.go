// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Two surfaces are mounted:
//   - the merchant dashboard API under cfg.APIBasePath (authenticated)
//   - the anonymous customer portal under /public
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-refund-backend/internal/auth"
	"github.com/tbourn/go-refund-backend/internal/config"
	"github.com/tbourn/go-refund-backend/internal/domain"
	"github.com/tbourn/go-refund-backend/internal/http/handlers"
	"github.com/tbourn/go-refund-backend/internal/http/middleware"
	"github.com/tbourn/go-refund-backend/internal/notify"
	"github.com/tbourn/go-refund-backend/internal/portal"
	"github.com/tbourn/go-refund-backend/internal/repo"
	"github.com/tbourn/go-refund-backend/internal/services"
	"github.com/tbourn/go-refund-backend/internal/storage"
)

// dashboardBodyLimit caps dashboard request bodies. Portal bodies carry
// base64 photos and use cfg.Portal.BodyLimit instead.
const dashboardBodyLimit = 1 << 20

// merchantRepoShim adapts the repository free functions to the
// services.MerchantRepo interface expected by the MerchantService.
type merchantRepoShim struct{}

// GetMerchantByApp proxies repo.GetMerchantByApp.
func (merchantRepoShim) GetMerchantByApp(ctx context.Context, db *gorm.DB, appID string) (*domain.Merchant, error) {
	return repo.GetMerchantByApp(ctx, db, appID)
}

// CreateMerchant proxies repo.CreateMerchant.
func (merchantRepoShim) CreateMerchant(ctx context.Context, db *gorm.DB, m *domain.Merchant) error {
	return repo.CreateMerchant(ctx, db, m)
}

// UpdateMerchantSettings proxies repo.UpdateMerchantSettings.
func (merchantRepoShim) UpdateMerchantSettings(ctx context.Context, db *gorm.DB, id string, url *string, enabled bool) error {
	return repo.UpdateMerchantSettings(ctx, db, id, url, enabled)
}

// Deps are the collaborators built by the process entrypoint. Sessions,
// Images and Notifier may be nil; in-process defaults are used then. A nil
// Auth is built from cfg.Auth.
type Deps struct {
	DB       *gorm.DB
	Gateways services.GatewayResolver
	Sessions portal.SessionStore
	Images   storage.ImageStore
	Notifier notify.Notifier
	Auth     auth.Authenticator
}

// NewAuthenticator returns the Authenticator selected by cfg.Mode.
func NewAuthenticator(cfg config.AuthConfig) auth.Authenticator {
	if cfg.Mode == "static" {
		return auth.StaticAuthenticator{Identity: auth.Identity{
			MerchantID:      cfg.DevMerchantID,
			AuthorizedAppID: cfg.DevAuthorizedAppID,
		}}
	}
	return auth.NewJWTAuthenticator(cfg.JWTSecret)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Global middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Metrics
//  6. Gzip, CORS and security headers
//
// Each surface then adds its own body limit, idempotency validation and
// rate limiter (validation first so replays bypass the limiter).
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-Ikas-Token"},
		SkipPaths:   []string{"/health", "/metrics"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 6) Response compression; CSV exports and refund lists compress well.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.Use(corsMiddleware(cfg.CORS)...)

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		NoStore:       true,
		EnablePolicy:  true,
		ExposeHeaders: middleware.DefaultExposeHeaders,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/gateway
	sessions := d.Sessions
	if sessions == nil {
		sessions = portal.NewMemoryStore(cfg.Portal.SessionTTL)
	}
	authn := d.Auth
	if authn == nil {
		authn = NewAuthenticator(cfg.Auth)
	}
	concurrency := cfg.Gateway.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	refundSvc := services.NewRefundService(d.DB, d.Gateways)
	readSvc := services.NewReadService(d.DB, d.Gateways, concurrency)
	portalSvc := services.NewPortalService(d.DB, d.Gateways, refundSvc, sessions, d.Images, d.Notifier)
	merchantSvc := services.NewMerchantService(d.DB, merchantRepoShim{}, d.Gateways)
	idemSvc := services.NewIdempotencyService(d.DB, cfg.IdempotencyTTL)

	h := handlers.New(refundSvc, readSvc, portalSvc, merchantSvc, idemSvc)

	// Merchant dashboard API
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(
		middleware.Surface("api"),
		limitBody(dashboardBodyLimit),
		middleware.RequireMerchant(authn),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idemSvc.Lookup),
		middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByMerchantOrIP()).Handler(),
	)
	{
		// Refunds
		api.GET("/refunds", h.ListRefunds)
		api.POST("/refunds", h.CreateRefund)
		api.POST("/refunds/create-from-order", h.CreateRefundFromOrder)
		api.GET("/refunds/stats", h.RefundStats)
		api.GET("/refunds/export", h.ExportRefunds)
		api.GET("/refunds/:id", h.GetRefund)
		api.PATCH("/refunds/:id", h.UpdateRefund)
		api.POST("/refunds/:id/approve", h.ApproveRefund)

		// Notes and timeline
		api.GET("/refunds/:id/notes", h.ListNotes)
		api.POST("/refunds/:id/notes", h.AddNote)
		api.GET("/refunds/:id/timeline", h.ListTimeline)
		api.GET("/timeline", h.RecentTimeline)

		// Orders
		api.GET("/orders", h.ListOrders)
		api.GET("/orders/refund-candidates", h.ListRefundCandidates)

		// Merchant
		api.GET("/merchant", h.GetMerchant)
		api.GET("/settings", h.GetSettings)
		api.PATCH("/settings", h.UpdateSettings)
	}

	// Customer portal. Keys are scoped per customer email by the handlers,
	// so the validator only checks the header shape here.
	pub := r.Group("/public")
	pub.Use(
		middleware.Surface("public"),
		limitBody(cfg.Portal.BodyLimit),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, nil),
		middleware.NewRateLimiter(cfg.Portal.RateRPS, cfg.Portal.RateBurst, middleware.KeyByIP()).Handler(),
	)
	{
		pub.POST("/verify-order", h.VerifyOrder)
		pub.GET("/reasons", h.ListReasons)
		pub.GET("/sessions/:sid", h.GetSession)
		pub.POST("/sessions/:sid/reason", h.SelectReason)
		pub.POST("/sessions/:sid/images", h.AttachImages)
		pub.POST("/sessions/:sid/submit", h.SubmitSession)
		pub.POST("/submit-refund", h.SubmitRefund)
		pub.GET("/track-refund", h.TrackRefund)
	}
}

// corsMiddleware returns the CORS posture: allow all origins when none are
// configured, otherwise echo allowlisted origins.
func corsMiddleware(cfg config.CORSConfig) []gin.HandlerFunc {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Accept-Language", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "Content-Disposition", "ETag", middleware.HeaderIdempotencyReplayed}
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

	if len(cfg.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
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

	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
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
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// limitBody returns a Gin middleware that caps the request body size to
// maxBytes using http.MaxBytesReader. Requests exceeding the cap will cause
// downstream body reads to error.
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
