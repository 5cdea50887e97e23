// Package httpapi mounts the ops API of the alert bot on a Gin engine: health
// and Prometheus endpoints plus a small read/trigger API under the configured
// base path.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. Logger
//  4. Recovery
//  5. body limit, gzip, metrics
//  6. per-IP rate limit (probes are exempt)
//  7. CORS, security headers
//  8. bearer token on the API group
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-token-alert-bot/internal/config"
	"github.com/tbourn/go-token-alert-bot/internal/http/handlers"
	"github.com/tbourn/go-token-alert-bot/internal/http/middleware"
)

const maxBodyBytes = 64 << 10

// RegisterRoutes installs middleware and endpoints on r.
func RegisterRoutes(r *gin.Engine, h *handlers.Handlers, cfg config.HTTPConfig, serviceName string, logger zerolog.Logger) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(serviceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger.With().Str("component", "http").Logger()))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(middleware.Metrics())

	// Probes are registered ahead of the limiter so scrapes never see 429.
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP).Handler())
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
		NoStore:    true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.BearerAuth(cfg.Token))
	{
		api.GET("/tokens", h.ListTokens)
		api.GET("/users/:tg_id/subscriptions", h.ListSubscriptions)
		api.GET("/refresh", h.RefreshStatus)
		api.POST("/refresh", h.TriggerRefresh)
	}
}

// NewServer wraps handler in an http.Server configured from cfg.
func NewServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}

// corsMiddleware allows every origin when origins is empty. The bearer token
// travels in a header, never a cookie, so no credentials mode is enabled.
func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "ETag", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return cors.New(c)
}

func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix treats "" and "/" as the root group.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
