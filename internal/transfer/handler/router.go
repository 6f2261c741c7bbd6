package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/identity"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies at 1 MB.
const maxBodyBytes = 1 << 20

// RouterOptions collects everything NewRouter mounts.
type RouterOptions struct {
	Transfers   *TransferHandler
	Stream      *StreamHandler    // nil = no SSE route
	Reconcile   *ReconcileHandler // nil = no reconciliation route
	Operators   *identity.OperatorTokenIssuer
	CORSOrigins []string
	RateLimit   RateLimitConfig // RPS 0 disables limiting
	Logger      *zap.Logger
}

// NewRouter builds the HTTP router. ctx bounds background middleware
// goroutines.
func NewRouter(ctx context.Context, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	if len(opts.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "Last-Event-ID"},
			ExposeHeaders:    []string{"Content-Length", "Location"},
			AllowCredentials: !containsWildcard(opts.CORSOrigins),
			MaxAge:           12 * time.Hour,
		}))
	}

	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		c.Next()
	})

	if opts.RateLimit.RPS > 0 {
		router.Use(RateLimiter(ctx, opts.RateLimit))
	}
	router.Use(PrometheusMiddleware())
	router.Use(requestLogger(opts.Logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", MetricsHandler())

	v1 := router.Group("/api/v1")
	v1.Use(identity.OptionalOperator(opts.Operators))
	if opts.Stream != nil {
		opts.Stream.Register(v1)
	}
	opts.Transfers.Register(v1)
	if opts.Reconcile != nil {
		opts.Reconcile.Register(v1)
	}
	return router
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
