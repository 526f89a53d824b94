package router

import (
	"net/http"
	"strconv"
	"strings"

	"privatesend-backend/internal/app"
	"privatesend-backend/internal/config"
	"privatesend-backend/internal/handlers"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept"
)

// corsMiddleware CORS middleware. An empty origin list allows every origin.
func corsMiddleware(cfg config.CORSConfig, logger *logrus.Logger) gin.HandlerFunc {
	allowAll := len(cfg.AllowedOrigins) == 0
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[strings.TrimSpace(origin)] = true
	}
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin == "":
			// same-origin or direct access
		case allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		default:
			logger.WithFields(logrus.Fields{
				"request_origin": origin,
				"path":           c.Request.URL.Path,
				"method":         c.Request.Method,
				"remote_addr":    c.ClientIP(),
			}).Warn("🚫 CORS: Request blocked - Origin not in whitelist")
		}

		c.Header("Access-Control-Allow-Methods", corsAllowMethods)
		c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
		// Credentials are never combined with a wildcard origin
		if cfg.AllowCredentials && !allowAll {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", maxAge)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger one structured line per request
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.WithFields(logrus.Fields{
			"path":        c.Request.URL.Path,
			"method":      c.Request.Method,
			"status":      c.Writer.Status(),
			"remote_addr": c.ClientIP(),
		}).Debug("🌐 Request handled")
	}
}

// SetupRouter registers every route of the server
func SetupRouter(container *app.ServiceContainer) *gin.Engine {
	logger := container.Logger

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))
	r.Use(corsMiddleware(container.Config.CORS, logger))

	if err := r.SetTrustedProxies(container.Config.Server.TrustedProxies); err != nil {
		logger.WithError(err).Warn("⚠️ Invalid trusted proxies, X-Forwarded-For is ignored")
		_ = r.SetTrustedProxies(nil)
	}

	// ============ Check ============
	r.GET("/ping", handlers.PingHandler)
	r.GET("/health", container.HealthHandler.HealthCheckHandler)

	// ============ Prometheus Metrics ============
	r.GET("/metrics", container.LocalhostOnly.Restrict(), gin.WrapH(promhttp.Handler()))

	// ============ Private send ============
	sends := container.PrivateSendHandler
	api := r.Group("/api")
	{
		api.POST("/private-send", sends.SubmitDepositAndWithdraw)
		api.GET("/private-send/:id", sends.GetPrivateSend)
	}
	r.GET("/ws/private-send/:id", sends.WatchPrivateSend)

	// ============ Admin ============
	admin := api.Group("/admin")
	{
		admin.POST("/login", container.AdminAuthHandler.AdminLoginHandler)
		admin.POST("/totp/generate", container.LocalhostOnly.Restrict(), container.AdminAuthHandler.GenerateTOTPSecretHandler)

		protected := admin.Group("", container.AdminAuthMiddleware.RequireAdminAuth())
		protected.GET("/private-sends", sends.ListPrivateSends)
	}

	// ============ NoRoute handler for 404 ============
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Endpoint not found",
			"path":    c.Request.URL.Path,
		})
	})

	return r
}
