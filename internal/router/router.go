package router

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ContractLand/terra-bridge-contracts/internal/config"
	"github.com/ContractLand/terra-bridge-contracts/internal/handlers"
	"github.com/ContractLand/terra-bridge-contracts/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handlers everything the router mounts. Audit and WebSocket may be nil when
// the database or the event hub is disabled.
type Handlers struct {
	Bridge    *handlers.BridgeHandler
	Admin     *handlers.AdminBridgeHandler
	AdminAuth *handlers.AdminAuthHandler
	Audit     *handlers.AuditHandler
	WebSocket *handlers.WebSocketHandler
	Health    func() gin.H
}

// corsMiddleware CORS middleware. An empty origin list or "*" allows every origin.
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowAll := len(cfg.AllowedOrigins) == 0
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 3600
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		case origin != "":
			logrus.WithFields(logrus.Fields{
				"request_origin": origin,
				"path":           c.Request.URL.Path,
				"method":         c.Request.Method,
				"remote_addr":    c.ClientIP(),
			}).Warn("🚫 CORS: Request blocked - Origin not in whitelist")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept")
		if cfg.AllowCredentials && !allowAll {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, h Handlers, logger *logrus.Logger) *gin.Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	r.Use(corsMiddleware(cfg.CORS))

	// ============ Check ============
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// ============ Health Check ============
	r.GET("/health", func(c *gin.Context) {
		body := gin.H{"status": "ok", "service": "bridged"}
		if h.Health != nil {
			for k, v := range h.Health() {
				body[k] = v
			}
		}
		c.JSON(http.StatusOK, body)
	})

	// ============ Prometheus Metrics ============
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if h.WebSocket != nil {
		r.GET("/ws/events", h.WebSocket.HandleEvents)
	}

	v1 := r.Group("/api/v1")

	// ============ Admin ============
	allowed := middleware.NewAllowedIPs(logger, cfg.Admin.AllowedIPs)
	adminAuth := middleware.NewAdminAuthMiddleware(logger, cfg.Admin.JWTSecret)
	admin := v1.Group("/admin", allowed.Restrict())
	admin.POST("/login", h.AdminAuth.AdminLoginHandler)
	{
		side := admin.Group("/:side", adminAuth.RequireAdminAuth())
		side.POST("/validators", h.Admin.AddValidator)
		side.DELETE("/validators/:address", h.Admin.RemoveValidator)
		side.PUT("/threshold", h.Admin.SetThreshold)
		side.POST("/assets", h.Admin.RegisterAsset)
		side.PUT("/limits/:asset", h.Admin.SetLimits)
		side.PUT("/gas-price", h.Admin.SetGasPrice)
		side.PUT("/confirmations", h.Admin.SetConfirmations)
		side.POST("/claims", h.Admin.ClaimTokens)
	}

	// ============ Audit ============
	if h.Audit != nil {
		audit := v1.Group("/audit")
		audit.GET("/transfers", h.Audit.ListTransfers)
		audit.GET("/transfers/:id", h.Audit.GetTransfer)
		audit.GET("/events", h.Audit.ListEvents)
		audit.GET("/messages/:chain/:hash", h.Audit.GetMessage)
	}

	// ============ Bridge ============
	{
		side := v1.Group("/:side")
		side.GET("/status", h.Bridge.GetStatus)
		side.GET("/assets", h.Bridge.GetAssets)
		side.GET("/limits/:asset", h.Bridge.GetLimits)
		side.GET("/transfers/:ref", h.Bridge.GetTransfer)
		side.GET("/messages/:hash", h.Bridge.GetMessage)
		side.POST("/messages/:hash/finalize", h.Bridge.FinalizeMessage)
		side.POST("/signatures", h.Bridge.SubmitSignature)
		side.POST("/executions", h.Bridge.ExecuteTransfer)
		side.POST("/withdrawals", h.Bridge.Withdraw)
		side.POST("/deposits", h.Bridge.Deposit)
		side.GET("/deposits/:address/nonce", h.Bridge.GetDepositNonce)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "API endpoint not found",
			"code":    "NOT_FOUND",
			"path":    c.Request.URL.Path,
		})
	})

	return r
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		entry := logger.WithFields(logrus.Fields{
			"path":      c.Request.URL.Path,
			"method":    c.Request.Method,
			"status":    c.Writer.Status(),
			"client_ip": c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request served")
	}
}
