// Package api provides the REST API handlers and server for fptv.
// It exposes scan run control, run history, channel and playlist
// proxies, schedules, notifications, and real-time updates via
// WebSocket.
package api

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jedp/fptv/internal/crypto"
	"github.com/jedp/fptv/internal/eventbus"
	"github.com/jedp/fptv/internal/logger"
	"github.com/jedp/fptv/internal/metrics"
	"github.com/jedp/fptv/internal/notifier"
	"github.com/jedp/fptv/internal/playlist"
	"github.com/jedp/fptv/internal/scan"
	"github.com/jedp/fptv/internal/services"
)

// Playlister fetches the playable channel list from the backend.
// Satisfied by *tvh.Client; tests substitute a stub.
type Playlister interface {
	Playlist(ctx context.Context) ([]playlist.Channel, error)
}

type RESTServer struct {
	router     *gin.Engine
	httpServer *http.Server
	db         *sql.DB
	eventBus   *eventbus.EventBus
	runner     *services.Runner
	scheduler  *services.SchedulerService
	notifier   *notifier.Notifier
	metrics    *metrics.MetricsService
	health     *services.HealthMonitorService
	tvh        scan.API
	playlister Playlister
	hub        *WebSocketHub
	startTime  time.Time
}

// ServerDeps contains all dependencies required for the REST server.
type ServerDeps struct {
	DB         *sql.DB
	EventBus   *eventbus.EventBus
	Runner     *services.Runner
	Scheduler  *services.SchedulerService
	Notifier   *notifier.Notifier
	Metrics    *metrics.MetricsService
	Health     *services.HealthMonitorService
	TVH        scan.API
	Playlister Playlister
}

func NewRESTServer(deps ServerDeps) *RESTServer {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Request ID middleware for correlation
	r.Use(func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = fmt.Sprintf("%d-%d", time.Now().UnixNano(), c.Request.ContentLength)
		}
		c.Set("request_id", reqID)
		c.Header("X-Request-ID", reqID)
		c.Next()
	})

	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		reqID := c.GetString("request_id")
		logger.Errorf("[PANIC RECOVERY] request_id=%s path=%s method=%s error=%v",
			reqID, c.Request.URL.Path, c.Request.Method, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":      "Internal server error",
			"request_id": reqID,
		})
	}))

	// CORS is opt-in via FPTV_CORS_ORIGIN. Unset means same-origin only.
	corsOrigins := os.Getenv("FPTV_CORS_ORIGIN")
	allowedOrigins := make(map[string]bool)
	if corsOrigins != "" {
		for _, origin := range strings.Split(corsOrigins, ",") {
			allowedOrigins[strings.TrimSpace(origin)] = true
		}
	}

	r.Use(func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if corsOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" && allowedOrigins[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, X-API-Key, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	s := &RESTServer{
		router:     r,
		db:         deps.DB,
		eventBus:   deps.EventBus,
		runner:     deps.Runner,
		scheduler:  deps.Scheduler,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		health:     deps.Health,
		tvh:        deps.TVH,
		playlister: deps.Playlister,
		hub:        NewWebSocketHub(deps.EventBus),
		startTime:  time.Now(),
	}

	s.setupRoutes()

	return s
}

// routeNotificationByID is the route path for notification operations by ID
const routeNotificationByID = "/config/notifications/:id"

func (s *RESTServer) setupRoutes() {
	// Prometheus scrape endpoint at root level, standard convention
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := s.router.Group("/api")
	{
		// Health check endpoint (no authentication, used by container healthchecks)
		api.GET("/health", s.handleHealth)
		api.GET("/system/info", s.handleSystemInfo)

		// Public auth endpoints with rate limiting
		api.POST("/auth/setup", SetupLimiter.Middleware(), s.handleAuthSetup)
		api.POST("/auth/login", LoginLimiter.Middleware(), s.handleLogin)
		api.GET("/auth/status", s.handleAuthStatus)

		protected := api.Group("")
		protected.Use(s.authMiddleware())
		{
			protected.GET("/auth/key", s.getAPIKey)
			protected.POST("/auth/regenerate", s.regenerateAPIKey)
			protected.POST("/auth/password", s.changePassword)

			// Scan runs
			protected.POST("/scans", s.triggerScan)
			protected.GET("/scans/status", s.getScanStatus)
			protected.POST("/scans/cancel", s.cancelScan)
			protected.GET("/scans", s.listScanRuns)
			protected.GET("/scans/:run_id", s.getScanRun)
			protected.GET("/scans/:run_id/events", s.getScanRunEvents)

			// Backend proxies
			protected.GET("/channels", s.getChannels)
			protected.GET("/playlist.m3u", s.getPlaylist)

			// Schedules
			protected.GET("/config/schedules", s.getSchedules)
			protected.POST("/config/schedules", s.addSchedule)
			protected.PUT("/config/schedules/:id", s.updateSchedule)
			protected.DELETE("/config/schedules/:id", s.deleteSchedule)

			// Notifications
			protected.GET("/config/notifications", s.getNotifications)
			protected.POST("/config/notifications", s.createNotification)
			protected.GET(routeNotificationByID, s.getNotification)
			protected.PUT(routeNotificationByID, s.updateNotification)
			protected.DELETE(routeNotificationByID, s.deleteNotification)
			protected.POST("/config/notifications/test", s.testNotification)
			protected.GET("/config/notifications/events", s.getNotificationEvents)
			protected.GET(routeNotificationByID+"/log", s.getNotificationLog)

			// Settings
			protected.GET("/config/settings", s.getSettings)
			protected.PUT("/config/settings", s.updateSettings)

			// Stats & logs
			protected.GET("/stats/dashboard", s.getDashboardStats)
			protected.GET("/logs/recent", s.handleRecentLogs)
			protected.GET("/logs/download", s.handleDownloadLogs)

			protected.GET("/ws", func(c *gin.Context) {
				s.hub.HandleConnection(c)
			})
		}
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found"})
	})
}

func (s *RESTServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *RESTServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *RESTServer) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-API-Key")
		if token == "" {
			token = c.GetHeader("Authorization")
			if len(token) > 7 && token[:7] == "Bearer " {
				token = token[7:]
			}
		}

		// Query parameter fallback for WebSockets and playlist clients
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			token = c.Query("apikey")
		}

		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No authentication token provided"})
			c.Abort()
			return
		}

		var encryptedKey string
		err := s.db.QueryRow("SELECT value FROM settings WHERE key = 'api_key'").Scan(&encryptedKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": ErrMsgAuthenticationError})
			c.Abort()
			return
		}

		storedKey, err := crypto.Decrypt(encryptedKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": ErrMsgAuthenticationError})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(storedKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			c.Abort()
			return
		}

		c.Next()
	}
}
