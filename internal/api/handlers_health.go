package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jedp/fptv/internal/config"
)

// formatUptime returns a human-readable uptime string.
func formatUptime(uptime time.Duration) string {
	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// checkDatabaseHealth checks database connectivity and returns status.
func (s *RESTServer) checkDatabaseHealth(ctx context.Context) (gin.H, bool) {
	dbHealth := gin.H{"status": "connected"}
	healthy := true

	if err := s.db.PingContext(ctx); err != nil {
		healthy = false
		dbHealth["status"] = "error"
		dbHealth["error"] = err.Error()
	} else {
		dbPath := config.Get().DatabasePath
		if info, err := os.Stat(dbPath); err == nil {
			dbHealth["size_bytes"] = info.Size()
		}
	}

	return dbHealth, healthy
}

// handleHealth returns server health status for container orchestration.
// This endpoint must return quickly for Docker healthchecks, so backend
// reachability comes from the monitor's last check rather than a live
// call.
func (s *RESTServer) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, dbHealthy := s.checkDatabaseHealth(ctx)

	status := "healthy"
	if !dbHealthy {
		status = "degraded"
	}

	health := gin.H{
		"status":            status,
		"version":           config.Version,
		"uptime":            formatUptime(time.Since(s.startTime)),
		"database":          dbHealth,
		"scan":              s.runner.Status(),
		"websocket_clients": s.hub.ClientCount(),
	}

	if s.health != nil {
		backend := s.health.Status()
		health["backend"] = backend
		if !backend.Healthy && !backend.LastCheck.IsZero() {
			health["status"] = "degraded"
		}
	}

	c.JSON(http.StatusOK, health)
}

// handleSystemInfo returns build and runtime details for debugging.
func (s *RESTServer) handleSystemInfo(c *gin.Context) {
	cfg := config.Get()
	c.JSON(http.StatusOK, gin.H{
		"version":      config.Version,
		"go_version":   runtime.Version(),
		"os":           runtime.GOOS,
		"arch":         runtime.GOARCH,
		"goroutines":   runtime.NumGoroutine(),
		"uptime":       formatUptime(time.Since(s.startTime)),
		"backend_url":  cfg.BaseURL,
		"network_name": cfg.NetworkName,
	})
}
