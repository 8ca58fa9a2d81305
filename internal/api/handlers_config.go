package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jedp/fptv/internal/config"
)

// allowedSettings are the keys the settings endpoint may persist.
// Values stored here override environment configuration at startup.
var allowedSettings = map[string]bool{
	"network_name":        true,
	"rf_start":            true,
	"rf_end":              true,
	"modulation":          true,
	"wipe_existing_muxes": true,
	"map_services":        true,
	"cleanup_channels":    true,
	"dedupe_channels":     true,
	"dry_run_mode":        true,
}

// getSettings returns the effective scan configuration plus any stored
// overrides. Credentials are never included.
func (s *RESTServer) getSettings(c *gin.Context) {
	cfg := config.Get()

	effective := gin.H{
		"network_name":        cfg.NetworkName,
		"rf_start":            cfg.RFStart,
		"rf_end":              cfg.RFEnd,
		"modulation":          cfg.Modulation,
		"wipe_existing_muxes": cfg.WipeExistingMuxes,
		"map_services":        cfg.MapServicesToChannels,
		"cleanup_channels":    cfg.CleanupChannels,
		"dedupe_channels":     cfg.DedupeChannels,
		"dry_run_mode":        cfg.DryRunMode,
		"poll_interval":       cfg.PollInterval.String(),
		"scan_timeout":        cfg.ScanTimeout.String(),
		"backend_url":         cfg.BaseURL,
	}

	repo := s.runRepo()
	stored := gin.H{}
	for key := range allowedSettings {
		if value, err := repo.GetSetting(key); err == nil && value != "" {
			stored[key] = value
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"effective": effective,
		"stored":    stored,
	})
}

// updateSettings persists whitelisted setting overrides. They take
// effect on the next restart; the scan pipeline reads config once per
// run.
func (s *RESTServer) updateSettings(c *gin.Context) {
	var req map[string]interface{}
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	repo := s.runRepo()
	updated := make([]string, 0, len(req))
	for key, value := range req {
		if !allowedSettings[key] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown setting: " + key})
			return
		}
		if err := repo.SetSetting(key, settingToString(value)); err != nil {
			respondDatabaseError(c, err)
			return
		}
		updated = append(updated, key)
	}

	c.JSON(http.StatusOK, gin.H{
		"updated": updated,
		"message": "Settings saved. Restart to apply.",
	})
}

func settingToString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		// JSON numbers arrive as float64; settings are all integers.
		return strconv.FormatInt(int64(val), 10)
	default:
		return ""
	}
}
