package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedp/fptv/internal/api"
	"github.com/jedp/fptv/internal/clock"
	"github.com/jedp/fptv/internal/config"
	"github.com/jedp/fptv/internal/db"
	"github.com/jedp/fptv/internal/eventbus"
	"github.com/jedp/fptv/internal/logger"
	"github.com/jedp/fptv/internal/metrics"
	"github.com/jedp/fptv/internal/notifier"
	"github.com/jedp/fptv/internal/services"
	"github.com/jedp/fptv/internal/tvh"
)

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.BoolVar(showVersion, "v", false, "Print version and exit (shorthand)")

	// Configuration flags - all can also be set via environment variables (FPTV_*)
	flagPort := flag.String("port", "", "HTTP server port (env: FPTV_PORT, default: 9985)")
	flagLogLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (env: FPTV_LOG_LEVEL, default: info)")
	flagDataDir := flag.String("data-dir", "", "Data directory path (env: FPTV_DATA_DIR)")
	flagDatabasePath := flag.String("database-path", "", "Database file path (env: FPTV_DATABASE_PATH)")
	flagBaseURL := flag.String("tvh-url", "", "TVHeadend base URL (env: FPTV_BASE_URL, default: http://localhost:9981)")
	flagNetwork := flag.String("network", "", "Target ATSC network name (env: FPTV_NET_NAME, default: ATSC OTA)")
	flagRFStart := flag.Int("rf-start", 0, "First RF channel to provision (env: FPTV_RF_START, default: 2)")
	flagRFEnd := flag.Int("rf-end", 0, "Last RF channel to provision (env: FPTV_RF_END, default: 36)")
	flagWipe := flag.Bool("wipe-muxes", false, "Delete all muxes on the network before provisioning (env: FPTV_WIPE_EXISTING_MUXES)")
	flagModulation := flag.String("modulation", "", "Modulation for created muxes (env: FPTV_MODULATION, default: VSB/8)")
	flagPollInterval := flag.Duration("poll-interval", 0, "Sleep between scan-state polls (env: FPTV_POLL_INTERVAL, default: 2s)")
	flagScanTimeout := flag.Duration("scan-timeout", 0, "Max time to wait for scan convergence (env: FPTV_SCAN_TIMEOUT, default: 10m)")
	flagDryRun := flag.Bool("dry-run", false, "Dry run mode - no backend writes (env: FPTV_DRY_RUN)")
	flagRetentionDays := flag.Int("retention-days", -1, "Days to keep old events and run history, 0 to disable pruning (env: FPTV_RETENTION_DAYS, default: 90)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("fptv %s\n", config.Version)
		os.Exit(0)
	}

	config.Load()

	flagOverrides := config.FlagOverrides{
		Port:              flagPort,
		LogLevel:          flagLogLevel,
		DataDir:           flagDataDir,
		DatabasePath:      flagDatabasePath,
		BaseURL:           flagBaseURL,
		NetworkName:       flagNetwork,
		RFStart:           flagRFStart,
		RFEnd:             flagRFEnd,
		WipeExistingMuxes: flagWipe,
		Modulation:        flagModulation,
		PollInterval:      flagPollInterval,
		ScanTimeout:       flagScanTimeout,
		DryRunMode:        flagDryRun,
	}
	// Retention days: -1 means not set (use default), 0 means disable
	if *flagRetentionDays >= 0 {
		flagOverrides.RetentionDays = flagRetentionDays
	}
	config.ApplyFlags(flagOverrides)

	cfg := config.Get()

	logger.Init(cfg.LogDir)
	logger.SetLevel(cfg.LogLevel)

	logger.Infof("========================================")
	logger.Infof("Starting fptv %s...", config.Version)
	logger.Infof("ATSC over-the-air provisioning for TVHeadend")
	logger.Infof("========================================")

	logger.Infof("Configuration:")
	logger.Infof("  Port: %s", cfg.Port)
	logger.Infof("  Log Level: %s", cfg.LogLevel)
	logger.Infof("  Data Directory: %s", cfg.DataDir)
	logger.Infof("  Database: %s", cfg.DatabasePath)
	logger.Infof("  TVHeadend: %s", cfg.BaseURL)
	logger.Infof("  Network: %s", cfg.NetworkName)
	logger.Infof("  RF Range: %d..%d (%s)", cfg.RFStart, cfg.RFEnd, cfg.Modulation)
	if cfg.RetentionDays > 0 {
		logger.Infof("  Data Retention: %d days", cfg.RetentionDays)
	} else {
		logger.Infof("  Data Retention: disabled (no automatic pruning)")
	}

	logger.Infof("Initializing database: %s", cfg.DatabasePath)
	repo, err := db.NewRepository(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Infof("✓ Database initialized successfully")

	// Settings saved through the API override environment configuration.
	applyStoredSettings(cfg, repo)
	if cfg.DryRunMode {
		logger.Infof("  ⚠️  DRY-RUN MODE: ENABLED (no backend writes)")
	}

	if backupPath, err := repo.Backup(cfg.DatabasePath); err != nil {
		logger.Errorf("Failed to create startup backup: %v", err)
	} else {
		logger.Infof("✓ Database backup created: %s", backupPath)
	}

	// Scheduled backup every 6 hours
	go func() {
		ticker := time.NewTicker(6 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := repo.Backup(cfg.DatabasePath); err != nil {
				logger.Errorf("Scheduled backup failed: %v", err)
			}
		}
	}()

	// Daily maintenance at 3 AM local time
	go func() {
		retentionDays := cfg.RetentionDays
		for {
			now := time.Now()
			next3AM := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
			if now.After(next3AM) {
				next3AM = next3AM.Add(24 * time.Hour)
			}
			sleepDuration := next3AM.Sub(now)
			logger.Debugf("Next database maintenance scheduled in %v", sleepDuration)

			time.Sleep(sleepDuration)

			if err := repo.RunMaintenance(retentionDays); err != nil {
				logger.Errorf("Scheduled maintenance failed: %v", err)
			}
		}
	}()

	// Close out runs interrupted by the previous shutdown
	recovery := services.NewRecoveryService(repo.DB)
	recovery.Run()

	logger.Infof("Initializing Event Bus...")
	eb := eventbus.NewEventBus(repo.DB)
	logger.Infof("✓ Event Bus initialized")

	logger.Infof("Initializing TVHeadend client: %s", cfg.BaseURL)
	tvhClient := tvh.NewClient(cfg.BaseURL, cfg.Username, cfg.Password)
	logger.Infof("✓ TVHeadend client initialized")

	logger.Infof("Initializing core services...")
	runner := services.NewRunner(repo, eb, tvhClient, clock.NewRealClock())
	logger.Infof("✓ Scan Runner (provisioning and reconciliation runs)")

	schedulerService := services.NewSchedulerService(repo.DB, runner)
	logger.Infof("✓ Scheduler Service (cron-based scans)")

	healthMonitor := services.NewHealthMonitorService(tvhClient)
	logger.Infof("✓ Health Monitor (backend reachability)")

	logger.Infof("Initializing Notification Service...")
	notifierService := notifier.NewNotifier(repo.DB, eb)
	if err := notifierService.Start(); err != nil {
		logger.Errorf("Failed to start notification service: %v", err)
		// Non-fatal - continue without notifications
	} else {
		logger.Infof("✓ Notification Service (alerts for scan events)")
	}

	logger.Infof("Initializing Metrics Service...")
	metricsService := metrics.NewMetricsService(eb)
	metricsService.Start()
	logger.Infof("✓ Metrics Service (Prometheus endpoint at /metrics)")

	logger.Infof("Starting background services...")
	schedulerService.Start()
	healthMonitor.Start()
	logger.Infof("✓ All background services started")

	logger.Infof("Initializing REST API and WebSocket server...")
	apiServer := api.NewRESTServer(api.ServerDeps{
		DB:         repo.DB,
		EventBus:   eb,
		Runner:     runner,
		Scheduler:  schedulerService,
		Notifier:   notifierService,
		Metrics:    metricsService,
		Health:     healthMonitor,
		TVH:        tvhClient,
		Playlister: tvhClient,
	})
	go func() {
		addr := ":" + cfg.Port
		if err := apiServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Failed to start API server: %v", err)
			os.Exit(1)
		}
	}()

	logger.Infof("========================================")
	logger.Infof("✓ fptv %s started successfully", config.Version)
	logger.Infof("✓ Server listening on port %s", cfg.Port)
	logger.Infof("========================================")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Infof("========================================")
	logger.Infof("Received signal %v, initiating graceful shutdown...", sig)
	logger.Infof("========================================")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Infof("Stopping Scheduler Service...")
	schedulerService.Stop()
	logger.Infof("✓ Scheduler Service stopped")

	logger.Infof("Stopping Scan Runner (cancelling any active run)...")
	runner.Stop()
	logger.Infof("✓ Scan Runner stopped")

	logger.Infof("Stopping Health Monitor...")
	healthMonitor.Shutdown()
	logger.Infof("✓ Health Monitor stopped")

	logger.Infof("Stopping Notification Service...")
	notifierService.Stop()
	logger.Infof("✓ Notification Service stopped")

	logger.Infof("Stopping Event Bus...")
	eb.Shutdown()
	logger.Infof("✓ Event Bus stopped")

	logger.Infof("Stopping API Server...")
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API Server shutdown error: %v", err)
	} else {
		logger.Infof("✓ API Server stopped")
	}

	logger.Infof("Closing database connection...")
	if err := repo.Close(); err != nil {
		logger.Errorf("Failed to close database connection: %v", err)
	} else {
		logger.Infof("✓ Database connection closed")
	}

	logger.Infof("========================================")
	logger.Infof("✓ fptv shutdown complete")
	logger.Infof("========================================")
}

// applyStoredSettings overlays API-saved settings onto the loaded
// configuration. Missing rows leave the corresponding field alone.
func applyStoredSettings(cfg *config.Config, repo *db.Repository) {
	str := func(key string, dst *string) {
		if v, err := repo.GetSetting(key); err == nil && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, err := repo.GetSetting(key); err == nil && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v, err := repo.GetSetting(key); err == nil && v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("network_name", &cfg.NetworkName)
	num("rf_start", &cfg.RFStart)
	num("rf_end", &cfg.RFEnd)
	str("modulation", &cfg.Modulation)
	boolean("wipe_existing_muxes", &cfg.WipeExistingMuxes)
	boolean("map_services", &cfg.MapServicesToChannels)
	boolean("cleanup_channels", &cfg.CleanupChannels)
	boolean("dedupe_channels", &cfg.DedupeChannels)
	boolean("dry_run_mode", &cfg.DryRunMode)
}
