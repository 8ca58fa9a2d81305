// Command scan runs a single provisioning and reconciliation pass
// against TVHeadend and exits. Useful for cron jobs outside the
// server's own scheduler and for one-off dry runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedp/fptv/internal/clock"
	"github.com/jedp/fptv/internal/config"
	"github.com/jedp/fptv/internal/db"
	"github.com/jedp/fptv/internal/eventbus"
	"github.com/jedp/fptv/internal/logger"
	"github.com/jedp/fptv/internal/services"
	"github.com/jedp/fptv/internal/tvh"
)

func main() {
	os.Exit(run())
}

func run() int {
	showVersion := flag.Bool("version", false, "Print version and exit")
	flagLogLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (env: FPTV_LOG_LEVEL)")
	flagDataDir := flag.String("data-dir", "", "Data directory path (env: FPTV_DATA_DIR)")
	flagDatabasePath := flag.String("database-path", "", "Database file path (env: FPTV_DATABASE_PATH)")
	flagBaseURL := flag.String("tvh-url", "", "TVHeadend base URL (env: FPTV_BASE_URL)")
	flagNetwork := flag.String("network", "", "Target ATSC network name (env: FPTV_NET_NAME)")
	flagRFStart := flag.Int("rf-start", 0, "First RF channel to provision (env: FPTV_RF_START)")
	flagRFEnd := flag.Int("rf-end", 0, "Last RF channel to provision (env: FPTV_RF_END)")
	flagWipe := flag.Bool("wipe-muxes", false, "Delete all muxes on the network before provisioning (env: FPTV_WIPE_EXISTING_MUXES)")
	flagModulation := flag.String("modulation", "", "Modulation for created muxes (env: FPTV_MODULATION)")
	flagPollInterval := flag.Duration("poll-interval", 0, "Sleep between scan-state polls (env: FPTV_POLL_INTERVAL)")
	flagScanTimeout := flag.Duration("scan-timeout", 0, "Max time to wait for scan convergence (env: FPTV_SCAN_TIMEOUT)")
	flagDryRun := flag.Bool("dry-run", false, "Log intended changes without writing to the backend (env: FPTV_DRY_RUN)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("fptv %s\n", config.Version)
		return 0
	}

	config.Load()
	config.ApplyFlags(config.FlagOverrides{
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
	})
	cfg := config.Get()

	logger.Init(cfg.LogDir)
	logger.SetLevel(cfg.LogLevel)

	repo, err := db.NewRepository(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to initialize database: %v", err)
		return 1
	}
	defer repo.Close()

	eb := eventbus.NewEventBus(repo.DB)
	defer eb.Shutdown()

	tvhClient := tvh.NewClient(cfg.BaseURL, cfg.Username, cfg.Password)
	runner := services.NewRunner(repo, eb, tvhClient, clock.NewRealClock())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Warnf("Received %v, cancelling run...", sig)
		cancel()
	}()

	logger.Infof("Starting scan run against %s (network %q, RF %d..%d)",
		cfg.BaseURL, cfg.NetworkName, cfg.RFStart, cfg.RFEnd)
	if cfg.DryRunMode || *flagDryRun {
		logger.Infof("Dry-run mode: no backend writes will be issued")
	}

	result, err := runner.RunOnce(ctx, "cli", *flagDryRun)
	if err != nil {
		logger.Errorf("Scan run failed to start: %v", err)
		return 1
	}

	logger.Infof("Run %s finished: %s", result.ID, result.Status)
	logger.Infof("  Muxes: %d created, %d failed", result.MuxesCreated, result.MuxesFailed)
	logger.Infof("  Channels: %d created, %d merged, %d deleted",
		result.ChannelsCreated, result.ChannelsMerged, result.ChannelsDeleted)
	logger.Infof("  Service links pruned: %d", result.ServicesPruned)

	switch result.Status {
	case db.RunStatusCompleted:
		return 0
	case db.RunStatusCancelled:
		if ctx.Err() != nil {
			return 130
		}
		return 1
	default:
		if result.Error != "" {
			logger.Errorf("Run error: %s", result.Error)
		}
		return 1
	}
}
