package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Version is set at build time via -ldflags
// Default "dev" is used for development builds
var Version = "dev"

// Config holds all application configuration loaded from environment variables.
// All fields have sensible defaults if environment variables are not set.
type Config struct {
	// Port is the HTTP control API listen port (default: 9985)
	Port string

	// LogLevel controls logging verbosity: "debug", "info", "warn", "error" (default: "info")
	LogLevel string

	// DataDir is the directory for persistent data (database, logs, backups)
	DataDir string

	// DatabasePath is the SQLite database file path (default: <DataDir>/fptv.db)
	DatabasePath string

	// LogDir is the directory for log files (default: <DataDir>/logs)
	LogDir string

	// RetentionDays is the number of days to keep old events and scan history (default: 90)
	// Set to 0 to disable automatic pruning
	RetentionDays int

	// BaseURL is the TVHeadend base URL (default: http://localhost:9981)
	BaseURL string

	// NetworkName is the display name of the target ATSC network (default: "ATSC OTA")
	NetworkName string

	// Username and Password are optional TVHeadend credentials (digest auth)
	Username string
	Password string

	// RFStart and RFEnd bound the RF channel range to provision (defaults: 2..36)
	RFStart int
	RFEnd   int

	// WipeExistingMuxes deletes all muxes on the network before provisioning (default: false)
	WipeExistingMuxes bool

	// MapServicesToChannels enables the service->channel reconciliation phase (default: true)
	MapServicesToChannels bool

	// CleanupChannels enables orphan and placeholder-name channel deletion (default: true)
	CleanupChannels bool

	// DedupeChannels enables same-name channel merging (default: true)
	DedupeChannels bool

	// PlaceholderNames are channel names treated as unnamed junk, comma-separated
	// in the environment (default: "{name-not-set}")
	PlaceholderNames []string

	// Modulation is the ATSC modulation string for created muxes (default: "VSB/8")
	Modulation string

	// PollInterval is the sleep between mux scan-state polls (default: 2s)
	PollInterval time.Duration

	// ScanTimeout bounds the convergence wait; exceeding it aborts the run (default: 10m)
	ScanTimeout time.Duration

	// SettleDelay is the pause before post-scan cleanup and diagnostics (default: 3s)
	SettleDelay time.Duration

	// ProbeTimeout bounds the dedup tie-break stream probe (default: 1500ms)
	ProbeTimeout time.Duration

	// DryRunMode when true, logs intended mutations without issuing any write (default: false)
	DryRunMode bool
}

// Global singleton
var cfg *Config

// Load reads configuration from environment variables with sensible defaults.
// Should be called once at application startup.
func Load() *Config {
	// Determine DataDir - this is where all persistent data lives
	dataDir := getEnvOrDefault("FPTV_DATA_DIR", "")
	if dataDir == "" {
		if info, err := os.Stat("/config"); err == nil && info.IsDir() {
			dataDir = "/config"
		} else if execPath, err := os.Executable(); err == nil {
			dataDir = filepath.Join(filepath.Dir(execPath), "config")
		} else if cwd, err := os.Getwd(); err == nil {
			dataDir = filepath.Join(cwd, "config")
		} else {
			dataDir = "./config"
		}
	}
	if absDataDir, err := filepath.Abs(dataDir); err == nil {
		dataDir = absDataDir
	}
	os.MkdirAll(dataDir, 0755)

	dbPath := getEnvOrDefault("FPTV_DATABASE_PATH", "")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "fptv.db")
	}

	logDir := filepath.Join(dataDir, "logs")
	os.MkdirAll(logDir, 0755)

	cfg = &Config{
		Port:                  getEnvOrDefault("FPTV_PORT", "9985"),
		LogLevel:              strings.ToLower(getEnvOrDefault("FPTV_LOG_LEVEL", "info")),
		DataDir:               dataDir,
		DatabasePath:          dbPath,
		LogDir:                logDir,
		RetentionDays:         getEnvIntOrDefault("FPTV_RETENTION_DAYS", 90),
		BaseURL:               strings.TrimRight(getEnvOrDefault("FPTV_BASE_URL", "http://localhost:9981"), "/"),
		NetworkName:           getEnvOrDefault("FPTV_NET_NAME", "ATSC OTA"),
		Username:              getEnvOrDefault("FPTV_TVH_USER", ""),
		Password:              getEnvOrDefault("FPTV_TVH_PASS", ""),
		RFStart:               getEnvIntOrDefault("FPTV_RF_START", 2),
		RFEnd:                 getEnvIntOrDefault("FPTV_RF_END", 36),
		WipeExistingMuxes:     getEnvBoolOrDefault("FPTV_WIPE_EXISTING_MUXES", false),
		MapServicesToChannels: getEnvBoolOrDefault("FPTV_MAP_SERVICES_TO_CHANNELS", true),
		CleanupChannels:       getEnvBoolOrDefault("FPTV_CLEANUP_CHANNELS", true),
		DedupeChannels:        getEnvBoolOrDefault("FPTV_DEDUPE_CHANNELS", true),
		PlaceholderNames:      splitNames(getEnvOrDefault("FPTV_PLACEHOLDER_NAMES", "{name-not-set}")),
		Modulation:            getEnvOrDefault("FPTV_MODULATION", "VSB/8"),
		PollInterval:          getEnvDurationOrDefault("FPTV_POLL_INTERVAL", 2*time.Second),
		ScanTimeout:           getEnvDurationOrDefault("FPTV_SCAN_TIMEOUT", 10*time.Minute),
		SettleDelay:           getEnvDurationOrDefault("FPTV_SETTLE_DELAY", 3*time.Second),
		ProbeTimeout:          getEnvDurationOrDefault("FPTV_PROBE_TIMEOUT", 1500*time.Millisecond),
		DryRunMode:            getEnvBoolOrDefault("FPTV_DRY_RUN", false),
	}

	// Validate log level
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		cfg.LogLevel = "info"
	}

	return cfg
}

// Get returns the current configuration. Panics if Load() hasn't been called.
func Get() *Config {
	if cfg == nil {
		panic("config.Load() must be called before config.Get()")
	}
	return cfg
}

// SetForTesting allows tests to set the global config without calling Load().
// This should ONLY be used in test code.
func SetForTesting(c *Config) {
	cfg = c
}

// NewTestConfig returns a minimal Config suitable for unit tests.
func NewTestConfig() *Config {
	return &Config{
		Port:                  "9985",
		LogLevel:              "debug",
		DataDir:               "/tmp/fptv-test",
		DatabasePath:          "/tmp/fptv-test/fptv.db",
		LogDir:                "/tmp/fptv-test/logs",
		RetentionDays:         90,
		BaseURL:               "http://localhost:9981",
		NetworkName:           "ATSC OTA",
		RFStart:               2,
		RFEnd:                 36,
		MapServicesToChannels: true,
		CleanupChannels:       true,
		DedupeChannels:        true,
		PlaceholderNames:      []string{"{name-not-set}"},
		Modulation:            "VSB/8",
		PollInterval:          2 * time.Second,
		ScanTimeout:           10 * time.Minute,
		SettleDelay:           3 * time.Second,
		ProbeTimeout:          1500 * time.Millisecond,
	}
}

// splitNames parses a comma-separated placeholder-name list, dropping blanks.
func splitNames(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the environment variable as an int or the default if not set/invalid.
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault returns the environment variable as a duration or the default if not set/invalid.
// Accepts Go duration strings like "30s", "5m", "10m".
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBoolOrDefault returns the environment variable as a bool or the default if not set.
// Accepts "true", "1", "yes" as true values (case-insensitive).
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

// FlagOverrides holds command-line flag values that can override environment variables
type FlagOverrides struct {
	Port              *string
	LogLevel          *string
	DataDir           *string
	DatabasePath      *string
	RetentionDays     *int
	BaseURL           *string
	NetworkName       *string
	RFStart           *int
	RFEnd             *int
	WipeExistingMuxes *bool
	Modulation        *string
	PollInterval      *time.Duration
	ScanTimeout       *time.Duration
	DryRunMode        *bool
}

// ApplyFlags applies command-line flag overrides to the configuration.
// Should be called after Load() and after flag parsing.
// Only non-nil values with non-default flag values will override.
func ApplyFlags(flags FlagOverrides) {
	if cfg == nil {
		return
	}

	if flags.Port != nil && *flags.Port != "" {
		cfg.Port = *flags.Port
	}
	if flags.LogLevel != nil && *flags.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(*flags.LogLevel)
	}
	if flags.DataDir != nil && *flags.DataDir != "" {
		cfg.DataDir = *flags.DataDir
	}
	if flags.DatabasePath != nil && *flags.DatabasePath != "" {
		cfg.DatabasePath = *flags.DatabasePath
	}
	if flags.RetentionDays != nil {
		cfg.RetentionDays = *flags.RetentionDays
	}
	if flags.BaseURL != nil && *flags.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(*flags.BaseURL, "/")
	}
	if flags.NetworkName != nil && *flags.NetworkName != "" {
		cfg.NetworkName = *flags.NetworkName
	}
	if flags.RFStart != nil && *flags.RFStart != 0 {
		cfg.RFStart = *flags.RFStart
	}
	if flags.RFEnd != nil && *flags.RFEnd != 0 {
		cfg.RFEnd = *flags.RFEnd
	}
	if flags.WipeExistingMuxes != nil {
		cfg.WipeExistingMuxes = *flags.WipeExistingMuxes
	}
	if flags.Modulation != nil && *flags.Modulation != "" {
		cfg.Modulation = *flags.Modulation
	}
	if flags.PollInterval != nil && *flags.PollInterval != 0 {
		cfg.PollInterval = *flags.PollInterval
	}
	if flags.ScanTimeout != nil && *flags.ScanTimeout != 0 {
		cfg.ScanTimeout = *flags.ScanTimeout
	}
	if flags.DryRunMode != nil {
		cfg.DryRunMode = *flags.DryRunMode
	}
}
