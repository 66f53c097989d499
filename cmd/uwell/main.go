package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/UWellLabs/uwell/internal/api"
	"github.com/UWellLabs/uwell/internal/lockfile"
	"github.com/UWellLabs/uwell/internal/provider"
	"github.com/UWellLabs/uwell/internal/store"
	"github.com/UWellLabs/uwell/internal/util"
	"github.com/UWellLabs/uwell/internal/vision"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for U-Well state data
	DefaultStateDir = "/var/lib/uwell"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "uwell.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Guard the state directory against a second instance
	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	// Build module options
	provOpts := buildProviderOptions(flags)
	visionOpts := buildVisionOptions(flags)
	storeOpts := buildStoreOptions(flags)
	apiOpts := buildAPIOptions(flags, config)

	// Start the service
	slog.Info("Bootstrapping U-Well with configured modules")
	slog.Debug("Module options counts", "provider", len(provOpts), "vision", len(visionOpts), "store", len(storeOpts), "api", len(apiOpts))
	slog.Debug("Final configuration", "provider", *flags.provider, "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	if err := api.Run(*flags.provider, provOpts, visionOpts, storeOpts, apiOpts); err != nil {
		slog.Error("U-Well failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("U-Well exited successfully")
}

// Config holds environment configuration
type Config struct {
	Provider      string
	OpenAIKey     string
	GeminiKey     string
	Model         string
	PoseAPIURL    string
	DatabaseURL   string
	StateDir      string
	APIAddr       string
	StaticDir     string
	RetentionDays int
	SweepSchedule string
	CrisisAlerts  bool
}

// Flags holds command line flag values
type Flags struct {
	provider   *string
	openaiKey  *string
	geminiKey  *string
	model      *string
	poseAPIURL *string
	stateDir   *string
	dbDSN      *string
	apiAddr    *string
	staticDir  *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		Provider:      os.Getenv("UWELL_PROVIDER"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		GeminiKey:     os.Getenv("GEMINI_API_KEY"),
		Model:         os.Getenv("UWELL_MODEL"),
		PoseAPIURL:    os.Getenv("POSE_API_URL"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("UWELL_STATE_DIR"),
		APIAddr:       os.Getenv("API_ADDR"),
		StaticDir:     os.Getenv("STATIC_DIR"),
		RetentionDays: util.ParseIntEnv("HISTORY_RETENTION_DAYS", api.DefaultRetentionDays),
		SweepSchedule: os.Getenv("HISTORY_SWEEP_SCHEDULE"),
		CrisisAlerts:  util.ParseBoolEnv("CRISIS_ALERTS_ENABLED", false),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No UWELL_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("UWELL_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"UWELL_PROVIDER", config.Provider,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"GEMINI_API_KEY_SET", config.GeminiKey != "",
		"UWELL_MODEL", config.Model,
		"POSE_API_URL_SET", config.PoseAPIURL != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"UWELL_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"STATIC_DIR", config.StaticDir,
		"HISTORY_RETENTION_DAYS", config.RetentionDays,
		"CRISIS_ALERTS_ENABLED", config.CrisisAlerts)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		provider:   flag.String("provider", config.Provider, "chat provider, openai or gemini (overrides $UWELL_PROVIDER)"),
		openaiKey:  flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		geminiKey:  flag.String("gemini-api-key", config.GeminiKey, "Gemini API key (overrides $GEMINI_API_KEY)"),
		model:      flag.String("model", config.Model, "model name for the chat provider (overrides $UWELL_MODEL)"),
		poseAPIURL: flag.String("pose-api-url", config.PoseAPIURL, "base URL of the pose-analysis service (overrides $POSE_API_URL)"),
		stateDir:   flag.String("state-dir", config.StateDir, "state directory for U-Well data (overrides $UWELL_STATE_DIR)"),
		dbDSN:      flag.String("db-dsn", config.DatabaseURL, "database DSN for the history store (overrides $DATABASE_URL)"),
		apiAddr:    flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		staticDir:  flag.String("static-dir", config.StaticDir, "directory of front-end assets served at / (overrides $STATIC_DIR)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"provider", *flags.provider,
		"openaiKeySet", *flags.openaiKey != "",
		"geminiKeySet", *flags.geminiKey != "",
		"model", *flags.model,
		"poseAPIURL_set", *flags.poseAPIURL != "",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"staticDir", *flags.staticDir)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	// Only a file-based DSN needs a containing directory
	if *flags.dbDSN == "" || strings.Contains(*flags.dbDSN, "postgres://") || strings.Contains(*flags.dbDSN, "host=") {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
		return err
	}
	return nil
}

// buildProviderOptions constructs chat provider configuration options
func buildProviderOptions(flags Flags) []provider.Option {
	var provOpts []provider.Option
	switch *flags.provider {
	case provider.NameOpenAI:
		if *flags.openaiKey != "" {
			provOpts = append(provOpts, provider.WithAPIKey(*flags.openaiKey))
		}
	default:
		if *flags.geminiKey != "" {
			provOpts = append(provOpts, provider.WithAPIKey(*flags.geminiKey))
		}
	}
	if *flags.model != "" {
		provOpts = append(provOpts, provider.WithModel(*flags.model))
	}
	return provOpts
}

// buildVisionOptions constructs pose-analysis client configuration options
func buildVisionOptions(flags Flags) []vision.Option {
	var visionOpts []vision.Option
	if *flags.poseAPIURL != "" {
		visionOpts = append(visionOpts, vision.WithBaseURL(*flags.poseAPIURL))
	}
	return visionOpts
}

// buildStoreOptions constructs history store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		// Check if it's a PostgreSQL DSN using the shared detection function
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			// Assume SQLite for file paths
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, config Config) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.staticDir != "" {
		apiOpts = append(apiOpts, api.WithStaticDir(*flags.staticDir))
	}
	if config.RetentionDays > 0 || config.SweepSchedule != "" {
		apiOpts = append(apiOpts, api.WithRetention(config.RetentionDays, config.SweepSchedule))
	}
	if config.CrisisAlerts {
		apiOpts = append(apiOpts, api.WithCrisisAlerts())
	}
	return apiOpts
}
