// Package api provides HTTP handlers and the main server logic for U-Well.
//
// It exposes the JSON/multipart endpoints consumed by the browser front end
// and serves the static front-end assets. The API integrates the provider,
// chat, vision, store and notify modules.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/UWellLabs/uwell/internal/chat"
	"github.com/UWellLabs/uwell/internal/notify"
	"github.com/UWellLabs/uwell/internal/provider"
	"github.com/UWellLabs/uwell/internal/scheduler"
	"github.com/UWellLabs/uwell/internal/store"
	"github.com/UWellLabs/uwell/internal/vision"
)

// Default server configuration.
const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8787"
	// DefaultStaticDir serves front-end assets from the working directory.
	DefaultStaticDir = "."
	// DefaultRetentionDays keeps history for 30 days before the sweep drops it.
	DefaultRetentionDays = 30
	// DefaultSweepSchedule runs the retention sweep nightly at 03:30.
	DefaultSweepSchedule = "30 3 * * *"
	// readHeaderTimeout bounds slow-header clients.
	readHeaderTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	StaticDir      string
	AllowedOrigins []string
	RetentionDays  int
	SweepSchedule  string
	CrisisAlerts   bool
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithStaticDir sets the directory served at /.
func WithStaticDir(dir string) Option {
	return func(o *Opts) { o.StaticDir = dir }
}

// WithAllowedOrigins sets the CORS origin allowlist.
func WithAllowedOrigins(origins []string) Option {
	return func(o *Opts) { o.AllowedOrigins = origins }
}

// WithRetention configures the history retention sweep.
func WithRetention(days int, schedule string) Option {
	return func(o *Opts) {
		o.RetentionDays = days
		o.SweepSchedule = schedule
	}
}

// WithCrisisAlerts enables the Twilio crisis alert notifier.
func WithCrisisAlerts() Option {
	return func(o *Opts) { o.CrisisAlerts = true }
}

// Server holds the wired modules for the HTTP layer.
type Server struct {
	orchestrator *chat.Orchestrator
	vision       *vision.Client // nil when no pose service is configured
	st           store.Store
	staticDir    string
	started      time.Time
}

// NewServer wires a Server from its modules.
func NewServer(orchestrator *chat.Orchestrator, visionClient *vision.Client, st store.Store, staticDir string) *Server {
	if staticDir == "" {
		staticDir = DefaultStaticDir
	}
	return &Server{
		orchestrator: orchestrator,
		vision:       visionClient,
		st:           st,
		staticDir:    staticDir,
		started:      time.Now(),
	}
}

// Handler builds the full route table with middleware applied.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", s.chatHandler)
	mux.HandleFunc("/api/analyze", s.analyzeHandler)
	mux.HandleFunc("/api/posture", s.postureHandler)
	mux.HandleFunc("/api/insights", s.insightsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return RequestID(CORS(allowedOrigins)(mux))
}

// Run wires all modules from the given options and serves until the listener
// fails. It mirrors the per-module option-slice wiring used by main.
func Run(providerName string, provOpts []provider.Option, visionOpts []vision.Option, storeOpts []store.Option, apiOpts []Option) error {
	var cfg Opts
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = DefaultSweepSchedule
	}

	prov, err := provider.New(providerName, provOpts...)
	if err != nil {
		return fmt.Errorf("failed to configure provider: %w", err)
	}
	slog.Info("api.Run: provider configured", "provider", prov.Name())

	chatOpts := buildChatOptions(cfg)
	orchestrator := chat.NewOrchestrator(prov, chatOpts...)

	visionClient, err := vision.NewClient(visionOpts...)
	if err != nil {
		// The analyze endpoint degrades to the canned fallback without an
		// upstream, so this is not fatal.
		slog.Warn("api.Run: pose-analysis client not configured", "error", err)
		visionClient = nil
	}

	st, err := openStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer st.Close()

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	if err := sched.AddJob(cfg.SweepSchedule, func() {
		removed, pruneErr := st.PruneBefore(time.Now().Add(-retention))
		if pruneErr != nil {
			slog.Error("api.Run: retention sweep failed", "error", pruneErr)
			return
		}
		slog.Info("api.Run: retention sweep complete", "removed", removed)
	}); err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}

	server := NewServer(orchestrator, visionClient, st, cfg.StaticDir)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(cfg.AllowedOrigins),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	slog.Info("api.Run: U-Well API listening", "addr", cfg.Addr, "static_dir", server.staticDir)
	return httpServer.ListenAndServe()
}

// buildChatOptions attaches the crisis alert notifier when enabled and
// actually configurable from the environment.
func buildChatOptions(cfg Opts) []chat.Option {
	var opts []chat.Option
	if !cfg.CrisisAlerts {
		return opts
	}
	if !envSet("TWILIO_ACCOUNT_SID") {
		slog.Warn("api.buildChatOptions: crisis alerts requested but Twilio is not configured")
		return opts
	}
	notifier, err := notify.NewClient()
	if err != nil {
		slog.Warn("api.buildChatOptions: failed to configure crisis alerts", "error", err)
		return opts
	}
	slog.Info("api.buildChatOptions: crisis alerts enabled")
	return append(opts, chat.WithNotifier(notifier))
}

// openStore selects a backend from the configured DSN, defaulting to memory.
func openStore(storeOpts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Debug("api.openStore: no DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		return store.NewPostgresStore(storeOpts...)
	}
	return store.NewSQLiteStore(storeOpts...)
}

// envSet reports whether an environment variable is non-empty, for wiring
// decisions that should not log the value itself.
func envSet(key string) bool {
	return os.Getenv(key) != ""
}
