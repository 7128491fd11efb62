package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/novamart/realtime/internal/audit"
	"github.com/novamart/realtime/internal/config"
	"github.com/novamart/realtime/internal/connection"
	"github.com/novamart/realtime/internal/credentials"
	"github.com/novamart/realtime/internal/router"
	"github.com/novamart/realtime/internal/store"
	"github.com/novamart/realtime/internal/termination"
	"github.com/novamart/realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/syncd.local.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	logger.Info("starting syncd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"server", cfg.Server.URL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Credential store
	var creds credentials.Store
	if cfg.Credentials.Path != "" {
		sqliteStore, err := credentials.OpenSQLite(ctx, cfg.Credentials.Path)
		if err != nil {
			logger.Error("failed to open credential store", "error", err)
			os.Exit(1)
		}
		defer sqliteStore.Close()
		creds = sqliteStore
		logger.Info("credential store opened", "path", cfg.Credentials.Path)
	} else {
		creds = credentials.NewMemoryStore()
		logger.Warn("no credential path configured, using in-memory store")
	}

	// State store and router
	st := store.New(logger)
	rtr := router.New(logger)

	// Optional audit archive
	var archiver *audit.Archiver
	if cfg.Audit.Enabled {
		pool, err := audit.Connect(ctx, cfg.Audit.Database.ConnString())
		if err != nil {
			logger.Error("failed to connect audit database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		archiver = audit.NewArchiver(audit.Config{
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: cfg.Audit.FlushInterval,
			QueueSize:     cfg.Audit.QueueSize,
		}, pool, logger)

		rtr.AddObserver(archiver.Observe)

		if err := archiver.Start(ctx); err != nil {
			logger.Error("failed to start audit archiver", "error", err)
			os.Exit(1)
		}
		logger.Info("audit archiver enabled")
	}

	// Connection manager
	mgr := connection.NewManager(connection.Config{
		URL:                  cfg.Server.URL,
		MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
		ReconnectBaseDelay:   cfg.Reconnect.BaseDelay,
		ReconnectMaxDelay:    cfg.Reconnect.MaxDelay,
		SettleDelay:          cfg.Reconnect.SettleDelay,
		HandshakeTimeout:     cfg.Server.HandshakeTimeout,
	}, creds, rtr, st, logger)

	// Forced-termination protocol
	term := termination.NewHandler(creds, st, mgr, &logNotifier{logger: logger}, &logNavigator{logger: logger}, logger)
	rtr.SetForcedLogoutHandler(term.HandleForcedLogout)
	mgr.OnConnected(term.Reset)

	// Connect if a session is already present.
	sess, err := credentials.LoadSession(ctx, creds)
	if err != nil {
		logger.Error("failed to read session", "error", err)
		os.Exit(1)
	}
	mgr.Evaluate(ctx, sess.Valid())

	// Health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Status.HealthPort),
		Handler: createHealthHandler(mgr, rtr),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Status.HealthPort)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.Status.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				status := mgr.Status()
				logger.Debug("connection status",
					"connected", status.IsConnected,
					"connection_id", status.ConnectionID,
					"reconnect_attempts", status.ReconnectAttempts,
				)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		healthServer.Shutdown(shutdownCtx)
		mgr.Stop(shutdownCtx)
		if archiver != nil {
			archiver.Stop(shutdownCtx)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("component failed", "error", err)
		os.Exit(1)
	}

	logger.Info("syncd stopped")
}

// logLevel maps a config level string to a slog level.
func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(mgr connection.Manager, rtr *router.Router) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := mgr.Status()
		stats := rtr.Stats()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		health.Components["channel"] = map[string]any{
			"connected":          status.IsConnected,
			"connection_id":      status.ConnectionID,
			"reconnect_attempts": status.ReconnectAttempts,
		}
		health.Components["router"] = map[string]any{
			"events_received": stats.EventsReceived,
			"dispatched":      stats.Dispatched,
		}

		if !status.IsConnected {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health)
	})

	return mux
}

// logNotifier satisfies termination.Notifier for a headless process: the
// prompt is written to the log and treated as acknowledged immediately.
type logNotifier struct {
	logger *slog.Logger
}

func (n *logNotifier) Prompt(ctx context.Context, title, message string) error {
	n.logger.Warn("session ended", "title", title, "message", message)
	return nil
}

// logNavigator satisfies termination.Navigator for a headless process.
type logNavigator struct {
	logger *slog.Logger
}

func (n *logNavigator) ResetToEntry() error {
	n.logger.Info("navigation reset to unauthenticated entry")
	return nil
}
