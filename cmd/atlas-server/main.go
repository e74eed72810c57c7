package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"atlas/internal/async"
	"atlas/internal/auth"
	"atlas/internal/config"
	"atlas/internal/logging"
	"atlas/internal/observability"
	"atlas/internal/provider"
	"atlas/internal/rpc"
	serverApp "atlas/internal/server/app"
	serverHTTP "atlas/internal/server/http"
	"atlas/internal/server/ports"
	"atlas/internal/skills"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "atlas-server",
		Short: "A2A agent server exposing text capabilities over JSON-RPC",
		Long: `atlas-server exposes summarization, sentiment analysis and entity
extraction as asynchronous tasks over a JSON-RPC endpoint, with per-task
status streaming via Server-Sent Events.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			return runServer(cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "API listen port")
	return cmd
}

func runServer(cfg *config.Config) error {
	logger := logging.NewComponentLogger("Main")
	logger.Info("Starting atlas server...")
	logConfiguration(logger, cfg)

	metrics, err := observability.NewMetricsCollector(observability.MetricsConfig{
		Enabled:        cfg.Metrics.Enabled,
		PrometheusPort: cfg.Metrics.Port,
	})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.Shutdown(ctx); err != nil {
			logger.Warn("Failed to shutdown metrics: %v", err)
		}
	}()

	keys, err := cfg.KeySet()
	if err != nil {
		// A broken key set must not take the server down; it runs open
		// like an unconfigured one.
		logger.Warn("Authentication disabled: %v", err)
		keys = nil
	}
	authStore := auth.NewStore(keys)
	if authStore.Enabled() {
		logger.Info("Authentication enabled with %d key(s)", len(keys))
	} else if err == nil {
		logger.Warn("Authentication disabled: no API keys configured")
	}

	gemini := provider.NewGeminiClient(provider.Config{
		APIKey:  cfg.Provider.APIKey,
		Model:   cfg.Provider.Model,
		BaseURL: cfg.Provider.BaseURL,
		Timeout: cfg.Provider.Timeout,
	}, logging.NewComponentLogger("Provider"), provider.WithMetrics(metrics))
	if !gemini.Configured() {
		logger.Warn("Generation backend disabled: no API key configured")
	}

	taskStore := serverApp.NewInMemoryTaskStore()

	baseCtx, cancelTasks := context.WithCancel(context.Background())
	defer cancelTasks()

	coordinator := serverApp.NewCoordinator(baseCtx, taskStore, []ports.SkillHandler{
		skills.NewSummarizer(gemini, logging.NewComponentLogger("Summarizer")),
		skills.NewSentimentAnalyzer(gemini, logging.NewComponentLogger("SentimentAnalyzer")),
		skills.NewEntityExtractor(gemini, logging.NewComponentLogger("EntityExtractor")),
	}, cfg.MaxConcurrent, logging.NewComponentLogger("Coordinator"), metrics)

	dispatcher := rpc.NewDispatcher(coordinator, taskStore, logging.NewComponentLogger("Dispatcher"),
		rpc.WithProviderCheck(gemini.Configured))

	healthChecker := serverApp.NewHealthChecker()
	healthChecker.RegisterProbe(serverApp.ProviderProbe(gemini.Configured))
	healthChecker.RegisterProbe(serverApp.AuthProbe(authStore.Enabled))
	healthChecker.RegisterProbe(serverApp.TaskStoreProbe(taskStore))

	startRetentionSweeper(baseCtx, taskStore, cfg.TaskTTL, cfg.SweepInterval, logger)

	router := serverHTTP.NewRouter(serverHTTP.RouterConfig{
		Dispatcher:     dispatcher,
		Store:          taskStore,
		HealthChecker:  healthChecker,
		AuthStore:      authStore,
		AgentCardPath:  cfg.AgentCardPath,
		AllowedOrigins: cfg.AllowedOrigins,
		StreamInterval: cfg.StreamInterval,
		Metrics:        metrics,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No timeout for SSE
		IdleTimeout:  120 * time.Second,
	}

	return serveUntilSignal(srv, logger)
}

// startRetentionSweeper drops terminal tasks older than ttl on a fixed
// cadence.
func startRetentionSweeper(ctx context.Context, store *serverApp.InMemoryTaskStore, ttl, interval time.Duration, logger logging.Logger) {
	async.Go(logger, "task.sweeper", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := store.SweepExpired(ttl); removed > 0 {
					logger.Info("Swept %d expired task(s)", removed)
				}
			case <-ctx.Done():
				return
			}
		}
	})
}

func serveUntilSignal(srv *http.Server, logger logging.Logger) error {
	errCh := make(chan error, 1)
	async.Go(logger, "server.listen", func() {
		logger.Info("Server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err == nil || err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-quit:
		logger.Info("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdownErr := srv.Shutdown(ctx)

		serveErr := <-errCh
		if serveErr == http.ErrServerClosed {
			serveErr = nil
		}

		if shutdownErr != nil {
			return fmt.Errorf("shutdown: %w", shutdownErr)
		}
		if serveErr != nil {
			return fmt.Errorf("server error: %w", serveErr)
		}

		logger.Info("Server stopped")
		return nil
	}
}

func logConfiguration(logger logging.Logger, cfg *config.Config) {
	logger.Info("=== Server Configuration ===")
	logger.Info("Port: %d", cfg.Port)
	logger.Info("Model: %s", cfg.Provider.Model)
	logger.Info("Base URL: %s", cfg.Provider.BaseURL)
	logger.Info("Max concurrent tasks: %d", cfg.MaxConcurrent)
	logger.Info("Task TTL: %s (sweep every %s)", cfg.TaskTTL, cfg.SweepInterval)
	logger.Info("Metrics enabled: %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port)
	logger.Info("===========================")
}
