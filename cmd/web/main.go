package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"retail-dashboard/internal/config"
	"retail-dashboard/internal/handlers"
	"retail-dashboard/internal/middleware"
	"retail-dashboard/internal/observability"
	"retail-dashboard/internal/server"
	"retail-dashboard/internal/services"
	"retail-dashboard/internal/ui/templates"
)

const (
	renderTimeout = 10 * time.Second
	loadTimeout   = 30 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:          "retail-dashboard",
		Short:        "Retail product performance dashboard",
		Version:      handlers.Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to read before the environment")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the dashboard over HTTP",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), envFile)
			},
		},
		newSummaryCmd(&envFile),
		newExportCmd(&envFile),
	)
	return root
}

func runServe(ctx context.Context, envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return err
	}

	logger := observability.NewLogger(cfg.Logger, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", handlers.Version,
		"addr", cfg.Address(),
		"data_file", cfg.Data.File,
		"watch", cfg.Data.Watch,
		"auth", cfg.Security.AuthEnabled(),
	)

	catalog := services.NewCatalog(&services.FileSource{Path: cfg.Data.File, Sheet: cfg.Data.Sheet}, logger)

	loadCtx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	start := time.Now()
	ds, err := catalog.Dataset(loadCtx)
	if err != nil {
		logger.Error("failed to load product data", "error", err)
		return err
	}
	logger.Info("product data loaded", "records", ds.Len(), "duration", time.Since(start))

	dashboard := services.NewDashboard(catalog)
	templateHandlers := &server.TemplateHandlers{
		Dashboard: dashboardPage(dashboard, logger),
	}
	srv := server.NewServer(dashboard, catalog, logger, templateHandlers)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(),
		middleware.Metrics(),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
		middleware.BasicAuth(cfg.Security, logger, "/health", "/metrics"),
	)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      middlewareChain(srv),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	if cfg.Data.Watch {
		watcher, err := services.NewWatcher(catalog, cfg.Data.File, logger)
		if err != nil {
			logger.Warn("source watching disabled", "error", err)
		} else {
			gracefulServer.RunInBackground(watcher.Run)
		}
	}

	gracefulServer.RegisterShutdownHook(func(ctx context.Context) error {
		logger.Info("releasing product data", "stats", catalog.Stats())
		catalog.Invalidate()
		return nil
	})

	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		return err
	}

	logger.Info("application stopped gracefully")
	return nil
}

// dashboardPage renders the full page seeded with the default filter
// signals. The dashboard content itself streams in over /sse/dashboard.
func dashboardPage(dashboard *services.Dashboard, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")

		opts, err := dashboard.Options(ctx)
		if err != nil {
			logger.Error("dashboard unavailable", "error", err, "request_id", observability.GetRequestID(ctx))
			w.WriteHeader(http.StatusServiceUnavailable)
			templates.PageError("Product data is currently unavailable. Check the data file and reload.").Render(ctx, w)
			return
		}

		defaults, err := dashboard.Defaults(ctx)
		if err != nil {
			http.Error(w, "render error", http.StatusInternalServerError)
			return
		}
		signals, err := json.Marshal(handlers.SignalsFromCriteria(defaults))
		if err != nil {
			http.Error(w, "render error", http.StatusInternalServerError)
			return
		}

		if err := templates.Dashboard(opts, string(signals)).Render(ctx, w); err != nil {
			logger.Error("render dashboard", "error", err)
		}
	}
}

// loadConfig is shared by the offline subcommands, which log to stderr.
func loadConfig(envFile string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, observability.NewLogger(cfg.Logger, os.Stderr), nil
}
