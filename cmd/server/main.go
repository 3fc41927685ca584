package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/csvreorder/csvreorder/internal/audit"
	"github.com/csvreorder/csvreorder/internal/config"
	"github.com/csvreorder/csvreorder/internal/core"
	"github.com/csvreorder/csvreorder/internal/logging"
	"github.com/csvreorder/csvreorder/internal/tracing"
	"github.com/csvreorder/csvreorder/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	// The audit log is optional; without a database URL events are dropped.
	var recorder audit.Recorder = audit.Nop{}
	if cfg.Audit.Enabled() {
		pg, err := audit.Open(ctx, cfg.Audit)
		if err != nil {
			slog.Error("failed to open audit database", "error", err)
			os.Exit(1)
		}
		recorder = pg

		if u, err := url.Parse(cfg.Audit.URL); err == nil {
			slog.Info("audit log connected", "database", strings.TrimPrefix(u.Path, "/"))
		} else {
			slog.Info("audit log connected")
		}
	}

	service := core.NewService(cfg, recorder)
	server := web.NewServer(cfg, service)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartJanitor(jobCtx, cfg.Session.CleanupInterval)

	stopped := make(chan struct{})

	// Graceful shutdown
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Wait for in-flight parses to finish (with timeout)
		if status := service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for parses to complete", "active", status.Active)
			if err := service.WaitForParses(shutdownCtx); err != nil {
				slog.Warn("parses did not complete in time", "error", err)
			}
		}

		service.Shutdown(shutdownCtx)
		recorder.Close()

		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}
