package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/fanatic/api"
	"github.com/use-agent/fanatic/app"
	"github.com/use-agent/fanatic/browser"
	"github.com/use-agent/fanatic/config"
	"github.com/use-agent/fanatic/dom"
	"github.com/use-agent/fanatic/models"
	"github.com/use-agent/fanatic/visitor"
	"github.com/use-agent/fanatic/webhook"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fanatic exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// ── 1. Load configuration ───────────────────────────────────────
	path := os.Getenv("FANATIC_CONFIG")
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("fanatic starting",
		"config", path,
		"targets", len(cfg.Targets()),
		"interval", cfg.Schedule.Interval,
		"dwell", cfg.Schedule.Dwell,
		"headless", cfg.Browser.Headless,
		"stealth", cfg.Browser.Stealth,
	)

	// ── 3. Wire the visitor and the application ─────────────────────
	v := visitor.New(browser.NewRodLauncher(cfg.Browser), dom.NewInspector(), cfg.Session)
	application := app.New(cfg, v, app.WithNotifier(webhook.New(cfg.Webhook)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// ── 4. Log in and arm the schedule ──────────────────────────────
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("run application: %w", err)
	}

	// ── 5. Optional status server ───────────────────────────────────
	if cfg.Server.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           api.NewRouter(application, cfg, time.Now()),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			slog.Info("HTTP server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("HTTP server forced shutdown", "error", err)
				return nil
			}
			slog.Info("HTTP server drained gracefully")
			return nil
		})
	}

	// ── 6. Graceful shutdown ────────────────────────────────────────
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		// ctx is done, so an in-flight cycle is already being interrupted.
		if err := application.Stop(); err != nil && !models.IsCode(err, models.ErrCodeNotRunning) {
			return fmt.Errorf("stop application: %w", err)
		}
		application.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("fanatic stopped")
	return nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
