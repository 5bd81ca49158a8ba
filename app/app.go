// Package app ties configuration, the visitor and the scheduler together.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/fanatic/config"
	"github.com/use-agent/fanatic/models"
	"github.com/use-agent/fanatic/runner"
	"github.com/use-agent/fanatic/visitor"
	"github.com/use-agent/fanatic/webhook"
)

// SessionManager is the part of visitor.Visitor the application drives.
type SessionManager interface {
	Connect(ctx context.Context, creds config.Credentials) (*visitor.Session, error)
	Visit(ctx context.Context, targets []string) error
	Disconnect() error
	Ready() bool
}

// Option customises an Application.
type Option func(*Application)

// WithNotifier sends a webhook event after every cycle.
func WithNotifier(n *webhook.Notifier) Option {
	return func(a *Application) { a.notifier = n }
}

// Application connects once, then visits the configured targets on the
// configured schedule until stopped.
type Application struct {
	cfg      *config.Config
	sessions SessionManager
	notifier *webhook.Notifier
	targets  []string
	runner   *runner.Runner
	newRunID func() string

	mu      sync.Mutex
	running bool
	stats   models.RunStats
}

// New creates a stopped Application.
func New(cfg *config.Config, sm SessionManager, opts ...Option) *Application {
	a := &Application{
		cfg:      cfg,
		sessions: sm,
		targets:  cfg.Targets(),
		newRunID: uuid.NewString,
	}
	a.runner = runner.New(a.cycle, cfg.Schedule.Interval)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run logs in and starts the schedule; the first cycle is dispatched
// immediately. Run returns once the schedule is armed. Cycles run with ctx,
// so cancelling it interrupts the one in flight.
func (a *Application) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return models.NewVisitError(models.ErrCodeAlreadyRunning, "the application is already running", nil)
	}
	a.running = true
	a.mu.Unlock()

	if _, err := a.sessions.Connect(ctx, a.cfg.Auth); err != nil {
		a.setRunning(false)
		return fmt.Errorf("connect: %w", err)
	}

	if err := a.runner.Start(ctx); err != nil {
		a.setRunning(false)
		if derr := a.sessions.Disconnect(); derr != nil {
			slog.Warn("disconnect after failed start", "error", derr)
		}
		return fmt.Errorf("start runner: %w", err)
	}

	slog.Info("application running",
		"targets", len(a.targets),
		"interval", a.cfg.Schedule.Interval,
		"dwell", a.cfg.Schedule.Dwell,
	)
	return nil
}

// Stop disarms the schedule, waits for an in-flight cycle and logs out.
func (a *Application) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return models.NewVisitError(models.ErrCodeNotRunning, "the application is not running", nil)
	}
	a.running = false
	a.mu.Unlock()

	if err := a.runner.Stop(); err != nil && !models.IsCode(err, models.ErrCodeNotStarted) {
		slog.Warn("stop runner", "error", err)
	}
	a.runner.Wait()

	// A failed last cycle already released the session.
	err := a.sessions.Disconnect()
	if err != nil && !models.IsCode(err, models.ErrCodeNotReady) {
		return fmt.Errorf("disconnect: %w", err)
	}

	slog.Info("application stopped")
	return nil
}

// Wait blocks until in-flight webhook deliveries finish. Pending retries
// are abandoned.
func (a *Application) Wait() {
	a.notifier.Close()
}

// Status reports readiness, schedule state and run statistics.
func (a *Application) Status() models.StatusResponse {
	a.mu.Lock()
	stats := a.stats
	running := a.running
	a.mu.Unlock()

	stats.Skipped = int(a.runner.Stats().Skipped)
	return models.StatusResponse{
		Ready:   a.sessions.Ready(),
		Running: running && a.runner.Running(),
		Targets: a.targets,
		Stats:   stats,
	}
}

// Ready reports whether the session is logged in.
func (a *Application) Ready() bool {
	return a.sessions.Ready()
}

func (a *Application) setRunning(v bool) {
	a.mu.Lock()
	a.running = v
	a.mu.Unlock()
}

// cycle is the scheduled task: one pass over every target.
func (a *Application) cycle(ctx context.Context) {
	runID := a.newRunID()
	start := time.Now()

	a.mu.Lock()
	a.stats.Started++
	a.stats.LastRunID = runID
	a.stats.LastStart = start
	a.mu.Unlock()

	slog.Info("cycle started", "run_id", runID, "targets", len(a.targets))

	err := a.visit(ctx, runID)
	end := time.Now()

	// Shutdown cuts the cycle short; that is neither a success nor a failure.
	if err != nil && ctx.Err() != nil {
		a.mu.Lock()
		a.stats.Interrupted++
		a.stats.LastEnd = end
		a.mu.Unlock()
		slog.Info("cycle interrupted", "run_id", runID, "reason", ctx.Err())
		return
	}

	result := models.CycleResult{
		Targets:    a.targets,
		StartedAt:  start,
		FinishedAt: end,
		Elapsed:    end.Sub(start).Round(time.Millisecond).String(),
	}

	a.mu.Lock()
	a.stats.LastEnd = end
	if err != nil {
		a.stats.Failed++
		a.stats.LastError = models.DetailOf(err)
		result.Error = a.stats.LastError
	} else {
		a.stats.Succeeded++
		a.stats.LastError = nil
	}
	a.mu.Unlock()

	eventType := webhook.EventCycleCompleted
	if err != nil {
		eventType = webhook.EventCycleFailed
		slog.Error("cycle finished",
			"run_id", runID,
			"elapsed", result.Elapsed,
			"code", models.CodeOf(err),
			"error", err,
		)
	} else {
		slog.Info("cycle finished", "run_id", runID, "elapsed", result.Elapsed)
	}

	a.notifier.Notify(&webhook.Event{
		Type:      eventType,
		RunID:     runID,
		Timestamp: end.Unix(),
		Data:      result,
	})
}

// visit logs in again when the previous cycle lost the session, then walks
// the targets from the first one.
func (a *Application) visit(ctx context.Context, runID string) error {
	if !a.sessions.Ready() {
		slog.Info("session not ready, reconnecting", "run_id", runID)
		if _, err := a.sessions.Connect(ctx, a.cfg.Auth); err != nil {
			return fmt.Errorf("reconnect: %w", err)
		}
	}
	return a.sessions.Visit(ctx, a.targets)
}
