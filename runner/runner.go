// Package runner invokes a task immediately and then on a fixed period.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/fanatic/models"
)

// Task is one scheduled invocation. ctx is the context passed to Start.
type Task func(ctx context.Context)

// Stats counts dispatched and dropped triggers since the Runner was created.
type Stats struct {
	Fired   uint64 `json:"fired"`
	Skipped uint64 `json:"skipped"`
}

// Runner fires Task on a ticker. A trigger that arrives while the previous
// invocation is still running is dropped, never queued, so at most one
// invocation is in flight at any time.
type Runner struct {
	task      Task
	interval  time.Duration
	newTicker func(d time.Duration) (<-chan time.Time, func())

	mu   sync.Mutex
	stop chan struct{} // non-nil iff running

	busy     atomic.Bool
	inflight sync.WaitGroup
	fired    atomic.Uint64
	skipped  atomic.Uint64
}

// New creates a stopped Runner.
func New(task Task, interval time.Duration) *Runner {
	return &Runner{
		task:      task,
		interval:  interval,
		newTicker: systemTicker,
	}
}

func systemTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Start dispatches the task right away and then every interval until Stop is
// called or ctx is done; either one leaves the Runner stopped. It does not
// block.
func (r *Runner) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return models.NewVisitError(models.ErrCodeConfig, "runner interval must be positive", nil)
	}

	r.mu.Lock()
	if r.stop != nil {
		r.mu.Unlock()
		return models.NewVisitError(models.ErrCodeAlreadyStarted, "the task runner is already started", nil)
	}
	stop := make(chan struct{})
	r.stop = stop
	tick, stopTicker := r.newTicker(r.interval)
	r.mu.Unlock()

	slog.Info("runner started", "interval", r.interval)

	r.fire(ctx, stop)
	go r.loop(ctx, stop, tick, stopTicker)
	return nil
}

// Stop disarms the ticker. An invocation already in flight keeps running;
// use Wait to block until it returns.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if r.stop == nil {
		r.mu.Unlock()
		return models.NewVisitError(models.ErrCodeNotStarted, "the task runner is not started", nil)
	}
	close(r.stop)
	r.stop = nil
	r.mu.Unlock()

	slog.Info("runner stopped",
		"fired", r.fired.Load(),
		"skipped", r.skipped.Load(),
	)
	return nil
}

// Wait blocks until in-flight invocations return. Call it after Stop.
func (r *Runner) Wait() {
	r.inflight.Wait()
}

// Running reports whether the Runner is started.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stop != nil
}

// Stats returns the trigger counters.
func (r *Runner) Stats() Stats {
	return Stats{Fired: r.fired.Load(), Skipped: r.skipped.Load()}
}

func (r *Runner) loop(ctx context.Context, stop chan struct{}, tick <-chan time.Time, stopTicker func()) {
	defer stopTicker()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			r.mu.Lock()
			if r.stop == stop {
				r.stop = nil
			}
			r.mu.Unlock()
			slog.Info("runner stopped", "reason", ctx.Err())
			return
		case <-tick:
			r.fire(ctx, stop)
		}
	}
}

// fire starts one invocation unless the Runner was stopped (or restarted)
// since stop was armed, or the previous invocation is still running.
func (r *Runner) fire(ctx context.Context, stop chan struct{}) {
	r.mu.Lock()
	if r.stop != stop {
		r.mu.Unlock()
		return
	}
	if !r.busy.CompareAndSwap(false, true) {
		r.mu.Unlock()
		n := r.skipped.Add(1)
		slog.Warn("trigger skipped",
			"reason", "previous run still in progress",
			"skipped", n,
		)
		return
	}
	r.fired.Add(1)
	r.inflight.Add(1)
	r.mu.Unlock()

	go r.invoke(ctx)
}

func (r *Runner) invoke(ctx context.Context) {
	defer r.inflight.Done()
	defer r.busy.Store(false)
	defer func() {
		if p := recover(); p != nil {
			slog.Error("task panicked", "panic", p)
		}
	}()
	r.task(ctx)
}
