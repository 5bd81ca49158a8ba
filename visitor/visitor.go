// Package visitor logs an account in through a real browser and walks a list
// of pages with it, one at a time.
package visitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/fanatic/browser"
	"github.com/use-agent/fanatic/config"
	"github.com/use-agent/fanatic/models"
	"golang.org/x/time/rate"
)

// loginScript fills the login form and submits it on the next tick, so the
// evaluation returns before the page starts unloading.
const loginScript = `(email, password) => {
	const form = document.querySelector('#login-form');
	const emailInput = document.querySelector('#email');
	const passwordInput = document.querySelector('#password');
	if (!form || !emailInput || !passwordInput) {
		throw new Error('login form not found');
	}
	for (const [input, value] of [[emailInput, email], [passwordInput, password]]) {
		input.value = value;
		input.dispatchEvent(new Event('input', { bubbles: true }));
	}
	setTimeout(() => form.requestSubmit ? form.requestSubmit() : form.submit(), 0);
}`

// Inspector answers questions about rendered content.
type Inspector interface {
	Exists(content, selector string) (bool, error)
	Title(content string) (string, error)
}

// Visitor owns at most one Session and drives it. Connect, Visit and
// Disconnect are safe to call from different goroutines; Visit calls on the
// same Visitor never overlap.
type Visitor struct {
	launcher  browser.Launcher
	inspector Inspector
	cfg       config.SessionConfig
	pacer     *rate.Limiter
	sleep     func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	session *Session
	busy    atomic.Bool
}

// New creates a Visitor. Navigations are spaced at least
// cfg.NavigationInterval apart.
func New(l browser.Launcher, in Inspector, cfg config.SessionConfig) *Visitor {
	limit := rate.Inf
	if cfg.NavigationInterval > 0 {
		limit = rate.Every(cfg.NavigationInterval)
	}
	return &Visitor{
		launcher:  l,
		inspector: in,
		cfg:       cfg,
		pacer:     rate.NewLimiter(limit, 1),
		sleep:     sleepCtx,
	}
}

// Ready reports whether a verified session is live.
func (v *Visitor) Ready() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.session != nil && v.session.Ready()
}

// Connect launches a browser, logs in with creds and verifies the login by
// looking for the profile marker on the page the login form redirects to.
//
// Connect fails with SESSION_ACTIVE while another session is live or being
// established. On any other failure the browser is shut down before the error
// is returned, and Connect may be called again.
func (v *Visitor) Connect(ctx context.Context, creds config.Credentials) (*Session, error) {
	v.mu.Lock()
	if v.session != nil {
		v.mu.Unlock()
		return nil, models.NewVisitError(models.ErrCodeSessionActive, "a session is already connected", nil)
	}
	s := &Session{state: StateInit}
	v.session = s
	v.mu.Unlock()

	if err := v.handshake(ctx, s, creds); err != nil {
		s.setState(StateFailed)
		v.cleanup(s)
		slog.Error("login failed",
			"email", creds.Email,
			"code", models.CodeOf(err),
			"error", err,
		)
		return nil, err
	}

	slog.Info("login succeeded", "email", creds.Email)
	return s, nil
}

// handshake walks INIT → BROWSER_READY → LOGIN_PAGE_LOADED →
// AWAITING_REDIRECT → VERIFIED. Handles are stored on s as soon as they
// exist so cleanup can release them whatever step fails.
func (v *Visitor) handshake(ctx context.Context, s *Session, creds config.Credentials) error {
	b, err := v.launcher.Launch(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.browser = b
	s.mu.Unlock()

	page, err := b.NewPage(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()
	s.setState(StateBrowserReady)

	if err := v.open(ctx, page, v.cfg.LoginURL); err != nil {
		return err
	}
	s.setState(StateLoginPageLoaded)

	loginCtx, cancel := withTimeout(ctx, v.cfg.LoginTimeout)
	defer cancel()

	// Registered before submitting so the redirect's load event can't be missed.
	loaded := newLoadFuture()
	unregister := sync.OnceFunc(page.OnLoadFinished(loaded.resolve))
	defer unregister()

	if err := page.Eval(loginCtx, loginScript, creds.Email, creds.Password); err != nil {
		return navigationError(v.cfg.LoginURL, "", fmt.Errorf("submit login form: %w", err))
	}
	s.setState(StateAwaitingRedirect)

	if !loaded.wait(loginCtx.Done()) {
		return models.NewTargetError(models.ErrCodeTimeout, "login redirect did not complete", v.cfg.LoginURL, loginCtx.Err())
	}
	unregister()

	content, err := page.Content(loginCtx)
	if err != nil {
		return navigationError(v.cfg.LoginURL, "", fmt.Errorf("read post-login page: %w", err))
	}

	found, err := v.inspector.Exists(content, v.cfg.ProfileMarker)
	if err != nil {
		return models.NewVisitError(models.ErrCodeAuth, "cannot inspect post-login page", err)
	}
	if !found {
		return models.NewVisitError(models.ErrCodeAuth, "cannot login: profile marker not found", nil)
	}

	s.setState(StateVerified)
	return nil
}

// Visit opens every target in order, waits for its content and keeps it
// loaded for the dwell time before moving on.
//
// The first failing target aborts the walk; the session is released before
// the error is returned, so a later cycle has to Connect again.
func (v *Visitor) Visit(ctx context.Context, targets []string) error {
	s := v.readySession()
	if s == nil {
		return models.NewVisitError(models.ErrCodeNotReady, "you have to connect the visitor first", nil)
	}
	if !v.busy.CompareAndSwap(false, true) {
		return models.NewVisitError(models.ErrCodeSessionBusy, "another visit is in progress", nil)
	}
	defer v.busy.Store(false)

	for i, target := range targets {
		start := time.Now()
		title, err := v.visitOne(ctx, s, target)
		if err != nil {
			v.cleanup(s)
			slog.Error("visit failed",
				"target", target,
				"index", i+1,
				"total", len(targets),
				"code", models.CodeOf(err),
				"error", err,
			)
			return err
		}
		slog.Info("visit completed",
			"target", target,
			"title", title,
			"index", i+1,
			"total", len(targets),
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
	}
	return nil
}

// visitOne opens target, waits for its content and dwells on it. It returns
// the page title for logging.
func (v *Visitor) visitOne(ctx context.Context, s *Session, target string) (string, error) {
	if !s.Ready() {
		return "", models.NewTargetError(models.ErrCodeNotReady, "session was released mid-visit", target, nil)
	}

	if err := v.open(ctx, s.page, target); err != nil {
		return "", err
	}

	content, err := s.page.Content(ctx)
	if err != nil {
		return "", navigationError(target, "", fmt.Errorf("wait for content: %w", err))
	}
	title, err := v.inspector.Title(content)
	if err != nil {
		slog.Debug("cannot read page title", "target", target, "error", err)
	}

	if err := v.sleep(ctx, v.cfg.Dwell); err != nil {
		return "", models.NewTargetError(models.ErrCodeTimeout, "visit interrupted during dwell", target, err)
	}
	return title, nil
}

// Disconnect releases the live session. It fails with NOT_READY when there is
// no verified session.
func (v *Visitor) Disconnect() error {
	v.mu.Lock()
	s := v.session
	if s == nil || !s.Ready() {
		v.mu.Unlock()
		return models.NewVisitError(models.ErrCodeNotReady, "you have to connect the visitor first", nil)
	}
	v.session = nil
	v.mu.Unlock()

	err := s.Release()
	if models.IsCode(err, models.ErrCodeReleased) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	slog.Info("session disconnected")
	return nil
}

func (v *Visitor) readySession() *Session {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.session == nil || !v.session.Ready() {
		return nil
	}
	return v.session
}

// cleanup detaches s from the visitor and releases it. A session that was
// already released by a concurrent Disconnect is left alone.
func (v *Visitor) cleanup(s *Session) {
	v.mu.Lock()
	if v.session == s {
		v.session = nil
	}
	v.mu.Unlock()

	err := s.Release()
	switch {
	case models.IsCode(err, models.ErrCodeReleased):
		slog.Debug("session already released")
	case err != nil:
		slog.Warn("session cleanup failed", "error", err)
	}
}

// open waits for the navigation pacer, then opens target and checks that the
// page reported success.
func (v *Visitor) open(ctx context.Context, page browser.Page, target string) error {
	if err := v.pacer.Wait(ctx); err != nil {
		return models.NewTargetError(models.ErrCodeTimeout, "navigation canceled", target, err)
	}

	navCtx, cancel := withTimeout(ctx, v.cfg.NavigationTimeout)
	defer cancel()

	status, err := page.Open(navCtx, target)
	if err == nil && status == browser.StatusSuccess {
		return nil
	}
	return navigationError(target, status, err)
}

// navigationError classifies a failed navigation. Deadline and cancellation
// become TIMEOUT; everything else is NAVIGATION_FAILED.
func navigationError(target, status string, err error) *models.VisitError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.NewTargetError(models.ErrCodeTimeout, "navigation timed out", target, err)
	}
	msg := "navigation failed"
	if status != "" {
		msg = fmt.Sprintf("the status is %q and not %q", status, browser.StatusSuccess)
	}
	return models.NewTargetError(models.ErrCodeNavigation, msg, target, err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
