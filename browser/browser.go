// Package browser drives a headless Chromium through go-rod.
//
// The interfaces here are what the visitor depends on; the rod-backed types
// are the only production implementation.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/fanatic/config"
	"github.com/use-agent/fanatic/models"
)

// Navigation statuses reported by Page.Open.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// Launcher starts a new browser process.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is a running browser process.
type Browser interface {
	// NewPage opens a blank tab.
	NewPage(ctx context.Context) (Page, error)

	// Close terminates the browser process.
	Close() error
}

// Page is a single navigable tab.
type Page interface {
	// Open navigates to url and waits for the load event. The status is
	// StatusSuccess when the page loaded; otherwise StatusFail and an error
	// describing why, when one is known.
	Open(ctx context.Context, url string) (string, error)

	// OnLoadFinished calls handler every time the page fires its load event
	// until unregister is called.
	OnLoadFinished(handler func()) (unregister func())

	// Eval runs a JS function in the page with the given arguments.
	Eval(ctx context.Context, js string, args ...any) error

	// Content waits for the document to settle and returns its HTML.
	Content(ctx context.Context) (string, error)

	// Close closes the tab.
	Close() error
}

// RodLauncher launches Chromium with the configured flags.
type RodLauncher struct {
	cfg config.BrowserConfig
}

// NewRodLauncher returns a Launcher backed by go-rod.
func NewRodLauncher(cfg config.BrowserConfig) *RodLauncher {
	return &RodLauncher{cfg: cfg}
}

// Launch starts Chromium and connects to it over CDP.
func (rl *RodLauncher) Launch(ctx context.Context) (Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.NewVisitError(models.ErrCodeTimeout, "launch canceled", err)
	}

	// Not bound to ctx: the browser outlives the call that starts it.
	l := launcher.New().
		Headless(rl.cfg.Headless).
		NoSandbox(rl.cfg.NoSandbox)

	if rl.cfg.BrowserBin != "" {
		l = l.Bin(rl.cfg.BrowserBin)
	}
	if rl.cfg.Proxy != "" {
		l = l.Proxy(rl.cfg.Proxy)
	}

	// Hide the most obvious automation fingerprints.
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "TranslateUI")
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewVisitError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Debug("browser launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, models.NewVisitError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	return &rodBrowser{browser: b, launcher: l, cfg: rl.cfg}, nil
}

type rodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      config.BrowserConfig

	closeOnce sync.Once
	closeErr  error
}

func (b *rodBrowser) NewPage(ctx context.Context) (Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if b.cfg.Stealth {
		page, err = stealth.Page(b.browser)
	} else {
		page, err = b.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, models.NewVisitError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}

	if err := applyIdentity(page.Context(ctx), b.cfg); err != nil {
		slog.Warn("failed to apply browser identity, proceeding with defaults", "error", err)
	}

	return &rodPage{
		page:   page,
		router: setupHijack(page, b.cfg.BlockedResourceTypes),
	}, nil
}

// Close shuts the browser down and kills the process if it lingers.
// Repeated calls return the first result.
func (b *rodBrowser) Close() error {
	b.closeOnce.Do(func() {
		if err := b.browser.Close(); err != nil {
			b.closeErr = fmt.Errorf("browser: close: %w", err)
		}
		b.launcher.Kill()
		b.launcher.Cleanup()
	})
	return b.closeErr
}
