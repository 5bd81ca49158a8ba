package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/fanatic/config"
	"github.com/ysmood/gson"
)

type rodPage struct {
	page   *rod.Page
	router *rod.HijackRouter
}

// Open binds ctx to the page, navigates and waits for window.onload.
//
// A navigation the browser itself rejects (DNS failure, connection refused,
// blocked by client) is reported as StatusFail; context expiry and CDP
// transport errors are returned as errors with no status.
func (p *rodPage) Open(ctx context.Context, url string) (string, error) {
	pc := p.page.Context(ctx)

	if err := pc.Navigate(url); err != nil {
		var navErr *rod.NavigationError
		if errors.As(err, &navErr) {
			return StatusFail, err
		}
		return "", err
	}

	if err := pc.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait for load: %w", err)
	}
	return StatusSuccess, nil
}

// OnLoadFinished subscribes to Page.loadEventFired. The subscription lives on
// its own context so unregister never touches the caller's context.
func (p *rodPage) OnLoadFinished(handler func()) (unregister func()) {
	ctx, cancel := context.WithCancel(context.Background())
	wait := p.page.Context(ctx).EachEvent(func(e *proto.PageLoadEventFired) {
		handler()
	})
	go wait()
	return cancel
}

func (p *rodPage) Eval(ctx context.Context, js string, args ...any) error {
	_, err := p.page.Context(ctx).Eval(js, args...)
	return err
}

// Content waits for the load event and a quiet DOM, then returns the HTML.
// A DOM that never settles is not an error: pages with tickers or live
// timestamps mutate forever.
func (p *rodPage) Content(ctx context.Context) (string, error) {
	pc := p.page.Context(ctx)

	if err := pc.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait for load: %w", err)
	}
	if err := pc.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}

	html, err := pc.HTML()
	if err != nil {
		return "", fmt.Errorf("read page HTML: %w", err)
	}
	return html, nil
}

func (p *rodPage) Close() error {
	if p.router != nil {
		_ = p.router.Stop()
	}
	return p.page.Close()
}

// applyIdentity sets the user agent and Accept-Language header for every
// request the page makes. Without an explicit user agent the browser's own is
// reused minus the "HeadlessChrome" token.
func applyIdentity(page *rod.Page, cfg config.BrowserConfig) error {
	if cfg.UserAgent != "" || cfg.AcceptLanguage != "" {
		ua := cfg.UserAgent
		if ua == "" {
			res, err := proto.BrowserGetVersion{}.Call(page)
			if err != nil {
				return fmt.Errorf("read browser version: %w", err)
			}
			ua = strings.ReplaceAll(res.UserAgent, "HeadlessChrome", "Chrome")
		}
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      ua,
			AcceptLanguage: cfg.AcceptLanguage,
		}); err != nil {
			return fmt.Errorf("set user agent: %w", err)
		}
	}

	if cfg.AcceptLanguage == "" {
		return nil
	}
	return proto.NetworkSetExtraHTTPHeaders{
		Headers: proto.NetworkHeaders{
			"Accept-Language": gson.New(cfg.AcceptLanguage),
		},
	}.Call(page)
}
