package visitor

import (
	"context"
	"errors"
	"sync"

	"github.com/use-agent/fanatic/browser"
)

const (
	loginPageHTML = `<html><body><form id="login-form"><input id="email"><input id="password"></form></body></html>`
	homePageHTML  = `<html><body><a class="s-topbar--item s-user-card" href="/users/1">me</a></body></html>`
)

type fakeLauncher struct {
	mu       sync.Mutex
	browser  *fakeBrowser
	err      error
	launches int
}

func (l *fakeLauncher) Launch(ctx context.Context) (browser.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	if l.err != nil {
		return nil, l.err
	}
	return l.browser, nil
}

func (l *fakeLauncher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

type fakeBrowser struct {
	mu         sync.Mutex
	page       *fakePage
	newPageErr error
	closes     int
}

func (b *fakeBrowser) NewPage(ctx context.Context) (browser.Page, error) {
	if b.newPageErr != nil {
		return nil, b.newPageErr
	}
	return b.page, nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	return nil
}

func (b *fakeBrowser) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

// fakePage simulates a login redirect: Eval fires the load signal unless
// silent is set, and Content switches from the login form to afterLogin.
type fakePage struct {
	mu sync.Mutex

	statuses   map[string]string
	openErrs   map[string]error
	evalErr    error
	contentErr error
	afterLogin string
	silent     bool

	opened      []string
	evalArgs    []any
	submitted   bool
	handlers    map[int]func()
	nextID      int
	unregisters int
	closes      int
}

func newFakePage() *fakePage {
	return &fakePage{
		statuses:   map[string]string{},
		openErrs:   map[string]error{},
		afterLogin: homePageHTML,
		handlers:   map[int]func(){},
	}
}

func (p *fakePage) Open(ctx context.Context, url string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened = append(p.opened, url)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err, ok := p.openErrs[url]; ok {
		return "", err
	}
	if status, ok := p.statuses[url]; ok {
		return status, nil
	}
	return browser.StatusSuccess, nil
}

func (p *fakePage) OnLoadFinished(handler func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.handlers[id] = handler
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, id)
		p.unregisters++
	}
}

func (p *fakePage) Eval(ctx context.Context, js string, args ...any) error {
	p.mu.Lock()
	p.evalArgs = args
	if p.evalErr != nil {
		p.mu.Unlock()
		return p.evalErr
	}
	p.submitted = true
	silent := p.silent
	p.mu.Unlock()

	if !silent {
		// The redirect finishes loading after the script returns; fire twice
		// to check the signal is only consumed once.
		go func() {
			p.fire()
			p.fire()
		}()
	}
	return nil
}

func (p *fakePage) fire() {
	p.mu.Lock()
	hs := make([]func(), 0, len(p.handlers))
	for _, h := range p.handlers {
		hs = append(hs, h)
	}
	p.mu.Unlock()
	for _, h := range hs {
		h()
	}
}

func (p *fakePage) Content(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.contentErr != nil {
		return "", p.contentErr
	}
	if p.submitted {
		return p.afterLogin, nil
	}
	return loginPageHTML, nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func (p *fakePage) Opened() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.opened...)
}

func (p *fakePage) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

func (p *fakePage) Unregisters() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unregisters
}

func (p *fakePage) Handlers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers)
}

var errBoom = errors.New("boom")
