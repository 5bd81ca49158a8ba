package visitor

import (
	"errors"
	"sync"

	"github.com/use-agent/fanatic/browser"
	"github.com/use-agent/fanatic/models"
)

// State is a step of the login handshake.
type State int

const (
	StateInit State = iota
	StateBrowserReady
	StateLoginPageLoaded
	StateAwaitingRedirect
	StateVerified
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateBrowserReady:
		return "browser_ready"
	case StateLoginPageLoaded:
		return "login_page_loaded"
	case StateAwaitingRedirect:
		return "awaiting_redirect"
	case StateVerified:
		return "verified"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is an authenticated browsing context: one browser process, one
// page, and a ready flag that is true only between a verified login and the
// release of both handles.
type Session struct {
	browser browser.Browser
	page    browser.Page

	mu    sync.Mutex
	state State
	ready bool

	releaseOnce sync.Once
}

// Ready reports whether the login was verified and the handles are live.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// State returns the current handshake state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.ready = st == StateVerified
	s.mu.Unlock()
}

// Release closes the page and then the browser. Only the first call does any
// work; later calls return a RESOURCE_RELEASED error.
func (s *Session) Release() error {
	released := false
	var err error
	s.releaseOnce.Do(func() {
		released = true
		err = s.close()
	})
	if !released {
		return models.NewVisitError(models.ErrCodeReleased, "session already released", nil)
	}
	return err
}

func (s *Session) close() error {
	s.mu.Lock()
	if s.state != StateFailed {
		s.state = StateClosed
	}
	s.ready = false
	page, b := s.page, s.browser
	s.mu.Unlock()

	var errs []error
	if page != nil {
		if err := page.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b != nil {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// loadFuture is resolved by the first page-load signal after it is created.
// One future exists per login attempt.
type loadFuture struct {
	once sync.Once
	done chan struct{}
}

func newLoadFuture() *loadFuture {
	return &loadFuture{done: make(chan struct{})}
}

func (f *loadFuture) resolve() {
	f.once.Do(func() { close(f.done) })
}

func (f *loadFuture) wait(done <-chan struct{}) bool {
	select {
	case <-f.done:
		return true
	case <-done:
		return false
	}
}
