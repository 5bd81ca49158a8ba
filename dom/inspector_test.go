package dom

import (
	"sync"
	"testing"
)

const loggedIn = `<html><body>
<header><a href="/users/1/me" class="s-topbar--item s-user-card">me</a></header>
<main><h1 class="fs-headline1">Top Questions</h1></main>
</body></html>`

const loggedOut = `<html><body>
<header><a href="/users/login" class="s-btn">Log in</a></header>
<form id="login-form"><input id="email"><input id="password"></form>
</body></html>`

func TestExists(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		selector string
		want     bool
	}{
		{"marker present", loggedIn, "a.s-user-card", true},
		{"marker absent", loggedOut, "a.s-user-card", false},
		{"group matches second alternative", loggedIn, "a.profile-me, a.s-user-card", true},
		{"group matches nothing", loggedOut, "a.profile-me, a.s-user-card", false},
		{"login form present", loggedOut, "form#login-form", true},
		{"empty content", "", "a", false},
	}

	in := NewInspector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := in.Exists(tt.content, tt.selector)
			if err != nil {
				t.Fatalf("Exists() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Exists(%q) = %v, want %v", tt.selector, got, tt.want)
			}
		})
	}
}

func TestExists_InvalidSelector(t *testing.T) {
	in := NewInspector()
	if _, err := in.Exists(loggedIn, "a[["); err == nil {
		t.Fatal("expected an error for an invalid selector")
	}
	if len(in.selectors) != 0 {
		t.Errorf("invalid selector should not be cached, cache has %d entries", len(in.selectors))
	}
}

func TestExists_DefaultMarkerGroup(t *testing.T) {
	in := NewInspector()
	page := `<html><body><div><span><a class="profile-me" href="/users/1">me</a></span></div></body></html>`

	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"original marker nested", page, true},
		{"current header marker", loggedIn, true},
		{"login page", loggedOut, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := in.Exists(tt.content, "a.profile-me, a.s-user-card")
			if err != nil {
				t.Fatalf("Exists() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Exists() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain", `<html><head><title>Stack Overflow</title></head><body></body></html>`, "Stack Overflow"},
		{"padded", "<html><head><title>\n  Meta Stack Exchange \n</title></head></html>", "Meta Stack Exchange"},
		{"missing", loggedIn, ""},
		{"svg title ignored", `<html><body><svg><title>icon</title></svg></body></html>`, ""},
	}

	in := NewInspector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := in.Title(tt.content)
			if err != nil {
				t.Fatalf("Title() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Title() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSelectorCache(t *testing.T) {
	in := NewInspector()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := in.Exists(loggedIn, "a.s-user-card"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if len(in.selectors) != 1 {
		t.Errorf("expected one cached selector, got %d", len(in.selectors))
	}
}
