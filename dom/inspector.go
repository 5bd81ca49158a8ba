// Package dom answers structural questions about rendered page content.
package dom

import (
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Inspector parses rendered HTML and checks for marker elements.
// Compiled selectors are cached, so an Inspector is cheap to reuse and safe
// for concurrent use.
type Inspector struct {
	mu        sync.RWMutex
	selectors map[string]cascadia.SelectorGroup
}

// NewInspector creates an Inspector with an empty selector cache.
func NewInspector() *Inspector {
	return &Inspector{selectors: make(map[string]cascadia.SelectorGroup)}
}

// Exists reports whether content contains at least one element matching
// selector, which may be a comma-separated group. An unparsable selector or
// document is an error, not a miss.
func (in *Inspector) Exists(content, selector string) (bool, error) {
	sel, err := in.compile(selector)
	if err != nil {
		return false, err
	}

	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return false, fmt.Errorf("dom: parse content: %w", err)
	}

	return cascadia.Query(root, sel) != nil, nil
}

// Title returns the trimmed document title of content, or "" when it has none.
func (in *Inspector) Title(content string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("dom: parse content: %w", err)
	}
	return strings.TrimSpace(doc.Find("head > title").First().Text()), nil
}

func (in *Inspector) compile(selector string) (cascadia.SelectorGroup, error) {
	in.mu.RLock()
	sel, ok := in.selectors[selector]
	in.mu.RUnlock()
	if ok {
		return sel, nil
	}

	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("dom: invalid selector %q: %w", selector, err)
	}

	in.mu.Lock()
	in.selectors[selector] = sel
	in.mu.Unlock()
	return sel, nil
}
