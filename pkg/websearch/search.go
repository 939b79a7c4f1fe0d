// Package websearch runs web queries against a configured backend and exposes
// them to the agent as the web_search tool.
package websearch

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

type Options struct {
	// Count caps the number of results. Zero means provider default.
	Count    int    `json:"count,omitempty"`
	Language string `json:"language,omitempty"`
}

type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Manager routes queries to the primary provider.
type Manager struct {
	providers map[string]Provider
	primary   string
	language  string
}

func NewManager(primary string, providers ...Provider) *Manager {
	m := &Manager{providers: map[string]Provider{}, primary: primary}
	for _, p := range providers {
		m.Register(p)
	}
	return m
}

func (m *Manager) Register(p Provider) {
	m.providers[p.Name()] = p
}

func (m *Manager) Primary() string {
	return m.primary
}

// SetLanguage sets the language used when a query does not pick one.
func (m *Manager) SetLanguage(lang string) {
	m.language = lang
}

func (m *Manager) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	return m.SearchWith(ctx, m.primary, query, opts)
}

func (m *Manager) SearchWith(ctx context.Context, provider, query string, opts Options) ([]Result, error) {
	p, ok := m.providers[provider]
	if !ok {
		return nil, errors.Errorf("search provider %q not configured", provider)
	}
	if opts.Language == "" {
		opts.Language = m.language
	}
	return p.Search(ctx, query, opts)
}

// Providers returns the registered provider names, sorted.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func limit(results []Result, n int) []Result {
	if n > 0 && len(results) > n {
		return results[:n]
	}
	return results
}
