// Package agent assembles the tool registry, model gateway and agent loop
// from settings.
package agent

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/alfred/pkg/config"
	"github.com/go-go-golems/alfred/pkg/embeddings"
	"github.com/go-go-golems/alfred/pkg/events"
	"github.com/go-go-golems/alfred/pkg/guests"
	"github.com/go-go-golems/alfred/pkg/hubstats"
	"github.com/go-go-golems/alfred/pkg/inference/engine"
	"github.com/go-go-golems/alfred/pkg/inference/toolloop"
	"github.com/go-go-golems/alfred/pkg/inference/tools"
	"github.com/go-go-golems/alfred/pkg/steps/ai/openai"
	"github.com/go-go-golems/alfred/pkg/websearch"
)

// Components overrides parts that would otherwise be built from settings.
// Zero fields are built.
type Components struct {
	Gateway  engine.Gateway
	Embedder embeddings.Provider
	Guests   []guests.Guest
	Searcher websearch.Searcher
	Hub      *hubstats.Client
	Sinks    []events.EventSink
}

type Agent struct {
	Settings *config.Settings
	Registry *tools.Registry
	Loop     *toolloop.Loop
}

// New builds the agent described by s.
func New(ctx context.Context, s *config.Settings, c Components) (*Agent, error) {
	if s == nil {
		s = config.Defaults()
	}

	reg, err := NewRegistry(ctx, s, c)
	if err != nil {
		return nil, err
	}

	gw := c.Gateway
	if gw == nil {
		g, err := openai.NewGateway(s.OpenAI)
		if err != nil {
			return nil, errors.Wrap(err, "create openai gateway")
		}
		gw = g
	}

	toolCfg := tools.DefaultToolConfig().
		WithExecutionTimeout(s.Agent.ToolTimeout).
		WithAllowedTools(s.Agent.AllowedTools).
		WithValidateArguments(s.Agent.ValidateArguments)

	sinks := append([]events.EventSink{events.NewLoggingSink(log.Logger, zerolog.DebugLevel)}, c.Sinks...)

	loop := toolloop.New(
		toolloop.WithGateway(gw),
		toolloop.WithRegistry(reg),
		toolloop.WithInvoker(tools.NewInvoker(toolCfg)),
		toolloop.WithLoopConfig(toolloop.DefaultLoopConfig().WithWindowSize(s.Agent.WindowSize)),
		toolloop.WithEventSinks(sinks...),
	)

	return &Agent{Settings: s, Registry: reg, Loop: loop}, nil
}

// NewRegistry builds the three agent tools and applies the allow-list.
func NewRegistry(ctx context.Context, s *config.Settings, c Components) (*tools.Registry, error) {
	embedder := c.Embedder
	if embedder == nil {
		embedder = NewEmbedder(s)
	}

	gs := c.Guests
	if gs == nil {
		hub := guests.NewHubLoader()
		hub.BaseURL = s.Guests.DatasetsServerURL
		hub.Token = s.Guests.HubToken
		loaded, err := guests.Load(ctx, s.Guests.Source, hub)
		if err != nil {
			return nil, errors.Wrap(err, "load guests")
		}
		gs = loaded
	}
	retriever, err := NewGuestRetriever(ctx, s.Guests, gs, embedder)
	if err != nil {
		return nil, err
	}
	guestTool, err := guests.NewTool(retriever, s.Guests.TopK)
	if err != nil {
		return nil, err
	}

	searcher := c.Searcher
	if searcher == nil {
		searcher = NewSearchManager(s.Search)
	}
	searchTool, err := websearch.NewTool(searcher)
	if err != nil {
		return nil, err
	}

	hub := c.Hub
	if hub == nil {
		hub = hubstats.NewClient(s.Hub.URL, s.Hub.Token)
	}
	hubTool, err := hubstats.NewTool(hub)
	if err != nil {
		return nil, err
	}

	reg, err := tools.NewRegistry(guestTool, searchTool, hubTool)
	if err != nil {
		return nil, err
	}
	if len(s.Agent.AllowedTools) > 0 {
		reg, err = reg.Restrict(s.Agent.AllowedTools)
		if err != nil {
			return nil, err
		}
	}
	log.Debug().Int("tools", reg.Len()).Int("guests", len(gs)).Msg("agent: registry built")
	return reg, nil
}

// NewEmbedder returns the configured embeddings provider behind an LRU cache.
func NewEmbedder(s *config.Settings) embeddings.Provider {
	var p embeddings.Provider
	switch s.Embeddings.Provider {
	case "openai":
		p = embeddings.NewOpenAIProvider(s.OpenAI.APIKey, s.OpenAI.BaseURL, go_openai.EmbeddingModel(s.Embeddings.Model), s.Embeddings.Dimensions)
	default:
		p = embeddings.NewHashingProvider(s.Embeddings.Dimensions)
	}
	if s.Embeddings.CacheSize > 0 {
		return embeddings.NewCachedProvider(p, s.Embeddings.CacheSize)
	}
	return p
}

// NewGuestRetriever indexes gs with the configured retriever.
func NewGuestRetriever(ctx context.Context, s config.GuestsSettings, gs []guests.Guest, embedder embeddings.Provider) (guests.Retriever, error) {
	switch s.Retriever {
	case "vector":
		idx := guests.NewVectorIndex(embedder)
		if err := idx.Add(ctx, gs); err != nil {
			return nil, err
		}
		return idx, nil
	case "weaviate":
		idx, err := guests.NewWeaviateIndex(s.Weaviate, embedder)
		if err != nil {
			return nil, err
		}
		created, err := idx.EnsureSchema(ctx)
		if err != nil {
			return nil, err
		}
		// an existing class is assumed to hold the dataset already
		if created {
			if err := idx.Add(ctx, gs); err != nil {
				return nil, err
			}
		}
		return idx, nil
	case "keyword", "":
		return guests.NewKeywordIndex(gs), nil
	default:
		return nil, errors.Errorf("unknown guest retriever %q", s.Retriever)
	}
}

// NewSearchManager registers DuckDuckGo and, when configured, SearXNG.
func NewSearchManager(s config.SearchSettings) *websearch.Manager {
	m := websearch.NewManager(s.Provider, websearch.NewDuckDuckGo())
	if s.SearXNGURL != "" {
		m.Register(websearch.NewSearXNG(s.SearXNGURL))
	}
	m.SetLanguage(s.Language)
	return m
}
