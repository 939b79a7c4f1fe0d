// Package config holds the application settings and loads them through viper.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/go-go-golems/alfred/pkg/guests"
	"github.com/go-go-golems/alfred/pkg/inference/toolloop"
	"github.com/go-go-golems/alfred/pkg/logging"
	"github.com/go-go-golems/alfred/pkg/steps/ai/openai"
	"github.com/go-go-golems/alfred/pkg/turns"
)

const EnvPrefix = "alfred"

type AgentSettings struct {
	MaxSteps          int           `mapstructure:"max-steps" yaml:"max-steps"`
	WindowSize        int           `mapstructure:"window-size" yaml:"window-size"`
	ToolTimeout       time.Duration `mapstructure:"tool-timeout" yaml:"tool-timeout"`
	AllowedTools      []string      `mapstructure:"allowed-tools" yaml:"allowed-tools,omitempty"`
	ValidateArguments bool          `mapstructure:"validate-arguments" yaml:"validate-arguments"`
}

type EmbeddingsSettings struct {
	// Provider is "hashing" (offline) or "openai".
	Provider   string `mapstructure:"provider" yaml:"provider"`
	Model      string `mapstructure:"model" yaml:"model"`
	Dimensions int    `mapstructure:"dimensions" yaml:"dimensions"`
	CacheSize  int    `mapstructure:"cache-size" yaml:"cache-size"`
}

type GuestsSettings struct {
	// Source is a local file or "hf:<dataset>".
	Source string `mapstructure:"source" yaml:"source"`
	// Retriever is "keyword", "vector" or "weaviate".
	Retriever         string                `mapstructure:"retriever" yaml:"retriever"`
	TopK              int                   `mapstructure:"top-k" yaml:"top-k"`
	DatasetsServerURL string                `mapstructure:"datasets-server-url" yaml:"datasets-server-url"`
	HubToken          string                `mapstructure:"hub-token" yaml:"hub-token,omitempty"`
	Weaviate          guests.WeaviateConfig `mapstructure:"weaviate" yaml:"weaviate"`
}

type SearchSettings struct {
	// Provider is "duckduckgo" or "searxng".
	Provider   string `mapstructure:"provider" yaml:"provider"`
	SearXNGURL string `mapstructure:"searxng-url" yaml:"searxng-url,omitempty"`
	Language   string `mapstructure:"language" yaml:"language,omitempty"`
}

type HubSettings struct {
	URL   string `mapstructure:"url" yaml:"url"`
	Token string `mapstructure:"token" yaml:"token,omitempty"`
}

type TracingSettings struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// DB is the SQLite database path.
	DB string `mapstructure:"db" yaml:"db"`
	// Encoding is the tiktoken encoding used to count trace tokens.
	Encoding string `mapstructure:"encoding" yaml:"encoding"`
}

type SessionSettings struct {
	// Store is "memory" or "redis".
	Store         string        `mapstructure:"store" yaml:"store"`
	RedisAddr     string        `mapstructure:"redis-addr" yaml:"redis-addr"`
	RedisPassword string        `mapstructure:"redis-password" yaml:"redis-password,omitempty"`
	RedisDB       int           `mapstructure:"redis-db" yaml:"redis-db"`
	KeyPrefix     string        `mapstructure:"key-prefix" yaml:"key-prefix"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type ServerSettings struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type Settings struct {
	OpenAI     openai.Settings    `mapstructure:"openai" yaml:"openai"`
	Agent      AgentSettings      `mapstructure:"agent" yaml:"agent"`
	Embeddings EmbeddingsSettings `mapstructure:"embeddings" yaml:"embeddings"`
	Guests     GuestsSettings     `mapstructure:"guests" yaml:"guests"`
	Search     SearchSettings     `mapstructure:"search" yaml:"search"`
	Hub        HubSettings        `mapstructure:"hub" yaml:"hub"`
	Tracing    TracingSettings    `mapstructure:"tracing" yaml:"tracing"`
	Sessions   SessionSettings    `mapstructure:"sessions" yaml:"sessions"`
	Server     ServerSettings     `mapstructure:"server" yaml:"server"`
	Log        logging.Config     `mapstructure:"log" yaml:"log"`
}

func Defaults() *Settings {
	return &Settings{
		OpenAI: openai.NewSettings(),
		Agent: AgentSettings{
			MaxSteps:          toolloop.DefaultMaxSteps,
			WindowSize:        turns.DefaultWindowSize,
			ToolTimeout:       30 * time.Second,
			ValidateArguments: true,
		},
		Embeddings: EmbeddingsSettings{
			Provider:   "hashing",
			Model:      "text-embedding-3-small",
			Dimensions: 512,
			CacheSize:  1000,
		},
		Guests: GuestsSettings{
			Source:            guests.HubSourcePrefix + guests.DefaultDataset,
			Retriever:         "keyword",
			TopK:              guests.DefaultTopK,
			DatasetsServerURL: guests.DefaultDatasetsServerURL,
			Weaviate: guests.WeaviateConfig{
				Host:   "localhost:8080",
				Scheme: "http",
				Class:  guests.DefaultWeaviateClass,
			},
		},
		Search: SearchSettings{Provider: "duckduckgo"},
		Hub:    HubSettings{URL: "https://huggingface.co"},
		Tracing: TracingSettings{
			Enabled:  true,
			DB:       defaultTraceDB(),
			Encoding: "cl100k_base",
		},
		Sessions: SessionSettings{
			Store:     "memory",
			RedisAddr: "localhost:6379",
			KeyPrefix: "alfred:session:",
			TTL:       24 * time.Hour,
		},
		Server: ServerSettings{Addr: ":8080"},
		Log:    logging.DefaultConfig(),
	}
}

func defaultTraceDB() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "alfred-traces.db"
	}
	return filepath.Join(dir, "alfred", "traces.db")
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// SetDefaults registers every settings key with v so that environment
// variables are picked up for keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	for key, value := range map[string]interface{}{
		"openai.api-key":             d.OpenAI.APIKey,
		"openai.base-url":            d.OpenAI.BaseURL,
		"openai.model":               d.OpenAI.Model,
		"openai.max-tokens":          d.OpenAI.MaxTokens,
		"openai.system-prompt":       d.OpenAI.SystemPrompt,
		"agent.max-steps":            d.Agent.MaxSteps,
		"agent.window-size":          d.Agent.WindowSize,
		"agent.tool-timeout":         d.Agent.ToolTimeout,
		"agent.allowed-tools":        d.Agent.AllowedTools,
		"agent.validate-arguments":   d.Agent.ValidateArguments,
		"embeddings.provider":        d.Embeddings.Provider,
		"embeddings.model":           d.Embeddings.Model,
		"embeddings.dimensions":      d.Embeddings.Dimensions,
		"embeddings.cache-size":      d.Embeddings.CacheSize,
		"guests.source":              d.Guests.Source,
		"guests.retriever":           d.Guests.Retriever,
		"guests.top-k":               d.Guests.TopK,
		"guests.datasets-server-url": d.Guests.DatasetsServerURL,
		"guests.hub-token":           d.Guests.HubToken,
		"guests.weaviate.host":       d.Guests.Weaviate.Host,
		"guests.weaviate.scheme":     d.Guests.Weaviate.Scheme,
		"guests.weaviate.class":      d.Guests.Weaviate.Class,
		"search.provider":            d.Search.Provider,
		"search.searxng-url":         d.Search.SearXNGURL,
		"search.language":            d.Search.Language,
		"hub.url":                    d.Hub.URL,
		"hub.token":                  d.Hub.Token,
		"tracing.enabled":            d.Tracing.Enabled,
		"tracing.db":                 d.Tracing.DB,
		"tracing.encoding":           d.Tracing.Encoding,
		"sessions.store":             d.Sessions.Store,
		"sessions.redis-addr":        d.Sessions.RedisAddr,
		"sessions.redis-password":    d.Sessions.RedisPassword,
		"sessions.redis-db":          d.Sessions.RedisDB,
		"sessions.key-prefix":        d.Sessions.KeyPrefix,
		"sessions.ttl":               d.Sessions.TTL,
		"server.addr":                d.Server.Addr,
		"log.level":                  d.Log.Level,
		"log.format":                 d.Log.Format,
		"log.file":                   d.Log.File,
		"log.with-caller":            d.Log.WithCaller,
		"log.verbose":                d.Log.Verbose,
	} {
		v.SetDefault(key, value)
	}
}

// NewViper returns a viper instance reading ALFRED_* environment variables,
// e.g. ALFRED_OPENAI_MODEL for openai.model.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// ReadConfigFile loads configPath, or searches the usual locations for
// config.yaml / alfred.yaml when it is empty. A missing file is not an error.
func ReadConfigFile(v *viper.Viper, configPath string) error {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("alfred")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.alfred")
		if xdg, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(xdg, "alfred"))
		}
	}

	err := v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read config file")
	}
	return nil
}

// Load decodes v into a copy of the defaults.
func Load(v *viper.Viper) (*Settings, error) {
	s := Defaults()
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "decode settings")
	}
	if s.OpenAI.APIKey == "" {
		s.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if s.Guests.HubToken == "" {
		s.Guests.HubToken = os.Getenv("HF_TOKEN")
	}
	if s.Hub.Token == "" {
		s.Hub.Token = os.Getenv("HF_TOKEN")
	}
	return s, s.Validate()
}

// Validate checks choices that would otherwise fail late.
func (s *Settings) Validate() error {
	if s.Agent.MaxSteps < 1 {
		return errors.Errorf("agent.max-steps must be at least 1, got %d", s.Agent.MaxSteps)
	}
	switch s.Embeddings.Provider {
	case "hashing", "openai":
	default:
		return errors.Errorf("unknown embeddings provider %q", s.Embeddings.Provider)
	}
	switch s.Guests.Retriever {
	case "keyword", "vector", "weaviate":
	default:
		return errors.Errorf("unknown guest retriever %q", s.Guests.Retriever)
	}
	switch s.Search.Provider {
	case "duckduckgo":
	case "searxng":
		if s.Search.SearXNGURL == "" {
			return errors.New("search.searxng-url is required for the searxng provider")
		}
	default:
		return errors.Errorf("unknown search provider %q", s.Search.Provider)
	}
	switch s.Sessions.Store {
	case "memory", "redis":
	default:
		return errors.Errorf("unknown session store %q", s.Sessions.Store)
	}
	return s.validateEndpoints()
}
