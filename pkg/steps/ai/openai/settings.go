package openai

import (
	"os"

	"github.com/pkg/errors"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// DefaultSystemPrompt sets the persona of the agent.
const DefaultSystemPrompt = `You are Alfred, a helpful butler hosting an extravagant gala.
Answer questions about the guests and help the host prepare conversations.
Use guest_info_retriever for anything about invited guests, web_search for recent
information about people or topics that are not in the guest list, and
get_hub_stats for questions about models published on the Hugging Face Hub.
Call at most one tool at a time and answer directly once you have what you need.`

// Settings configures the OpenAI chat completions gateway.
type Settings struct {
	APIKey       string   `mapstructure:"api-key" yaml:"api-key,omitempty"`
	BaseURL      string   `mapstructure:"base-url" yaml:"base-url,omitempty"`
	Model        string   `mapstructure:"model" yaml:"model"`
	Temperature  *float32 `mapstructure:"temperature" yaml:"temperature,omitempty"`
	MaxTokens    int      `mapstructure:"max-tokens" yaml:"max-tokens,omitempty"`
	SystemPrompt string   `mapstructure:"system-prompt" yaml:"system-prompt,omitempty"`
}

func NewSettings() Settings {
	return Settings{
		BaseURL:      DefaultBaseURL,
		Model:        "gpt-4o-mini",
		SystemPrompt: DefaultSystemPrompt,
	}
}

// Validate fills in the API key from OPENAI_API_KEY when unset.
func (s *Settings) Validate() error {
	if s.APIKey == "" {
		s.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if s.APIKey == "" {
		return errors.New("no OpenAI API key configured")
	}
	if s.Model == "" {
		return errors.New("no OpenAI model configured")
	}
	if s.BaseURL == "" {
		s.BaseURL = DefaultBaseURL
	}
	return nil
}
