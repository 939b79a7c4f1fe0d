// Package hubstats looks up model popularity on the Hugging Face Hub.
package hubstats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/alfred/pkg/inference/tools"
)

const DefaultHubURL = "https://huggingface.co"

const (
	ToolName        = "get_hub_stats"
	ToolDescription = "Fetches the most downloaded model from a specific author on the Hugging Face Hub."
)

type Model struct {
	ID        string `json:"id"`
	Downloads int64  `json:"downloads"`
	Likes     int64  `json:"likes"`
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultHubURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// TopModels lists the author's models by download count, most downloaded first.
func (c *Client) TopModels(ctx context.Context, author string, n int) ([]Model, error) {
	if n <= 0 {
		n = 1
	}
	q := url.Values{
		"author":    {author},
		"sort":      {"downloads"},
		"direction": {"-1"},
		"limit":     {fmt.Sprint(n)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/models?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("hub returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var models []Model
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return nil, errors.Wrap(err, "decode models")
	}
	return models, nil
}

// MostDownloaded renders the answer sentence for author. Lookup failures are
// reported in the sentence rather than as an error.
func (c *Client) MostDownloaded(ctx context.Context, author string) string {
	models, err := c.TopModels(ctx, author, 1)
	if err != nil {
		log.Warn().Err(err).Str("author", author).Msg("hubstats: lookup failed")
		return fmt.Sprintf("Error fetching models for %s: %v", author, err)
	}
	if len(models) == 0 {
		return fmt.Sprintf("No models found for author %s.", author)
	}
	m := models[0]
	return fmt.Sprintf("The most downloaded model by %s is %s with %s downloads.", author, m.ID, humanize.Comma(m.Downloads))
}

type toolInput struct {
	Author string `json:"author" jsonschema:"description=The Hugging Face user or organization name."`
}

func NewTool(c *Client) (tools.ToolDescriptor, error) {
	return tools.NewTool(ToolName, ToolDescription, func(ctx context.Context, in toolInput) (string, error) {
		return c.MostDownloaded(ctx, in.Author), nil
	})
}
