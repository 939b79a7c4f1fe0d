package websearch

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-go-golems/alfred/pkg/inference/tools"
)

const (
	ToolName         = "web_search"
	ToolDescription  = "Searches the web for the latest information about a person or topic. Use this if the guest is unfamiliar or not found in the local database."
	NoResultsMessage = "No relevant web results found."

	// MaxResults is how many results the tool hands back to the model.
	MaxResults = 3
)

// Searcher is satisfied by Manager and by any single Provider.
type Searcher interface {
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

type toolInput struct {
	Query string `json:"query" jsonschema:"description=The search query."`
}

func NewTool(s Searcher) (tools.ToolDescriptor, error) {
	return tools.NewTool(ToolName, ToolDescription, func(ctx context.Context, in toolInput) (string, error) {
		results, err := s.Search(ctx, in.Query, Options{Count: MaxResults})
		if err != nil {
			return "", err
		}
		return FormatResults(limit(results, MaxResults)), nil
	})
}

func FormatResults(results []Result) string {
	if len(results) == 0 {
		return NoResultsMessage
	}
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("Title: %s\nURL: %s\nSnippet: %s", r.Title, r.URL, r.Snippet)
	}
	return strings.Join(blocks, "\n\n")
}
