package guests

import (
	"context"
	"strings"

	"github.com/go-go-golems/alfred/pkg/inference/tools"
)

const (
	ToolName        = "guest_info_retriever"
	ToolDescription = "Retrieves detailed information about gala guests based on their name or relation."
	NoMatchMessage  = "No matching guest information found."
)

type toolInput struct {
	Query string `json:"query" jsonschema:"description=The name or relation of the guest you want information about."`
}

// NewTool exposes r as the guest_info_retriever tool returning the top k guest documents.
func NewTool(r Retriever, k int) (tools.ToolDescriptor, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	return tools.NewTool(ToolName, ToolDescription, func(ctx context.Context, in toolInput) (string, error) {
		found, err := r.Retrieve(ctx, in.Query, k)
		if err != nil {
			return "", err
		}
		return FormatGuests(found), nil
	})
}

// FormatGuests joins guest documents with blank lines.
func FormatGuests(gs []Guest) string {
	if len(gs) == 0 {
		return NoMatchMessage
	}
	docs := make([]string, len(gs))
	for i, g := range gs {
		docs[i] = g.Document()
	}
	return strings.Join(docs, "\n\n")
}
