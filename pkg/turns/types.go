package turns

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies who produced a Turn.
type Kind string

const (
	KindHuman      Kind = "human"
	KindAssistant  Kind = "assistant"
	KindToolResult Kind = "tool_result"
)

// DefaultWindowSize is the number of trailing turns handed to the model on each step.
const DefaultWindowSize = 50

// ToolRequest is a model's request to invoke a named tool.
//
// Arguments is either a positional value (usually a string) or a keyed mapping
// (map[string]any). Normalization happens at dispatch time, not here.
type ToolRequest struct {
	ID        string `yaml:"id,omitempty" json:"id,omitempty"`
	Name      string `yaml:"name" json:"name"`
	Arguments any    `yaml:"arguments,omitempty" json:"arguments,omitempty"`
	// Content is text the model sent together with the request.
	Content string `yaml:"content,omitempty" json:"content,omitempty"`
}

// Turn is one element of a Conversation. Turns are values: once appended to a
// conversation they are never changed.
type Turn struct {
	ID   string `yaml:"id,omitempty" json:"id,omitempty"`
	Kind Kind   `yaml:"kind" json:"kind"`
	Text string `yaml:"text,omitempty" json:"text,omitempty"`

	// ToolRequest is set on assistant turns that ask for a tool, and on tool
	// result turns to record the request they answer.
	ToolRequest *ToolRequest `yaml:"tool_request,omitempty" json:"tool_request,omitempty"`

	ToolName string `yaml:"tool_name,omitempty" json:"tool_name,omitempty"`
	IsError  bool   `yaml:"is_error,omitempty" json:"is_error,omitempty"`

	CreatedAt time.Time `yaml:"created_at,omitempty" json:"created_at,omitempty"`
}

func newTurn(kind Kind, text string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Kind:      kind,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

func NewHumanTurn(text string) Turn {
	return newTurn(KindHuman, text)
}

func NewAssistantTurn(text string) Turn {
	return newTurn(KindAssistant, text)
}

// NewToolRequestTurn creates an assistant turn carrying a tool request.
func NewToolRequestTurn(text string, req ToolRequest) Turn {
	t := newTurn(KindAssistant, text)
	t.ToolRequest = &req
	return t
}

// NewToolResultTurn creates the turn answering req. The request is kept so
// providers that need the call/result pairing can rebuild it.
func NewToolResultTurn(req ToolRequest, text string, isError bool) Turn {
	t := newTurn(KindToolResult, text)
	t.ToolName = req.Name
	t.IsError = isError
	t.ToolRequest = &req
	return t
}

// IsFinalAnswer reports whether the turn is an assistant answer without a pending tool request.
func (t Turn) IsFinalAnswer() bool {
	return t.Kind == KindAssistant && t.ToolRequest == nil
}

// HasToolRequest reports whether the turn is an assistant turn asking for a tool.
func (t Turn) HasToolRequest() bool {
	return t.Kind == KindAssistant && t.ToolRequest != nil
}
