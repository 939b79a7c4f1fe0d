package engine

import (
	"context"
	"fmt"

	"github.com/go-go-golems/alfred/pkg/inference/tools"
	"github.com/go-go-golems/alfred/pkg/turns"
)

// Gateway is the boundary to a language model. Given the recent turns and the
// tools on offer, it returns either a final answer or one tool request.
// Implementations keep no state between calls.
type Gateway interface {
	Next(ctx context.Context, window turns.Conversation, tools []tools.ToolDescriptor) (Response, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, window turns.Conversation, tools []tools.ToolDescriptor) (Response, error)

func (f GatewayFunc) Next(ctx context.Context, window turns.Conversation, ts []tools.ToolDescriptor) (Response, error) {
	return f(ctx, window, ts)
}

// Response is the normalized model output: exactly one of final text or a tool request.
type Response struct {
	text        string
	toolRequest *turns.ToolRequest
}

// FinalText builds a final-answer response.
func FinalText(text string) Response {
	return Response{text: text}
}

// ToolCall builds a tool-request response. text is any content the model sent
// alongside the request.
func ToolCall(req turns.ToolRequest, text string) Response {
	return Response{text: text, toolRequest: &req}
}

func (r Response) IsToolRequest() bool {
	return r.toolRequest != nil
}

func (r Response) Text() string {
	return r.text
}

// ToolRequest returns the requested call; ok is false for final answers.
func (r Response) ToolRequest() (turns.ToolRequest, bool) {
	if r.toolRequest == nil {
		return turns.ToolRequest{}, false
	}
	return *r.toolRequest, true
}

func (r Response) String() string {
	if r.toolRequest != nil {
		return fmt.Sprintf("tool_request(%s)", r.toolRequest.Name)
	}
	return fmt.Sprintf("final_text(%d chars)", len(r.text))
}

// GatewayError reports that the model could not be reached or returned an
// unusable response.
type GatewayError struct {
	Provider   string
	StatusCode int
	Cause      error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s: status %d: %v", e.Provider, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("gateway %s: %v", e.Provider, e.Cause)
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// AsGatewayError wraps err unless it already is a *GatewayError.
func AsGatewayError(provider string, err error) *GatewayError {
	if err == nil {
		return nil
	}
	if ge, ok := err.(*GatewayError); ok {
		return ge
	}
	return &GatewayError{Provider: provider, Cause: err}
}
