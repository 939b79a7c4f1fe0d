package openai

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/alfred/pkg/inference/engine"
	"github.com/go-go-golems/alfred/pkg/turns"
)

// NormalizeMessage turns an assistant message into the gateway union. Tool
// requests are recognized in three shapes, in order: the tool_calls attribute,
// the legacy function_call attribute, and a JSON object content carrying
// "name" and "arguments" (or "input").
func NormalizeMessage(msg go_openai.ChatCompletionMessage) engine.Response {
	if len(msg.ToolCalls) > 0 {
		if len(msg.ToolCalls) > 1 {
			log.Warn().Int("tool_calls", len(msg.ToolCalls)).Msg("openai: model requested several tools, dispatching the first")
		}
		tc := msg.ToolCalls[0]
		return engine.ToolCall(turns.ToolRequest{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: ParseArguments(tc.Function.Arguments),
		}, msg.Content)
	}

	if msg.FunctionCall != nil && msg.FunctionCall.Name != "" {
		return engine.ToolCall(turns.ToolRequest{
			Name:      msg.FunctionCall.Name,
			Arguments: ParseArguments(msg.FunctionCall.Arguments),
		}, msg.Content)
	}

	if req, ok := contentToolRequest(msg.Content); ok {
		return engine.ToolCall(req, "")
	}

	return engine.FinalText(msg.Content)
}

// ParseArguments decodes a JSON argument string. Objects become mappings,
// everything else is kept as a positional string.
func ParseArguments(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return raw
	}
	switch a := v.(type) {
	case map[string]any:
		return a
	case string:
		return a
	default:
		return trimmed
	}
}

func contentToolRequest(content string) (turns.ToolRequest, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return turns.ToolRequest{}, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return turns.ToolRequest{}, false
	}
	name, ok := obj["name"].(string)
	if !ok || name == "" {
		return turns.ToolRequest{}, false
	}

	raw, ok := obj["arguments"]
	if !ok {
		raw, ok = obj["input"]
	}
	var args any = map[string]any{}
	if ok {
		switch a := raw.(type) {
		case string:
			args = ParseArguments(a)
		case nil:
		default:
			args = a
		}
	}
	return turns.ToolRequest{Name: name, Arguments: args}, true
}
