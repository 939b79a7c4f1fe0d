package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/alfred/pkg/inference/engine"
	"github.com/go-go-golems/alfred/pkg/inference/tools"
	"github.com/go-go-golems/alfred/pkg/turns"
)

type searchInput struct {
	Query string `json:"query"`
}

func testTools(t *testing.T) []tools.ToolDescriptor {
	t.Helper()
	d, err := tools.NewTool("web_search", "Searches the web.", func(_ context.Context, in searchInput) (string, error) {
		return in.Query, nil
	})
	require.NoError(t, err)
	return []tools.ToolDescriptor{d}
}

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s := NewSettings()
	s.APIKey = "test-key"
	s.BaseURL = srv.URL + "/v1"
	g, err := NewGateway(s)
	require.NoError(t, err)
	return g
}

func completion(msg map[string]any) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []any{map[string]any{"index": 0, "message": msg, "finish_reason": "stop"}},
		"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestGatewayToolCall(t *testing.T) {
	var got go_openai.ChatCompletionRequest
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, completion(map[string]any{
			"role":    "assistant",
			"content": "",
			"tool_calls": []any{map[string]any{
				"id":       "call_1",
				"type":     "function",
				"function": map[string]any{"name": "web_search", "arguments": `{"query":"wireless energy"}`},
			}},
		}))
	})

	resp, err := g.Next(context.Background(), turns.Conversation{turns.NewHumanTurn("latest in wireless energy?")}, testTools(t))
	require.NoError(t, err)

	req, ok := resp.ToolRequest()
	require.True(t, ok)
	assert.Equal(t, "call_1", req.ID)
	assert.Equal(t, "web_search", req.Name)
	assert.Equal(t, map[string]any{"query": "wireless energy"}, req.Arguments)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, go_openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Equal(t, go_openai.ChatMessageRoleUser, got.Messages[1].Role)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "web_search", got.Tools[0].Function.Name)
}

func TestGatewayFinalText(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, completion(map[string]any{"role": "assistant", "content": "Good evening, sir."}))
	})

	resp, err := g.Next(context.Background(), turns.Conversation{turns.NewHumanTurn("hello")}, nil)
	require.NoError(t, err)
	assert.False(t, resp.IsToolRequest())
	assert.Equal(t, "Good evening, sir.", resp.Text())
}

func TestGatewayHTTPErrorIsGatewayError(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	})

	_, err := g.Next(context.Background(), turns.Conversation{turns.NewHumanTurn("hello")}, nil)
	require.Error(t, err)
	var ge *engine.GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "openai", ge.Provider)
	assert.Equal(t, http.StatusServiceUnavailable, ge.StatusCode)
}

func TestGatewayNoChoices(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"id": "x", "object": "chat.completion", "choices": []any{}})
	})

	_, err := g.Next(context.Background(), turns.Conversation{turns.NewHumanTurn("hello")}, nil)
	var ge *engine.GatewayError
	require.True(t, errors.As(err, &ge))
}

func TestNewGatewayRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewGateway(NewSettings())
	require.Error(t, err)

	t.Setenv("OPENAI_API_KEY", "from-env")
	g, err := NewGateway(NewSettings())
	require.NoError(t, err)
	assert.Equal(t, "from-env", g.settings.APIKey)
}

func TestNormalizeMessageShapes(t *testing.T) {
	tests := []struct {
		name     string
		msg      go_openai.ChatCompletionMessage
		wantTool string
		wantArgs any
		wantText string
	}{
		{
			name: "tool_calls",
			msg: go_openai.ChatCompletionMessage{ToolCalls: []go_openai.ToolCall{
				{ID: "a", Type: go_openai.ToolTypeFunction, Function: go_openai.FunctionCall{Name: "get_hub_stats", Arguments: `{"author":"facebook"}`}},
				{ID: "b", Type: go_openai.ToolTypeFunction, Function: go_openai.FunctionCall{Name: "web_search", Arguments: `{}`}},
			}},
			wantTool: "get_hub_stats",
			wantArgs: map[string]any{"author": "facebook"},
		},
		{
			name:     "legacy function_call",
			msg:      go_openai.ChatCompletionMessage{FunctionCall: &go_openai.FunctionCall{Name: "web_search", Arguments: `"nikola tesla"`}},
			wantTool: "web_search",
			wantArgs: "nikola tesla",
		},
		{
			name:     "json content with arguments",
			msg:      go_openai.ChatCompletionMessage{Content: `{"name": "guest_info_retriever", "arguments": {"__arg1": "Tesla"}}`},
			wantTool: "guest_info_retriever",
			wantArgs: map[string]any{"__arg1": "Tesla"},
		},
		{
			name:     "json content with input",
			msg:      go_openai.ChatCompletionMessage{Content: `{"name": "web_search", "input": "tesla coil"}`},
			wantTool: "web_search",
			wantArgs: "tesla coil",
		},
		{
			name:     "plain text",
			msg:      go_openai.ChatCompletionMessage{Content: "Dr. Tesla is an inventor."},
			wantText: "Dr. Tesla is an inventor.",
		},
		{
			name:     "json without name is text",
			msg:      go_openai.ChatCompletionMessage{Content: `{"answer": 42}`},
			wantText: `{"answer": 42}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := NormalizeMessage(tt.msg)
			if tt.wantTool == "" {
				assert.False(t, resp.IsToolRequest())
				assert.Equal(t, tt.wantText, resp.Text())
				return
			}
			req, ok := resp.ToolRequest()
			require.True(t, ok)
			assert.Equal(t, tt.wantTool, req.Name)
			assert.Equal(t, tt.wantArgs, req.Arguments)
		})
	}
}

func TestParseArguments(t *testing.T) {
	assert.Equal(t, map[string]any{}, ParseArguments(""))
	assert.Equal(t, map[string]any{"q": "x"}, ParseArguments(`{"q":"x"}`))
	assert.Equal(t, "x", ParseArguments(`"x"`))
	assert.Equal(t, "not json", ParseArguments("not json"))
	assert.Equal(t, "42", ParseArguments("42"))
}

func TestMessagesPairToolResults(t *testing.T) {
	req := turns.ToolRequest{ID: "call_9", Name: "web_search", Arguments: "tesla"}
	window := turns.Conversation{
		turns.NewToolResultTurn(req, "Title: t", false),
		turns.NewToolResultTurn(turns.ToolRequest{Name: "get_hub_stats", Arguments: map[string]any{"author": "x"}}, "No models found for author x.", false),
	}

	msgs, err := messagesFromTurns("", window)
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	assert.Equal(t, go_openai.ChatMessageRoleAssistant, msgs[0].Role)
	require.Len(t, msgs[0].ToolCalls, 1)
	assert.Equal(t, "call_9", msgs[0].ToolCalls[0].ID)
	assert.JSONEq(t, `{"__arg1":"tesla"}`, msgs[0].ToolCalls[0].Function.Arguments)
	assert.Equal(t, go_openai.ChatMessageRoleTool, msgs[1].Role)
	assert.Equal(t, "call_9", msgs[1].ToolCallID)

	assert.Equal(t, "call_"+window[1].ID, msgs[2].ToolCalls[0].ID)
	assert.JSONEq(t, `{"author":"x"}`, msgs[2].ToolCalls[0].Function.Arguments)
	assert.Equal(t, msgs[2].ToolCalls[0].ID, msgs[3].ToolCallID)
}

func TestMessagesReplayToolRequestContent(t *testing.T) {
	req := turns.ToolRequest{ID: "call_1", Name: "web_search", Arguments: "gala", Content: "Searching now."}
	msgs, err := messagesFromTurns("", turns.Conversation{turns.NewToolResultTurn(req, "Title: t", false)})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Searching now.", msgs[0].Content)
	require.Len(t, msgs[0].ToolCalls, 1)
	assert.Equal(t, "Title: t", msgs[1].Content)
}

func TestMessagesLegacyToolResultIsAssistantText(t *testing.T) {
	msgs, err := messagesFromTurns("sys", turns.Conversation{
		turns.NewHumanTurn("q"),
		{Kind: turns.KindToolResult, Text: "Error executing tool web_search: boom", IsError: true},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, go_openai.ChatMessageRoleAssistant, msgs[2].Role)
	assert.Empty(t, msgs[2].ToolCalls)
}
