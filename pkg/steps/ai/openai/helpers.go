package openai

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/alfred/pkg/inference/tools"
	"github.com/go-go-golems/alfred/pkg/turns"
)

// MakeClient builds a go-openai client for the configured endpoint.
func MakeClient(s Settings) *go_openai.Client {
	config := go_openai.DefaultConfig(s.APIKey)
	if s.BaseURL != "" {
		config.BaseURL = s.BaseURL
	}
	return go_openai.NewClientWithConfig(config)
}

// MakeCompletionRequest converts the turn window and the available tools into
// a chat completion request.
func MakeCompletionRequest(s Settings, window turns.Conversation, descs []tools.ToolDescriptor) (*go_openai.ChatCompletionRequest, error) {
	msgs, err := messagesFromTurns(s.SystemPrompt, window)
	if err != nil {
		return nil, err
	}

	req := &go_openai.ChatCompletionRequest{
		Model:     s.Model,
		Messages:  msgs,
		MaxTokens: s.MaxTokens,
	}
	if s.Temperature != nil {
		req.Temperature = *s.Temperature
	}

	for _, d := range descs {
		var params any = map[string]any{"type": "object", "properties": map[string]any{}}
		if d.Parameters != nil {
			params = d.Parameters
		}
		req.Tools = append(req.Tools, go_openai.Tool{
			Type: go_openai.ToolTypeFunction,
			Function: &go_openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = "auto"
	}

	return req, nil
}

// messagesFromTurns maps turns onto chat messages. Every tool result turn is
// emitted as an assistant tool call immediately followed by its tool message,
// so a window that starts mid-exchange is still a valid request.
func messagesFromTurns(systemPrompt string, window turns.Conversation) ([]go_openai.ChatCompletionMessage, error) {
	msgs := make([]go_openai.ChatCompletionMessage, 0, len(window)+1)
	if systemPrompt != "" {
		msgs = append(msgs, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	for _, t := range window {
		switch t.Kind {
		case turns.KindHuman:
			msgs = append(msgs, go_openai.ChatCompletionMessage{
				Role:    go_openai.ChatMessageRoleUser,
				Content: t.Text,
			})

		case turns.KindAssistant:
			// A pending request is rendered together with its result below.
			if t.Text == "" {
				continue
			}
			msgs = append(msgs, go_openai.ChatCompletionMessage{
				Role:    go_openai.ChatMessageRoleAssistant,
				Content: t.Text,
			})

		case turns.KindToolResult:
			if t.ToolRequest == nil {
				msgs = append(msgs, go_openai.ChatCompletionMessage{
					Role:    go_openai.ChatMessageRoleAssistant,
					Content: t.Text,
				})
				continue
			}
			callID := t.ToolRequest.ID
			if callID == "" {
				callID = "call_" + t.ID
			}
			args, err := EncodeArguments(t.ToolRequest.Arguments)
			if err != nil {
				return nil, errors.Wrapf(err, "encode arguments of %s", t.ToolRequest.Name)
			}
			msgs = append(msgs,
				go_openai.ChatCompletionMessage{
					Role:    go_openai.ChatMessageRoleAssistant,
					Content: t.ToolRequest.Content,
					ToolCalls: []go_openai.ToolCall{{
						ID:   callID,
						Type: go_openai.ToolTypeFunction,
						Function: go_openai.FunctionCall{
							Name:      t.ToolRequest.Name,
							Arguments: args,
						},
					}},
				},
				go_openai.ChatCompletionMessage{
					Role:       go_openai.ChatMessageRoleTool,
					Content:    t.Text,
					ToolCallID: callID,
				},
			)

		default:
			log.Warn().Str("kind", string(t.Kind)).Msg("openai: skipping turn of unknown kind")
		}
	}
	return msgs, nil
}

// EncodeArguments renders request arguments as the JSON object string the
// API expects. Positional values are wrapped under the convenience key.
func EncodeArguments(args any) (string, error) {
	switch v := args.(type) {
	case nil:
		return "{}", nil
	case map[string]any:
		b, err := json.Marshal(v)
		return string(b), err
	default:
		in := tools.NormalizeArguments(v)
		b, err := json.Marshal(map[string]any{tools.ConvenienceKey: in.Positional})
		return string(b), err
	}
}
