package openai

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/alfred/pkg/inference/engine"
	"github.com/go-go-golems/alfred/pkg/inference/tools"
	"github.com/go-go-golems/alfred/pkg/turns"
)

const providerName = "openai"

// Gateway calls the chat completions API once per step.
type Gateway struct {
	client   *go_openai.Client
	settings Settings
}

var _ engine.Gateway = (*Gateway)(nil)

func NewGateway(s Settings) (*Gateway, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Gateway{client: MakeClient(s), settings: s}, nil
}

func (g *Gateway) Next(ctx context.Context, window turns.Conversation, descs []tools.ToolDescriptor) (engine.Response, error) {
	req, err := MakeCompletionRequest(g.settings, window, descs)
	if err != nil {
		return engine.Response{}, &engine.GatewayError{Provider: providerName, Cause: err}
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, *req)
	if err != nil {
		return engine.Response{}, wrapError(err)
	}
	log.Debug().
		Str("model", resp.Model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Dur("duration", time.Since(start)).
		Msg("openai: chat completion")

	if len(resp.Choices) == 0 {
		return engine.Response{}, &engine.GatewayError{Provider: providerName, Cause: errors.New("response has no choices")}
	}
	return NormalizeMessage(resp.Choices[0].Message), nil
}

func wrapError(err error) *engine.GatewayError {
	ge := &engine.GatewayError{Provider: providerName, Cause: err}
	var apiErr *go_openai.APIError
	var reqErr *go_openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		ge.StatusCode = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		ge.StatusCode = reqErr.HTTPStatusCode
	}
	return ge
}
