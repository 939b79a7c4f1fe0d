package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/alfred/pkg/events"
	"github.com/go-go-golems/alfred/pkg/inference/engine"
	"github.com/go-go-golems/alfred/pkg/inference/toolloop"
	"github.com/go-go-golems/alfred/pkg/inference/tools"
	"github.com/go-go-golems/alfred/pkg/turns"
)

// runnerFunc adapts a function to Runner.
type runnerFunc func(ctx context.Context, conv turns.Conversation, maxSteps int) (turns.Conversation, error)

func (f runnerFunc) Run(ctx context.Context, conv turns.Conversation, maxSteps int) (turns.Conversation, error) {
	return f(ctx, conv, maxSteps)
}

func echoLoop(t *testing.T) *toolloop.Loop {
	t.Helper()
	g := engine.GatewayFunc(func(_ context.Context, window turns.Conversation, _ []tools.ToolDescriptor) (engine.Response, error) {
		return engine.FinalText("You said: " + window.LastHumanText()), nil
	})
	return toolloop.New(toolloop.WithGateway(g))
}

func TestRunAgentWithToolsDefaultsMaxSteps(t *testing.T) {
	var got int
	r := runnerFunc(func(_ context.Context, conv turns.Conversation, maxSteps int) (turns.Conversation, error) {
		got = maxSteps
		return conv, nil
	})
	_, err := RunAgentWithTools(context.Background(), r, turns.Conversation{turns.NewHumanTurn("hi")}, 0)
	require.NoError(t, err)
	assert.Equal(t, toolloop.DefaultMaxSteps, got)

	_, err = RunAgentWithTools(context.Background(), nil, nil, 1)
	assert.ErrorIs(t, err, ErrRunnerNil)
}

func TestRunAgentWithToolsExtendsFullHistory(t *testing.T) {
	var history turns.Conversation
	for i := 0; i < 60; i++ {
		history = history.Append(turns.NewHumanTurn("old"), turns.NewAssistantTurn("ok"))
	}
	history = history.Append(turns.NewHumanTurn("latest"))

	var windowLen int
	g := engine.GatewayFunc(func(_ context.Context, window turns.Conversation, _ []tools.ToolDescriptor) (engine.Response, error) {
		windowLen = len(window)
		return engine.FinalText("done"), nil
	})
	out, err := RunAgentWithTools(context.Background(), toolloop.New(toolloop.WithGateway(g)), history, 3)
	require.NoError(t, err)

	assert.Equal(t, turns.DefaultWindowSize, windowLen)
	require.Len(t, out, len(history)+1)
	assert.Equal(t, history, out[:len(history)])
	answer, ok := out.FinalAnswer()
	assert.True(t, ok)
	assert.Equal(t, "done", answer)
}

func TestSessionAskKeepsHistory(t *testing.T) {
	s := NewSession(echoLoop(t), WithID("s1"))

	out, err := s.Ask(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "You said: hello", out[1].Text)

	out, err = s.Ask(context.Background(), "again")
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, out, s.History())

	s.Reset()
	assert.Empty(t, s.History())

	_, err = s.Ask(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSessionMiddlewareSeesRunInfo(t *testing.T) {
	var info events.RunInfo
	var calls []string
	mw := func(name string) Middleware {
		return func(next RunFunc) RunFunc {
			return func(ctx context.Context, messages turns.Conversation, maxSteps int) (turns.Conversation, error) {
				calls = append(calls, name)
				info, _ = events.RunInfoFromContext(ctx)
				return next(ctx, messages, maxSteps)
			}
		}
	}

	s := NewSession(echoLoop(t), WithID("s2"), WithUserID("u1"), WithMiddlewares(mw("outer"), mw("inner")))
	_, err := s.Ask(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, []string{"outer", "inner"}, calls)
	assert.Equal(t, "s2", info.SessionID)
	assert.Equal(t, "u1", info.UserID)
	assert.NotEmpty(t, info.RunID)
}

func TestSessionStartIsExclusiveAndCancelable(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var steps atomic.Int32
	g := engine.GatewayFunc(func(ctx context.Context, _ turns.Conversation, _ []tools.ToolDescriptor) (engine.Response, error) {
		if steps.Add(1) == 1 {
			close(started)
			<-release
		}
		return engine.ToolCall(turns.ToolRequest{ID: "c1", Name: "missing"}, ""), nil
	})
	s := NewSession(toolloop.New(toolloop.WithGateway(g)), WithID("s3"), WithMaxSteps(5))

	h, err := s.Start(context.Background(), "go")
	require.NoError(t, err)
	<-started
	assert.True(t, s.IsRunning())

	_, err = s.Start(context.Background(), "again")
	assert.ErrorIs(t, err, ErrSessionBusy)

	require.NoError(t, s.CancelActive())
	close(release)

	out, err := h.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	// the step in flight completes, no further step starts
	assert.Equal(t, int32(1), steps.Load())
	require.Len(t, out, 2)
	assert.Equal(t, turns.KindToolResult, out[1].Kind)
	assert.True(t, out[1].IsError)
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.CancelActive(), ErrNoActiveRun)
	assert.Len(t, h.NewTurns(), 2)

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("handle not done")
	}
}

func TestSessionGatewayErrorKeepsHumanTurn(t *testing.T) {
	g := engine.GatewayFunc(func(context.Context, turns.Conversation, []tools.ToolDescriptor) (engine.Response, error) {
		return engine.Response{}, errors.New("503 service unavailable")
	})
	s := NewSession(toolloop.New(toolloop.WithGateway(g)), WithID("s4"))

	out, err := s.Ask(context.Background(), "hello?")
	var gerr *engine.GatewayError
	require.True(t, errors.As(err, &gerr))
	require.Len(t, out, 1)
	assert.Equal(t, "hello?", s.History()[0].Text)
}
