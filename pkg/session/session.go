// Package session is the entry point used by the CLI and HTTP server: it
// keeps a conversation per user session and hands it to the agent loop.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/go-go-golems/alfred/pkg/events"
	"github.com/go-go-golems/alfred/pkg/inference/toolloop"
	"github.com/go-go-golems/alfred/pkg/turns"
)

var (
	ErrSessionNil     = errors.New("session is nil")
	ErrSessionIDEmpty = errors.New("session has empty ID")
	ErrRunnerNil      = errors.New("session runner is nil")
	ErrSessionBusy    = errors.New("session already has an active run")
	ErrNoActiveRun    = errors.New("session has no active run")
	ErrEmptyMessage   = errors.New("message is empty")
)

// Runner runs the agent loop on a conversation. *toolloop.Loop implements it.
type Runner interface {
	Run(ctx context.Context, conv turns.Conversation, maxSteps int) (turns.Conversation, error)
}

var _ Runner = (*toolloop.Loop)(nil)

// RunFunc has the shape of RunAgentWithTools.
type RunFunc func(ctx context.Context, messages turns.Conversation, maxSteps int) (turns.Conversation, error)

// Middleware wraps a RunFunc, e.g. to trace every invocation.
type Middleware func(next RunFunc) RunFunc

// Chain applies mws so that the first one is the outermost.
func Chain(run RunFunc, mws ...Middleware) RunFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			run = mws[i](run)
		}
	}
	return run
}

// RunAgentWithTools takes the full history and returns it extended with the
// turns of one agent run. The loop only ever shows the model the trailing
// window of the history. maxSteps <= 0 selects toolloop.DefaultMaxSteps.
func RunAgentWithTools(ctx context.Context, r Runner, messages turns.Conversation, maxSteps int) (turns.Conversation, error) {
	if r == nil {
		return messages, ErrRunnerNil
	}
	if maxSteps <= 0 {
		maxSteps = toolloop.DefaultMaxSteps
	}
	return r.Run(ctx, messages, maxSteps)
}

// Session is one long-lived conversation. Only one run is active at a time.
type Session struct {
	ID     string
	UserID string

	run      RunFunc
	maxSteps int

	mu      sync.Mutex
	history turns.Conversation
	active  *ExecutionHandle
}

type Option func(*Session)

func WithID(id string) Option {
	return func(s *Session) { s.ID = id }
}

func WithUserID(id string) Option {
	return func(s *Session) { s.UserID = id }
}

func WithHistory(h turns.Conversation) Option {
	return func(s *Session) { s.history = h.Clone() }
}

func WithMaxSteps(n int) Option {
	return func(s *Session) { s.maxSteps = n }
}

func WithMiddlewares(mws ...Middleware) Option {
	return func(s *Session) { s.run = Chain(s.run, mws...) }
}

// NewSession creates a session around r with a generated ID.
func NewSession(r Runner, opts ...Option) *Session {
	s := &Session{
		ID:       uuid.NewString(),
		maxSteps: toolloop.DefaultMaxSteps,
	}
	s.run = func(ctx context.Context, messages turns.Conversation, maxSteps int) (turns.Conversation, error) {
		return RunAgentWithTools(ctx, r, messages, maxSteps)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// RunAgentWithTools runs the agent on messages through the session's
// middlewares. It does not touch the session history. A run id already in
// ctx is kept, otherwise one is generated.
func (s *Session) RunAgentWithTools(ctx context.Context, messages turns.Conversation, maxSteps int) (turns.Conversation, error) {
	if s == nil {
		return messages, ErrSessionNil
	}
	if s.ID == "" {
		return messages, ErrSessionIDEmpty
	}
	if maxSteps <= 0 {
		maxSteps = s.maxSteps
	}
	info, _ := events.RunInfoFromContext(ctx)
	if info.RunID == "" {
		info.RunID = uuid.NewString()
	}
	info.SessionID = s.ID
	info.UserID = s.UserID
	return s.run(events.WithRunInfo(ctx, info), messages, maxSteps)
}

// Ask appends a human turn to the history, runs the agent and records the
// result. On error the turns produced so far are kept.
func (s *Session) Ask(ctx context.Context, text string) (turns.Conversation, error) {
	h, err := s.Start(ctx, text)
	if err != nil {
		return nil, err
	}
	return h.Wait()
}

// Start is the asynchronous form of Ask. The returned handle can cancel the
// run; cancellation takes effect before the next loop step.
func (s *Session) Start(ctx context.Context, text string) (*ExecutionHandle, error) {
	if s == nil {
		return nil, ErrSessionNil
	}
	if text == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.active != nil && s.active.IsRunning() {
		s.mu.Unlock()
		return nil, ErrSessionBusy
	}
	input := s.history.Append(turns.NewHumanTurn(text))
	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(events.WithRunInfo(ctx, events.RunInfo{RunID: runID}))
	h := newExecutionHandle(s.ID, runID, len(input), cancel)
	s.active = h
	s.mu.Unlock()

	go func() {
		defer cancel()
		out, err := s.RunAgentWithTools(runCtx, input, 0)
		if len(out) < len(input) {
			out = input
		}

		s.mu.Lock()
		s.history = out
		s.active = nil
		s.mu.Unlock()

		h.setResult(out, err)
	}()
	return h, nil
}

// CancelActive cancels the current run, if any.
func (s *Session) CancelActive() error {
	if s == nil {
		return ErrSessionNil
	}
	s.mu.Lock()
	h := s.active
	s.mu.Unlock()
	if h == nil || !h.IsRunning() {
		return ErrNoActiveRun
	}
	h.Cancel()
	return nil
}

func (s *Session) IsRunning() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && s.active.IsRunning()
}

// History returns a copy of the conversation so far.
func (s *Session) History() turns.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Clone()
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}
