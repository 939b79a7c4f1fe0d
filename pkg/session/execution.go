package session

import (
	"context"
	"errors"
	"sync"

	"github.com/go-go-golems/alfred/pkg/turns"
)

var ErrExecutionHandleNil = errors.New("execution handle is nil")

// ExecutionHandle tracks one in-flight run started with Session.Start.
type ExecutionHandle struct {
	SessionID string
	// RunID correlates the run's events and trace.
	RunID string

	inputLen int
	done     chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	out    turns.Conversation
	err    error
}

func newExecutionHandle(sessionID, runID string, inputLen int, cancel context.CancelFunc) *ExecutionHandle {
	return &ExecutionHandle{
		SessionID: sessionID,
		RunID:     runID,
		inputLen:  inputLen,
		done:      make(chan struct{}),
		cancel:    cancel,
	}
}

func (h *ExecutionHandle) setResult(out turns.Conversation, err error) {
	h.mu.Lock()
	h.out = out
	h.err = err
	h.cancel = nil
	h.mu.Unlock()
	close(h.done)
}

// Cancel is safe to call multiple times and after completion.
func (h *ExecutionHandle) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the run is over and returns the full history.
func (h *ExecutionHandle) Wait() (turns.Conversation, error) {
	if h == nil {
		return nil, ErrExecutionHandleNil
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.out, h.err
}

// NewTurns returns the turns appended by the run, including the human turn
// that started it. Only meaningful after Wait returned.
func (h *ExecutionHandle) NewTurns() turns.Conversation {
	h.mu.Lock()
	defer h.mu.Unlock()
	start := h.inputLen - 1
	if start < 0 || start > len(h.out) {
		return nil
	}
	return h.out[start:].Clone()
}

func (h *ExecutionHandle) Done() <-chan struct{} {
	return h.done
}

func (h *ExecutionHandle) IsRunning() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
