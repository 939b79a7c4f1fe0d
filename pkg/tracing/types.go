// Package tracing records one Trace per agent run and the feedback scores
// users attach to them.
package tracing

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var ErrTraceNotFound = errors.New("trace not found")

// Trace is the record of one agent run. ID is the run's correlation id.
type Trace struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`

	Input  string `json:"input"`
	Output string `json:"output"`
	// Success is false when the run returned an error.
	Success bool `json:"success"`
	// Complete is false when the run stopped without a final answer.
	Complete   bool   `json:"complete"`
	StopReason string `json:"stop_reason,omitempty"`
	Error      string `json:"error,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Latency   time.Duration `json:"latency"`

	TurnsAppended int `json:"turns_appended"`
	GatewayCalls  int `json:"gateway_calls"`
	ToolCalls     int `json:"tool_calls"`
	ToolErrors    int `json:"tool_errors"`
	InputTokens   int `json:"input_tokens"`
	OutputTokens  int `json:"output_tokens"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Score is a piece of feedback on a trace, e.g. a user rating.
type Score struct {
	ID        string    `json:"id"`
	TraceID   string    `json:"trace_id"`
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ListOptions struct {
	// Limit caps the number of traces, newest first. Zero means 10.
	Limit     int
	SessionID string
}

const DefaultListLimit = 10

type Store interface {
	CreateTrace(ctx context.Context, t *Trace) error
	GetTrace(ctx context.Context, id string) (*Trace, error)
	ListTraces(ctx context.Context, opts ListOptions) ([]*Trace, error)
	// AddScore fails with ErrTraceNotFound for an unknown trace.
	AddScore(ctx context.Context, s *Score) error
	ListScores(ctx context.Context, traceID string) ([]*Score, error)
	Close() error
}
