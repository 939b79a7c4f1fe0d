package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventTypeGatewayCallStart EventType = "gateway-call-start"
	EventTypeGatewayCallEnd   EventType = "gateway-call-end"

	// Tool execution happens locally, after the gateway asked for it
	EventTypeToolDispatch EventType = "tool-dispatch"
	EventTypeToolResult   EventType = "tool-result"

	EventTypeRunFinished EventType = "run-finished"
)

// StopReason says why a run ended.
type StopReason string

const (
	StopReasonFinalAnswer         StopReason = "final_answer"
	StopReasonStepBudgetExhausted StopReason = "step_budget_exhausted"
	StopReasonGatewayError        StopReason = "gateway_error"
	StopReasonCancelled           StopReason = "cancelled"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
}

// EventMetadata identifies where an event comes from.
type EventMetadata struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Step      int       `json:"step"`
	Time      time.Time `json:"time"`
}

func (m EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", m.ID.String())
	if m.SessionID != "" {
		e.Str("session_id", m.SessionID)
	}
	if m.RunID != "" {
		e.Str("run_id", m.RunID)
	}
	e.Int("step", m.Step)
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta"`
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

var _ Event = &EventImpl{}

type EventGatewayCallStart struct {
	EventImpl
	WindowSize int `json:"window_size"`
	ToolCount  int `json:"tool_count"`
}

func NewGatewayCallStartEvent(metadata EventMetadata, windowSize, toolCount int) *EventGatewayCallStart {
	return &EventGatewayCallStart{
		EventImpl:  EventImpl{Type_: EventTypeGatewayCallStart, Metadata_: metadata},
		WindowSize: windowSize,
		ToolCount:  toolCount,
	}
}

type EventGatewayCallEnd struct {
	EventImpl
	Duration time.Duration `json:"duration"`
	// ToolName is set when the model asked for a tool
	ToolName string `json:"tool_name,omitempty"`
	Error    string `json:"error,omitempty"`
}

func NewGatewayCallEndEvent(metadata EventMetadata, d time.Duration, toolName string, err error) *EventGatewayCallEnd {
	ev := &EventGatewayCallEnd{
		EventImpl: EventImpl{Type_: EventTypeGatewayCallEnd, Metadata_: metadata},
		Duration:  d,
		ToolName:  toolName,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

type EventToolDispatch struct {
	EventImpl
	ToolName   string `json:"tool_name"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	Arguments  any    `json:"arguments,omitempty"`
}

func NewToolDispatchEvent(metadata EventMetadata, toolName, callID string, args any) *EventToolDispatch {
	return &EventToolDispatch{
		EventImpl:  EventImpl{Type_: EventTypeToolDispatch, Metadata_: metadata},
		ToolName:   toolName,
		ToolCallID: callID,
		Arguments:  args,
	}
}

type EventToolResult struct {
	EventImpl
	ToolName string        `json:"tool_name"`
	IsError  bool          `json:"is_error"`
	Result   string        `json:"result"`
	Duration time.Duration `json:"duration"`
}

func NewToolResultEvent(metadata EventMetadata, toolName string, isError bool, result string, d time.Duration) *EventToolResult {
	return &EventToolResult{
		EventImpl: EventImpl{Type_: EventTypeToolResult, Metadata_: metadata},
		ToolName:  toolName,
		IsError:   isError,
		Result:    result,
		Duration:  d,
	}
}

type EventRunFinished struct {
	EventImpl
	Reason        StopReason `json:"reason"`
	Steps         int        `json:"steps"`
	TurnsAppended int        `json:"turns_appended"`
	Error         string     `json:"error,omitempty"`
}

func NewRunFinishedEvent(metadata EventMetadata, reason StopReason, steps, appended int, err error) *EventRunFinished {
	ev := &EventRunFinished{
		EventImpl:     EventImpl{Type_: EventTypeRunFinished, Metadata_: metadata},
		Reason:        reason,
		Steps:         steps,
		TurnsAppended: appended,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

var (
	_ Event = &EventGatewayCallStart{}
	_ Event = &EventGatewayCallEnd{}
	_ Event = &EventToolDispatch{}
	_ Event = &EventToolResult{}
	_ Event = &EventRunFinished{}
)

// NewEventFromJson decodes an event serialized by one of the sinks.
func NewEventFromJson(b []byte) (Event, error) {
	var hdr struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(b, &hdr); err != nil {
		return nil, err
	}

	var ev Event
	switch hdr.Type {
	case EventTypeGatewayCallStart:
		ev = &EventGatewayCallStart{}
	case EventTypeGatewayCallEnd:
		ev = &EventGatewayCallEnd{}
	case EventTypeToolDispatch:
		ev = &EventToolDispatch{}
	case EventTypeToolResult:
		ev = &EventToolResult{}
	case EventTypeRunFinished:
		ev = &EventRunFinished{}
	default:
		return nil, errors.Errorf("unknown event type: %q", hdr.Type)
	}
	if err := json.Unmarshal(b, ev); err != nil {
		return nil, err
	}
	return ev, nil
}
