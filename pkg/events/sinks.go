package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// LoggingSink writes every event to a zerolog logger.
type LoggingSink struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func NewLoggingSink(logger zerolog.Logger, level zerolog.Level) *LoggingSink {
	return &LoggingSink{logger: logger, level: level}
}

func (s *LoggingSink) PublishEvent(event Event) error {
	e := s.logger.WithLevel(s.level).
		Str("event_type", string(event.Type())).
		Object("meta", event.Metadata())

	switch ev := event.(type) {
	case *EventGatewayCallStart:
		e = e.Int("window_size", ev.WindowSize).Int("tool_count", ev.ToolCount)
	case *EventGatewayCallEnd:
		e = e.Dur("duration", ev.Duration).Str("tool_name", ev.ToolName)
		if ev.Error != "" {
			e = e.Str("error", ev.Error)
		}
	case *EventToolDispatch:
		e = e.Str("tool_name", ev.ToolName).Interface("arguments", ev.Arguments)
	case *EventToolResult:
		e = e.Str("tool_name", ev.ToolName).Bool("is_error", ev.IsError).Dur("duration", ev.Duration)
	case *EventRunFinished:
		e = e.Str("reason", string(ev.Reason)).Int("steps", ev.Steps).Int("turns_appended", ev.TurnsAppended)
		if ev.Error != "" {
			e = e.Str("error", ev.Error)
		}
	}
	e.Msg("agent event")
	return nil
}

// Collector keeps every event in memory. Used by the tracer and in tests.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) PublishEvent(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Count returns how many events of type t were collected.
func (c *Collector) Count(t EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Type() == t {
			n++
		}
	}
	return n
}

// RunFinished returns the last run-finished event, if any.
func (c *Collector) RunFinished() (*EventRunFinished, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if ev, ok := c.events[i].(*EventRunFinished); ok {
			return ev, true
		}
	}
	return nil, false
}

var (
	_ EventSink = (*LoggingSink)(nil)
	_ EventSink = (*Collector)(nil)
)
