package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventSink receives events published during a run.
type EventSink interface {
	PublishEvent(event Event) error
}

// ctxKey is an unexported type for keys defined in this package.
type ctxKey int

const (
	ctxKeyEventSinks ctxKey = iota
	ctxKeyRunInfo
)

// WithEventSinks attaches one or more EventSink instances to the context.
func WithEventSinks(ctx context.Context, sinks ...EventSink) context.Context {
	if len(sinks) == 0 {
		return ctx
	}
	existing := GetEventSinks(ctx)
	combined := append([]EventSink{}, existing...)
	combined = append(combined, sinks...)
	return context.WithValue(ctx, ctxKeyEventSinks, combined)
}

// GetEventSinks returns the list of EventSinks attached to the context.
func GetEventSinks(ctx context.Context) []EventSink {
	if v := ctx.Value(ctxKeyEventSinks); v != nil {
		if sinks, ok := v.([]EventSink); ok {
			return sinks
		}
	}
	return nil
}

// PublishEventToContext publishes the provided event to all EventSinks stored in the context.
func PublishEventToContext(ctx context.Context, event Event) {
	Publish(event, GetEventSinks(ctx)...)
}

// Publish sends event to every sink. Sink errors are logged and dropped so a
// broken consumer never stops a run.
func Publish(event Event, sinks ...EventSink) {
	for _, sink := range sinks {
		if err := sink.PublishEvent(event); err != nil {
			log.Warn().Err(err).Str("event_type", string(event.Type())).Msg("events: sink failed")
		}
	}
}

// RunInfo correlates events of one run.
type RunInfo struct {
	SessionID string
	RunID     string
	UserID    string
}

func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, ctxKeyRunInfo, info)
}

func RunInfoFromContext(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(ctxKeyRunInfo).(RunInfo)
	return info, ok
}

// NewMetadata builds event metadata for step, filling in run correlation from ctx.
func NewMetadata(ctx context.Context, step int) EventMetadata {
	md := EventMetadata{
		ID:   uuid.New(),
		Step: step,
		Time: time.Now(),
	}
	if info, ok := RunInfoFromContext(ctx); ok {
		md.SessionID = info.SessionID
		md.RunID = info.RunID
	}
	return md
}
