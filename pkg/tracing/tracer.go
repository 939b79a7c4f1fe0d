package tracing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/alfred/pkg/events"
	"github.com/go-go-golems/alfred/pkg/session"
	"github.com/go-go-golems/alfred/pkg/turns"
)

// UserRating is the score name used for thumbs up / down feedback.
const UserRating = "user-rating"

type ctxKey struct{}

// WithTraceMetadata adds metadata to the trace of runs started with ctx.
func WithTraceMetadata(ctx context.Context, md map[string]string) context.Context {
	merged := map[string]string{}
	for k, v := range metadataFromContext(ctx) {
		merged[k] = v
	}
	for k, v := range md {
		merged[k] = v
	}
	return context.WithValue(ctx, ctxKey{}, merged)
}

func metadataFromContext(ctx context.Context) map[string]string {
	md, _ := ctx.Value(ctxKey{}).(map[string]string)
	return md
}

// Tracer wraps agent runs and stores a Trace for each of them.
type Tracer struct {
	store    Store
	counter  *TokenCounter
	metadata map[string]string
}

type Option func(*Tracer)

func WithTokenCounter(c *TokenCounter) Option {
	return func(t *Tracer) { t.counter = c }
}

// WithMetadata adds a key to the metadata of every trace.
func WithMetadata(key, value string) Option {
	return func(t *Tracer) { t.metadata[key] = value }
}

func NewTracer(store Store, opts ...Option) *Tracer {
	t := &Tracer{store: store, metadata: map[string]string{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracer) Store() Store {
	return t.store
}

// Middleware traces every run going through a session. The run's id becomes
// the trace id. Failing to store a trace is logged and never fails the run.
func (t *Tracer) Middleware() session.Middleware {
	return func(next session.RunFunc) session.RunFunc {
		return func(ctx context.Context, messages turns.Conversation, maxSteps int) (turns.Conversation, error) {
			info, _ := events.RunInfoFromContext(ctx)
			if info.RunID == "" {
				info.RunID = uuid.NewString()
				ctx = events.WithRunInfo(ctx, info)
			}
			collector := events.NewCollector()
			ctx = events.WithEventSinks(ctx, collector)

			start := time.Now()
			out, err := next(ctx, messages, maxSteps)

			tr := t.build(info, messages, out, err, collector)
			tr.StartedAt = start
			tr.Latency = time.Since(start)
			for k, v := range metadataFromContext(ctx) {
				tr.Metadata[k] = v
			}
			tr.Metadata["max_steps"] = strconv.Itoa(maxSteps)

			if serr := t.store.CreateTrace(context.WithoutCancel(ctx), tr); serr != nil {
				log.Error().Err(serr).Str("trace_id", tr.ID).Msg("tracing: could not store trace")
			} else {
				log.Debug().Str("trace_id", tr.ID).Dur("latency", tr.Latency).Bool("success", tr.Success).Msg("tracing: stored trace")
			}
			return out, err
		}
	}
}

func (t *Tracer) build(info events.RunInfo, in, out turns.Conversation, err error, c *events.Collector) *Trace {
	tr := &Trace{
		ID:           info.RunID,
		SessionID:    info.SessionID,
		UserID:       info.UserID,
		Input:        in.LastHumanText(),
		Success:      err == nil,
		GatewayCalls: c.Count(events.EventTypeGatewayCallEnd),
		Metadata:     make(map[string]string, len(t.metadata)+1),
	}
	for k, v := range t.metadata {
		tr.Metadata[k] = v
	}
	if err != nil {
		tr.Error = err.Error()
	}
	if len(out) > len(in) {
		tr.TurnsAppended = len(out) - len(in)
	}
	tr.Output, tr.Complete = out.FinalAnswer()

	for _, ev := range c.Events() {
		if res, ok := ev.(*events.EventToolResult); ok {
			tr.ToolCalls++
			if res.IsError {
				tr.ToolErrors++
			}
		}
	}
	if fin, ok := c.RunFinished(); ok {
		tr.StopReason = string(fin.Reason)
	}

	tr.InputTokens = t.counter.Count(tr.Input)
	tr.OutputTokens = t.counter.Count(tr.Output)
	return tr
}

// Feedback records a 1 to 5 user rating on a trace.
func (t *Tracer) Feedback(ctx context.Context, traceID string, rating int) (*Score, error) {
	if rating < 1 || rating > 5 {
		return nil, errors.Errorf("rating must be between 1 and 5, got %d", rating)
	}
	sc := &Score{
		TraceID: traceID,
		Name:    UserRating,
		Value:   float64(rating),
		Comment: fmt.Sprintf("User rating: %d/5", rating),
	}
	if err := t.store.AddScore(ctx, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// Recent lists the latest traces, newest first.
func (t *Tracer) Recent(ctx context.Context, limit int) ([]*Trace, error) {
	return t.store.ListTraces(ctx, ListOptions{Limit: limit})
}
