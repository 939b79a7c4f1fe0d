package toolloop

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/alfred/pkg/events"
	"github.com/go-go-golems/alfred/pkg/inference/engine"
	"github.com/go-go-golems/alfred/pkg/inference/tools"
	"github.com/go-go-golems/alfred/pkg/turns"
)

// Loop alternates between the model gateway and local tool execution until
// the model answers or the step budget runs out.
type Loop struct {
	gateway  engine.Gateway
	registry *tools.Registry
	invoker  *tools.Invoker
	loopCfg  LoopConfig
	sinks    []events.EventSink
}

type Option func(*Loop)

func New(opts ...Option) *Loop {
	l := &Loop{
		loopCfg: DefaultLoopConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.invoker == nil {
		l.invoker = tools.NewInvoker(tools.DefaultToolConfig())
	}
	return l
}

func WithGateway(g engine.Gateway) Option {
	return func(l *Loop) { l.gateway = g }
}

func WithRegistry(reg *tools.Registry) Option {
	return func(l *Loop) { l.registry = reg }
}

func WithInvoker(inv *tools.Invoker) Option {
	return func(l *Loop) { l.invoker = inv }
}

func WithLoopConfig(cfg LoopConfig) Option {
	return func(l *Loop) { l.loopCfg = cfg }
}

// WithEventSinks adds sinks that receive every event of every run, on top of
// the sinks found in the run's context.
func WithEventSinks(sinks ...events.EventSink) Option {
	return func(l *Loop) { l.sinks = append(l.sinks, sinks...) }
}

// Run executes up to maxSteps gateway calls on conv, which must end with a
// human or tool result turn. It returns conv extended with the new turns; conv
// itself is left untouched.
//
// Tool failures and unknown tools become error tool results and the loop
// continues. Running out of steps is not an error: the returned conversation
// is then not complete. Gateway failures stop the run with a *GatewayError.
// Cancellation is checked before each step and returns ctx.Err(). In both
// error cases the turns appended so far are returned alongside the error.
func (l *Loop) Run(ctx context.Context, conv turns.Conversation, maxSteps int) (turns.Conversation, error) {
	if l == nil {
		return nil, errors.New("tool loop is nil")
	}
	if l.gateway == nil {
		return nil, errors.New("tool loop gateway is nil")
	}
	if maxSteps < 1 {
		return nil, errors.Errorf("max steps must be at least 1, got %d", maxSteps)
	}
	if err := conv.ValidateForRun(); err != nil {
		return nil, errors.Wrap(err, "invalid conversation")
	}

	ctx = events.WithEventSinks(ctx, l.sinks...)

	windowSize := l.loopCfg.WindowSize
	if windowSize <= 0 {
		windowSize = turns.DefaultWindowSize
	}

	descs := l.registry.List()
	out := conv.Clone()
	initial := len(out)

	for step := 1; step <= maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			l.finish(ctx, events.StopReasonCancelled, step-1, len(out)-initial, err)
			return out, err
		}

		window := out.Window(windowSize)
		events.PublishEventToContext(ctx, events.NewGatewayCallStartEvent(events.NewMetadata(ctx, step), len(window), len(descs)))
		log.Debug().Int("step", step).Int("window", len(window)).Msg("toolloop: gateway step")

		start := time.Now()
		resp, err := l.gateway.Next(ctx, window, descs)
		if err != nil {
			events.PublishEventToContext(ctx, events.NewGatewayCallEndEvent(events.NewMetadata(ctx, step), time.Since(start), "", err))
			if ctxErr := ctx.Err(); ctxErr != nil {
				l.finish(ctx, events.StopReasonCancelled, step, len(out)-initial, ctxErr)
				return out, ctxErr
			}
			gerr := engine.AsGatewayError("model", err)
			log.Error().Err(gerr).Int("step", step).Msg("toolloop: gateway call failed")
			l.finish(ctx, events.StopReasonGatewayError, step, len(out)-initial, gerr)
			return out, gerr
		}

		req, isToolRequest := resp.ToolRequest()
		if isToolRequest && req.Content == "" {
			req.Content = resp.Text()
		}
		events.PublishEventToContext(ctx, events.NewGatewayCallEndEvent(events.NewMetadata(ctx, step), time.Since(start), req.Name, nil))

		if !isToolRequest {
			out = append(out, turns.NewAssistantTurn(resp.Text()))
			l.finish(ctx, events.StopReasonFinalAnswer, step, len(out)-initial, nil)
			return out, nil
		}

		events.PublishEventToContext(ctx, events.NewToolDispatchEvent(events.NewMetadata(ctx, step), req.Name, req.ID, req.Arguments))
		res := l.invoker.Execute(ctx, req, l.registry)
		events.PublishEventToContext(ctx, events.NewToolResultEvent(events.NewMetadata(ctx, step), req.Name, !res.OK(), res.Text(), res.Duration))

		out = append(out, res.Turn(req))
	}

	log.Warn().Int("max_steps", maxSteps).Msg("toolloop: step budget exhausted")
	l.finish(ctx, events.StopReasonStepBudgetExhausted, maxSteps, len(out)-initial, nil)
	return out, nil
}

func (l *Loop) finish(ctx context.Context, reason events.StopReason, steps, appended int, err error) {
	log.Debug().Str("reason", string(reason)).Int("steps", steps).Int("turns_appended", appended).Msg("toolloop: run finished")
	events.PublishEventToContext(ctx, events.NewRunFinishedEvent(events.NewMetadata(ctx, steps), reason, steps, appended, err))
}
