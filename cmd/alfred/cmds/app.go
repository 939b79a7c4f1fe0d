package cmds

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/alfred/pkg/agent"
	"github.com/go-go-golems/alfred/pkg/config"
	"github.com/go-go-golems/alfred/pkg/events"
	"github.com/go-go-golems/alfred/pkg/metrics"
	"github.com/go-go-golems/alfred/pkg/session"
	"github.com/go-go-golems/alfred/pkg/tracing"
)

// app holds everything a command needs to talk to the agent.
type app struct {
	settings *config.Settings
	agent    *agent.Agent
	tracer   *tracing.Tracer
	metrics  *metrics.Metrics
	router   *events.EventRouter
	sessions session.Store

	closers []func() error
}

type appOptions struct {
	// withMetrics routes loop events to Prometheus through the event router.
	withMetrics bool
}

func newApp(ctx context.Context, s *config.Settings, opts appOptions) (*app, error) {
	a := &app{settings: s}

	if s.Tracing.Enabled {
		tracer, err := openTracer(s)
		if err != nil {
			return nil, err
		}
		a.tracer = tracer
		a.closers = append(a.closers, tracer.Store().Close)
	}

	var sinks []events.EventSink
	if opts.withMetrics {
		router, err := events.NewEventRouter(events.WithLogger(events.NewWatermillLogger(log.Logger)))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.metrics = metrics.New()
		router.AddHandler("metrics", a.metrics.HandleEvent)
		go func() {
			if err := router.Run(ctx); err != nil {
				log.Error().Err(err).Msg("alfred: event router stopped")
			}
		}()
		<-router.Running()
		a.router = router
		a.closers = append(a.closers, router.Close)
		sinks = append(sinks, router.Sink())
	}

	ag, err := agent.New(ctx, s, agent.Components{Sinks: sinks})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.agent = ag

	store, err := openSessionStore(ctx, s.Sessions)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.sessions = store
	if c, ok := store.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}
	return a, nil
}

func openTracer(s *config.Settings) (*tracing.Tracer, error) {
	if dir := filepath.Dir(s.Tracing.DB); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create trace directory")
		}
	}
	store, err := tracing.NewSQLiteStore(s.Tracing.DB)
	if err != nil {
		return nil, err
	}
	var opts []tracing.Option
	if counter, err := tracing.NewTokenCounter(s.Tracing.Encoding); err != nil {
		log.Warn().Err(err).Msg("alfred: token counting disabled")
	} else {
		opts = append(opts, tracing.WithTokenCounter(counter))
	}
	opts = append(opts, tracing.WithMetadata("model", s.OpenAI.Model))
	return tracing.NewTracer(store, opts...), nil
}

func openSessionStore(ctx context.Context, s config.SessionSettings) (session.Store, error) {
	switch s.Store {
	case "redis":
		store := session.NewRedisStore(s.RedisAddr, s.RedisPassword, s.RedisDB,
			session.WithRedisPrefix(s.KeyPrefix),
			session.WithRedisTTL(s.TTL),
		)
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, errors.Wrapf(err, "connect to redis at %s", s.RedisAddr)
		}
		return store, nil
	default:
		return session.NewMemoryStore(), nil
	}
}

func (a *app) middlewares() []session.Middleware {
	if a.tracer == nil {
		return nil
	}
	return []session.Middleware{a.tracer.Middleware()}
}

func (a *app) manager() *session.Manager {
	return session.NewManager(a.agent.Loop, a.sessions,
		session.WithManagerMiddlewares(a.middlewares()...),
		session.WithManagerMaxSteps(a.settings.Agent.MaxSteps),
	)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("alfred: close failed")
		}
	}
}

// openTraceStore is used by the commands that only read traces.
func openTraceStore(s *config.Settings) (*tracing.Tracer, error) {
	if s.Tracing.DB == "" {
		return nil, errors.New("no trace database configured")
	}
	store, err := tracing.NewSQLiteStore(s.Tracing.DB)
	if err != nil {
		return nil, err
	}
	return tracing.NewTracer(store), nil
}
