// Package metrics turns agent events into Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-go-golems/alfred/pkg/events"
)

const namespace = "alfred"

type Metrics struct {
	registry *prometheus.Registry

	gatewayCalls    *prometheus.CounterVec
	gatewayDuration prometheus.Histogram
	toolCalls       *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	runs            *prometheus.CounterVec
	runSteps        prometheus.Histogram
}

var _ events.EventSink = (*Metrics)(nil)

// New creates the metrics on their own registry, together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_calls_total",
			Help:      "Model gateway calls by outcome.",
		}, []string{"outcome"}),
		gatewayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_call_duration_seconds",
			Help:      "Duration of model gateway calls.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and error flag.",
		}, []string{"tool_name", "is_error"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool executions.",
		}, []string{"tool_name"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished agent runs by stop reason.",
		}, []string{"reason"}),
		runSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_steps",
			Help:      "Loop steps taken per run.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
	}
	m.registry.MustRegister(
		m.gatewayCalls, m.gatewayDuration,
		m.toolCalls, m.toolDuration,
		m.runs, m.runSteps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) PublishEvent(event events.Event) error {
	switch ev := event.(type) {
	case *events.EventGatewayCallEnd:
		outcome := "ok"
		if ev.Error != "" {
			outcome = "error"
		}
		m.gatewayCalls.WithLabelValues(outcome).Inc()
		m.gatewayDuration.Observe(ev.Duration.Seconds())
	case *events.EventToolResult:
		m.toolCalls.WithLabelValues(ev.ToolName, strconv.FormatBool(ev.IsError)).Inc()
		m.toolDuration.WithLabelValues(ev.ToolName).Observe(ev.Duration.Seconds())
	case *events.EventRunFinished:
		m.runs.WithLabelValues(string(ev.Reason)).Inc()
		m.runSteps.Observe(float64(ev.Steps))
	}
	return nil
}

// HandleEvent has the shape of an events.EventRouter handler.
func (m *Metrics) HandleEvent(_ context.Context, ev events.Event) error {
	return m.PublishEvent(ev)
}
