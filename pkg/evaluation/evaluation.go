// Package evaluation runs a fixed set of queries through the agent and
// summarizes how the runs went.
package evaluation

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/alfred/pkg/session"
	"github.com/go-go-golems/alfred/pkg/tracing"
)

const EvaluationUser = "evaluation-user"

type TestCase struct {
	Input          string `yaml:"input" json:"input"`
	ExpectedOutput string `yaml:"expected_output,omitempty" json:"expected_output,omitempty"`
}

// DefaultCases exercise guest lookup, web search and their combination.
func DefaultCases() []TestCase {
	return []TestCase{
		{Input: "Tell me about Dr. Nikola Tesla", ExpectedOutput: "Should provide information about Tesla from guest database"},
		{Input: "What are the latest developments in wireless energy?", ExpectedOutput: "Should search web for current wireless energy news"},
		{Input: "Help me prepare for a conversation with Dr. Tesla about tech trends", ExpectedOutput: "Should combine guest info with current tech news"},
		{Input: "Who is Marie Curie and what should I know about her?"},
		{Input: "What are the current trends in renewable energy?"},
	}
}

// LoadCases reads a YAML list of test cases.
func LoadCases(path string) ([]TestCase, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read test cases")
	}
	var cases []TestCase
	if err := yaml.Unmarshal(b, &cases); err != nil {
		return nil, errors.Wrapf(err, "parse test cases %s", path)
	}
	for i, c := range cases {
		if c.Input == "" {
			return nil, errors.Errorf("test case %d in %s has no input", i+1, path)
		}
	}
	return cases, nil
}

type Result struct {
	Case          int           `json:"case"`
	Input         string        `json:"input"`
	Response      string        `json:"response"`
	TraceID       string        `json:"trace_id"`
	SessionID     string        `json:"session_id"`
	Success       bool          `json:"success"`
	Complete      bool          `json:"complete"`
	TotalTurns    int           `json:"total_turns"`
	ExecutionTime time.Duration `json:"execution_time"`
	Error         string        `json:"error,omitempty"`
}

type Summary struct {
	TotalTests           int           `json:"total_tests"`
	SuccessfulRuns       int           `json:"successful_runs"`
	SuccessRate          float64       `json:"success_rate"`
	AverageExecutionTime time.Duration `json:"average_execution_time"`
	TotalExecutionTime   time.Duration `json:"total_execution_time"`
	Results              []Result      `json:"results"`
}

// Print writes the summary the way the evaluate command shows it.
func (s *Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "Evaluation complete!\n")
	fmt.Fprintf(w, "  Total tests: %d\n", s.TotalTests)
	fmt.Fprintf(w, "  Success rate: %.1f%%\n", s.SuccessRate*100)
	fmt.Fprintf(w, "  Average time: %.2fs\n", s.AverageExecutionTime.Seconds())
	fmt.Fprintf(w, "  Total time: %.2fs\n", s.TotalExecutionTime.Seconds())
}

// Evaluator runs each test case in a fresh session.
type Evaluator struct {
	runner      session.Runner
	middlewares []session.Middleware
	parallelism int
	maxSteps    int
}

type Option func(*Evaluator)

// WithMiddlewares wraps every run, typically with the tracer.
func WithMiddlewares(mws ...session.Middleware) Option {
	return func(e *Evaluator) { e.middlewares = append(e.middlewares, mws...) }
}

// WithParallelism sets how many cases run at once. Defaults to 1.
func WithParallelism(n int) Option {
	return func(e *Evaluator) { e.parallelism = n }
}

func WithMaxSteps(n int) Option {
	return func(e *Evaluator) { e.maxSteps = n }
}

func New(r session.Runner, opts ...Option) *Evaluator {
	e := &Evaluator{runner: r, parallelism: 1}
	for _, opt := range opts {
		opt(e)
	}
	if e.parallelism < 1 {
		e.parallelism = 1
	}
	return e
}

// Run evaluates cases. A failing case is recorded in the summary and does
// not stop the others.
func (e *Evaluator) Run(ctx context.Context, cases []TestCase) (*Summary, error) {
	if e.runner == nil {
		return nil, session.ErrRunnerNil
	}
	results := make([]Result, len(cases))
	var done atomic.Int32

	g := errgroup.Group{}
	g.SetLimit(e.parallelism)
	for i, c := range cases {
		i, c := i, c
		g.Go(func() error {
			results[i] = e.runCase(ctx, i+1, c)
			log.Info().
				Int("case", i+1).
				Int("done", int(done.Add(1))).
				Int("total", len(cases)).
				Bool("success", results[i].Success).
				Dur("elapsed", results[i].ExecutionTime).
				Msg("evaluation: case finished")
			return nil
		})
	}
	_ = g.Wait()

	return summarize(results), nil
}

func (e *Evaluator) runCase(ctx context.Context, n int, c TestCase) Result {
	opts := []session.Option{
		session.WithID("eval-session-" + uuid.NewString()),
		session.WithUserID(EvaluationUser),
		session.WithMiddlewares(e.middlewares...),
	}
	if e.maxSteps > 0 {
		opts = append(opts, session.WithMaxSteps(e.maxSteps))
	}
	s := session.NewSession(e.runner, opts...)
	res := Result{Case: n, Input: c.Input, SessionID: s.ID}

	log.Debug().Int("case", n).Str("input", truncate(c.Input, 50)).Msg("evaluation: running case")
	ctx = tracing.WithTraceMetadata(ctx, map[string]string{
		"test_case":  strconv.Itoa(n),
		"query_type": "evaluation",
	})

	start := time.Now()
	h, err := s.Start(ctx, c.Input)
	if err != nil {
		res.Error = err.Error()
		res.Response = "Error: " + err.Error()
		return res
	}
	res.TraceID = h.RunID
	out, err := h.Wait()
	res.ExecutionTime = time.Since(start)
	res.TotalTurns = len(out)

	if err != nil {
		res.Error = err.Error()
		res.Response = "Error: " + err.Error()
		return res
	}
	res.Success = true
	res.Response, res.Complete = out.FinalAnswer()
	if !res.Complete {
		if last, ok := out.Last(); ok {
			res.Response = last.Text
		}
	}
	return res
}

func summarize(results []Result) *Summary {
	s := &Summary{TotalTests: len(results), Results: results}
	for _, r := range results {
		s.TotalExecutionTime += r.ExecutionTime
		if r.Success {
			s.SuccessfulRuns++
		}
	}
	if len(results) > 0 {
		s.SuccessRate = float64(s.SuccessfulRuns) / float64(len(results))
		s.AverageExecutionTime = s.TotalExecutionTime / time.Duration(len(results))
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
