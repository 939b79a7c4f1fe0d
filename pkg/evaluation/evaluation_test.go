package evaluation

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/alfred/pkg/tracing"
	"github.com/go-go-golems/alfred/pkg/turns"
)

type runnerFunc func(ctx context.Context, conv turns.Conversation, maxSteps int) (turns.Conversation, error)

func (f runnerFunc) Run(ctx context.Context, conv turns.Conversation, maxSteps int) (turns.Conversation, error) {
	return f(ctx, conv, maxSteps)
}

var echo = runnerFunc(func(_ context.Context, conv turns.Conversation, _ int) (turns.Conversation, error) {
	q := conv.LastHumanText()
	if strings.Contains(q, "renewable") {
		return conv, errors.New("gateway down")
	}
	return conv.Append(turns.NewAssistantTurn("answer: " + q)), nil
})

func TestRunDefaultCases(t *testing.T) {
	var running, maxRunning atomic.Int32
	slow := runnerFunc(func(ctx context.Context, conv turns.Conversation, maxSteps int) (turns.Conversation, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return echo(ctx, conv, maxSteps)
	})

	sum, err := New(slow, WithParallelism(2)).Run(context.Background(), DefaultCases())
	require.NoError(t, err)

	assert.Equal(t, 5, sum.TotalTests)
	assert.Equal(t, 4, sum.SuccessfulRuns)
	assert.InDelta(t, 0.8, sum.SuccessRate, 1e-9)
	assert.LessOrEqual(t, maxRunning.Load(), int32(2))
	require.Len(t, sum.Results, 5)

	first := sum.Results[0]
	assert.Equal(t, 1, first.Case)
	assert.Equal(t, "answer: Tell me about Dr. Nikola Tesla", first.Response)
	assert.True(t, first.Complete)
	assert.Equal(t, 2, first.TotalTurns)
	assert.NotEmpty(t, first.TraceID)
	assert.True(t, strings.HasPrefix(first.SessionID, "eval-session-"))

	failed := sum.Results[4]
	assert.False(t, failed.Success)
	assert.Equal(t, "gateway down", failed.Error)
	assert.Equal(t, "Error: gateway down", failed.Response)

	var total time.Duration
	for _, r := range sum.Results {
		total += r.ExecutionTime
	}
	assert.Equal(t, total, sum.TotalExecutionTime)
	assert.Equal(t, total/5, sum.AverageExecutionTime)

	var buf bytes.Buffer
	sum.Print(&buf)
	assert.Contains(t, buf.String(), "Total tests: 5")
	assert.Contains(t, buf.String(), "Success rate: 80.0%")
}

func TestRunEmpty(t *testing.T) {
	sum, err := New(echo).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.TotalTests)
	assert.Equal(t, 0.0, sum.SuccessRate)

	_, err = New(nil).Run(context.Background(), DefaultCases())
	assert.Error(t, err)
}

func TestIncompleteRunUsesLastTurn(t *testing.T) {
	stuck := runnerFunc(func(_ context.Context, conv turns.Conversation, _ int) (turns.Conversation, error) {
		req := turns.ToolRequest{Name: "web_search", Arguments: "x"}
		return conv.Append(turns.NewToolRequestTurn("", req), turns.NewToolResultTurn(req, "partial", false)), nil
	})
	sum, err := New(stuck, WithMaxSteps(1)).Run(context.Background(), []TestCase{{Input: "q"}})
	require.NoError(t, err)
	r := sum.Results[0]
	assert.True(t, r.Success)
	assert.False(t, r.Complete)
	assert.Equal(t, "partial", r.Response)
}

func TestRunIsTraced(t *testing.T) {
	store, err := tracing.NewSQLiteStore(filepath.Join(t.TempDir(), "traces.db"))
	require.NoError(t, err)
	defer store.Close()
	tracer := tracing.NewTracer(store)

	ctx := context.Background()
	sum, err := New(echo, WithMiddlewares(tracer.Middleware())).Run(ctx, DefaultCases()[:2])
	require.NoError(t, err)

	for _, r := range sum.Results {
		tr, err := store.GetTrace(ctx, r.TraceID)
		require.NoError(t, err)
		assert.Equal(t, EvaluationUser, tr.UserID)
		assert.Equal(t, r.SessionID, tr.SessionID)
		assert.Equal(t, r.Input, tr.Input)
		assert.Equal(t, "evaluation", tr.Metadata["query_type"])
	}
	tr, err := store.GetTrace(ctx, sum.Results[1].TraceID)
	require.NoError(t, err)
	assert.Equal(t, "2", tr.Metadata["test_case"])
}

func TestLoadCases(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cases.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- input: Tell me about Ada
  expected_output: Should mention mathematics
- input: Weather in Paris?
`), 0o644))

	cases, err := LoadCases(path)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "Should mention mathematics", cases[0].ExpectedOutput)
	assert.Equal(t, "Weather in Paris?", cases[1].Input)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("- expected_output: nothing\n"), 0o644))
	_, err = LoadCases(bad)
	assert.Error(t, err)

	_, err = LoadCases(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
