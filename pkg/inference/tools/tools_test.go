package tools

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/alfred/pkg/turns"
)

type recordingTool struct {
	calls []Input
	out   string
	err   error
}

func (r *recordingTool) descriptor(name string) ToolDescriptor {
	return ToolDescriptor{
		Name: name,
		Func: func(_ context.Context, in Input) (string, error) {
			r.calls = append(r.calls, in)
			return r.out, r.err
		},
	}
}

type authorInput struct {
	Author string `json:"author" jsonschema:"description=Hub author or organization"`
}

func TestNormalizeArguments(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		keyword bool
		want    Input
	}{
		{name: "convenience key", raw: map[string]any{"__arg1": "Tesla"}, want: Input{Positional: "Tesla"}},
		{name: "convenience key wins over others", raw: map[string]any{"__arg1": "Tesla", "x": 1}, want: Input{Positional: "Tesla"}},
		{name: "keyword mapping", raw: map[string]any{"author": "x"}, keyword: true, want: Input{Keyword: map[string]any{"author": "x"}}},
		{name: "empty mapping", raw: map[string]any{}, keyword: true, want: Input{Keyword: map[string]any{}}},
		{name: "raw string", raw: "nikola tesla", want: Input{Positional: "nikola tesla"}},
		{name: "nil", raw: nil, want: Input{}},
		{name: "number", raw: 42, want: Input{Positional: "42"}},
		{name: "string map", raw: map[string]string{"__arg1": "q"}, want: Input{Positional: "q"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeArguments(tt.raw)
			assert.Equal(t, tt.keyword, got.IsKeyword())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInputString(t *testing.T) {
	s, err := Input{Positional: "p"}.String("query")
	require.NoError(t, err)
	assert.Equal(t, "p", s)

	s, err = Input{Keyword: map[string]any{"query": "k"}}.String("query")
	require.NoError(t, err)
	assert.Equal(t, "k", s)

	_, err = Input{Keyword: map[string]any{}}.String("query")
	require.Error(t, err)

	_, err = Input{Keyword: map[string]any{"query": 3}}.String("query")
	require.Error(t, err)
}

func TestRegistry(t *testing.T) {
	a := (&recordingTool{}).descriptor("web_search")
	b := (&recordingTool{}).descriptor("get_hub_stats")

	reg, err := NewRegistry(a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	_, ok := reg.Resolve("web_search")
	assert.True(t, ok)
	_, ok = reg.Resolve("Web_Search")
	assert.False(t, ok, "lookup is case-sensitive")

	names := []string{}
	for _, d := range reg.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"web_search", "get_hub_stats"}, names)

	_, err = NewRegistry(a, a)
	require.Error(t, err)
	_, err = NewRegistry(ToolDescriptor{Name: "", Func: a.Func})
	require.Error(t, err)
	_, err = NewRegistry(ToolDescriptor{Name: "nofunc"})
	require.Error(t, err)
}

func TestRegistryRestrict(t *testing.T) {
	reg, err := NewRegistry(
		(&recordingTool{}).descriptor("guest_info_retriever"),
		(&recordingTool{}).descriptor("web_search"),
		(&recordingTool{}).descriptor("get_hub_stats"),
	)
	require.NoError(t, err)

	same, err := reg.Restrict(nil)
	require.NoError(t, err)
	assert.Same(t, reg, same)

	restricted, err := reg.Restrict([]string{"guest_*", "get_*"})
	require.NoError(t, err)
	assert.Equal(t, 2, restricted.Len())
	_, ok := restricted.Resolve("web_search")
	assert.False(t, ok)
	assert.Equal(t, 3, reg.Len())
}

func TestInvokerNotFound(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	req := turns.ToolRequest{Name: "nonexistent_tool", Arguments: "x"}
	turn := NewInvoker(DefaultToolConfig()).Invoke(context.Background(), req, reg)

	assert.Equal(t, turns.KindToolResult, turn.Kind)
	assert.True(t, turn.IsError)
	assert.Equal(t, "Tool 'nonexistent_tool' not found.", turn.Text)
	assert.Contains(t, turn.Text, "Tool 'nonexistent_tool' not found")
}

func TestInvokerAllowedTools(t *testing.T) {
	search := &recordingTool{out: "results"}
	hub := &recordingTool{out: "stats"}
	reg, err := NewRegistry(search.descriptor("web_search"), hub.descriptor("get_hub_stats"))
	require.NoError(t, err)

	inv := NewInvoker(DefaultToolConfig().WithAllowedTools([]string{"get_*"}))

	turn := inv.Invoke(context.Background(), turns.ToolRequest{Name: "web_search", Arguments: "q"}, reg)
	assert.True(t, turn.IsError)
	assert.Equal(t, "Tool 'web_search' not found.", turn.Text)
	assert.Empty(t, search.calls)

	turn = inv.Invoke(context.Background(), turns.ToolRequest{Name: "get_hub_stats", Arguments: "facebook"}, reg)
	assert.False(t, turn.IsError)
	assert.Equal(t, "stats", turn.Text)
	assert.Len(t, hub.calls, 1)

	cfg := DefaultToolConfig()
	assert.True(t, cfg.IsToolAllowed("anything"))
	assert.False(t, cfg.WithAllowedTools([]string{"["}).IsToolAllowed("web_search"))
}

func TestInvokerConvenienceKeyIsPositional(t *testing.T) {
	rec := &recordingTool{out: "Name: Nikola Tesla"}
	reg, err := NewRegistry(rec.descriptor("guest_info_retriever"))
	require.NoError(t, err)

	req := turns.ToolRequest{Name: "guest_info_retriever", Arguments: map[string]any{"__arg1": "Tesla"}}
	turn := NewInvoker(DefaultToolConfig()).Invoke(context.Background(), req, reg)

	require.Len(t, rec.calls, 1)
	assert.False(t, rec.calls[0].IsKeyword())
	assert.Equal(t, "Tesla", rec.calls[0].Positional)
	assert.False(t, turn.IsError)
	assert.Equal(t, "Name: Nikola Tesla", turn.Text)
	assert.Equal(t, "guest_info_retriever", turn.ToolName)
}

func TestInvokerKeywordArguments(t *testing.T) {
	rec := &recordingTool{out: "ok"}
	reg, err := NewRegistry(rec.descriptor("get_hub_stats"))
	require.NoError(t, err)

	req := turns.ToolRequest{Name: "get_hub_stats", Arguments: map[string]any{"author": "x"}}
	NewInvoker(DefaultToolConfig()).Invoke(context.Background(), req, reg)

	require.Len(t, rec.calls, 1)
	assert.True(t, rec.calls[0].IsKeyword())
	assert.Equal(t, "x", rec.calls[0].Keyword["author"])
}

func TestInvokerToolFailure(t *testing.T) {
	rec := &recordingTool{err: errors.New("rate limited")}
	reg, err := NewRegistry(rec.descriptor("web_search"))
	require.NoError(t, err)

	inv := NewInvoker(DefaultToolConfig())
	res := inv.Execute(context.Background(), turns.ToolRequest{Name: "web_search", Arguments: "q"}, reg)
	require.False(t, res.OK())
	assert.Equal(t, ErrorExecution, res.Err.Kind)
	assert.Equal(t, "Error executing tool web_search: rate limited", res.Text())

	turn := res.Turn(turns.ToolRequest{Name: "web_search"})
	assert.True(t, turn.IsError)
	assert.Equal(t, "Error executing tool web_search: rate limited", turn.Text)
}

func TestInvokerRecoversPanics(t *testing.T) {
	reg, err := NewRegistry(ToolDescriptor{
		Name: "explode",
		Func: func(context.Context, Input) (string, error) { panic("kaboom") },
	})
	require.NoError(t, err)

	turn := NewInvoker(DefaultToolConfig()).Invoke(context.Background(), turns.ToolRequest{Name: "explode"}, reg)
	assert.True(t, turn.IsError)
	assert.Equal(t, "Error executing tool explode: panic: kaboom", turn.Text)
}

func TestInvokerTimeout(t *testing.T) {
	reg, err := NewRegistry(ToolDescriptor{
		Name: "slow",
		Func: func(ctx context.Context, _ Input) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	})
	require.NoError(t, err)

	inv := NewInvoker(DefaultToolConfig().WithExecutionTimeout(10 * time.Millisecond))
	res := inv.Execute(context.Background(), turns.ToolRequest{Name: "slow"}, reg)
	require.False(t, res.OK())
	assert.Equal(t, ErrorTimeout, res.Err.Kind)
}

func TestInvokerIgnoresCallerCancellation(t *testing.T) {
	reg, err := NewRegistry(ToolDescriptor{
		Name: "check",
		Func: func(ctx context.Context, _ Input) (string, error) {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "finished", nil
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewInvoker(DefaultToolConfig()).Execute(ctx, turns.ToolRequest{Name: "check"}, reg)
	require.True(t, res.OK())
	assert.Equal(t, "finished", res.Output)
}

func TestNewToolPositionalAndKeyword(t *testing.T) {
	var got []string
	desc, err := NewTool("get_hub_stats", "Fetches hub stats.", func(_ context.Context, in authorInput) (string, error) {
		got = append(got, in.Author)
		return "author=" + in.Author, nil
	})
	require.NoError(t, err)
	require.NotNil(t, desc.Parameters)
	assert.Equal(t, "object", desc.Parameters.Type)
	assert.Empty(t, desc.Parameters.Version)

	prop, ok := desc.Parameters.Properties.Get("author")
	require.True(t, ok)
	assert.Equal(t, "string", prop.Type)

	out, err := desc.Func(context.Background(), Input{Positional: "facebook"})
	require.NoError(t, err)
	assert.Equal(t, "author=facebook", out)

	out, err = desc.Func(context.Background(), Input{Keyword: map[string]any{"author": "google"}})
	require.NoError(t, err)
	assert.Equal(t, "author=google", out)
	assert.Equal(t, []string{"facebook", "google"}, got)
}

func TestNewToolRejectsNonStruct(t *testing.T) {
	_, err := NewTool("bad", "", func(_ context.Context, s string) (string, error) { return s, nil })
	require.Error(t, err)
}

func TestValidateArgumentsAgainstSchema(t *testing.T) {
	desc := MustNewTool("get_hub_stats", "", func(_ context.Context, in authorInput) (string, error) {
		return in.Author, nil
	})
	reg, err := NewRegistry(desc)
	require.NoError(t, err)

	require.NoError(t, ValidateArguments(desc, map[string]any{"author": "x"}))
	require.Error(t, ValidateArguments(desc, map[string]any{"author": 3}))
	require.Error(t, ValidateArguments(desc, map[string]any{}))

	res := NewInvoker(DefaultToolConfig()).Execute(context.Background(),
		turns.ToolRequest{Name: "get_hub_stats", Arguments: map[string]any{"author": 3}}, reg)
	require.False(t, res.OK())
	assert.Equal(t, ErrorValidation, res.Err.Kind)
	assert.Contains(t, res.Text(), "Error executing tool get_hub_stats: invalid arguments")
}
