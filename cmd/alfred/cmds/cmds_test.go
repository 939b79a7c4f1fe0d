package cmds

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/alfred/pkg/tracing"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestTracesAndFeedbackCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "traces.db")
	store, err := tracing.NewSQLiteStore(db)
	require.NoError(t, err)
	require.NoError(t, store.CreateTrace(context.Background(), &tracing.Trace{ID: "run-1", Input: "hi", Success: true}))
	require.NoError(t, store.Close())

	require.NoError(t, execute(t, "traces", "list", "--trace-db", db, "--log-level", "error"))
	require.NoError(t, execute(t, "traces", "show", "run-1", "--trace-db", db, "--log-level", "error"))
	require.NoError(t, execute(t, "feedback", "run-1", "4", "--trace-db", db, "--log-level", "error"))

	assert.Error(t, execute(t, "feedback", "run-1", "ten", "--trace-db", db))
	assert.Error(t, execute(t, "feedback", "run-1", "9", "--trace-db", db))
	assert.Error(t, execute(t, "traces", "show", "missing", "--trace-db", db))

	store, err = tracing.NewSQLiteStore(db)
	require.NoError(t, err)
	defer store.Close()
	scores, err := store.ListScores(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, 4.0, scores[0].Value)
}

func TestInvalidSettingsFail(t *testing.T) {
	assert.Error(t, execute(t, "traces", "list", "--retriever", "tarot"))
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "short", shorten("short", 10))
	assert.Equal(t, "abcdefg...", shorten("abcdefghijklmnop", 10))
}
