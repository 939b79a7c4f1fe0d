package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/alfred/pkg/turns"
)

func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	conv := turns.Conversation{
		turns.NewHumanTurn("Tell me about Ada"),
		turns.NewToolResultTurn(turns.ToolRequest{ID: "c1", Name: "guest_info_retriever", Arguments: "Ada"}, "Name: Ada Lovelace", false),
		turns.NewAssistantTurn("Ada is your best friend."),
	}
	require.NoError(t, store.Save(ctx, "b", conv))
	require.NoError(t, store.Save(ctx, "a", conv[:1]))

	got, err := store.Load(ctx, "b")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, conv[0].Text, got[0].Text)
	assert.Equal(t, turns.KindToolResult, got[1].Kind)
	require.NotNil(t, got[1].ToolRequest)
	assert.Equal(t, "guest_info_retriever", got[1].ToolRequest.Name)
	assert.True(t, got.IsComplete())

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, store.Delete(ctx, "b"))
	_, err = store.Load(ctx, "b")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStoreCopies(t *testing.T) {
	s := NewMemoryStore()
	conv := turns.Conversation{turns.NewHumanTurn("hi")}
	require.NoError(t, s.Save(context.Background(), "x", conv))
	conv[0].Text = "changed"
	got, err := s.Load(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "hi", got[0].Text)
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore(t *testing.T) {
	_, client := newMiniredis(t)
	store := NewRedisStoreFromClient(client, WithRedisPrefix("test:"))
	require.NoError(t, store.Ping(context.Background()))
	runStoreContract(t, store)
}

func TestRedisStoreTTL(t *testing.T) {
	mr, client := newMiniredis(t)
	store := NewRedisStoreFromClient(client, WithRedisTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "short", turns.Conversation{turns.NewHumanTurn("hi")}))
	assert.True(t, mr.Exists(DefaultRedisPrefix+"short"))

	mr.FastForward(2 * time.Minute)
	_, err := store.Load(ctx, "short")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
