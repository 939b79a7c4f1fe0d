package turns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendDoesNotShareBackingArray(t *testing.T) {
	base := make(Conversation, 1, 10)
	base[0] = NewHumanTurn("hello")

	a := base.Append(NewAssistantTurn("a"))
	b := base.Append(NewAssistantTurn("b"))

	require.Len(t, a, 2)
	require.Len(t, b, 2)
	assert.Equal(t, "a", a[1].Text)
	assert.Equal(t, "b", b[1].Text)
	assert.Len(t, base, 1)
}

func TestWindow(t *testing.T) {
	var c Conversation
	for i := 0; i < 60; i++ {
		c = c.Append(NewHumanTurn("x"))
	}

	w := c.Window(DefaultWindowSize)
	require.Len(t, w, 50)
	assert.Equal(t, c[10].ID, w[0].ID)
	assert.Equal(t, c[59].ID, w[49].ID)

	w[0].Text = "changed"
	assert.Equal(t, "x", c[10].Text)

	assert.Len(t, c.Window(0), 60)
	assert.Len(t, c[:3].Window(50), 3)
}

func TestIsComplete(t *testing.T) {
	req := ToolRequest{Name: "web_search", Arguments: "tesla"}

	assert.False(t, Conversation{}.IsComplete())
	assert.False(t, Conversation{NewHumanTurn("hi")}.IsComplete())
	assert.False(t, Conversation{NewHumanTurn("hi"), NewToolRequestTurn("", req)}.IsComplete())
	assert.False(t, Conversation{NewHumanTurn("hi"), NewToolResultTurn(req, "r", false)}.IsComplete())

	c := Conversation{NewHumanTurn("hi"), NewAssistantTurn("done")}
	assert.True(t, c.IsComplete())
	answer, ok := c.FinalAnswer()
	assert.True(t, ok)
	assert.Equal(t, "done", answer)
}

func TestValidateForRun(t *testing.T) {
	req := ToolRequest{Name: "web_search"}

	assert.EqualError(t, Conversation{}.ValidateForRun(), "conversation is empty")
	assert.EqualError(t, Conversation{NewHumanTurn("q"), NewAssistantTurn("a")}.ValidateForRun(), "conversation ends with an assistant turn")
	assert.EqualError(t, Conversation{{Kind: "system", Text: "x"}}.ValidateForRun(), `unknown turn kind "system"`)
	require.NoError(t, Conversation{NewHumanTurn("q")}.ValidateForRun())
	require.NoError(t, Conversation{NewHumanTurn("q"), NewToolResultTurn(req, "r", true)}.ValidateForRun())
}

func TestToolResultTurnKeepsRequest(t *testing.T) {
	req := ToolRequest{ID: "call_1", Name: "get_hub_stats", Arguments: map[string]any{"author": "facebook"}}
	tr := NewToolResultTurn(req, "boom", true)

	assert.Equal(t, KindToolResult, tr.Kind)
	assert.Equal(t, "get_hub_stats", tr.ToolName)
	assert.True(t, tr.IsError)
	require.NotNil(t, tr.ToolRequest)
	assert.Equal(t, "call_1", tr.ToolRequest.ID)
	assert.NotEmpty(t, tr.ID)
}

func TestLastHumanText(t *testing.T) {
	c := Conversation{
		NewHumanTurn("first"),
		NewAssistantTurn("a"),
		NewHumanTurn("second"),
		NewToolResultTurn(ToolRequest{Name: "web_search"}, "r", false),
	}
	assert.Equal(t, "second", c.LastHumanText())
	assert.Equal(t, "", Conversation{}.LastHumanText())
}
