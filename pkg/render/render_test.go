package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/alfred/pkg/turns"
)

func sample() turns.Conversation {
	req := turns.ToolRequest{ID: "c1", Name: "guest_info_retriever", Arguments: map[string]any{"query": "Ada"}}
	return turns.Conversation{
		turns.NewHumanTurn("Who is Ada?"),
		turns.NewToolRequestTurn("", req),
		turns.NewToolResultTurn(req, "Name: Ada Lovelace\nRelation: best friend", false),
		turns.NewAssistantTurn("Ada is your best friend."),
	}
}

func TestExport(t *testing.T) {
	out, err := ExportString(sample())
	require.NoError(t, err)
	assert.Equal(t,
		"human: Who is Ada?\n\n"+
			"ai: \n\n"+
			"tool: Name: Ada Lovelace\nRelation: best friend\n\n"+
			"ai: Ada is your best friend.",
		out)

	out, err = ExportString(nil)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestExportFileName(t *testing.T) {
	assert.Equal(t, "alfred_conversation_1700000000.txt", ExportFileName(time.Unix(1700000000, 0)))
}

func TestTranscript(t *testing.T) {
	out, err := Transcript(sample())
	require.NoError(t, err)
	assert.Contains(t, out, "**human**: Who is Ada?")
	assert.Contains(t, out, "> **ai** calls `guest_info_retriever` with `{\"query\":\"Ada\"}`")
	assert.Contains(t, out, "> **tool** `guest_info_retriever`:")
	assert.Contains(t, out, "    Name: Ada Lovelace\n    Relation: best friend")
	assert.Contains(t, out, "**ai**: Ada is your best friend.")

	req := turns.ToolRequest{Name: "web_search", Arguments: "x"}
	out, err = Transcript(turns.Conversation{turns.NewToolResultTurn(req, "Error executing tool web_search: boom", true)})
	require.NoError(t, err)
	assert.Contains(t, out, "`web_search` (error):")
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	require.NoError(t, p.Print("**hello**"))
	assert.Equal(t, "**hello**\n", buf.String())

	buf.Reset()
	p.SetStyled(true)
	require.NoError(t, p.Print("# Title\n\nsome text"))
	assert.NotEmpty(t, buf.String())
}
