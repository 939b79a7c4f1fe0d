package turns

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Conversation is the ordered, append-only history of a session.
type Conversation []Turn

// Append returns a new conversation with ts added at the end. The receiver's
// backing array is never written to.
func (c Conversation) Append(ts ...Turn) Conversation {
	out := make(Conversation, 0, len(c)+len(ts))
	out = append(out, c...)
	return append(out, ts...)
}

// Window returns a copy of the last n turns. n <= 0 yields the whole conversation.
func (c Conversation) Window(n int) Conversation {
	start := 0
	if n > 0 && len(c) > n {
		start = len(c) - n
	}
	out := make(Conversation, len(c)-start)
	copy(out, c[start:])
	return out
}

// Clone returns a shallow copy of the turn slice.
func (c Conversation) Clone() Conversation {
	return c.Window(0)
}

func (c Conversation) Last() (Turn, bool) {
	if len(c) == 0 {
		return Turn{}, false
	}
	return c[len(c)-1], true
}

// IsComplete reports whether the last turn is a final assistant answer. A run
// that stopped on its step budget is not complete.
func (c Conversation) IsComplete() bool {
	last, ok := c.Last()
	return ok && last.IsFinalAnswer()
}

// FinalAnswer returns the text of the last turn if it is a final answer.
func (c Conversation) FinalAnswer() (string, bool) {
	if !c.IsComplete() {
		return "", false
	}
	return c[len(c)-1].Text, true
}

// LastHumanText returns the text of the most recent human turn.
func (c Conversation) LastHumanText() string {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Kind == KindHuman {
			return c[i].Text
		}
	}
	return ""
}

// ValidateForRun checks that the conversation can be handed to the agent loop.
func (c Conversation) ValidateForRun() error {
	last, ok := c.Last()
	if !ok {
		return errors.New("conversation is empty")
	}
	switch last.Kind {
	case KindHuman, KindToolResult:
		return nil
	case KindAssistant:
		return errors.New("conversation ends with an assistant turn")
	default:
		return errors.Errorf("unknown turn kind %q", last.Kind)
	}
}

// String renders the conversation for debugging.
func (c Conversation) String() string {
	var sb strings.Builder
	for i, t := range c {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch {
		case t.HasToolRequest():
			fmt.Fprintf(&sb, "[%s] -> %s(%v)", t.Kind, t.ToolRequest.Name, t.ToolRequest.Arguments)
		case t.Kind == KindToolResult:
			marker := ""
			if t.IsError {
				marker = " error"
			}
			fmt.Fprintf(&sb, "[%s %s%s] %s", t.Kind, t.ToolName, marker, t.Text)
		default:
			fmt.Fprintf(&sb, "[%s] %s", t.Kind, t.Text)
		}
	}
	return sb.String()
}
