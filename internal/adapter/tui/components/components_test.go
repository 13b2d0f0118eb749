package components

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgate/internal/domain"
)

func TestOutputMarkdown(t *testing.T) {
	assert.Equal(t, "plain answer", OutputMarkdown(domain.Output{Text: "plain answer"}))

	md := OutputMarkdown(domain.Output{
		Text: `{"response":"4","confidence":0.9,"steps":["add"]}`,
		Structured: map[string]any{
			"response":   "4",
			"confidence": 0.9,
			"steps":      []any{"add"},
		},
	})
	assert.Equal(t, "4\n\n- **confidence**: 0.9\n- **steps**: `[\"add\"]`", md)
}

func TestResultMessageCompleted(t *testing.T) {
	msg := ResultMessage(domain.Completed{
		Agent:  "Math Tutor",
		Path:   []string{"Triage Agent", "Math Tutor"},
		Output: domain.Output{Text: "four"},
	})
	assert.Equal(t, RoleAgent, msg.Role)
	assert.Equal(t, "Math Tutor", msg.Label)
	assert.Equal(t, "four", msg.Content)
	assert.Contains(t, msg.Footer, "Triage Agent")
	assert.Contains(t, msg.Footer, "Math Tutor")
}

func TestResultMessageSingleAgentHasNoPath(t *testing.T) {
	msg := ResultMessage(domain.Completed{Agent: "Support", Path: []string{"Support"}})
	assert.Empty(t, msg.Footer)
}

func TestResultMessageBlocked(t *testing.T) {
	schema, err := domain.NewFieldSchema("homework", map[string]string{"is_homework": "boolean", "reasoning": "string"})
	require.NoError(t, err)
	check, err := domain.NewAgentDescriptor(domain.AgentOptions{Name: "Homework Check", Instructions: "check", OutputSchema: schema})
	require.NoError(t, err)
	g, err := domain.NewGuardrailSpec(domain.GuardrailOptions{
		Kind:          domain.GuardrailInput,
		CheckAgent:    check,
		TripwireField: "is_homework",
	})
	require.NoError(t, err)

	msg := ResultMessage(domain.Blocked{Guardrail: g, Reasoning: "asks to solve an assignment"})
	assert.Equal(t, RoleBlocked, msg.Role)
	assert.Contains(t, msg.Content, `input guardrail "Homework Check"`)
	assert.Contains(t, msg.Content, "asks to solve an assignment")
}

func TestResultMessageFailed(t *testing.T) {
	msg := ResultMessage(domain.NewFailed("inv", fmt.Errorf("Router.Route: %w", domain.ErrInvalidRoute)))
	assert.Equal(t, RoleError, msg.Role)
	assert.Equal(t, "Invalid Handoff", msg.Label)
	assert.True(t, strings.HasPrefix(msg.Footer, "invalid_route: "))
	assert.NotContains(t, msg.Content, "Invalid Handoff")
}

func TestRenderResult(t *testing.T) {
	out := RenderResult(domain.Completed{
		Agent:  "Support",
		Path:   []string{"Support"},
		Output: domain.Output{Text: "Hello there"},
	}, 80)
	assert.Contains(t, out, "Support")
	assert.Contains(t, out, "Hello there")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestMessageListRingBuffer(t *testing.T) {
	list := NewMessageList()
	list.MaxMessages = 2
	list.SetWidth(80)
	for i := range 3 {
		list.Add(ChatMessage{Role: RoleSystem, Content: fmt.Sprintf("note %d", i)})
	}
	require.Len(t, list.Messages, 2)
	assert.Equal(t, "note 1", list.Messages[0].Content)

	view := list.View()
	assert.Contains(t, view, "1 older messages trimmed")
	assert.NotContains(t, view, "note 0")

	list.Clear()
	assert.Contains(t, list.View(), "No messages yet")
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, "short", wrapText("short", 10))
	assert.Equal(t, "aaa bbb\nccc", wrapText("aaa bbb ccc", 8))
	assert.Equal(t, "abcd\nefgh", wrapText("abcdefgh", 4))
	assert.Equal(t, "one\ntwo", wrapText("one\ntwo", 10))
}

func TestStatusBarView(t *testing.T) {
	sb := StatusBarModel{
		Hints:     []KeyHint{{Key: "Enter", Desc: "Send"}},
		AgentName: "Triage Agent",
		ModelName: "gemini-2.0-flash",
		Extra:     "Running",
	}
	sb.SetWidth(100)
	view := sb.View()
	for _, want := range []string{"Enter", "Send", "Triage Agent", "gemini-2.0-flash", "Running"} {
		assert.Contains(t, view, want)
	}
}
