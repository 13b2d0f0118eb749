package chat

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"agentgate/internal/domain"
)

// InvokeFunc runs one invocation of the chat's agent.
type InvokeFunc func(ctx context.Context, input string) domain.InvocationResult

// invokeCmd runs the invocation off the UI goroutine.
func invokeCmd(ctx context.Context, invoke InvokeFunc, input string, gen uint64) tea.Cmd {
	return func() tea.Msg {
		return ResultMsg{Result: invoke(ctx, input), Gen: gen}
	}
}

// parseSlashCommand splits "/cmd arg1 arg2" into its parts.
func parseSlashCommand(input string) (string, []string, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", nil, false
	}
	fields := strings.Fields(input)
	return strings.ToLower(fields[0]), fields[1:], true
}
