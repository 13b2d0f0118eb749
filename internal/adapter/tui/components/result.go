package components

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"agentgate/internal/adapter/tui/theme"
	"agentgate/internal/adapter/tui/uxerror"
	"agentgate/internal/domain"
)

// responseField is shown as the body of a structured answer; every other
// field becomes a bullet under it.
const responseField = "response"

// ResultMessage turns an invocation result into a transcript entry.
func ResultMessage(res domain.InvocationResult) ChatMessage {
	switch r := res.(type) {
	case domain.Completed:
		msg := ChatMessage{
			Role:    RoleAgent,
			Label:   r.Agent,
			Content: OutputMarkdown(r.Output),
		}
		if len(r.Path) > 1 {
			msg.Footer = strings.Join(r.Path, " "+theme.SymbolArrowR+" ")
		}
		return msg
	case domain.Blocked:
		name := "guardrail"
		if r.Guardrail != nil {
			name = fmt.Sprintf("%s guardrail %q", r.Guardrail.Kind(), r.Guardrail.Name())
		}
		content := "Blocked by " + name + "."
		if r.Reasoning != "" {
			content += "\n" + r.Reasoning
		}
		return ChatMessage{Role: RoleBlocked, Content: content}
	case domain.Failed:
		fe := uxerror.FromFailed(r)
		return ChatMessage{
			Role:    RoleError,
			Label:   fe.Title,
			Content: strings.TrimPrefix(fe.Render(), fe.Title+"\n  "),
			Footer:  string(r.Kind) + ": " + r.Message,
		}
	default:
		return ChatMessage{Role: RoleSystem, Content: fmt.Sprintf("unexpected result %T", res)}
	}
}

// OutputMarkdown renders an agent output as markdown. Plain text passes
// through; structured output lists its fields in name order.
func OutputMarkdown(out domain.Output) string {
	if out.Structured == nil {
		return out.Text
	}

	var sb strings.Builder
	if v, ok := out.Structured[responseField]; ok {
		sb.WriteString(valueText(v))
		sb.WriteString("\n")
	}

	keys := make([]string, 0, len(out.Structured))
	for k := range out.Structured {
		if k != responseField {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > 0 && sb.Len() > 0 {
		sb.WriteString("\n")
	}
	for _, k := range keys {
		fmt.Fprintf(&sb, "- **%s**: %s\n", k, valueText(out.Structured[k]))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func valueText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return "null"
	case bool, float64, int, int64:
		return fmt.Sprint(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return "`" + string(b) + "`"
	}
}

// RenderResult formats one result for non-interactive output.
func RenderResult(res domain.InvocationResult, termWidth int) string {
	list := NewMessageList()
	list.SetWidth(termWidth)
	msg := ResultMessage(res)
	return strings.TrimRight(list.renderMessage(&msg, theme.ContentWidth(termWidth)), "\n") + "\n"
}
