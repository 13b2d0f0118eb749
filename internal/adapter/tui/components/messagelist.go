// Package components holds the transcript widgets of the chat UI.
package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"agentgate/internal/adapter/tui/theme"
)

// MessageRole identifies the sender of a transcript entry.
type MessageRole string

const (
	RoleUser    MessageRole = "user"
	RoleAgent   MessageRole = "agent"
	RoleSystem  MessageRole = "system"
	RoleBlocked MessageRole = "blocked"
	RoleError   MessageRole = "error"
)

// ChatMessage is one transcript entry.
type ChatMessage struct {
	Role      MessageRole
	Label     string // overrides the role label, e.g. the serving agent name
	Content   string
	Footer    string // dim line under the body, e.g. the handoff path
	Rendered  string // cached glamour output; empty means not yet rendered
	Timestamp time.Time
}

// MessageListModel is an ordered transcript with an optional ring buffer.
type MessageListModel struct {
	Messages    []ChatMessage
	MaxMessages int // 0 = unlimited
	trimCount   int
	width       int
	md          *Markdown
}

// NewMessageList creates an empty message list.
func NewMessageList() MessageListModel {
	return MessageListModel{}
}

// SetWidth updates the rendering width and clears cached renders.
func (m *MessageListModel) SetWidth(w int) {
	if w == m.width {
		return
	}
	m.width = w
	m.md = nil
	for i := range m.Messages {
		m.Messages[i].Rendered = ""
	}
}

// Add appends a message, trimming the oldest past MaxMessages.
func (m *MessageListModel) Add(msg ChatMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	m.Messages = append(m.Messages, msg)
	if m.MaxMessages > 0 && len(m.Messages) > m.MaxMessages {
		excess := len(m.Messages) - m.MaxMessages
		m.Messages = m.Messages[excess:]
		m.trimCount += excess
	}
}

// Clear removes all messages.
func (m *MessageListModel) Clear() {
	m.Messages = nil
	m.trimCount = 0
}

// View renders the whole transcript.
func (m *MessageListModel) View() string {
	if len(m.Messages) == 0 {
		return theme.TextMuted.Render("  No messages yet. Type a prompt and press Enter.")
	}

	width := theme.ContentWidth(m.width)
	var sb strings.Builder
	if m.trimCount > 0 {
		sb.WriteString(theme.TextMuted.Render(fmt.Sprintf("  (%d older messages trimmed)", m.trimCount)) + "\n\n")
	}
	for i := range m.Messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(m.renderMessage(&m.Messages[i], width))
	}
	return sb.String()
}

func (m *MessageListModel) renderMessage(msg *ChatMessage, width int) string {
	header := roleLabel(msg) + " " + theme.Timestamp.Render(msg.Timestamp.Format("15:04:05"))

	var body string
	switch msg.Role {
	case RoleAgent:
		if msg.Rendered == "" {
			if m.md == nil {
				m.md = NewMarkdown(width)
			}
			msg.Rendered = m.md.Render(msg.Content)
		}
		body = strings.TrimRight(msg.Rendered, "\n")
	case RoleError:
		body = theme.TextError.Render(indent(wrapText(msg.Content, width-2)))
	case RoleBlocked:
		body = theme.TextWarning.Render(indent(wrapText(msg.Content, width-2)))
	default:
		body = indent(wrapText(msg.Content, width-2))
	}

	out := header + "\n" + body
	if msg.Footer != "" {
		out += "\n" + theme.Path.Render("  "+msg.Footer)
	}
	return out
}

func roleLabel(msg *ChatMessage) string {
	switch msg.Role {
	case RoleUser:
		return theme.UserLabel.Render(theme.SymbolUser)
	case RoleAgent:
		label := msg.Label
		if label == "" {
			label = "Agent"
		}
		return theme.AgentLabel.Render(label)
	case RoleBlocked:
		return theme.BlockedLabel.Render(theme.SymbolWarning + " " + labelOr(msg.Label, "Blocked"))
	case RoleError:
		return theme.ErrorLabel.Render(theme.SymbolError + " " + labelOr(msg.Label, "Error"))
	default:
		return theme.SystemLabel.Render("System")
	}
}

func labelOr(label, fallback string) string {
	if label != "" {
		return label
	}
	return fallback
}

// Markdown renders agent answers through glamour, falling back to the raw
// text when the renderer cannot be built.
type Markdown struct {
	r *glamour.TermRenderer
}

// NewMarkdown creates a renderer wrapping at width columns.
func NewMarkdown(width int) *Markdown {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return &Markdown{}
	}
	return &Markdown{r: r}
}

// Render returns content as styled terminal text.
func (md *Markdown) Render(content string) string {
	if md == nil || md.r == nil {
		return indent(content)
	}
	out, err := md.r.Render(content)
	if err != nil {
		return indent(content)
	}
	return out
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}

// wrapText wraps s at width runes, breaking on spaces where possible.
func wrapText(s string, width int) string {
	if width <= 0 {
		return s
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		runes := []rune(line)
		for len(runes) > width {
			idx := -1
			for i := width - 1; i > 0; i-- {
				if runes[i] == ' ' {
					idx = i
					break
				}
			}
			if idx <= 0 {
				idx = width
			}
			out = append(out, string(runes[:idx]))
			runes = runes[idx:]
			for len(runes) > 0 && runes[0] == ' ' {
				runes = runes[1:]
			}
		}
		out = append(out, string(runes))
	}
	return strings.Join(out, "\n")
}

// Divider renders a horizontal line at the given width.
func Divider(width int) string {
	return lipgloss.NewStyle().
		Foreground(theme.ColorBorder).
		Render(strings.Repeat("─", max(width, 0)))
}
