package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"agentgate/internal/adapter/tui/theme"
)

// KeyHint is one keybinding hint shown in the status bar.
type KeyHint struct {
	Key  string
	Desc string
}

// StatusBarModel renders hints on the left and the agent, model and
// transient status on the right.
type StatusBarModel struct {
	Hints     []KeyHint
	AgentName string
	ModelName string
	Extra     string // e.g. "Running…"
	width     int
}

// SetWidth updates the available width.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// View renders the status bar as a single line.
func (m StatusBarModel) View() string {
	var hints []string
	for _, h := range m.Hints {
		hints = append(hints, theme.StatusKey.Render(h.Key)+": "+h.Desc)
	}
	left := strings.Join(hints, "  "+theme.Dim.Render("|")+"  ")

	var parts []string
	if m.AgentName != "" {
		parts = append(parts, m.AgentName)
	}
	if m.ModelName != "" {
		parts = append(parts, m.ModelName)
	}
	right := theme.TextMuted.Render(strings.Join(parts, " "+theme.SymbolBullet+" "))
	if m.Extra != "" {
		if len(parts) > 0 {
			right += "  "
		}
		right += theme.TextInfo.Render(m.Extra)
	}

	gap := max(1, m.width-lipgloss.Width(left)-lipgloss.Width(right))
	return theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}
