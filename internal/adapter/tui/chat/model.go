package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"agentgate/internal/adapter/tui/components"
	"agentgate/internal/adapter/tui/theme"
)

// ChatModelDeps are dependencies injected into the chat model.
type ChatModelDeps struct {
	Invoke    InvokeFunc
	AgentName string
	ModelName string
	Logger    *slog.Logger
}

// ChatModel is the root Bubble Tea model of `agentgate chat`. Every prompt
// is an independent single-turn invocation.
type ChatModel struct {
	deps ChatModelDeps

	chatView  components.ChatViewModel
	input     textinput.Model
	statusBar components.StatusBarModel
	spinner   spinner.Model

	waiting  bool
	width    int
	height   int
	quitting bool

	// gen is bumped on every request and cancellation; results carrying an
	// older gen are dropped.
	gen      uint64
	cancelFn context.CancelFunc
}

// NewChatModel creates the root chat model.
func NewChatModel(deps ChatModelDeps) ChatModel {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorInfo)

	in := textinput.New()
	in.Placeholder = "Ask " + deps.AgentName + " something, or /help"
	in.Prompt = theme.InputPrompt.Render("> ")
	in.CharLimit = 8000
	in.Focus()

	chatView := components.NewChatView()
	chatView.Messages.MaxMessages = 500

	return ChatModel{
		deps:     deps,
		chatView: chatView,
		input:    in,
		statusBar: components.StatusBarModel{
			Hints:     defaultHints(),
			AgentName: deps.AgentName,
			ModelName: deps.ModelName,
		},
		spinner: s,
	}
}

// Init starts the cursor blink and spinner.
func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Update handles all incoming messages.
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.waiting {
				m.cancelRequest("Request cancelled.")
				return m, nil
			}
			m.quitting = true
			return m, tea.Quit
		case tea.KeyCtrlL:
			return m.handleSlashCommand("/clear", nil)
		case tea.KeyEnter:
			if m.waiting {
				return m, nil
			}
			value := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if value == "" {
				return m, nil
			}
			return m.handleSubmit(value)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.chatView, cmd = m.chatView.Update(msg)
			return m, cmd
		}

	case ResultMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.finishRequest()
		m.deps.Logger.Debug("chat invocation finished",
			"invocation_id", msg.Result.ID(), "outcome", msg.Result.Outcome())
		m.chatView.AddMessage(components.ResultMessage(msg.Result))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if !m.waiting {
		if _, isMouse := msg.(tea.MouseMsg); !isMouse {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	var cmd tea.Cmd
	m.chatView, cmd = m.chatView.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View renders the entire chat UI.
func (m ChatModel) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 {
		return "  Initializing..."
	}

	inputView := m.input.View()
	if m.waiting {
		inputView = theme.Dim.Render("> waiting for "+m.deps.AgentName+"...") +
			"\n" + m.spinner.View() + " " + m.statusBar.Extra
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.chatView.View(),
		components.Divider(m.width),
		inputView,
		m.statusBar.View(),
	)
}

func (m *ChatModel) layout() {
	const inputH, statusH, dividerH = 2, 1, 1
	contentH := max(5, m.height-inputH-statusH-dividerH)
	m.statusBar.SetWidth(m.width)
	m.chatView.SetSize(m.width, contentH)
	m.input.Width = max(10, m.width-4)
}

func (m ChatModel) handleSubmit(value string) (tea.Model, tea.Cmd) {
	if cmd, args, ok := parseSlashCommand(value); ok {
		return m.handleSlashCommand(cmd, args)
	}

	m.chatView.AddMessage(components.ChatMessage{
		Role:    components.RoleUser,
		Content: value,
	})

	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelFn = cancel
	m.waiting = true
	m.input.Blur()
	m.statusBar.Extra = "Running" + theme.SymbolEllipsis

	return m, invokeCmd(ctx, m.deps.Invoke, value, m.gen)
}

func (m ChatModel) handleSlashCommand(cmd string, _ []string) (tea.Model, tea.Cmd) {
	switch cmd {
	case "/help":
		m.chatView.AddMessage(components.ChatMessage{
			Role: components.RoleSystem,
			Content: `Every prompt is sent to ` + m.deps.AgentName + ` as a new invocation.

Commands:
  /help    Show this help
  /clear   Clear the transcript
  /cancel  Cancel the running invocation
  /quit    Exit

Keys:
  Enter      Send
  PgUp/PgDn  Scroll
  Ctrl+L     Clear
  Ctrl+C     Cancel or quit`,
		})
		return m, nil

	case "/quit", "/exit":
		m.quitting = true
		return m, tea.Quit

	case "/clear":
		m.chatView.Clear()
		m.chatView.AddMessage(components.ChatMessage{
			Role:    components.RoleSystem,
			Content: theme.SymbolSuccess + " Transcript cleared.",
		})
		return m, nil

	case "/cancel":
		if m.waiting {
			m.cancelRequest("Request cancelled.")
		} else {
			m.chatView.AddMessage(components.ChatMessage{
				Role:    components.RoleSystem,
				Content: "No running invocation.",
			})
		}
		return m, nil

	default:
		m.chatView.AddMessage(components.ChatMessage{
			Role:    components.RoleSystem,
			Content: fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd),
		})
		return m, nil
	}
}

func (m *ChatModel) finishRequest() {
	if m.cancelFn != nil {
		m.cancelFn()
		m.cancelFn = nil
	}
	m.waiting = false
	m.statusBar.Extra = ""
	m.input.Focus()
}

// cancelRequest aborts the running invocation and drops its eventual result.
func (m *ChatModel) cancelRequest(reason string) {
	m.gen++
	m.finishRequest()
	m.chatView.AddMessage(components.ChatMessage{
		Role:    components.RoleSystem,
		Content: reason,
	})
}

func defaultHints() []components.KeyHint {
	return []components.KeyHint{
		{Key: "Enter", Desc: "Send"},
		{Key: "PgUp/PgDn", Desc: "Scroll"},
		{Key: "/help", Desc: "Help"},
		{Key: "Ctrl+C", Desc: "Quit"},
	}
}
