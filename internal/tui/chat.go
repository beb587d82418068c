package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"swing-trader/internal/domain"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	roleUser    = "user"
	roleAdvisor = "assistant"

	chatClockLayout = "15:04"
)

type chatReplyMsg string
type chatFailMsg struct{ err error }

type transcriptEntry struct {
	role string
	body string
	at   time.Time
}

// ChatModel drives the advisor chat screen: a transcript viewport stacked
// over a single-line prompt.
type ChatModel struct {
	services   Services
	transcript []transcriptEntry
	input      textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	waiting    bool
	lastErr    error
	width      int
	height     int
	laidOut    bool
}

func NewChatModel(svc Services) ChatModel {
	prompt := textinput.New()
	prompt.Placeholder = "Ask about tickers, trends, or signal setups..."
	prompt.CharLimit = 500
	prompt.Width = 60

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(SpinnerColor)

	return ChatModel{services: svc, input: prompt, spinner: spin}
}

// Init starts the prompt cursor blinking.
func (m ChatModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update folds one message into the model.
func (m ChatModel) Update(msg tea.Msg) (ChatModel, tea.Cmd) {
	switch msg := msg.(type) {
	case chatReplyMsg:
		m.waiting = false
		m.lastErr = nil
		m.push(roleAdvisor, string(msg))
		return m, nil

	case chatFailMsg:
		m.waiting = false
		m.lastErr = msg.err
		return m, nil

	case tea.KeyMsg:
		if msg.Type != tea.KeyEnter || m.waiting {
			break
		}
		if model, cmd, sent := m.submit(); sent {
			return model, cmd
		}

	case spinner.TickMsg:
		if !m.waiting {
			break
		}
		var tick tea.Cmd
		m.spinner, tick = m.spinner.Update(msg)
		model, rest := m.forward(msg)
		return model, tea.Batch(tick, rest)
	}

	return m.forward(msg)
}

// forward passes a message to the prompt (unless a reply is pending) and the
// transcript viewport.
func (m ChatModel) forward(msg tea.Msg) (ChatModel, tea.Cmd) {
	var promptCmd, vpCmd tea.Cmd
	if !m.waiting {
		m.input, promptCmd = m.input.Update(msg)
	}
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(promptCmd, vpCmd)
}

// submit sends the typed question to the advisor. Returns sent=false when the
// input is blank.
func (m ChatModel) submit() (ChatModel, tea.Cmd, bool) {
	question := strings.TrimSpace(m.input.Value())
	if question == "" {
		return m, nil, false
	}
	m.push(roleUser, question)
	m.input.SetValue("")
	m.waiting = true
	m.refreshTranscript()
	return m, tea.Batch(m.askCmd(question), m.spinner.Tick), true
}

func (m *ChatModel) push(role, body string) {
	m.transcript = append(m.transcript, transcriptEntry{role: role, body: body, at: time.Now()})
	m.refreshTranscript()
}

func (m *ChatModel) refreshTranscript() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View stacks the header, transcript, and prompt row.
func (m ChatModel) View() string {
	if m.services.Advisor == nil {
		return "\n" + HeaderStyle.Render("  Chat with Analysis Advisor") +
			"\n\n" + SubtextStyle.Render("  Advisor offline. Set OPENAI_API_KEY to enable chat.")
	}

	if !m.laidOut {
		m.layoutViewport()
	}
	rule := SubtextStyle.Render(strings.Repeat("─", max(m.width-2, 0)))

	return lipgloss.JoinVertical(lipgloss.Left,
		HeaderStyle.Render("  Chat with Analysis Advisor"),
		rule,
		m.viewport.View(),
		rule,
		m.promptRow(),
	)
}

func (m ChatModel) promptRow() string {
	switch {
	case m.waiting:
		return fmt.Sprintf("  %s Thinking...", m.spinner.View())
	case m.lastErr != nil:
		return ErrorStyle.Render(fmt.Sprintf("  Error: %v", m.lastErr)) + "\n  " + m.input.View()
	default:
		return "  " + m.input.View()
	}
}

// SetSize records the terminal dimensions and schedules a viewport relayout.
func (m *ChatModel) SetSize(w, h int) {
	m.width, m.height = w, h
	m.input.Width = w - 6
	m.laidOut = false
}

// Focus and Blur hand the prompt cursor over when the user tabs between
// screens.
func (m *ChatModel) Focus() { m.input.Focus() }

func (m *ChatModel) Blur() { m.input.Blur() }

// IsWaiting exposes the pending-reply flag to tests.
func (m ChatModel) IsWaiting() bool { return m.waiting }

// MessageCount exposes the transcript length to tests.
func (m ChatModel) MessageCount() int { return len(m.transcript) }

// layoutViewport sizes the transcript area under the header and above the
// input bar. Minimums keep tiny terminals from panicking lipgloss.
func (m *ChatModel) layoutViewport() {
	w := max(m.width-2, 10)
	h := max(m.height-6, 3)
	m.viewport = viewport.New(w, h)
	m.viewport.SetContent(m.renderTranscript())
	m.laidOut = true
}

func (m ChatModel) renderTranscript() string {
	if len(m.transcript) == 0 {
		hint := fmt.Sprintf("  Ask about %s setups, or why a signal fired.",
			strings.Join(domain.DefaultTickers, ", "))
		return SubtextStyle.Render(hint)
	}

	var b strings.Builder
	for _, entry := range m.transcript {
		stamp := SubtextStyle.Render(entry.at.Format(chatClockLayout))
		if entry.role == roleUser {
			fmt.Fprintf(&b, "  %s  %s %s\n\n", stamp, UserMsgStyle.Render("You:"), entry.body)
			continue
		}
		fmt.Fprintf(&b, "  %s  %s\n", stamp, AssistantMsgStyle.Render("Advisor:"))
		for _, line := range strings.Split(entry.body, "\n") {
			b.WriteString("         " + line + "\n")
		}
		b.WriteString("\n")
	}

	if m.waiting {
		fmt.Fprintf(&b, "  %s  %s\n",
			SubtextStyle.Render(time.Now().Format(chatClockLayout)),
			SubtextStyle.Render("Advisor is thinking..."))
	}

	return strings.TrimRight(b.String(), "\n")
}

func (m ChatModel) askCmd(question string) tea.Cmd {
	advisor := m.services.Advisor
	chatID := m.services.ChatID()
	return func() tea.Msg {
		if advisor == nil {
			return chatFailMsg{err: fmt.Errorf("advisor not available")}
		}
		reply, err := advisor.Ask(context.Background(), chatID, question)
		if err != nil {
			return chatFailMsg{err: err}
		}
		return chatReplyMsg(reply)
	}
}
