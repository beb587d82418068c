package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Tab indexes one of the four screens.
type Tab int

const (
	TabDashboard Tab = iota
	TabSignals
	TabRuns
	TabChat
)

var tabLabels = []string{"1:Dashboard", "2:Signals", "3:Runs", "4:Chat"}

func (t Tab) next() Tab { return Tab((int(t) + 1) % len(tabLabels)) }
func (t Tab) prev() Tab { return Tab((int(t) + len(tabLabels) - 1) % len(tabLabels)) }

// AppModel is the root model: it owns the tab bar, routes messages, and
// holds one child model per screen.
type AppModel struct {
	activeTab Tab
	services  Services

	dashboard DashboardModel
	signals   RecordExplorerModel
	runs      RunsModel
	chat      ChatModel

	width    int
	height   int
	quitting bool
}

func NewAppModel(svc Services) AppModel {
	return AppModel{
		services:  svc,
		dashboard: NewDashboardModel(svc),
		signals:   NewRecordExplorerModel(svc),
		runs:      NewRunsModel(svc),
		chat:      NewChatModel(svc),
	}
}

// Init fans out to every child screen.
func (m AppModel) Init() tea.Cmd {
	return tea.Batch(m.dashboard.Init(), m.signals.Init(), m.runs.Init(), m.chat.Init())
}

// Update handles incoming messages, routing to the owning child screen.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.propagateSize()
		return m, nil

	case tea.KeyMsg:
		if m.chromeOwnsKey(msg) {
			if model, cmd, handled := m.handleChromeKey(msg); handled {
				return model, cmd
			}
		}
	}

	cmd := m.routeToChild(m.targetFor(msg), msg)
	return m, cmd
}

// chromeOwnsKey reports whether a key press should be offered to the global
// bindings first. While chat is focused only navigation chords stay global so
// typing works.
func (m AppModel) chromeOwnsKey(msg tea.KeyMsg) bool {
	if m.activeTab != TabChat {
		return true
	}
	if msg.Type == tea.KeyTab || msg.Type == tea.KeyShiftTab {
		return true
	}
	s := msg.String()
	return s == "ctrl+c" || (s >= "1" && s <= "4")
}

func (m AppModel) handleChromeKey(msg tea.KeyMsg) (AppModel, tea.Cmd, bool) {
	switch {
	case key.Matches(msg, DefaultKeyMap.Quit):
		if m.activeTab == TabChat && msg.String() == "q" {
			return m, nil, false // "q" belongs to the chat input
		}
		m.quitting = true
		return m, tea.Quit, true

	case key.Matches(msg, DefaultKeyMap.Tab):
		m.switchTab(m.activeTab.next())
		return m, nil, true

	case key.Matches(msg, DefaultKeyMap.ShiftTab):
		m.switchTab(m.activeTab.prev())
		return m, nil, true
	}

	switch msg.String() {
	case "1":
		m.switchTab(TabDashboard)
	case "2":
		m.switchTab(TabSignals)
	case "3":
		m.switchTab(TabRuns)
	case "4":
		m.switchTab(TabChat)
	default:
		return m, nil, false
	}
	return m, nil, true
}

// targetFor picks the child that consumes a message. Data messages carry an
// implicit destination; everything else lands on the active tab.
func (m AppModel) targetFor(msg tea.Msg) Tab {
	switch msg.(type) {
	case latestRecordsMsg, latestRecordsErrMsg, dashTickMsg:
		return TabDashboard
	case recordRowsMsg, recordRowsErrMsg:
		return TabSignals
	case runsMsg, runItemsMsg, runsErrMsg:
		return TabRuns
	case chatReplyMsg, chatFailMsg:
		return TabChat
	}
	return m.activeTab
}

func (m *AppModel) routeToChild(tab Tab, msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch tab {
	case TabDashboard:
		m.dashboard, cmd = m.dashboard.Update(msg)
	case TabSignals:
		m.signals, cmd = m.signals.Update(msg)
	case TabRuns:
		m.runs, cmd = m.runs.Update(msg)
	case TabChat:
		m.chat, cmd = m.chat.Update(msg)
	}
	return cmd
}

// View stacks the tab bar over the focused screen.
func (m AppModel) View() string {
	if m.quitting {
		return "Signing off.\n"
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderTabBar(), m.activeView())
}

func (m AppModel) activeView() string {
	switch m.activeTab {
	case TabSignals:
		return m.signals.View()
	case TabRuns:
		return m.runs.View()
	case TabChat:
		return m.chat.View()
	default:
		return m.dashboard.View()
	}
}

// SetSize records the terminal dimensions and pushes them to the children.
func (m *AppModel) SetSize(w, h int) {
	m.width, m.height = w, h
	m.propagateSize()
}

// ActiveTab exposes the focused tab to tests.
func (m AppModel) ActiveTab() Tab { return m.activeTab }

// switchTab moves focus, handing the prompt cursor to or away from chat.
func (m *AppModel) switchTab(tab Tab) {
	if tab == m.activeTab {
		return
	}
	if m.activeTab == TabChat {
		m.chat.Blur()
	}
	if tab == TabChat {
		m.chat.Focus()
	}
	m.activeTab = tab
}

func (m *AppModel) propagateSize() {
	body := m.height - 2 // tab bar takes the top rows
	m.dashboard.SetSize(m.width, body)
	m.signals.SetSize(m.width, body)
	m.runs.SetSize(m.width, body)
	m.chat.SetSize(m.width, body)
}

func (m AppModel) renderTabBar() string {
	cells := make([]string, len(tabLabels))
	for i, label := range tabLabels {
		if Tab(i) == m.activeTab {
			cells[i] = ActiveTabStyle.Render(label)
		} else {
			cells[i] = InactiveTabStyle.Render(label)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cells...)
}
