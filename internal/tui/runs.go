package tui

import (
	"context"
	"fmt"
	"strings"

	"swing-trader/internal/domain"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// Messages delivered to the run history screen.
type (
	runsMsg     []domain.BatchRun
	runItemsMsg []domain.BatchItem
	runsErrMsg  struct{ err error }
)

// The screen toggles between the run list and the per-ticker items of the
// selected run.
const (
	runsViewList  = 0
	runsViewItems = 1
)

// RunsModel is the Bubble Tea model for the batch run history screen.
type RunsModel struct {
	services   Services
	runs       []domain.BatchRun
	items      []domain.BatchItem
	cursor     int
	activeView int
	loading    bool
	err        error
	width      int
	height     int
}

func NewRunsModel(svc Services) RunsModel {
	return RunsModel{services: svc, loading: true}
}

// Init loads the run list.
func (m RunsModel) Init() tea.Cmd {
	return m.loadRunsCmd()
}

// Update folds one message into the model.
func (m RunsModel) Update(msg tea.Msg) (RunsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case runsMsg:
		m.runs = []domain.BatchRun(msg)
		m.loading = false
		m.err = nil
		if m.cursor >= len(m.runs) {
			m.cursor = 0
		}

	case runItemsMsg:
		m.items = []domain.BatchItem(msg)
		m.loading = false

	case runsErrMsg:
		m.err = msg.err
		m.loading = false

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m RunsModel) handleKey(msg tea.KeyMsg) (RunsModel, tea.Cmd) {
	switch {
	case key.Matches(msg, DefaultKeyMap.ToggleView):
		if m.activeView == runsViewItems {
			m.activeView = runsViewList
			return m, nil
		}
		if len(m.runs) == 0 {
			return m, nil
		}
		m.activeView = runsViewItems
		m.loading = true
		return m, m.loadItemsCmd(m.runs[m.cursor].ID)

	case key.Matches(msg, DefaultKeyMap.Refresh):
		m.loading = true
		if m.activeView == runsViewItems && m.cursor < len(m.runs) {
			return m, m.loadItemsCmd(m.runs[m.cursor].ID)
		}
		return m, m.loadRunsCmd()

	case msg.String() == "j" || msg.String() == "down":
		if m.activeView == runsViewList && m.cursor < len(m.runs)-1 {
			m.cursor++
		}

	case msg.String() == "k" || msg.String() == "up":
		if m.activeView == runsViewList && m.cursor > 0 {
			m.cursor--
		}
	}

	return m, nil
}

// View renders the header, the active sub-view, and the key legend.
func (m RunsModel) View() string {
	viewLabel := "[Runs]  Items"
	if m.activeView == runsViewItems {
		viewLabel = " Runs  [Items]"
	}

	var b strings.Builder
	b.WriteString(HeaderStyle.Render("  Batch Runs") + "  " + SubtextStyle.Render(viewLabel))
	b.WriteString("\n\n")

	switch {
	case m.loading:
		b.WriteString(SubtextStyle.Render("  Loading run history..."))
		return b.String()
	case m.err != nil:
		b.WriteString(ErrorStyle.Render(fmt.Sprintf("  Error: %v", m.err)))
		return b.String()
	case m.activeView == runsViewList:
		b.WriteString(m.renderRunList())
	default:
		b.WriteString(m.renderRunItems())
	}

	b.WriteString("\n\n" + SubtextStyle.Render("  [v] toggle view  [j/k] select run  [R] refresh"))
	return b.String()
}

// SetSize records the terminal dimensions for layout.
func (m *RunsModel) SetSize(w, h int) {
	m.width, m.height = w, h
}

// ActiveView exposes the current sub-view to tests.
func (m RunsModel) ActiveView() int { return m.activeView }

// RunCount exposes the number of loaded runs to tests.
func (m RunsModel) RunCount() int { return len(m.runs) }

// ItemCount exposes the number of loaded run items to tests.
func (m RunsModel) ItemCount() int { return len(m.items) }

// Cursor exposes the selected run index to tests.
func (m RunsModel) Cursor() int { return m.cursor }

func (m RunsModel) renderRunList() string {
	if len(m.runs) == 0 {
		return SubtextStyle.Render("  No batch runs recorded yet.")
	}

	barWidth := min(max(m.width/3-5, 10), 30)
	shown := min(len(m.runs), max(m.height-10, 5))

	var b strings.Builder
	b.WriteString(HeaderStyle.Render("  Success Ratio by Run"))
	b.WriteString("\n")
	for i := range shown {
		marker := " "
		if i == m.cursor {
			marker = "▸"
		}
		fmt.Fprintf(&b, "\n  %s %s", marker, FormatRun(m.runs[i], barWidth))
	}
	if shown < len(m.runs) {
		b.WriteString("\n" + SubtextStyle.Render(fmt.Sprintf("  Showing %d of %d runs", shown, len(m.runs))))
	}
	return b.String()
}

func (m RunsModel) renderRunItems() string {
	var b strings.Builder

	if m.cursor < len(m.runs) {
		run := m.runs[m.cursor]
		b.WriteString(HeaderStyle.Render(fmt.Sprintf("  Run %s", run.ID)))
		b.WriteString("\n" + SubtextStyle.Render(fmt.Sprintf("  %s  %s/%s  %d/%d tickers succeeded",
			run.StartedAt.Format(domain.TimestampLayout), run.Period, run.Interval, run.Succeeded, run.Requested)))
		b.WriteString("\n")
	}

	if len(m.items) == 0 {
		b.WriteString("\n" + SubtextStyle.Render("  No per-ticker outcomes recorded for this run."))
		return b.String()
	}

	b.WriteString("\n" + SubtextStyle.Render(fmt.Sprintf("  %-6s %-22s %s", "Ticker", "Status", "Detail")))
	b.WriteString("\n" + SubtextStyle.Render("  "+strings.Repeat("─", 56)))

	shown := min(len(m.items), max(m.height-12, 5))
	for i := range shown {
		b.WriteString("\n  " + FormatBatchItem(m.items[i]))
	}
	if shown < len(m.items) {
		b.WriteString("\n" + SubtextStyle.Render(fmt.Sprintf("  Showing %d of %d items", shown, len(m.items))))
	}
	return b.String()
}

func (m RunsModel) loadRunsCmd() tea.Cmd {
	return func() tea.Msg {
		if m.services.Runs == nil {
			return runsErrMsg{err: fmt.Errorf("run service not available")}
		}
		runs, err := m.services.Runs.ListRecentRuns(context.Background(), 30)
		if err != nil {
			return runsErrMsg{err: err}
		}
		return runsMsg(runs)
	}
}

func (m RunsModel) loadItemsCmd(runID string) tea.Cmd {
	return func() tea.Msg {
		if m.services.Runs == nil {
			return runsErrMsg{err: fmt.Errorf("run service not available")}
		}
		items, err := m.services.Runs.GetRunItems(context.Background(), runID)
		if err != nil {
			return runsErrMsg{err: err}
		}
		return runItemsMsg(items)
	}
}
