package tui

import (
	"context"
	"fmt"
	"strings"

	"swing-trader/internal/domain"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type recordRowsMsg []domain.SignalRecord
type recordRowsErrMsg struct{ err error }

// Filter cycles. Index 0 means no constraint.
var (
	tickerCycle = append([]string{"ALL"}, domain.DefaultTickers...)
	trendCycle  = []string{"ALL", string(domain.TrendBullish), string(domain.TrendBearish), string(domain.TrendNeutral)}
)

// RecordExplorerModel is the signals tab: a filterable, scrollable table of
// persisted signal records.
type RecordExplorerModel struct {
	services  Services
	records   []domain.SignalRecord
	tickerIdx int
	trendIdx  int
	offset    int
	fetching  bool
	fetchErr  error
	width     int
	height    int
}

func NewRecordExplorerModel(svc Services) RecordExplorerModel {
	return RecordExplorerModel{services: svc, fetching: true}
}

// Init fires the initial record fetch.
func (m RecordExplorerModel) Init() tea.Cmd {
	return m.fetchRecordsCmd()
}

// Update folds one message into the model.
func (m RecordExplorerModel) Update(msg tea.Msg) (RecordExplorerModel, tea.Cmd) {
	switch msg := msg.(type) {
	case recordRowsMsg:
		m.records = []domain.SignalRecord(msg)
		m.offset = 0
		m.fetching = false
		m.fetchErr = nil
		return m, nil

	case recordRowsErrMsg:
		m.fetchErr = msg.err
		m.fetching = false
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m RecordExplorerModel) handleKey(msg tea.KeyMsg) (RecordExplorerModel, tea.Cmd) {
	switch {
	case key.Matches(msg, DefaultKeyMap.FilterTicker):
		m.tickerIdx = (m.tickerIdx + 1) % len(tickerCycle)
		return m.refetch()

	case key.Matches(msg, DefaultKeyMap.FilterTrend):
		m.trendIdx = (m.trendIdx + 1) % len(trendCycle)
		return m.refetch()

	case key.Matches(msg, DefaultKeyMap.Refresh):
		return m.refetch()

	case msg.String() == "j" || msg.String() == "down":
		m.scrollBy(1)

	case msg.String() == "k" || msg.String() == "up":
		m.scrollBy(-1)
	}

	return m, nil
}

func (m RecordExplorerModel) refetch() (RecordExplorerModel, tea.Cmd) {
	m.fetching = true
	return m, m.fetchRecordsCmd()
}

func (m *RecordExplorerModel) scrollBy(delta int) {
	m.offset = min(max(m.offset+delta, 0), max(len(m.records)-m.visibleRows(), 0))
}

// View renders the record explorer.
func (m RecordExplorerModel) View() string {
	lines := []string{
		HeaderStyle.Render("  Record Explorer"),
		"",
		m.renderFilters(),
		SubtextStyle.Render(strings.Repeat("─", max(m.width-2, 0))),
	}

	switch {
	case m.fetching:
		lines = append(lines, SubtextStyle.Render("  Loading..."))
	case m.fetchErr != nil:
		lines = append(lines, ErrorStyle.Render(fmt.Sprintf("  Error: %v", m.fetchErr)))
	case len(m.records) == 0:
		lines = append(lines, SubtextStyle.Render("  No records match the current filters"))
	default:
		lines = append(lines, m.renderTable()...)
		lines = append(lines, "", SubtextStyle.Render("  [s] ticker  [t] trend  [R] refresh  [j/k] scroll"))
	}

	return strings.Join(lines, "\n")
}

func (m RecordExplorerModel) renderTable() []string {
	header := SubtextStyle.Render(
		fmt.Sprintf("  %-5s %-6s %-4s %-8s %-4s %-24s %9s  %s",
			"ID", "Ticker", "Int", "Trend", "Prob", "Pattern", "Price", "Generated"),
	)
	out := []string{header}

	end := min(m.offset+m.visibleRows(), len(m.records))
	for _, rec := range m.records[m.offset:end] {
		out = append(out, "  "+FormatRecord(rec))
	}

	if len(m.records) > m.visibleRows() {
		out = append(out, SubtextStyle.Render(
			fmt.Sprintf("  Showing %d-%d of %d (j/k to scroll)", m.offset+1, end, len(m.records)),
		))
	}

	return out
}

// SetSize records the terminal dimensions for layout.
func (m *RecordExplorerModel) SetSize(w, h int) {
	m.width, m.height = w, h
}

// FilterState reports the active filter indices.
func (m RecordExplorerModel) FilterState() (tickerIdx, trendIdx int) {
	return m.tickerIdx, m.trendIdx
}

// RecordCount reports how many records are loaded.
func (m RecordExplorerModel) RecordCount() int { return len(m.records) }

func (m RecordExplorerModel) renderFilters() string {
	return "  " + lipgloss.JoinHorizontal(lipgloss.Top,
		renderChip("Ticker", tickerCycle, m.tickerIdx),
		"  ",
		renderChip("Trend", trendCycle, m.trendIdx),
	)
}

func (m RecordExplorerModel) buildFilter() domain.SignalFilter {
	filter := domain.SignalFilter{Limit: 100}
	if m.tickerIdx > 0 {
		filter.Ticker = tickerCycle[m.tickerIdx]
	}
	if m.trendIdx > 0 {
		filter.Trend = domain.Trend(trendCycle[m.trendIdx])
	}
	return filter
}

func (m RecordExplorerModel) fetchRecordsCmd() tea.Cmd {
	svc := m.services.Signals
	filter := m.buildFilter()
	return func() tea.Msg {
		if svc == nil {
			return recordRowsErrMsg{err: fmt.Errorf("signal service not available")}
		}
		records, err := svc.ListSignals(context.Background(), filter)
		if err != nil {
			return recordRowsErrMsg{err: err}
		}
		return recordRowsMsg(records)
	}
}

// visibleRows is the table capacity once the chrome above and below it is
// accounted for.
func (m RecordExplorerModel) visibleRows() int {
	return max(m.height-10, 5)
}
