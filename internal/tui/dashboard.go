package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"swing-trader/internal/domain"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// dashRefreshEvery is how often the dashboard re-pulls stored signals.
const dashRefreshEvery = 10 * time.Second

// Messages delivered to the dashboard screen.
type (
	latestRecordsMsg    []domain.SignalRecord
	latestRecordsErrMsg struct{ err error }
	dashTickMsg         time.Time
)

var (
	dashTickerOptions = append([]string{"ALL"}, domain.DefaultTickers...)
	dashTrendOptions  = []string{"ALL", string(domain.TrendBullish), string(domain.TrendBearish), string(domain.TrendNeutral)}
)

// DashboardModel shows the most recent record per ticker with filter chips.
type DashboardModel struct {
	services  Services
	records   []domain.SignalRecord
	tickerIdx int
	trendIdx  int
	loading   bool
	err       error
	width     int
	height    int
}

func NewDashboardModel(svc Services) DashboardModel {
	return DashboardModel{services: svc, loading: true}
}

// Init kicks off the first fetch and the refresh timer.
func (m DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), m.nextTickCmd())
}

// Update folds one message into the model.
func (m DashboardModel) Update(msg tea.Msg) (DashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case latestRecordsMsg:
		m.records = []domain.SignalRecord(msg)
		m.loading = false
		m.err = nil

	case latestRecordsErrMsg:
		m.err = msg.err
		m.loading = false

	case dashTickMsg:
		return m, tea.Batch(m.refreshCmd(), m.nextTickCmd())

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m DashboardModel) handleKey(msg tea.KeyMsg) (DashboardModel, tea.Cmd) {
	switch {
	case key.Matches(msg, DefaultKeyMap.FilterTicker):
		m.tickerIdx = (m.tickerIdx + 1) % len(dashTickerOptions)
	case key.Matches(msg, DefaultKeyMap.FilterTrend):
		m.trendIdx = (m.trendIdx + 1) % len(dashTrendOptions)
	case key.Matches(msg, DefaultKeyMap.Refresh):
	default:
		return m, nil
	}
	m.loading = true
	return m, m.refreshCmd()
}

// View lays out the filter row, the record table beside the trend map, and
// the triggered-heuristics panel underneath.
func (m DashboardModel) View() string {
	if m.loading && len(m.records) == 0 {
		return SubtextStyle.Render("Loading signals...")
	}
	if m.err != nil && len(m.records) == 0 {
		return ErrorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}

	tableWidth, mapWidth := splitColumns(m.width)
	topRow := lipgloss.JoinHorizontal(lipgloss.Top,
		BorderStyle.Width(tableWidth).Render(m.renderRecordTable()),
		BorderStyle.Width(mapWidth).Render(m.renderTrendMapSection()),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderFilters(),
		topRow,
		BorderStyle.Width(m.width-2).Render(m.renderTriggered()),
	)
}

// splitColumns divides the terminal width two-thirds/one-third, with floors
// so narrow terminals still get readable columns.
func splitColumns(total int) (main, side int) {
	main = total*2/3 - 2
	if main < 48 {
		main = 48
	}
	side = total - main - 4
	if side < 15 {
		side = 15
	}
	return main, side
}

// SetSize records the terminal dimensions for layout.
func (m *DashboardModel) SetSize(w, h int) {
	m.width, m.height = w, h
}

// Records exposes the loaded rows to tests.
func (m DashboardModel) Records() []domain.SignalRecord { return m.records }

// FilterState exposes the active filter indices to tests.
func (m DashboardModel) FilterState() (tickerIdx, trendIdx int) {
	return m.tickerIdx, m.trendIdx
}

func (m DashboardModel) renderFilters() string {
	tickerChip := renderChip("Ticker", dashTickerOptions, m.tickerIdx)
	trendChip := renderChip("Trend", dashTrendOptions, m.trendIdx)
	return "  " + lipgloss.JoinHorizontal(lipgloss.Top, tickerChip, "  ", trendChip)
}

func (m DashboardModel) renderRecordTable() string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render("  Latest Signals by Ticker"))
	b.WriteString("\n" + SubtextStyle.Render("  Ticker Trend     Prob Pattern                    Price    Volume"))
	b.WriteString("\n" + SubtextStyle.Render(strings.Repeat("─", 66)))

	for _, rec := range m.records {
		b.WriteString("\n  " + formatDashRow(rec))
	}
	if len(m.records) == 0 {
		b.WriteString("\n" + SubtextStyle.Render("  No signal data yet. Waiting for the next batch."))
	}
	return b.String()
}

func (m DashboardModel) renderTrendMapSection() string {
	mapWidth := m.width/3 - 4
	if mapWidth < 15 {
		mapWidth = 15
	}
	return HeaderStyle.Render("  Trend Map") + "\n" + RenderTrendMap(m.records, mapWidth)
}

// renderTriggered lists tickers whose latest record fired at least one
// heuristic, capped at ten rows.
func (m DashboardModel) renderTriggered() string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render("  Triggered Heuristics"))

	shown := 0
	for _, rec := range m.records {
		if rec.Signals == "" || rec.Signals == domain.NoneLabel {
			continue
		}
		fmt.Fprintf(&b, "\n  %-6s %s", rec.Ticker, rec.Signals)
		shown++
		if shown == 10 {
			break
		}
	}
	if shown == 0 {
		b.WriteString("\n" + SubtextStyle.Render("  No heuristics firing right now"))
	}
	return b.String()
}

func formatDashRow(rec domain.SignalRecord) string {
	probStyle := ProbBaseStyle
	if rec.Probability >= domain.ProbabilityAligned {
		probStyle = ProbHighStyle
	}
	return fmt.Sprintf("%-6s %s %s %-26s %8s  %s",
		rec.Ticker,
		trendStyle(rec.Trend).Render(fmt.Sprintf("%-9s", rec.Trend)),
		probStyle.Render(fmt.Sprintf("%3d%%", rec.Probability)),
		rec.Pattern,
		formatPrice(rec.CurrentPrice),
		formatShares(rec.Volume),
	)
}

// refreshCmd queries stored signals under the active filters and collapses
// the result to one row per ticker.
func (m DashboardModel) refreshCmd() tea.Cmd {
	filter := domain.SignalFilter{Limit: 50}
	if m.tickerIdx > 0 && m.tickerIdx < len(dashTickerOptions) {
		filter.Ticker = dashTickerOptions[m.tickerIdx]
	}
	if m.trendIdx > 0 && m.trendIdx < len(dashTrendOptions) {
		filter.Trend = domain.Trend(dashTrendOptions[m.trendIdx])
	}

	return func() tea.Msg {
		if m.services.Signals == nil {
			return latestRecordsErrMsg{err: fmt.Errorf("signal service not available")}
		}
		records, err := m.services.Signals.ListSignals(context.Background(), filter)
		if err != nil {
			return latestRecordsErrMsg{err: err}
		}
		return latestRecordsMsg(latestPerTicker(records))
	}
}

// latestPerTicker keeps the first (most recent) record per ticker, preserving
// the listing order.
func latestPerTicker(records []domain.SignalRecord) []domain.SignalRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]domain.SignalRecord, 0, len(records))
	for _, rec := range records {
		if _, ok := seen[rec.Ticker]; ok {
			continue
		}
		seen[rec.Ticker] = struct{}{}
		out = append(out, rec)
	}
	return out
}

func (m DashboardModel) nextTickCmd() tea.Cmd {
	return tea.Tick(dashRefreshEvery, func(t time.Time) tea.Msg {
		return dashTickMsg(t)
	})
}
