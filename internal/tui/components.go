package tui

import (
	"fmt"
	"math"
	"strings"

	"swing-trader/internal/domain"

	"github.com/charmbracelet/lipgloss"
)

// FormatRecord renders a signal record as a single table row.
func FormatRecord(rec domain.SignalRecord) string {
	probStyle := ProbBaseStyle
	if rec.Probability >= domain.ProbabilityAligned {
		probStyle = ProbHighStyle
	}

	return fmt.Sprintf("#%-4d %-6s %-4s %s %s %-24s %9s  %s",
		rec.ID,
		rec.Ticker,
		rec.Interval,
		trendStyle(rec.Trend).Render(fmt.Sprintf("%-8s", rec.Trend)),
		probStyle.Render(fmt.Sprintf("%3d%%", rec.Probability)),
		rec.Pattern,
		formatPrice(rec.CurrentPrice),
		rec.GeneratedAt.Format(domain.TimestampLayout),
	)
}

// FormatRun renders a batch run as a single line with a success ratio bar.
func FormatRun(run domain.BatchRun, barWidth int) string {
	ratio := 0.0
	if run.Requested > 0 {
		ratio = float64(run.Succeeded) / float64(run.Requested)
	}
	label := run.StartedAt.Format("01-02 15:04")
	bar := RenderBarChart(label, ratio, barWidth)
	return fmt.Sprintf("%s  %d/%d %s/%s", bar, run.Succeeded, run.Requested, run.Period, run.Interval)
}

// FormatBatchItem renders one per-ticker batch outcome.
func FormatBatchItem(item domain.BatchItem) string {
	detail := item.Detail
	if detail == "" {
		detail = "-"
	}
	return fmt.Sprintf("%-6s %s  %s",
		item.Ticker,
		statusStyle(item.Status).Render(fmt.Sprintf("%-22s", string(item.Status))),
		detail,
	)
}

const trendCellWidth = 8

// RenderTrendMap lays ticker cells out in a grid, colored by the latest
// trend per ticker.
func RenderTrendMap(records []domain.SignalRecord, width int) string {
	if len(records) == 0 {
		return SubtextStyle.Render("No signal data")
	}

	cols := max(width/trendCellWidth, 1)
	var rows []string
	for start := 0; start < len(records); start += cols {
		chunk := records[start:min(start+cols, len(records))]
		cells := make([]string, len(chunk))
		for i, rec := range chunk {
			cells[i] = trendCell(rec)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return strings.Join(rows, "\n")
}

func trendCell(rec domain.SignalRecord) string {
	bg := HeatNeutral
	switch rec.Trend {
	case domain.TrendBullish:
		bg = HeatGreen
	case domain.TrendBearish:
		bg = HeatRed
	}
	style := lipgloss.NewStyle().
		Background(bg).
		Foreground(lipgloss.Color("#000000")).
		Bold(true).
		Width(trendCellWidth - 1).
		Align(lipgloss.Center)
	return style.Render(rec.Ticker)
}

// RenderBarChart renders an ASCII bar of a 0..1 ratio.
func RenderBarChart(label string, ratio float64, barWidth int) string {
	if barWidth <= 0 {
		barWidth = 20
	}
	filled := min(max(int(math.Round(ratio*float64(barWidth))), 0), barWidth)

	var style lipgloss.Style
	switch {
	case ratio < 0.6:
		style = RatioBadStyle
	case ratio < 0.99:
		style = RatioOkStyle
	default:
		style = RatioGoodStyle
	}

	solid := style.Render(strings.Repeat("█", filled))
	rest := SubtextStyle.Render(strings.Repeat("░", barWidth-filled))
	return fmt.Sprintf("%-12s %s%s %.0f%%", label, solid, rest, ratio*100)
}

// renderChip renders a labeled filter chip row with the active option
// highlighted.
func renderChip(label string, options []string, active int) string {
	var parts []string
	parts = append(parts, SubtextStyle.Render(label+": "))
	for i, opt := range options {
		display := strings.ToUpper(opt)
		if len(display) > 8 {
			display = display[:8]
		}
		if i == active {
			parts = append(parts, ActiveTabStyle.Render(display))
		} else {
			parts = append(parts, SubtextStyle.Render(display))
		}
		parts = append(parts, " ")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func trendStyle(t domain.Trend) lipgloss.Style {
	switch t {
	case domain.TrendBullish:
		return TrendUpStyle
	case domain.TrendBearish:
		return TrendDownStyle
	default:
		return TrendFlatStyle
	}
}

func statusStyle(s domain.BatchStatus) lipgloss.Style {
	switch s {
	case domain.BatchItemOK:
		return StatusOKStyle
	case domain.BatchItemNoData, domain.BatchItemInsufficientHistory:
		return StatusWarnStyle
	default:
		return StatusErrStyle
	}
}

func formatPrice(v float64) string {
	if v >= 1000 {
		return "$" + addCommas(fmt.Sprintf("%.2f", v))
	}
	return fmt.Sprintf("$%.2f", v)
}

// addCommas inserts thousands separators into a formatted decimal.
func addCommas(s string) string {
	intPart, fracPart := s, ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart, fracPart = s[:dot], s[dot:]
	}
	if len(intPart) <= 3 {
		return s
	}

	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	b.WriteString(fracPart)
	return b.String()
}

func formatShares(v int64) string {
	f := float64(v)
	switch {
	case f >= 1e9:
		return fmt.Sprintf("%.1fB", f/1e9)
	case f >= 1e6:
		return fmt.Sprintf("%.1fM", f/1e6)
	case f >= 1e3:
		return fmt.Sprintf("%.1fK", f/1e3)
	default:
		return fmt.Sprintf("%d", v)
	}
}
