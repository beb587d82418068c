package tui

import "github.com/charmbracelet/lipgloss"

// Shared palette. Screens never hardcode hex values.
var (
	colAccent  = lipgloss.Color("#7D56F4")
	colBright  = lipgloss.Color("#FAFAFA")
	colDim     = lipgloss.Color("#888888")
	colEdge    = lipgloss.Color("#555555")
	colGain    = lipgloss.Color("#00FF00")
	colLoss    = lipgloss.Color("#FF0000")
	colCaution = lipgloss.Color("#FFFF00")
)

var (
	TabStyle         = lipgloss.NewStyle().Padding(0, 2)
	ActiveTabStyle   = TabStyle.Bold(true).Foreground(colBright).Background(colAccent)
	InactiveTabStyle = TabStyle.Foreground(colDim)

	TrendUpStyle   = lipgloss.NewStyle().Foreground(colGain).Bold(true)
	TrendDownStyle = lipgloss.NewStyle().Foreground(colLoss).Bold(true)
	TrendFlatStyle = lipgloss.NewStyle().Foreground(colCaution)

	ProbHighStyle = lipgloss.NewStyle().Foreground(colGain)
	ProbBaseStyle = lipgloss.NewStyle().Foreground(colDim)

	StatusOKStyle   = lipgloss.NewStyle().Foreground(colGain)
	StatusWarnStyle = lipgloss.NewStyle().Foreground(colCaution)
	StatusErrStyle  = lipgloss.NewStyle().Foreground(colLoss)

	HeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(colBright)
	SubtextStyle = lipgloss.NewStyle().Foreground(colDim)
	BorderStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colEdge)
	ErrorStyle   = lipgloss.NewStyle().Foreground(colLoss)
	SpinnerColor = colAccent

	UserMsgStyle      = lipgloss.NewStyle().Foreground(colAccent).Bold(true)
	AssistantMsgStyle = lipgloss.NewStyle().Foreground(colBright)

	HeatGreen   = colGain
	HeatRed     = colLoss
	HeatNeutral = colEdge

	RatioGoodStyle = lipgloss.NewStyle().Foreground(colGain)
	RatioOkStyle   = lipgloss.NewStyle().Foreground(colCaution)
	RatioBadStyle  = lipgloss.NewStyle().Foreground(colLoss)
)
