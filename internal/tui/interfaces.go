package tui

import (
	"context"

	"swing-trader/internal/domain"
)

// SignalQuerier hands the explorer stored signal records.
type SignalQuerier interface {
	ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.SignalRecord, error)
}

// RunQuerier hands the runs screen batch history and per-ticker items.
type RunQuerier interface {
	ListRecentRuns(ctx context.Context, limit int) ([]domain.BatchRun, error)
	GetRunItems(ctx context.Context, runID string) ([]domain.BatchItem, error)
}

// AdvisorQuerier is the chat screen's line to the LLM advisor.
type AdvisorQuerier interface {
	Ask(ctx context.Context, chatID int64, message string) (string, error)
}

// SSH sessions share the advisor conversation store with Telegram chats.
// Synthetic chat IDs grow downward from this offset, keyed by user ID, so
// the two ranges can never meet.
const SSHChatIDOffset int64 = -1_000_000

// Services is the dependency bundle handed to NewAppModel. Any nil field
// degrades its screen to a placeholder instead of crashing the session.
type Services struct {
	Signals  SignalQuerier
	Runs     RunQuerier
	Advisor  AdvisorQuerier
	UserID   int64
	Username string
}

// ChatID derives the synthetic conversation key for this session.
func (s Services) ChatID() int64 {
	return SSHChatIDOffset - s.UserID
}
