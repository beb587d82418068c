package advisor

import (
	"context"
	"fmt"
	"log"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"swing-trader/internal/domain"
)

const (
	defaultMaxHistory = 20
	promptSignalLimit = 20
	promptBarLookback = 5
	maxQuestionRunes  = 500
)

// LLMClient is the chat-completion surface the advisor depends on. Turns
// carry the prior conversation plus the new user message, oldest first.
type LLMClient interface {
	Complete(ctx context.Context, model, system string, turns []domain.ConversationMessage) (string, error)
}

// BarQuerier provides stored bar history for the prompt context.
type BarQuerier interface {
	RecentBars(ctx context.Context, ticker, interval string, limit int) ([]domain.Bar, error)
}

// SignalQuerier provides persisted signal records for the prompt context.
type SignalQuerier interface {
	ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.SignalRecord, error)
}

// ConversationStore persists per-chat history across asks.
type ConversationStore interface {
	AppendMessage(ctx context.Context, chatID int64, role, content string) error
	RecentMessages(ctx context.Context, chatID int64, limit int) ([]domain.ConversationMessage, error)
}

// AdvisorService answers free-form questions about the signal universe. Every
// ask is grounded with the latest engine output; the LLM never sees data the
// engine did not produce.
type AdvisorService struct {
	tracer        trace.Tracer
	llm           LLMClient
	bars          BarQuerier
	signals       SignalQuerier
	conversations ConversationStore
	model         string
	maxHistory    int
}

func NewAdvisorService(
	tracer trace.Tracer,
	llm LLMClient,
	bars BarQuerier,
	signals SignalQuerier,
	conversations ConversationStore,
	model string,
	maxHistory int,
) *AdvisorService {
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	return &AdvisorService{
		tracer:        tracer,
		llm:           llm,
		bars:          bars,
		signals:       signals,
		conversations: conversations,
		model:         model,
		maxHistory:    maxHistory,
	}
}

// Ask answers one user question in the context of the chat's history and the
// latest market snapshot. History persistence is best-effort: a dead store
// degrades to stateless answers, never to a failed ask.
func (s *AdvisorService) Ask(ctx context.Context, chatID int64, question string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.ask")
	defer span.End()

	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("empty question")
	}
	if runes := []rune(question); len(runes) > maxQuestionRunes {
		question = string(runes[:maxQuestionRunes])
	}
	if s.llm == nil {
		return "", fmt.Errorf("advisor disabled: no LLM client")
	}

	turns := s.history(ctx, chatID)
	turns = append(turns, domain.ConversationMessage{Role: "user", Content: question})

	reply, err := s.llm.Complete(ctx, s.model, s.buildSystemPrompt(ctx), turns)
	if err != nil {
		return "", fmt.Errorf("advisor completion: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("advisor returned an empty reply")
	}

	s.remember(ctx, chatID, "user", question)
	s.remember(ctx, chatID, "assistant", reply)

	return reply, nil
}

// buildSystemPrompt assembles the market context block. Failures while
// gathering context shrink the prompt instead of failing the ask.
func (s *AdvisorService) buildSystemPrompt(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("You are the analysis advisor for a swing-trade signal engine covering ")
	b.WriteString(strings.Join(domain.DefaultTickers, ", "))
	b.WriteString(". The engine evaluates RSI(14), MACD(12,26,9), ATR(14), EMA(9/21) crossovers, ")
	b.WriteString("volume spikes against a 10-bar average, and 5-close candlestick patterns on daily bars.\n\n")

	if prices := s.priceContext(ctx); prices != "" {
		b.WriteString("Recent closes:\n")
		b.WriteString(prices)
		b.WriteString("\n")
	}

	if records := s.signalContext(ctx); records != "" {
		b.WriteString("Latest signal records:\n")
		b.WriteString(records)
		b.WriteString("\n")
	}

	b.WriteString("Answer concisely. Reference the indicator values above when they are relevant. ")
	b.WriteString("Always note that signals are informational and not financial advice.")

	return b.String()
}

func (s *AdvisorService) priceContext(ctx context.Context) string {
	if s.bars == nil {
		return ""
	}
	var b strings.Builder
	for _, ticker := range domain.DefaultTickers {
		bars, err := s.bars.RecentBars(ctx, ticker, domain.DefaultInterval, promptBarLookback)
		if err != nil || len(bars) == 0 {
			continue
		}
		last := bars[len(bars)-1]
		line := fmt.Sprintf("- %s: close %.2f", ticker, last.Close)
		if len(bars) > 1 {
			first := bars[0]
			if first.Close != 0 {
				change := (last.Close - first.Close) / first.Close * 100
				line += fmt.Sprintf(" (%+.1f%% over %d bars)", change, len(bars))
			}
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (s *AdvisorService) signalContext(ctx context.Context) string {
	if s.signals == nil {
		return ""
	}
	records, err := s.signals.ListSignals(ctx, domain.SignalFilter{Limit: promptSignalLimit})
	if err != nil {
		log.Printf("advisor signal context: %v", err)
		return ""
	}

	seen := make(map[string]struct{}, len(records))
	var b strings.Builder
	for _, rec := range records {
		if _, ok := seen[rec.Ticker]; ok {
			continue
		}
		seen[rec.Ticker] = struct{}{}
		b.WriteString(fmt.Sprintf("- %s %s %d%% | %s | signals: %s | RSI %.1f MACD %.2f | price %.2f targets %.2f/%.2f\n",
			rec.Ticker, rec.Trend, rec.Probability, rec.Pattern, rec.Signals,
			rec.RSI, rec.MACD, rec.CurrentPrice, rec.UpperTarget, rec.LowerTarget))
	}
	return b.String()
}

func (s *AdvisorService) history(ctx context.Context, chatID int64) []domain.ConversationMessage {
	if s.conversations == nil {
		return nil
	}
	msgs, err := s.conversations.RecentMessages(ctx, chatID, s.maxHistory)
	if err != nil {
		log.Printf("advisor history for chat %d: %v", chatID, err)
		return nil
	}
	return msgs
}

func (s *AdvisorService) remember(ctx context.Context, chatID int64, role, content string) {
	if s.conversations == nil {
		return
	}
	if err := s.conversations.AppendMessage(ctx, chatID, role, content); err != nil {
		log.Printf("advisor persist %s message for chat %d: %v", role, chatID, err)
	}
}
