package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"swing-trader/internal/domain"
	"swing-trader/internal/metrics"

	tele "gopkg.in/telebot.v3"
)

type SignalLister interface {
	ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.SignalRecord, error)
	GetSignalImage(ctx context.Context, signalID int64) (*domain.SignalImageData, error)
}

type Advisor interface {
	Ask(ctx context.Context, chatID int64, message string) (string, error)
}

// Telegram caps message bodies at 4096 bytes; advisor replies get cut a bit
// under that so the truncation marker always fits.
const maxReplyBytes = 4000

// botHandlers holds the services the command handlers close over.
type botHandlers struct {
	signals SignalLister
	advisor Advisor
	alerts  *AlertDispatcher
}

// StartTelegramBot wires the command handlers and begins long polling. Returns
// the alert dispatcher so batch runs can notify subscribed chats, or nil when
// no token is configured.
func StartTelegramBot(signalService SignalLister, advisorService Advisor, m *metrics.Metrics) *AlertDispatcher {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	h := &botHandlers{
		signals: signalService,
		advisor: advisorService,
		alerts:  NewAlertDispatcher(b, signalService, m),
	}
	h.register(b)

	log.Println("Telegram bot started")
	go b.Start()
	return h.alerts
}

func (h *botHandlers) register(b *tele.Bot) {
	b.Handle("/ping", func(c tele.Context) error { return c.Send("pong") })
	b.Handle("/start", h.handleStart)
	b.Handle("/stop", h.handleStop)
	b.Handle("/signals", h.handleSignals)
	b.Handle("/ask", h.handleAsk)
	b.Handle(tele.OnText, h.handleFreeText)
}

func (h *botHandlers) handleStart(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return c.Send("Unable to detect chat")
	}
	h.alerts.Subscribe(chat.ID)

	return c.Send(strings.Join([]string{
		"Subscribed to swing-trade alerts.",
		"High-probability signals land here as batches complete.",
		"",
		"Commands:",
		"/signals [" + strings.Join(domain.DefaultTickers, "|") + "] - latest records",
		"/ask <question> - analysis assistant",
		"/stop - unsubscribe",
	}, "\n"))
}

func (h *botHandlers) handleStop(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return c.Send("Unable to detect chat")
	}
	if !h.alerts.Unsubscribe(chat.ID) {
		return c.Send("This chat was not subscribed.")
	}
	return c.Send("Unsubscribed. Send /start to resume alerts.")
}

func (h *botHandlers) handleSignals(c tele.Context) error {
	if h.signals == nil {
		return c.Send("Signal service unavailable")
	}

	filter, err := parseSignalArgs(c.Args())
	if err != nil {
		return c.Send(fmt.Sprintf("Usage: /signals [ticker]\nSupported: %s", strings.Join(domain.DefaultTickers, ", ")))
	}

	records, err := h.signals.ListSignals(context.Background(), filter)
	if err != nil {
		return c.Send(fmt.Sprintf("Error fetching signals: %v", err))
	}
	if len(records) == 0 {
		return c.Send("No matching signals right now.")
	}

	if err := c.Send("Latest signals:"); err != nil {
		return err
	}
	for _, rec := range records {
		if err := h.sendRecord(c, rec); err != nil {
			return err
		}
	}
	return nil
}

func (h *botHandlers) handleAsk(c tele.Context) error {
	if h.advisor == nil {
		return c.Send("Advisor not configured. Set OPENAI_API_KEY to enable.")
	}
	question := strings.TrimSpace(c.Message().Payload)
	if question == "" {
		return c.Send("Usage: /ask <question>\nExample: /ask Is the AAPL setup worth a swing entry?")
	}
	return h.advise(c, question)
}

// handleFreeText treats any bare message as an advisor question.
func (h *botHandlers) handleFreeText(c tele.Context) error {
	if h.advisor == nil {
		return nil
	}
	text := strings.TrimSpace(c.Text())
	if text == "" {
		return nil
	}
	return h.advise(c, text)
}

func (h *botHandlers) advise(c tele.Context, question string) error {
	_ = c.Notify(tele.Typing)

	reply, err := h.advisor.Ask(context.Background(), c.Chat().ID, question)
	if err != nil {
		log.Printf("advisor error for chat %d: %v", c.Chat().ID, err)
		return c.Send("Sorry, I'm having trouble right now. Try /signals for raw data.")
	}
	if len(reply) > maxReplyBytes {
		reply = reply[:maxReplyBytes] + "\n\n[truncated]"
	}
	return c.Send(reply)
}

// sendRecord attaches the stored chart PNG when one exists, otherwise the
// caption goes out alone.
func (h *botHandlers) sendRecord(c tele.Context, rec domain.SignalRecord) error {
	caption := formatRecord(rec)
	if rec.ID <= 0 {
		return c.Send(caption, tele.ModeMarkdownV2)
	}

	imageData, err := h.signals.GetSignalImage(context.Background(), rec.ID)
	if err != nil || imageData == nil || len(imageData.Bytes) == 0 {
		return c.Send(caption, tele.ModeMarkdownV2)
	}

	return c.Send(&tele.Photo{
		File:    tele.FromReader(bytes.NewReader(imageData.Bytes)),
		Caption: caption,
	}, tele.ModeMarkdownV2)
}

// parseSignalArgs accepts at most one ticker argument; no argument means all
// tickers.
func parseSignalArgs(args []string) (domain.SignalFilter, error) {
	filter := domain.SignalFilter{Limit: 5}

	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		if filter.Ticker != "" {
			return domain.SignalFilter{}, errors.New("multiple tickers provided")
		}
		ticker := strings.ToUpper(arg)
		if !domain.IsSupportedTicker(ticker) {
			return domain.SignalFilter{}, errors.New("unsupported ticker")
		}
		filter.Ticker = ticker
	}

	return filter, nil
}

var markdownV2Escaper = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)",
	"~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

func escapeMarkdownV2(s string) string {
	return markdownV2Escaper.Replace(s)
}

// formatRecord renders one record as a MarkdownV2 message. Every dynamic
// value passes through the escaper; only the header line carries formatting.
func formatRecord(rec domain.SignalRecord) string {
	return strings.Join([]string{
		fmt.Sprintf("*%s* %s %d%%", escapeMarkdownV2(rec.Ticker), escapeMarkdownV2(string(rec.Trend)), rec.Probability),
		"Pattern: " + escapeMarkdownV2(rec.Pattern),
		"Signals: " + escapeMarkdownV2(rec.Signals),
		fmt.Sprintf("Price %s, targets %s / %s",
			escapeMarkdownV2(fmt.Sprintf("%.2f", rec.CurrentPrice)),
			escapeMarkdownV2(fmt.Sprintf("%.2f", rec.UpperTarget)),
			escapeMarkdownV2(fmt.Sprintf("%.2f", rec.LowerTarget)),
		),
		escapeMarkdownV2(rec.GeneratedAt.UTC().Format(domain.TimestampLayout)),
	}, "\n")
}
