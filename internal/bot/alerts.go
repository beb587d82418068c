package bot

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"

	"swing-trader/internal/domain"
	"swing-trader/internal/metrics"

	tele "gopkg.in/telebot.v3"
)

type messageSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type chartFetcher interface {
	GetSignalImage(ctx context.Context, signalID int64) (*domain.SignalImageData, error)
}

// AlertDispatcher broadcasts high-probability records to subscribed chats.
type AlertDispatcher struct {
	sender  messageSender
	charts  chartFetcher
	metrics *metrics.Metrics

	mu          sync.RWMutex
	subscribers map[int64]struct{}
}

func NewAlertDispatcher(sender messageSender, charts chartFetcher, m *metrics.Metrics) *AlertDispatcher {
	return &AlertDispatcher{
		sender:      sender,
		charts:      charts,
		metrics:     m,
		subscribers: make(map[int64]struct{}),
	}
}

// Subscribe reports whether the chat was newly added.
func (d *AlertDispatcher) Subscribe(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	before := len(d.subscribers)
	d.subscribers[chatID] = struct{}{}
	return len(d.subscribers) > before
}

// Unsubscribe reports whether the chat had been subscribed.
func (d *AlertDispatcher) Unsubscribe(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	before := len(d.subscribers)
	delete(d.subscribers, chatID)
	return len(d.subscribers) < before
}

func (d *AlertDispatcher) IsSubscribed(chatID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.subscribers[chatID]
	return ok
}

func (d *AlertDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

// PublishRecords receives every record a batch persisted and forwards the
// high-probability ones. Delivery runs on its own goroutine so a slow
// Telegram API never stalls a batch.
func (d *AlertDispatcher) PublishRecords(records []domain.SignalRecord) {
	if d == nil || d.sender == nil {
		return
	}

	var flagged []domain.SignalRecord
	for _, rec := range records {
		if rec.Probability >= domain.ProbabilityAligned {
			flagged = append(flagged, rec)
		}
	}
	if len(flagged) == 0 {
		return
	}

	go func() {
		if err := d.Broadcast(context.Background(), flagged); err != nil {
			log.Printf("telegram alert dispatch: %v", err)
		}
	}()
}

// Broadcast sends each record to every subscribed chat, attaching the stored
// chart image when one is ready.
func (d *AlertDispatcher) Broadcast(ctx context.Context, records []domain.SignalRecord) error {
	if d == nil || d.sender == nil || len(records) == 0 {
		return nil
	}

	chatIDs := d.chatList()
	if len(chatIDs) == 0 {
		return nil
	}

	var failures []string
	for _, rec := range records {
		payload := d.alertPayload(ctx, rec)
		for _, chatID := range chatIDs {
			if err := d.deliver(chatID, payload); err != nil {
				failures = append(failures, fmt.Sprintf("chat %d: %v", chatID, err))
			}
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("failed sending %d alerts: %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}

func (d *AlertDispatcher) deliver(chatID int64, payload interface{}) error {
	if _, err := d.sender.Send(&tele.Chat{ID: chatID}, payload, tele.ModeMarkdownV2); err != nil {
		return err
	}
	if d.metrics != nil {
		d.metrics.TelegramAlertsTotal.Inc()
	}
	return nil
}

// alertPayload returns a photo when a rendered chart exists, a bare caption
// otherwise.
func (d *AlertDispatcher) alertPayload(ctx context.Context, rec domain.SignalRecord) interface{} {
	caption := "Signal alert\n" + formatRecord(rec)
	if d.charts == nil || rec.ID <= 0 {
		return caption
	}
	imageData, err := d.charts.GetSignalImage(ctx, rec.ID)
	if err != nil || imageData == nil || len(imageData.Bytes) == 0 {
		return caption
	}
	return &tele.Photo{
		File:    tele.FromReader(bytes.NewReader(imageData.Bytes)),
		Caption: caption,
	}
}

// chatList snapshots the subscriber set in ascending order so delivery is
// deterministic.
func (d *AlertDispatcher) chatList() []int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	chatIDs := make([]int64, 0, len(d.subscribers))
	for chatID := range d.subscribers {
		chatIDs = append(chatIDs, chatID)
	}
	slices.Sort(chatIDs)
	return chatIDs
}
