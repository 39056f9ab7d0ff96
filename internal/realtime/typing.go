package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"matchme-client/internal/models"
	"matchme-client/internal/telemetry"
)

// typingChannel is the slice of the session the coordinator publishes and
// subscribes through.
type typingChannel interface {
	connected() bool
	publishJSON(destination string, v any) bool
	subscribe(topic string, handler frameHandler) (Unsubscriber, bool)
}

// TypingCoordinator publishes local typing intent and tracks remote typing state.
// It holds no timers; debounce policy belongs to the caller.
type TypingCoordinator struct {
	ch   typingChannel
	ids  *userIDCache
	subs *Registry
	log  *slog.Logger

	mu     sync.Mutex
	local  map[int64]bool
	remote map[int64]bool
}

func newTypingCoordinator(ch typingChannel, ids *userIDCache, log *slog.Logger) *TypingCoordinator {
	return &TypingCoordinator{
		ch:     ch,
		ids:    ids,
		subs:   NewRegistry(),
		log:    log,
		local:  make(map[int64]bool),
		remote: make(map[int64]bool),
	}
}

// NotifyTypingIntent publishes a typing event when the local state for chatID
// changes. Repeating the current state is a no-op, as is calling it while
// disconnected.
func (t *TypingCoordinator) NotifyTypingIntent(ctx context.Context, chatID int64, isTyping bool) {
	if !t.ch.connected() {
		t.log.Debug("realtime: typing intent dropped, not connected", "chat_id", chatID)
		return
	}

	t.mu.Lock()
	if t.local[chatID] == isTyping {
		t.mu.Unlock()
		return
	}
	t.setLocal(chatID, isTyping)
	t.mu.Unlock()

	userID, err := t.ids.Resolve(ctx)
	if err != nil {
		t.log.Warn("realtime: typing event skipped", "chat_id", chatID, "error", err)
		t.mu.Lock()
		t.setLocal(chatID, !isTyping)
		t.mu.Unlock()
		return
	}

	t.ch.publishJSON(typingDestination(chatID), models.TypingEvent{
		ChatID:   chatID,
		IsTyping: isTyping,
		UserID:   &userID,
	})
}

// Subscribe binds cb to the typing topic of chatID, replacing any earlier
// subscription for the same conversation.
func (t *TypingCoordinator) Subscribe(ctx context.Context, chatID int64, cb func(models.TypingEvent)) {
	if !t.ch.connected() {
		t.log.Debug("realtime: cannot subscribe to typing, not connected", "chat_id", chatID)
		return
	}

	selfID, err := t.ids.Resolve(ctx)
	hasSelf := err == nil
	if !hasSelf {
		// still subscribe; events without a user id are filtered either way
		t.log.Warn("realtime: typing self-filter without local id", "chat_id", chatID, "error", err)
	}

	topic := TypingTopic(chatID)
	if old, ok := t.subs.Remove(topic); ok && old != nil {
		old.Unsubscribe()
	}

	sub, ok := t.ch.subscribe(topic, func(ctx context.Context, f Frame) {
		var ev models.TypingEvent
		if err := json.Unmarshal(f.Body, &ev); err != nil {
			t.log.Warn("realtime: dropping malformed typing event", "chat_id", chatID, "error", err)
			telemetry.AddSpanError(ctx, err)
			return
		}
		if ev.UserID == nil || (hasSelf && *ev.UserID == selfID) {
			return
		}

		t.mu.Lock()
		t.remote[chatID] = ev.IsTyping
		t.mu.Unlock()

		if cb != nil {
			guard(t.log, "typing", func() { cb(ev) })
		}
	})
	if !ok {
		return
	}
	if displaced := t.subs.Replace(topic, chatID, sub); displaced != nil {
		displaced.Unsubscribe()
	}
}

// Unsubscribe tears down the typing subscription for chatID. Safe when none exists.
func (t *TypingCoordinator) Unsubscribe(chatID int64) {
	if sub, ok := t.subs.Remove(TypingTopic(chatID)); ok && sub != nil {
		sub.Unsubscribe()
	}
	t.mu.Lock()
	delete(t.remote, chatID)
	t.mu.Unlock()
}

// IsTyping reports the last remote typing state seen for chatID.
func (t *TypingCoordinator) IsTyping(chatID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remote[chatID]
}

func (t *TypingCoordinator) Subscribed(chatID int64) bool {
	return t.subs.Has(TypingTopic(chatID))
}

// Reset forgets all typing state. Subscriptions are dropped without
// unsubscribing since their transport is going away.
func (t *TypingCoordinator) Reset() {
	t.subs.Clear()
	t.mu.Lock()
	t.local = make(map[int64]bool)
	t.remote = make(map[int64]bool)
	t.mu.Unlock()
}

func (t *TypingCoordinator) setLocal(chatID int64, isTyping bool) {
	if isTyping {
		t.local[chatID] = true
		return
	}
	delete(t.local, chatID)
}
