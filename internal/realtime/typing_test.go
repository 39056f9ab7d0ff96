package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"matchme-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }

func TestNotifyTypingIntent_PublishesOnChangeOnly(t *testing.T) {
	h := newHarness(t)
	tr := h.connect(t)
	ctx := context.Background()

	h.session.StartTyping(ctx, chatID)
	h.session.StartTyping(ctx, chatID)
	h.session.NotifyTypingIntent(ctx, chatID, true)
	h.session.StopTyping(ctx, chatID)
	h.session.StopTyping(ctx, chatID)

	sent := tr.publishedTo("/app/chat/10/typing")
	require.Len(t, sent, 2)

	var ev models.TypingEvent
	require.NoError(t, json.Unmarshal(sent[0].Body, &ev))
	assert.Equal(t, models.TypingEvent{ChatID: chatID, IsTyping: true, UserID: int64p(selfID)}, ev)
	require.NoError(t, json.Unmarshal(sent[1].Body, &ev))
	assert.False(t, ev.IsTyping)

	assert.Equal(t, int32(1), h.identity.calls.Load())
}

func TestNotifyTypingIntent_DisconnectedKeepsState(t *testing.T) {
	h := newHarness(t)
	h.session.NotifyTypingIntent(context.Background(), chatID, true)

	tr := h.connect(t)
	h.session.NotifyTypingIntent(context.Background(), chatID, true)
	assert.Len(t, tr.publishedTo("/app/chat/10/typing"), 1)
}

func TestNotifyTypingIntent_IdentityFailureRetries(t *testing.T) {
	h := newHarness(t)
	h.identity.err = errors.New("401")
	tr := h.connect(t)

	h.session.StartTyping(context.Background(), chatID)
	assert.Empty(t, tr.publishedTo("/app/chat/10/typing"))

	h.identity.err = nil
	h.session.StartTyping(context.Background(), chatID)
	assert.Len(t, tr.publishedTo("/app/chat/10/typing"), 1)
}

func TestTypingSelfFilter(t *testing.T) {
	h := newHarness(t)
	tr := h.connect(t)

	var events []models.TypingEvent
	h.session.SubscribeToTypingStatus(context.Background(), chatID, func(ev models.TypingEvent) {
		events = append(events, ev)
	})

	tr.deliver(t, TypingTopic(chatID), models.TypingEvent{ChatID: chatID, IsTyping: true, UserID: int64p(selfID)})
	tr.deliver(t, TypingTopic(chatID), models.TypingEvent{ChatID: chatID, IsTyping: true})
	assert.Empty(t, events)
	assert.False(t, h.session.IsTyping(chatID))

	tr.deliver(t, TypingTopic(chatID), models.TypingEvent{ChatID: chatID, IsTyping: true, UserID: int64p(partnerID)})
	require.Len(t, events, 1)
	assert.True(t, h.session.IsTyping(chatID))

	tr.deliver(t, TypingTopic(chatID), models.TypingEvent{ChatID: chatID, IsTyping: false, UserID: int64p(partnerID)})
	assert.False(t, h.session.IsTyping(chatID))
}

func TestSubscribeToTypingStatus_Replaces(t *testing.T) {
	h := newHarness(t)
	tr := h.connect(t)

	var first, second int
	h.session.SubscribeToTypingStatus(context.Background(), chatID, func(models.TypingEvent) { first++ })
	h.session.SubscribeToTypingStatus(context.Background(), chatID, func(models.TypingEvent) { second++ })

	assert.Equal(t, 2, tr.subscribeCalls(TypingTopic(chatID)))
	assert.Len(t, tr.openSubs(TypingTopic(chatID)), 1)

	tr.deliver(t, TypingTopic(chatID), models.TypingEvent{ChatID: chatID, IsTyping: true, UserID: int64p(partnerID)})
	assert.Zero(t, first)
	assert.Equal(t, 1, second)
}

func TestUnsubscribeFromTypingStatus(t *testing.T) {
	h := newHarness(t)
	tr := h.connect(t)

	assert.NotPanics(t, func() { h.session.UnsubscribeFromTypingStatus(chatID) })

	h.session.SubscribeToTypingStatus(context.Background(), chatID, nil)
	tr.deliver(t, TypingTopic(chatID), models.TypingEvent{ChatID: chatID, IsTyping: true, UserID: int64p(partnerID)})
	require.True(t, h.session.IsTyping(chatID))

	h.session.UnsubscribeFromTypingStatus(chatID)
	assert.Empty(t, tr.openSubs(TypingTopic(chatID)))
	assert.False(t, h.session.IsTyping(chatID))
}

func TestUnsubscribeFromChat_TearsDownTyping(t *testing.T) {
	h := newHarness(t)
	tr := h.connect(t)

	h.session.SubscribeToChat(chatID, partnerMatch, func(models.ActiveMessage) {})
	h.session.SubscribeToTypingStatus(context.Background(), chatID, func(models.TypingEvent) {})
	require.True(t, h.session.typing.Subscribed(chatID))

	h.session.UnsubscribeFromChat(chatID)
	assert.False(t, h.session.typing.Subscribed(chatID))
	assert.Empty(t, tr.openSubs(TypingTopic(chatID)))
	assert.Len(t, tr.openSubs(ChatTopic(chatID)), 1)
}

func TestSubscribeToTypingStatus_WithoutIdentityFiltersAbsentIDs(t *testing.T) {
	h := newHarness(t)
	h.identity.err = errors.New("unavailable")
	tr := h.connect(t)

	var events int
	h.session.SubscribeToTypingStatus(context.Background(), chatID, func(models.TypingEvent) { events++ })

	tr.deliver(t, TypingTopic(chatID), models.TypingEvent{ChatID: chatID, IsTyping: true})
	tr.deliver(t, TypingTopic(chatID), models.TypingEvent{ChatID: chatID, IsTyping: true, UserID: int64p(partnerID)})
	assert.Equal(t, 1, events)
}
