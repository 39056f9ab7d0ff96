package bridge

import (
	"context"

	"matchme-client/internal/models"
	"matchme-client/internal/realtime"
)

/*
LEARNING: CONSUMER-DRIVEN INTERFACES

The bridge is the consumer of the realtime session, so the interface it needs
lives here and lists only the methods the handlers call. *realtime.Session
satisfies it; tests hand in a recording fake.
*/

// TypingNotifier is the narrow boundary the debouncer publishes through.
type TypingNotifier interface {
	NotifyTypingIntent(ctx context.Context, chatID int64, isTyping bool)
}

// Session is what the bridge needs from the realtime session.
type Session interface {
	TypingNotifier

	IsConnected() bool
	OnConnect(fn func())
	OnDisconnect(fn func(err error))
	OnMatch(fn func(models.MatchNotification))
	OnMessage(fn func(models.MessageNotification))
	OnPresence(fn func(realtime.PresenceMap))

	SubscribeToChat(chatID int64, match models.Match, view realtime.ViewHandler)
	UnsubscribeFromChat(chatID int64)
	SendPrivateMessage(recipientID int64, msg models.ChatMessage)
	MarkMessageAsSeen(chatID int64, sentAt string)

	SubscribeToTypingStatus(ctx context.Context, chatID int64, cb func(models.TypingEvent))
	IsTyping(chatID int64) bool

	RequestPresence()
	IsUserOnline(user string) bool
	PresenceRecord(user string) (models.PresenceRecord, bool)
	Presence() realtime.PresenceMap
}

// ChatResolver finds the conversation id for a newly matched user.
// *backend.Client satisfies it.
type ChatResolver interface {
	ChatID(ctx context.Context, otherUserID int64) (int64, error)
}
