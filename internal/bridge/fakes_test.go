package bridge

import (
	"context"
	"sync"

	"matchme-client/internal/models"
	"matchme-client/internal/realtime"
)

type typingCall struct {
	ChatID   int64
	IsTyping bool
}

type sentMessage struct {
	RecipientID int64
	Message     models.ChatMessage
}

type openedChat struct {
	ChatID int64
	Match  models.Match
	View   realtime.ViewHandler
}

// fakeSession records what the bridge asks of the realtime session.
type fakeSession struct {
	mu        sync.Mutex
	connected bool
	typing    []typingCall
	opened    []openedChat
	closed    []int64
	sent      []sentMessage
	seen      map[int64][]string
	typers    map[int64]func(models.TypingEvent)
	remote    map[int64]bool
	presence  realtime.PresenceMap
	requests  int
	snapshots int

	onConnect    []func()
	onDisconnect []func(error)
	onMatch      []func(models.MatchNotification)
	onMessage    []func(models.MessageNotification)
	onPresence   []func(realtime.PresenceMap)
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		connected: true,
		seen:      make(map[int64][]string),
		typers:    make(map[int64]func(models.TypingEvent)),
		remote:    make(map[int64]bool),
		presence:  realtime.PresenceMap{},
	}
}

func (f *fakeSession) NotifyTypingIntent(ctx context.Context, chatID int64, isTyping bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, typingCall{ChatID: chatID, IsTyping: isTyping})
}

func (f *fakeSession) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSession) OnConnect(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnect = append(f.onConnect, fn)
}

func (f *fakeSession) OnDisconnect(fn func(err error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDisconnect = append(f.onDisconnect, fn)
}

func (f *fakeSession) OnMatch(fn func(models.MatchNotification)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onMatch = append(f.onMatch, fn)
}

func (f *fakeSession) OnMessage(fn func(models.MessageNotification)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onMessage = append(f.onMessage, fn)
}

func (f *fakeSession) OnPresence(fn func(realtime.PresenceMap)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onPresence = append(f.onPresence, fn)
}

func (f *fakeSession) SubscribeToChat(chatID int64, match models.Match, view realtime.ViewHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, openedChat{ChatID: chatID, Match: match, View: view})
}

func (f *fakeSession) UnsubscribeFromChat(chatID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, chatID)
}

func (f *fakeSession) SendPrivateMessage(recipientID int64, msg models.ChatMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{RecipientID: recipientID, Message: msg})
}

func (f *fakeSession) MarkMessageAsSeen(chatID int64, sentAt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[chatID] = append(f.seen[chatID], sentAt)
}

func (f *fakeSession) SubscribeToTypingStatus(ctx context.Context, chatID int64, cb func(models.TypingEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typers[chatID] = cb
}

func (f *fakeSession) IsTyping(chatID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remote[chatID]
}

func (f *fakeSession) RequestPresence() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
}

func (f *fakeSession) IsUserOnline(user string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.presence[user]
	return ok && rec.Online
}

func (f *fakeSession) PresenceRecord(user string) (models.PresenceRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.presence[user]
	return rec, ok
}

func (f *fakeSession) Presence() realtime.PresenceMap {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++
	out := make(realtime.PresenceMap, len(f.presence))
	for k, v := range f.presence {
		out[k] = v
	}
	return out
}

func (f *fakeSession) setConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}

func (f *fakeSession) typingCalls() []typingCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]typingCall(nil), f.typing...)
}

func (f *fakeSession) openedChats() []openedChat {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]openedChat(nil), f.opened...)
}

func (f *fakeSession) emitConnect() {
	f.mu.Lock()
	fns := append([]func(){}, f.onConnect...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeSession) emitMatch(n models.MatchNotification) {
	f.mu.Lock()
	fns := append([]func(models.MatchNotification){}, f.onMatch...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(n)
	}
}

func (f *fakeSession) emitMessage(n models.MessageNotification) {
	f.mu.Lock()
	fns := append([]func(models.MessageNotification){}, f.onMessage...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(n)
	}
}

// fakeResolver maps a matched user to a chat id.
type fakeResolver struct {
	chats map[int64]int64
	err   error
}

func (r *fakeResolver) ChatID(ctx context.Context, otherUserID int64) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	return r.chats[otherUserID], nil
}

const (
	testChatID    int64 = 10
	testPartnerID int64 = 2
)

func testMatches() map[int64]models.Match {
	return map[int64]models.Match{
		testChatID: {ID: 1, LikerID: 1, LikedID: testPartnerID, LikedDisplayName: "Bob"},
	}
}
