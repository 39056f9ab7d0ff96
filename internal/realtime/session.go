package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"matchme-client/internal/models"
	"matchme-client/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
)

/*
LEARNING: ONE SESSION, MANY GOROUTINES

Inbound frames arrive on the transport's single reader goroutine, the presence
heartbeat runs on its own ticker, and the UI calls in from HTTP handlers. Each
shared structure (registry, seen set, presence map, typing state) owns a mutex,
and observers are always invoked after the lock is released.

Every transport the session creates is tagged with a generation number. Hooks
and frames carrying an old generation are dropped, which is how a frame that
arrives after Disconnect (or from a replaced transport) is ignored.
*/

// ErrRejected is reported to disconnect observers when the server answers
// with an ERROR frame.
var ErrRejected = errors.New("realtime: server rejected the connection")

type Config struct {
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
	Freshness         time.Duration
	Clock             Clock
	Logger            *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 45 * time.Second
	}
	if c.Freshness <= 0 {
		c.Freshness = 5 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

type frameHandler func(ctx context.Context, f Frame)

// Session owns the realtime connection of one authenticated user.
type Session struct {
	cfg          Config
	log          *slog.Logger
	newTransport TransportFactory
	ids          *userIDCache

	mu        sync.Mutex
	state     connState
	transport Transport
	gen       uint64
	token     string
	matches   []models.Match
	chatIDs   map[int64]int64
	stopBeat  chan struct{}

	chats    *Registry
	seen     *SeenTracker
	presence *PresenceTracker
	typing   *TypingCoordinator

	onConnect    *Emitter[struct{}]
	onDisconnect *Emitter[error]
	onMatch      *Emitter[models.MatchNotification]
	onMessage    *Emitter[models.MessageNotification]
	onPresence   *Emitter[PresenceMap]
}

func NewSession(cfg Config, factory TransportFactory, identity IdentityLookup) *Session {
	cfg = cfg.withDefaults()
	log := cfg.Logger

	s := &Session{
		cfg:          cfg,
		log:          log,
		newTransport: factory,
		ids:          &userIDCache{lookup: identity},
		chats:        NewRegistry(),
		seen:         NewSeenTracker(),
		presence:     NewPresenceTracker(cfg.StaleAfter, cfg.Freshness, cfg.Clock),
		onConnect:    NewEmitter[struct{}]("connect", log),
		onDisconnect: NewEmitter[error]("disconnect", log),
		onMatch:      NewEmitter[models.MatchNotification]("match", log),
		onMessage:    NewEmitter[models.MessageNotification]("message", log),
		onPresence:   NewEmitter[PresenceMap]("presence", log),
	}
	s.typing = newTypingCoordinator(s, s.ids, log)
	return s
}

// Connect opens the realtime connection. chatIDs maps the other user's id of a
// match to its conversation id. The call is a no-op without a token, while a
// connection attempt is in flight, or while connected. A transport left
// disconnected is replaced.
func (s *Session) Connect(token string, matches []models.Match, chatIDs map[int64]int64) {
	if token == "" {
		s.log.Warn("realtime: no token, not connecting")
		return
	}

	s.mu.Lock()
	// connecting covers the window before the new transport is stored
	if s.state == stateConnecting {
		s.mu.Unlock()
		s.log.Debug("realtime: connect ignored, attempt in flight")
		return
	}
	var stale Transport
	if s.transport != nil {
		if s.transport.Connected() {
			s.mu.Unlock()
			s.log.Debug("realtime: connect ignored, already connected")
			return
		}
		stale = s.transport
		s.transport = nil
		s.stopHeartbeatLocked()
	}
	s.gen++
	gen := s.gen
	s.state = stateConnecting
	s.token = token
	followed, followedIDs := s.matches, s.chatIDs
	s.matches = append([]models.Match(nil), matches...)
	s.chatIDs = make(map[int64]int64, len(chatIDs))
	for k, v := range chatIDs {
		s.chatIDs[k] = v
	}
	if stale != nil {
		// chats followed on the old transport are bound again on the new one
		for _, m := range followed {
			if chatID, ok := followedIDs[m.LikedID]; ok {
				s.rememberChatLocked(chatID, m)
			}
		}
	}
	s.mu.Unlock()

	if stale != nil {
		s.log.Info("realtime: replacing disconnected transport")
		stale.Deactivate()
		// subscriptions of the old transport are gone with it
		s.chats.Clear()
		s.typing.Reset()
	}

	t := s.newTransport(token, TransportHooks{
		OnConnect:    func() { s.handleConnect(gen) },
		OnDisconnect: func(err error) { s.handleDisconnect(gen, err) },
		OnError:      func(msg string) { s.handleDisconnect(gen, fmt.Errorf("%w: %s", ErrRejected, msg)) },
	})

	s.mu.Lock()
	if s.gen != gen {
		// Disconnect ran while the transport was being built
		s.mu.Unlock()
		return
	}
	s.transport = t
	s.mu.Unlock()

	s.log.Info("realtime: connecting", "matches", len(matches), "chats", len(chatIDs))
	t.Activate()
}

// Disconnect is a full reset: transport, subscriptions, seen set, presence,
// typing state and every registered observer are dropped.
func (s *Session) Disconnect() {
	s.mu.Lock()
	t := s.transport
	s.transport = nil
	s.gen++
	s.state = stateDisconnected
	s.stopHeartbeatLocked()
	s.token = ""
	s.matches = nil
	s.chatIDs = nil
	s.mu.Unlock()

	if t != nil {
		t.Deactivate()
	}

	s.chats.Clear()
	s.typing.Reset()
	s.seen.Clear()
	s.presence.Clear()
	s.ids.Reset()

	s.onConnect.Clear()
	s.onDisconnect.Clear()
	s.onMatch.Clear()
	s.onMessage.Clear()
	s.onPresence.Clear()

	s.log.Info("realtime: disconnected and reset")
}

func (s *Session) IsConnected() bool {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	return t != nil && t.Connected()
}

func (s *Session) OnConnect(fn func()) {
	if fn != nil {
		s.onConnect.Add(func(struct{}) { fn() })
	}
}

func (s *Session) OnDisconnect(fn func(err error)) { s.onDisconnect.Add(fn) }
func (s *Session) OnMatch(fn func(models.MatchNotification)) { s.onMatch.Add(fn) }
func (s *Session) OnMessage(fn func(models.MessageNotification)) { s.onMessage.Add(fn) }
func (s *Session) OnPresence(fn func(PresenceMap)) { s.onPresence.Add(fn) }

// SubscribeToChat binds the conversation topic. If it is already bound only the
// view handler is updated: a handler marks the conversation open, nil marks it
// closed. No second transport subscription is ever made for the same topic.
func (s *Session) SubscribeToChat(chatID int64, match models.Match, view ViewHandler) {
	if !s.IsConnected() {
		s.log.Debug("realtime: cannot subscribe to chat, not connected", "chat_id", chatID)
		return
	}

	s.mu.Lock()
	s.rememberChatLocked(chatID, match)
	s.mu.Unlock()

	topic := ChatTopic(chatID)
	if !s.bindOnce(topic, chatID, match, view, s.chatHandler(topic)) {
		s.chats.Attach(topic, view)
		s.log.Debug("realtime: chat already subscribed, view updated", "chat_id", chatID, "view", view != nil)
	}
}

// rememberChatLocked records a conversation so handleConnect binds it after a
// transport replacement. Known partners keep their first chat id.
func (s *Session) rememberChatLocked(chatID int64, match models.Match) {
	if s.chatIDs == nil {
		s.chatIDs = make(map[int64]int64)
	}
	if _, ok := s.chatIDs[match.LikedID]; ok {
		return
	}
	s.chatIDs[match.LikedID] = chatID
	s.matches = append(s.matches, match)
}

// UnsubscribeFromChat closes the conversation view. The chat subscription stays
// so background notifications keep flowing; the typing subscription is removed.
func (s *Session) UnsubscribeFromChat(chatID int64) {
	if !s.chats.Detach(ChatTopic(chatID)) {
		s.log.Debug("realtime: no chat subscription to detach", "chat_id", chatID)
	}
	s.typing.Unsubscribe(chatID)
}

// ChatState reports the view state of a conversation and whether it is bound.
func (s *Session) ChatState(chatID int64) (ViewState, bool) {
	e, ok := s.chats.Lookup(ChatTopic(chatID))
	return e.State(), ok
}

// SendPrivateMessage publishes msg to the private channel of recipientID.
func (s *Session) SendPrivateMessage(recipientID int64, msg models.ChatMessage) {
	s.publishJSON(privateMessageDestination(recipientID), msg)
}

func (s *Session) MarkMessageAsSeen(chatID int64, sentAt string) {
	s.seen.MarkSeen(Fingerprint{ChatID: chatID, SentAt: sentAt})
}

func (s *Session) HasSeen(chatID int64, sentAt string) bool {
	return s.seen.HasSeen(Fingerprint{ChatID: chatID, SentAt: sentAt})
}

// Typing

func (s *Session) NotifyTypingIntent(ctx context.Context, chatID int64, isTyping bool) {
	s.typing.NotifyTypingIntent(ctx, chatID, isTyping)
}

func (s *Session) StartTyping(ctx context.Context, chatID int64) {
	s.typing.NotifyTypingIntent(ctx, chatID, true)
}

func (s *Session) StopTyping(ctx context.Context, chatID int64) {
	s.typing.NotifyTypingIntent(ctx, chatID, false)
}

func (s *Session) SubscribeToTypingStatus(ctx context.Context, chatID int64, cb func(models.TypingEvent)) {
	s.typing.Subscribe(ctx, chatID, cb)
}

func (s *Session) UnsubscribeFromTypingStatus(chatID int64) {
	s.typing.Unsubscribe(chatID)
}

func (s *Session) IsTyping(chatID int64) bool {
	return s.typing.IsTyping(chatID)
}

// Presence

// SendPresence publishes an empty heartbeat; the server knows who sent it.
func (s *Session) SendPresence() {
	s.publish(presenceDestination, nil)
}

// RequestPresence asks the server to broadcast every user's presence.
func (s *Session) RequestPresence() {
	s.publish(presenceRequestDestination, nil)
}

// CheckStaleUsers runs the staleness sweep and notifies presence observers once
// if any user was flipped offline.
func (s *Session) CheckStaleUsers() {
	if snapshot, flipped := s.presence.CheckStale(); flipped {
		s.onPresence.Emit(snapshot)
	}
}

func (s *Session) IsUserOnline(user string) bool {
	return s.presence.IsOnline(user)
}

func (s *Session) LastSeen(user string) (time.Time, bool) {
	return s.presence.LastSeen(user)
}

func (s *Session) PresenceRecord(user string) (models.PresenceRecord, bool) {
	return s.presence.Record(user)
}

func (s *Session) Presence() PresenceMap {
	return s.presence.Snapshot()
}

// lifecycle hooks

func (s *Session) handleConnect(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = stateConnected
	token, matches, chatIDs := s.token, s.matches, s.chatIDs
	s.mu.Unlock()

	s.log.Info("realtime: connected")
	s.onConnect.Emit(struct{}{})

	if email, err := EmailFromToken(token); err != nil {
		s.log.Error("realtime: cannot subscribe to matches", "error", err)
	} else {
		s.bindOnce(MatchTopic(email), 0, models.Match{}, nil, s.handleMatchFrame)
	}

	// after a reconnect the transport has already restored these; bindOnce skips
	// bound topics so an open view keeps its handler
	for _, m := range matches {
		chatID, ok := chatIDs[m.LikedID]
		if !ok {
			s.log.Debug("realtime: no chat id for match, skipping", "user_id", m.LikedID)
			continue
		}
		topic := ChatTopic(chatID)
		s.bindOnce(topic, chatID, m, nil, s.chatHandler(topic))
	}

	s.bindOnce(PresenceTopic, 0, models.Match{}, nil, s.handlePresenceFrame)
	s.startHeartbeat(gen)
}

func (s *Session) handleDisconnect(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = stateDisconnected
	s.stopHeartbeatLocked()
	s.mu.Unlock()

	s.log.Warn("realtime: connection lost", "error", err)
	s.onDisconnect.Emit(err)
}

func (s *Session) startHeartbeat(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.stopHeartbeatLocked()
	stop := make(chan struct{})
	s.stopBeat = stop
	s.mu.Unlock()

	s.SendPresence()
	s.RequestPresence()

	go func() {
		ticker := time.NewTicker(s.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if s.IsConnected() {
					s.SendPresence()
					s.CheckStaleUsers()
				}
			}
		}
	}()
}

func (s *Session) stopHeartbeatLocked() {
	if s.stopBeat != nil {
		close(s.stopBeat)
		s.stopBeat = nil
	}
}

// inbound frames

func (s *Session) chatHandler(topic string) frameHandler {
	return func(ctx context.Context, f Frame) {
		s.handleChatFrame(ctx, topic, f)
	}
}

func (s *Session) handleChatFrame(ctx context.Context, topic string, f Frame) {
	entry, ok := s.chats.Lookup(topic)
	if !ok {
		return
	}

	var msg models.IncomingMessage
	if err := json.Unmarshal(f.Body, &msg); err != nil {
		s.log.Warn("realtime: dropping malformed chat message", "topic", topic, "error", err)
		telemetry.AddSpanError(ctx, err)
		return
	}
	fp := Fingerprint{ChatID: entry.ChatID, SentAt: msg.SentAt}

	if view := entry.View(); view != nil {
		s.seen.MarkSeen(fp)
		guard(s.log, "view", func() {
			view(models.ActiveMessage{
				IncomingMessage: msg,
				ChatID:          entry.ChatID,
				ChatPartner:     entry.Match.PartnerName(),
				Timestamp:       formatTimestamp(msg.SentAt),
			})
		})
		return
	}

	// only a rendering view records a fingerprint; notifying does not
	if s.seen.HasSeen(fp) {
		s.log.Debug("realtime: message already seen, no notification", "message_id", fp.String())
		return
	}
	s.onMessage.Emit(models.MessageNotification{
		ChatID:            entry.ChatID,
		SenderID:          entry.Match.LikedID,
		SenderDisplayName: entry.Match.NotificationName(),
		Content:           msg.Text(),
		SentAt:            msg.SentAt,
		Fingerprint:       fp.String(),
	})
}

func (s *Session) handleMatchFrame(ctx context.Context, f Frame) {
	var n models.MatchNotification
	if err := json.Unmarshal(f.Body, &n); err != nil {
		s.log.Warn("realtime: dropping malformed match notification", "error", err)
		telemetry.AddSpanError(ctx, err)
		return
	}
	s.onMatch.Emit(n)
}

func (s *Session) handlePresenceFrame(ctx context.Context, f Frame) {
	var u models.PresenceUpdate
	if err := json.Unmarshal(f.Body, &u); err != nil {
		s.log.Warn("realtime: dropping malformed presence update", "error", err)
		telemetry.AddSpanError(ctx, err)
		return
	}
	if u.User == "" {
		s.log.Warn("realtime: presence update without user")
		return
	}

	snapshot, changed := s.presence.Apply(u)
	if changed {
		s.log.Debug("realtime: presence changed", "user", u.User, "online", u.Online)
	}
	s.onPresence.Emit(snapshot)
}

// transport plumbing

// bindOnce subscribes topic unless it is already bound. It reports whether a new
// subscription was made.
func (s *Session) bindOnce(topic string, chatID int64, match models.Match, view ViewHandler, handler frameHandler) bool {
	if !s.chats.Reserve(topic, chatID, match, view) {
		return false
	}
	sub, ok := s.subscribe(topic, handler)
	if !ok {
		s.chats.Remove(topic)
		return false
	}
	if orphan := s.chats.Bind(topic, sub); orphan != nil {
		orphan.Unsubscribe()
	}
	return true
}

func (s *Session) subscribe(topic string, handler frameHandler) (Unsubscriber, bool) {
	s.mu.Lock()
	t, gen := s.transport, s.gen
	s.mu.Unlock()

	if t == nil || !t.Connected() {
		s.log.Debug("realtime: cannot subscribe, not connected", "topic", topic)
		return nil, false
	}
	sub, err := t.Subscribe(topic, func(f Frame) {
		if !s.current(gen) {
			return
		}
		ctx, span := telemetry.StartSpan(context.Background(), "realtime.Dispatch",
			attribute.String("topic", topic))
		defer span.End()
		handler(ctx, f)
	})
	if err != nil {
		s.log.Warn("realtime: subscribe failed", "topic", topic, "error", err)
		return nil, false
	}
	return sub, true
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Session) connected() bool {
	return s.IsConnected()
}

func (s *Session) publish(destination string, body []byte) bool {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()

	if t == nil || !t.Connected() {
		s.log.Debug("realtime: publish skipped, not connected", "destination", destination)
		return false
	}
	if err := t.Publish(destination, body); err != nil {
		s.log.Warn("realtime: publish failed", "destination", destination, "error", err)
		return false
	}
	return true
}

func (s *Session) publishJSON(destination string, v any) bool {
	body, err := json.Marshal(v)
	if err != nil {
		s.log.Error("realtime: cannot encode payload", "destination", destination, "error", err)
		return false
	}
	return s.publish(destination, body)
}

var sentAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// formatTimestamp renders sentAt as "dd.mm.yy, HH:MM" in local time. Values
// that do not parse are returned unchanged.
func formatTimestamp(sentAt string) string {
	for _, layout := range sentAtLayouts {
		if t, err := time.ParseInLocation(layout, sentAt, time.Local); err == nil {
			return t.In(time.Local).Format("02.01.06, 15:04")
		}
	}
	return sentAt
}
