package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"matchme-client/internal/models"
	"matchme-client/internal/realtime"
)

// Server exposes one realtime session to a local UI over HTTP and a websocket.
type Server struct {
	// Sender is the name stamped on outgoing messages.
	Sender string

	session  Session
	resolver ChatResolver
	hub      *Hub
	typing   *TypingDebouncer

	mu      sync.RWMutex
	matches map[int64]models.Match // chat id -> match
}

// NewServer registers the bridge as an observer of session. Call it before
// session.Connect, and again after a Disconnect since that drops observers.
func NewServer(session Session, matches map[int64]models.Match, resolver ChatResolver, quiet time.Duration) *Server {
	s := &Server{
		session:  session,
		resolver: resolver,
		hub:      NewHub(),
		typing:   NewTypingDebouncer(session, quiet),
		matches:  make(map[int64]models.Match, len(matches)),
	}
	for id, m := range matches {
		s.matches[id] = m
	}
	s.hub.Start()
	s.Observe()
	return s
}

// Observe forwards every session event to the hub.
func (s *Server) Observe() {
	s.session.OnConnect(func() {
		s.hub.Publish(EventConnected, nil)
	})
	s.session.OnDisconnect(func(err error) {
		payload := map[string]string{}
		if err != nil {
			payload["error"] = err.Error()
		}
		s.hub.Publish(EventDisconnected, payload)
	})
	s.session.OnMatch(func(n models.MatchNotification) {
		s.hub.Publish(EventMatch, n)
		// the resolver makes an HTTP call; keep it off the frame reader
		go s.followMatch(context.Background(), n)
	})
	s.session.OnMessage(func(n models.MessageNotification) {
		s.hub.Publish(EventNotification, n)
	})
	s.session.OnPresence(func(m realtime.PresenceMap) {
		s.hub.Publish(EventPresence, m)
	})
}

// followMatch subscribes to the conversation of a brand new match so its
// messages raise notifications without a restart.
func (s *Server) followMatch(ctx context.Context, n models.MatchNotification) {
	if s.resolver == nil {
		return
	}
	chatID, err := s.resolver.ChatID(ctx, n.MatchedUserID)
	if err != nil {
		slog.Warn("bridge: cannot resolve chat for new match", "user_id", n.MatchedUserID, "error", err)
		return
	}

	match := models.Match{LikedID: n.MatchedUserID, LikedDisplayName: n.MatchedUserName}
	s.mu.Lock()
	s.matches[chatID] = match
	s.mu.Unlock()

	s.session.SubscribeToChat(chatID, match, nil)
	slog.Info("bridge: subscribed to new match", "chat_id", chatID, "user_id", n.MatchedUserID)
}

func (s *Server) match(chatID int64) (models.Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[chatID]
	return m, ok
}

func (s *Server) Hub() *Hub { return s.hub }

// Shutdown stops typing timers and disconnects UI clients.
func (s *Server) Shutdown() {
	s.typing.Shutdown()
	s.hub.Shutdown()
}
