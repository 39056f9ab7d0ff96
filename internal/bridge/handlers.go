package bridge

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"matchme-client/internal/models"

	"github.com/gorilla/mux"
)

type sessionStatus struct {
	Connected bool `json:"connected"`
	Chats     int  `json:"chats"`
	UIClients int  `json:"uiClients"`
}

type userPresence struct {
	User         string     `json:"user"`
	Online       bool       `json:"online"`
	StoredOnline bool       `json:"storedOnline"`
	LastSeen     *time.Time `json:"lastSeen,omitempty"`
}

type chatEvent struct {
	ChatID  int64                `json:"chatId"`
	Message models.ActiveMessage `json:"message"`
}

type sendRequest struct {
	Content string `json:"content"`
}

type inputRequest struct {
	Text string `json:"text"`
}

type seenRequest struct {
	SentAt string `json:"sentAt"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) SessionStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	chats := len(s.matches)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, sessionStatus{
		Connected: s.session.IsConnected(),
		Chats:     chats,
		UIClients: s.hub.Clients(),
	})
}

func (s *Server) ListPresence(w http.ResponseWriter, r *http.Request) {
	snapshot := s.session.Presence()
	out := make([]userPresence, 0, len(snapshot))
	for user, rec := range snapshot {
		lastSeen := rec.LastSeen
		out = append(out, userPresence{
			User:         user,
			Online:       s.session.IsUserOnline(user),
			StoredOnline: rec.Online,
			LastSeen:     &lastSeen,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) GetPresence(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["userId"]
	p := userPresence{User: user, Online: s.session.IsUserOnline(user)}
	if rec, ok := s.session.PresenceRecord(user); ok {
		p.LastSeen = &rec.LastSeen
		p.StoredOnline = rec.Online
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) RequestPresence(w http.ResponseWriter, r *http.Request) {
	s.session.RequestPresence()
	w.WriteHeader(http.StatusAccepted)
}

// OpenChat marks the conversation as the one shown in the UI: its messages are
// pushed as chat events and typing status is followed.
func (s *Server) OpenChat(w http.ResponseWriter, r *http.Request) {
	chatID, match, ok := s.chatFromRequest(w, r)
	if !ok {
		return
	}
	if !s.session.IsConnected() {
		http.Error(w, "realtime session not connected", http.StatusServiceUnavailable)
		return
	}

	s.session.SubscribeToChat(chatID, match, func(m models.ActiveMessage) {
		s.hub.Publish(EventChat, chatEvent{ChatID: chatID, Message: m})
	})
	s.session.SubscribeToTypingStatus(r.Context(), chatID, func(ev models.TypingEvent) {
		s.hub.Publish(EventTyping, ev)
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) CloseChat(w http.ResponseWriter, r *http.Request) {
	chatID, _, ok := s.chatFromRequest(w, r)
	if !ok {
		return
	}
	s.typing.Stop(r.Context(), chatID)
	s.session.UnsubscribeFromChat(chatID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request) {
	chatID, match, ok := s.chatFromRequest(w, r)
	if !ok {
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}
	if !s.session.IsConnected() {
		http.Error(w, "realtime session not connected", http.StatusServiceUnavailable)
		return
	}

	now := time.Now()
	msg := models.ChatMessage{
		Sender:    s.Sender,
		Content:   req.Content,
		Timestamp: now.Format("02.01.06, 15:04"),
		SentAt:    now.Format("2006-01-02T15:04:05.000"),
	}
	s.session.SendPrivateMessage(match.LikedID, msg)
	// the compose box is cleared after sending
	s.typing.Stop(r.Context(), chatID)

	writeJSON(w, http.StatusAccepted, msg)
}

func (s *Server) Input(w http.ResponseWriter, r *http.Request) {
	chatID, _, ok := s.chatFromRequest(w, r)
	if !ok {
		return
	}
	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.typing.Input(r.Context(), chatID, req.Text)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) MarkSeen(w http.ResponseWriter, r *http.Request) {
	chatID, err := chatIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req seenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SentAt == "" {
		http.Error(w, "sentAt is required", http.StatusBadRequest)
		return
	}
	s.session.MarkMessageAsSeen(chatID, req.SentAt)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) TypingStatus(w http.ResponseWriter, r *http.Request) {
	chatID, err := chatIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chatId": chatID, "isTyping": s.session.IsTyping(chatID)})
}

func (s *Server) chatFromRequest(w http.ResponseWriter, r *http.Request) (int64, models.Match, bool) {
	chatID, err := chatIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return 0, models.Match{}, false
	}
	match, ok := s.match(chatID)
	if !ok {
		http.Error(w, "unknown chat", http.StatusNotFound)
		return 0, models.Match{}, false
	}
	return chatID, match, true
}

func chatIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["chatId"], 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid chat id")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
