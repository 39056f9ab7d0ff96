package bridge

import (
	"net/http"

	"matchme-client/internal/middleware"

	"github.com/gorilla/mux"
)

func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()

	// Learning: Middleware runs in order - tracing first, then recovery, then CORS
	r.Use(middleware.Tracing)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.Health).Methods(http.MethodGet)
	api.HandleFunc("/session", s.SessionStatus).Methods(http.MethodGet)

	// Presence
	api.HandleFunc("/presence", s.ListPresence).Methods(http.MethodGet)
	api.HandleFunc("/presence/request", s.RequestPresence).Methods(http.MethodPost)
	api.HandleFunc("/presence/{userId}", s.GetPresence).Methods(http.MethodGet)

	// Conversations
	api.HandleFunc("/chats/{chatId:[0-9]+}/open", s.OpenChat).Methods(http.MethodPost)
	api.HandleFunc("/chats/{chatId:[0-9]+}/close", s.CloseChat).Methods(http.MethodPost)
	api.HandleFunc("/chats/{chatId:[0-9]+}/messages", s.SendMessage).Methods(http.MethodPost)
	api.HandleFunc("/chats/{chatId:[0-9]+}/input", s.Input).Methods(http.MethodPost)
	api.HandleFunc("/chats/{chatId:[0-9]+}/seen", s.MarkSeen).Methods(http.MethodPost)
	api.HandleFunc("/chats/{chatId:[0-9]+}/typing", s.TypingStatus).Methods(http.MethodGet)

	// UI event stream
	r.HandleFunc("/ws", s.hub.ServeWS)

	return r
}
