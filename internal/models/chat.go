package models

// ChatMessage is the body published when sending a private message.
type ChatMessage struct {
	Sender    string `json:"sender,omitempty"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
	SentAt    string `json:"sentAt"`
}

// IncomingMessage is the body of a frame on a conversation topic.
type IncomingMessage struct {
	SenderID          int64  `json:"senderId"`
	SenderDisplayName string `json:"senderDisplayName,omitempty"`
	MessageContent    string `json:"messageContent,omitempty"`
	Content           string `json:"content,omitempty"`
	SentAt            string `json:"sentAt"`
}

// Text returns the message body whichever field the server filled in.
func (m IncomingMessage) Text() string {
	if m.MessageContent != "" {
		return m.MessageContent
	}
	return m.Content
}

// ActiveMessage is what the open conversation view receives: the inbound
// message plus the partner name and a display timestamp.
type ActiveMessage struct {
	IncomingMessage
	ChatID      int64  `json:"chatId"`
	ChatPartner string `json:"chatPartner"`
	Timestamp   string `json:"timestamp"`
}

// MessageNotification is delivered to background message observers for
// conversations that are not open.
type MessageNotification struct {
	ChatID            int64  `json:"chatId"`
	SenderID          int64  `json:"senderId"`
	SenderDisplayName string `json:"senderDisplayName"`
	Content           string `json:"content"`
	SentAt            string `json:"sentAt"`
	Fingerprint       string `json:"messageId"`
}

// HistoryMessage is one persisted message as returned by the history endpoint.
type HistoryMessage struct {
	ID                int64  `json:"id"`
	ChatID            int64  `json:"chatId"`
	SenderID          int64  `json:"senderId"`
	SenderDisplayName string `json:"senderDisplayName"`
	MessageContent    string `json:"messageContent"`
	SentAt            string `json:"sentAt"`
}

// HistoryPage is a page of chat history, newest first.
type HistoryPage struct {
	Content     []HistoryMessage `json:"content"`
	CurrentPage int              `json:"currentPage"`
	TotalItems  int64            `json:"totalItems"`
	TotalPages  int              `json:"totalPages"`
}

// TypingEvent is both the outbound typing frame and the inbound broadcast.
// UserID is a pointer because the server omits it when it cannot parse it.
type TypingEvent struct {
	ChatID   int64  `json:"chatId"`
	IsTyping bool   `json:"isTyping"`
	UserID   *int64 `json:"userId,omitempty"`
}
