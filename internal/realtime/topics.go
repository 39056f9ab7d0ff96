package realtime

import "fmt"

// Inbound topics
const PresenceTopic = "/topic/presence"

func MatchTopic(email string) string {
	return "/topic/matches/" + email
}

func ChatTopic(chatID int64) string {
	return fmt.Sprintf("/topic/chat/%d", chatID)
}

func TypingTopic(chatID int64) string {
	return fmt.Sprintf("/topic/chat/%d/typing", chatID)
}

// Outbound destinations
const (
	presenceDestination        = "/app/presence"
	presenceRequestDestination = "/app/presence/request"
)

func privateMessageDestination(recipientID int64) string {
	return fmt.Sprintf("/app/chat.private/%d", recipientID)
}

func typingDestination(chatID int64) string {
	return fmt.Sprintf("/app/chat/%d/typing", chatID)
}
