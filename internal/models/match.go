package models

// Match is one entry of the enriched match list. The liked side is the
// other user from the point of view of the authenticated user.
type Match struct {
	ID               int64        `json:"id"`
	LikerID          int64        `json:"likerId"`
	LikedID          int64        `json:"likedId"`
	LikerDisplayName string       `json:"likerDisplayName,omitempty"`
	LikedDisplayName string       `json:"likedDisplayName,omitempty"`
	LikedEmail       string       `json:"likedEmail,omitempty"`
	Like             bool         `json:"like"`
	UserProfile      *UserProfile `json:"userProfile,omitempty"`
	UserBio          *UserBio     `json:"userBio,omitempty"`
}

// PartnerName is the name shown next to messages in an open conversation.
func (m Match) PartnerName() string {
	if m.LikedDisplayName != "" {
		return m.LikedDisplayName
	}
	return m.LikedEmail
}

// NotificationName is the sender name used for background notifications.
func (m Match) NotificationName() string {
	if m.LikedDisplayName != "" {
		return m.LikedDisplayName
	}
	return "User"
}

// MatchNotification arrives on the per-user match topic when a new mutual
// like is created.
type MatchNotification struct {
	MatchedUserID   int64  `json:"matchedUserId"`
	MatchedUserName string `json:"matchedUserName"`
	Message         string `json:"message"`
}
