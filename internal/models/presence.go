package models

import "time"

// PresenceUpdate is a broadcast on the presence topic. Timestamp is in
// milliseconds since the epoch.
type PresenceUpdate struct {
	User      string `json:"user"`
	Online    bool   `json:"online"`
	Timestamp int64  `json:"timestamp"`
}

// PresenceRecord is the locally tracked state for one user.
type PresenceRecord struct {
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}
