package realtime

import (
	"fmt"
	"sync"
)

// Fingerprint identifies a message by conversation and server send time.
type Fingerprint struct {
	ChatID int64
	SentAt string
}

// String is the "<chatId>-<sentAt>" form the UI uses as a message id.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%d-%s", f.ChatID, f.SentAt)
}

// SeenTracker remembers fingerprints for the life of a connection. There is no
// eviction; memory grows with the number of messages seen until Clear.
type SeenTracker struct {
	mu   sync.Mutex
	seen map[Fingerprint]struct{}
}

func NewSeenTracker() *SeenTracker {
	return &SeenTracker{seen: make(map[Fingerprint]struct{})}
}

func (t *SeenTracker) MarkSeen(fp Fingerprint) {
	t.mu.Lock()
	t.seen[fp] = struct{}{}
	t.mu.Unlock()
}

func (t *SeenTracker) HasSeen(fp Fingerprint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.seen[fp]
	return ok
}

func (t *SeenTracker) Clear() {
	t.mu.Lock()
	t.seen = make(map[Fingerprint]struct{})
	t.mu.Unlock()
}

func (t *SeenTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
