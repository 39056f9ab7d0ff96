package realtime

import (
	"sync"
	"time"

	"matchme-client/internal/models"
)

/*
LEARNING: TWO STALENESS THRESHOLDS

  - freshness (5s): "is this user online right now?" queries. Pure read, nothing
    is mutated and no observer fires.
  - staleAfter (45s): the periodic sweep. Only this path flips stored state to
    offline locally, and it notifies presence observers when it does.

A user 10s silent therefore reads as offline while still stored as online. The
gap keeps queries responsive without the sweep firing callbacks every tick.
*/

// Clock is injected so tests can move time.
type Clock func() time.Time

type PresenceTracker struct {
	staleAfter time.Duration
	freshness  time.Duration
	now        Clock

	mu      sync.Mutex
	records map[string]models.PresenceRecord
}

func NewPresenceTracker(staleAfter, freshness time.Duration, now Clock) *PresenceTracker {
	if now == nil {
		now = time.Now
	}
	return &PresenceTracker{
		staleAfter: staleAfter,
		freshness:  freshness,
		now:        now,
		records:    make(map[string]models.PresenceRecord),
	}
}

// Apply overwrites the record for the update's user and returns the full map.
// changed reports whether the online flag differs from what was stored.
func (p *PresenceTracker) Apply(u models.PresenceUpdate) (snapshot PresenceMap, changed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, known := p.records[u.User]
	changed = !known || prev.Online != u.Online
	p.records[u.User] = models.PresenceRecord{
		Online:   u.Online,
		LastSeen: time.UnixMilli(u.Timestamp),
	}
	return p.snapshotLocked(), changed
}

// CheckStale flips every online user silent for longer than staleAfter. The
// snapshot is only returned when something flipped.
func (p *PresenceTracker) CheckStale() (PresenceMap, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	flipped := false
	for user, rec := range p.records {
		if rec.Online && now.Sub(rec.LastSeen) > p.staleAfter {
			rec.Online = false
			p.records[user] = rec
			flipped = true
		}
	}
	if !flipped {
		return nil, false
	}
	return p.snapshotLocked(), true
}

func (p *PresenceTracker) IsOnline(user string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[user]
	if !ok {
		return false
	}
	return rec.Online && p.now().Sub(rec.LastSeen) <= p.freshness
}

func (p *PresenceTracker) LastSeen(user string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[user]
	return rec.LastSeen, ok
}

// Record returns the stored state of one user without copying the whole map.
func (p *PresenceTracker) Record(user string) (models.PresenceRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[user]
	return rec, ok
}

func (p *PresenceTracker) Snapshot() PresenceMap {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *PresenceTracker) Clear() {
	p.mu.Lock()
	p.records = make(map[string]models.PresenceRecord)
	p.mu.Unlock()
}

func (p *PresenceTracker) snapshotLocked() PresenceMap {
	out := make(PresenceMap, len(p.records))
	for k, v := range p.records {
		out[k] = v
	}
	return out
}
