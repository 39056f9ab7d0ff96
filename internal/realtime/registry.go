package realtime

import (
	"sync"

	"matchme-client/internal/models"
)

// ViewState says whether a conversation is open in the UI. It is set explicitly
// on attach/detach instead of being inferred from a nil handler.
type ViewState int

const (
	ViewInactive ViewState = iota
	ViewActive
)

func (v ViewState) String() string {
	if v == ViewActive {
		return "active"
	}
	return "inactive"
}

// ViewHandler receives messages for the conversation currently open in the UI.
type ViewHandler func(models.ActiveMessage)

// Entry is one topic binding. At most one Entry exists per topic.
type Entry struct {
	Topic  string
	ChatID int64
	Match  models.Match

	state ViewState
	view  ViewHandler
	sub   Unsubscriber
}

func (e Entry) State() ViewState { return e.state }

// Registry tracks topic subscriptions keyed by destination. All methods are safe
// for concurrent use; entries are handed out as copies.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Reserve claims topic for a new subscription. It returns false if the topic is
// already bound, in which case the caller must not subscribe again.
func (r *Registry) Reserve(topic string, chatID int64, match models.Match, view ViewHandler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[topic]; ok {
		return false
	}
	e := &Entry{Topic: topic, ChatID: chatID, Match: match}
	e.setView(view)
	r.entries[topic] = e
	return true
}

// Bind stores the transport subscription for a reserved topic. If the topic was
// released in the meantime the subscription is returned to the caller to close.
func (r *Registry) Bind(topic string, sub Unsubscriber) (orphan Unsubscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[topic]
	if !ok {
		return sub
	}
	e.sub = sub
	return nil
}

// Replace binds topic to sub unconditionally and returns the subscription it
// displaced, if any.
func (r *Registry) Replace(topic string, chatID int64, sub Unsubscriber) (old Unsubscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.entries[topic]; ok {
		old = prev.sub
	}
	r.entries[topic] = &Entry{Topic: topic, ChatID: chatID, sub: sub}
	return old
}

// Attach sets or replaces the view handler of an existing entry. A nil handler
// marks the conversation inactive. It reports whether the topic exists.
func (r *Registry) Attach(topic string, view ViewHandler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[topic]
	if !ok {
		return false
	}
	e.setView(view)
	return true
}

func (r *Registry) Detach(topic string) bool {
	return r.Attach(topic, nil)
}

// Lookup returns a copy of the entry for topic.
func (r *Registry) Lookup(topic string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[topic]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// View returns the handler of an active entry, or nil when the entry is
// inactive or absent.
func (e Entry) View() ViewHandler {
	if e.state != ViewActive {
		return nil
	}
	return e.view
}

func (r *Registry) Has(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[topic]
	return ok
}

// Remove deletes topic and returns its subscription so the caller can close it
// outside the lock.
func (r *Registry) Remove(topic string) (Unsubscriber, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[topic]
	if !ok {
		return nil, false
	}
	delete(r.entries, topic)
	return e.sub, true
}

// Clear empties the registry and returns every bound subscription.
func (r *Registry) Clear() []Unsubscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := make([]Unsubscriber, 0, len(r.entries))
	for _, e := range r.entries {
		if e.sub != nil {
			subs = append(subs, e.sub)
		}
	}
	r.entries = make(map[string]*Entry)
	return subs
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (e *Entry) setView(view ViewHandler) {
	if view == nil {
		e.state, e.view = ViewInactive, nil
		return
	}
	e.state, e.view = ViewActive, view
}
