package bridge

import (
	"context"
	"strings"
	"sync"
	"time"
)

// TypingDebouncer turns raw input changes into typing intents: the first
// non-empty input starts typing, and typing stops after a quiet period or as
// soon as the input is emptied.
type TypingDebouncer struct {
	notifier TypingNotifier
	quiet    time.Duration

	mu     sync.Mutex
	timers map[int64]*time.Timer
	seq    map[int64]uint64
}

func NewTypingDebouncer(notifier TypingNotifier, quiet time.Duration) *TypingDebouncer {
	return &TypingDebouncer{
		notifier: notifier,
		quiet:    quiet,
		timers:   make(map[int64]*time.Timer),
		seq:      make(map[int64]uint64),
	}
}

// Input reports the current contents of the compose box for chatID.
func (d *TypingDebouncer) Input(ctx context.Context, chatID int64, text string) {
	if strings.TrimSpace(text) == "" {
		d.Stop(ctx, chatID)
		return
	}

	// the session ignores repeats, so every keystroke can say "typing"
	d.notifier.NotifyTypingIntent(ctx, chatID, true)

	bg := context.WithoutCancel(ctx)
	d.mu.Lock()
	if t, ok := d.timers[chatID]; ok {
		t.Stop()
	}
	d.seq[chatID]++
	n := d.seq[chatID]
	d.timers[chatID] = time.AfterFunc(d.quiet, func() { d.expire(bg, chatID, n) })
	d.mu.Unlock()
}

// Stop cancels the quiet timer and reports typing stopped right away.
func (d *TypingDebouncer) Stop(ctx context.Context, chatID int64) {
	d.cancel(chatID)
	d.notifier.NotifyTypingIntent(ctx, chatID, false)
}

// Pending reports whether a quiet timer is armed for chatID.
func (d *TypingDebouncer) Pending(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[chatID]
	return ok
}

// Shutdown cancels every timer without notifying.
func (d *TypingDebouncer) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
}

func (d *TypingDebouncer) cancel(chatID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[chatID]; ok {
		t.Stop()
		delete(d.timers, chatID)
	}
	d.seq[chatID]++
}

func (d *TypingDebouncer) expire(ctx context.Context, chatID int64, n uint64) {
	d.mu.Lock()
	if d.seq[chatID] != n {
		// rearmed or cancelled since this timer was set
		d.mu.Unlock()
		return
	}
	delete(d.timers, chatID)
	d.mu.Unlock()

	d.notifier.NotifyTypingIntent(ctx, chatID, false)
}
