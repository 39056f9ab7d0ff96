package realtime

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"matchme-client/internal/models"
)

// PresenceMap is the full presence state handed to presence observers.
type PresenceMap map[string]models.PresenceRecord

// Emitter is an append-only list of typed observers. Emit calls every observer
// outside the lock, in registration order, and a panicking observer is logged
// without stopping the rest.
type Emitter[T any] struct {
	name string
	log  *slog.Logger

	mu       sync.Mutex
	handlers []func(T)
}

func NewEmitter[T any](name string, log *slog.Logger) *Emitter[T] {
	return &Emitter[T]{name: name, log: log}
}

func (e *Emitter[T]) Add(fn func(T)) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.handlers = append(e.handlers, fn)
	e.mu.Unlock()
}

func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	handlers := make([]func(T), len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.Unlock()

	for _, fn := range handlers {
		e.call(fn, v)
	}
}

func (e *Emitter[T]) call(fn func(T), v T) {
	guard(e.log, e.name, func() { fn(v) })
}

// guard runs fn and logs instead of propagating a panic.
func guard(log *slog.Logger, event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("realtime: observer panicked",
				"event", event, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (e *Emitter[T]) Clear() {
	e.mu.Lock()
	e.handlers = nil
	e.mu.Unlock()
}

func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}
