// Package events provides the typed lifecycle event bus that connects the
// chat engine to its collaborators (persistence, analytics, notifications,
// transport fan-out). Payloads are statically known per event type.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/licitahub/atendechat/internal/domain"
	"github.com/licitahub/atendechat/internal/logging"
)

// Type enumerates the engine's lifecycle events.
type Type string

const (
	SessionStarted     Type = "session_started"
	MessageSent        Type = "message_sent"
	AgentAssigned      Type = "agent_assigned"
	AddedToQueue       Type = "added_to_queue"
	QueueUpdate        Type = "queue_update"
	SessionClosed      Type = "session_closed"
	SessionRated       Type = "session_rated"
	AgentStatusChanged Type = "agent_status_changed"
)

// AllTypes lists every known event type.
var AllTypes = []Type{
	SessionStarted,
	MessageSent,
	AgentAssigned,
	AddedToQueue,
	QueueUpdate,
	SessionClosed,
	SessionRated,
	AgentStatusChanged,
}

// QueueInfo describes a session's place in the waiting queue.
type QueueInfo struct {
	Position      int           `json:"position"`
	Length        int           `json:"length"`
	EstimatedWait time.Duration `json:"estimatedWait"`
}

// Event carries the payload for one lifecycle event. Which fields are set
// depends on Type: Session for session events, Message for message events,
// Agent for assignment and status changes, Queue for queue events,
// Rating for session_rated.
type Event struct {
	Type    Type
	Session *domain.ChatSession
	Message *domain.ChatMessage
	Agent   *domain.ChatAgent
	Queue   *QueueInfo
	Rating  int
}

// Handler processes one event. Returning an error logs the failure but does
// not stop other handlers.
type Handler func(ctx context.Context, ev Event) error

type namedHandler struct {
	name    string
	handler Handler
}

// Bus dispatches lifecycle events to registered handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]namedHandler
	log      *logging.Logger
}

// NewBus creates an empty event bus.
func NewBus(log *logging.Logger) *Bus {
	return &Bus{
		handlers: make(map[Type][]namedHandler),
		log:      log.Sub("events"),
	}
}

// On registers a handler under a name used for logging and removal.
func (b *Bus) On(t Type, name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], namedHandler{name: name, handler: h})
	b.log.Debug().Str("event", string(t)).Str("handler", name).Msg("handler registered")
}

// Off removes all handlers with the given name from an event type.
func (b *Bus) Off(t Type, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.handlers[t]
	filtered := make([]namedHandler, 0, len(handlers))
	for _, h := range handlers {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	b.handlers[t] = filtered
}

// Emit dispatches an event to all handlers synchronously, in registration
// order. Handler errors are logged and do not prevent subsequent handlers.
func (b *Bus) Emit(ctx context.Context, ev Event) {
	for _, h := range b.snapshot(ev.Type) {
		if err := h.handler(ctx, ev); err != nil {
			b.log.Warn().
				Err(err).
				Str("event", string(ev.Type)).
				Str("handler", h.name).
				Msg("event handler error")
		}
	}
}

// EmitAsync dispatches an event to all handlers concurrently and returns
// immediately. Used for collaborators that must never block the engine.
func (b *Bus) EmitAsync(ctx context.Context, ev Event) {
	for _, h := range b.snapshot(ev.Type) {
		go func(h namedHandler) {
			if err := h.handler(ctx, ev); err != nil {
				b.log.Warn().
					Err(err).
					Str("event", string(ev.Type)).
					Str("handler", h.name).
					Msg("async event handler error")
			}
		}(h)
	}
}

// Count returns the number of handlers registered for an event type.
func (b *Bus) Count(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t])
}

func (b *Bus) snapshot(t Type) []namedHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]namedHandler, len(b.handlers[t]))
	copy(out, b.handlers[t])
	return out
}
