// Package fanout maps live transport connections to chat participants and
// delivers events to them. It is transport-agnostic: the gateway adapts its
// websocket connections to the Conn interface, and the engine never touches
// the wire protocol.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/licitahub/atendechat/internal/logging"
)

// Role distinguishes requester connections from agent consoles.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Conn is one live transport connection.
type Conn interface {
	// ID returns the unique connection id.
	ID() string
	// Send delivers a named event with a JSON-marshalable payload.
	Send(event string, payload any) error
	// Alive reports whether the underlying transport is still open.
	Alive() bool
	// Close tears down the transport.
	Close() error
}

// Participant is the identity bound to a connection at handshake time.
type Participant struct {
	ConnID string
	ID     string
	Name   string
	Role   Role
}

type binding struct {
	conn Conn
	part Participant
}

// Registry tracks connection-to-participant bindings.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]*binding // connID → binding
	pruneHook func(connID string)
	log       *logging.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		conns: make(map[string]*binding),
		log:   log.Sub("fanout"),
	}
}

// Register binds a connection to a participant.
func (r *Registry) Register(conn Conn, participantID, name string, role Role) Participant {
	part := Participant{ConnID: conn.ID(), ID: participantID, Name: name, Role: role}

	r.mu.Lock()
	r.conns[conn.ID()] = &binding{conn: conn, part: part}
	r.mu.Unlock()

	r.log.Info().
		Str("connId", conn.ID()).
		Str("participant", participantID).
		Str("role", string(role)).
		Msg("connection registered")
	return part
}

// Unregister drops a connection binding, returning the participant it
// carried.
func (r *Registry) Unregister(connID string) (Participant, bool) {
	r.mu.Lock()
	b, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
	}
	r.mu.Unlock()

	if !ok {
		return Participant{}, false
	}
	r.log.Info().
		Str("connId", connID).
		Str("participant", b.part.ID).
		Msg("connection unregistered")
	return b.part, true
}

// SendTo delivers an event to every open connection of one participant and
// returns the number of deliveries.
func (r *Registry) SendTo(participantID, event string, payload any) int {
	return r.send(event, payload, func(p Participant) bool {
		return p.ID == participantID
	})
}

// SendToConn delivers an event to a single connection, used for error
// events that must reach only the offending connection.
func (r *Registry) SendToConn(connID, event string, payload any) bool {
	r.mu.RLock()
	b, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if err := b.conn.Send(event, payload); err != nil {
		r.log.Warn().Err(err).Str("connId", connID).Msg("send failed")
		return false
	}
	return true
}

// BroadcastSession delivers a session event to the session's parties only:
// the requester and, when assigned, the agent.
func (r *Registry) BroadcastSession(requesterID, agentID, event string, payload any) int {
	return r.send(event, payload, func(p Participant) bool {
		if p.ID == requesterID {
			return true
		}
		return agentID != "" && p.ID == agentID
	})
}

func (r *Registry) send(event string, payload any, match func(Participant) bool) int {
	r.mu.RLock()
	targets := make([]*binding, 0, 4)
	for _, b := range r.conns {
		if match(b.part) {
			targets = append(targets, b)
		}
	}
	r.mu.RUnlock()

	sent := 0
	for _, b := range targets {
		if err := b.conn.Send(event, payload); err != nil {
			r.log.Warn().
				Err(err).
				Str("connId", b.part.ConnID).
				Str("event", event).
				Msg("send failed")
			continue
		}
		sent++
	}
	return sent
}

// HasParticipant reports whether any open connection belongs to the
// participant.
func (r *Registry) HasParticipant(participantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.conns {
		if b.part.ID == participantID {
			return true
		}
	}
	return false
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// OnPrune registers a callback invoked once per connection the sweep found
// dead, before the binding is dropped. The engine hooks its disconnect path
// here so ungracefully dropped agents go offline like cleanly closed ones.
func (r *Registry) OnPrune(fn func(connID string)) {
	r.mu.Lock()
	r.pruneHook = fn
	r.mu.Unlock()
}

// Sweep removes and closes connections whose transport reports a closed
// state, handling ungraceful disconnects. Returns the number pruned.
func (r *Registry) Sweep() int {
	r.mu.RLock()
	hook := r.pruneHook
	var dead []*binding
	for _, b := range r.conns {
		if !b.conn.Alive() {
			dead = append(dead, b)
		}
	}
	r.mu.RUnlock()

	for _, b := range dead {
		if hook != nil {
			hook(b.part.ConnID)
		}
		// The hook normally unregisters through the disconnect path; this is
		// a no-op then.
		r.Unregister(b.part.ConnID)
		b.conn.Close()
		r.log.Info().
			Str("connId", b.part.ConnID).
			Str("participant", b.part.ID).
			Msg("pruned dead connection")
	}
	return len(dead)
}

// Run sweeps on the given interval until the context is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// CloseAll closes every registered connection, used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, b := range r.conns {
		b.conn.Close()
		delete(r.conns, id)
	}
}
