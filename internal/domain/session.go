// Package domain holds the core entities of the support chat engine.
package domain

import "time"

// SessionStatus is the lifecycle state of a chat session.
type SessionStatus string

const (
	SessionWaiting SessionStatus = "waiting"
	SessionActive  SessionStatus = "active"
	SessionClosed  SessionStatus = "closed"
)

// Priority orders sessions in the assignment queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Weight returns the numeric queue weight for a priority.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

// ParsePriority maps a wire string to a Priority, defaulting to medium.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(s)
	default:
		return PriorityMedium
	}
}

// Requester identifies the user who opened a session.
type Requester struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Contact string `json:"contact,omitempty"`
}

// ChatSession is one end-to-end support conversation between a requester
// and either the bot or a human agent.
type ChatSession struct {
	ID           string        `json:"id"`
	Requester    Requester     `json:"requester"`
	AgentID      string        `json:"agentId,omitempty"`
	AgentName    string        `json:"agentName,omitempty"`
	Status       SessionStatus `json:"status"`
	Subject      string        `json:"subject,omitempty"`
	Department   string        `json:"department,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
	Priority     Priority      `json:"priority"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastActivity time.Time     `json:"lastActivity"`
	ClosedAt     *time.Time    `json:"closedAt,omitempty"`
	Messages     []ChatMessage `json:"messages,omitempty"`
	Rating       int           `json:"rating,omitempty"`
}

// Clone returns a deep copy so callers can never mutate store-owned state.
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	out := *s
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		out.ClosedAt = &t
	}
	if s.Tags != nil {
		out.Tags = append([]string(nil), s.Tags...)
	}
	if s.Messages != nil {
		out.Messages = make([]ChatMessage, len(s.Messages))
		for i := range s.Messages {
			out.Messages[i] = *s.Messages[i].Clone()
		}
	}
	return &out
}
