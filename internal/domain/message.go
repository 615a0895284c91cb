package domain

import "time"

// SenderRole identifies who authored a message.
type SenderRole string

const (
	RoleUser   SenderRole = "user"
	RoleAgent  SenderRole = "agent"
	RoleBot    SenderRole = "bot"
	RoleSystem SenderRole = "system"
)

// MessageKind classifies the message body.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindImage  MessageKind = "image"
	KindFile   MessageKind = "file"
	KindSystem MessageKind = "system"
)

// ParseMessageKind maps a wire string to a MessageKind, defaulting to text.
func ParseMessageKind(s string) MessageKind {
	switch MessageKind(s) {
	case KindText, KindImage, KindFile, KindSystem:
		return MessageKind(s)
	default:
		return KindText
	}
}

// ChatMessage is a single entry in a session's message log.
type ChatMessage struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"sessionId"`
	SenderID   string            `json:"senderId"`
	SenderName string            `json:"senderName,omitempty"`
	Role       SenderRole        `json:"role"`
	Kind       MessageKind       `json:"kind"`
	Content    string            `json:"content"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the message.
func (m *ChatMessage) Clone() *ChatMessage {
	if m == nil {
		return nil
	}
	out := *m
	if m.Metadata != nil {
		out.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
