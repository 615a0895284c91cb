package domain

import "time"

// QueueEntry tracks a waiting session that has been escalated to the
// human-agent queue. A session has at most one live entry.
type QueueEntry struct {
	SessionID  string        `json:"sessionId"`
	Department string        `json:"department,omitempty"`
	Weight     int           `json:"weight"`
	EnqueuedAt time.Time     `json:"enqueuedAt"`
	WaitTime   time.Duration `json:"waitTime"`
}
