package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/licitahub/atendechat/internal/domain"
)

// ChatStore persists sessions, messages, and agent sightings for later
// reporting. All writes are upserts so the recorder can replay events
// without ordering guarantees.
type ChatStore struct {
	db *DB
}

// NewChatStore creates a chat store using the given database.
func NewChatStore(db *DB) *ChatStore {
	return &ChatStore{db: db}
}

// UpsertSession writes the current snapshot of a session.
func (s *ChatStore) UpsertSession(sess *domain.ChatSession) error {
	var rating sql.NullInt64
	if sess.Rating > 0 {
		rating = sql.NullInt64{Int64: int64(sess.Rating), Valid: true}
	}
	var closedAt sql.NullString
	if sess.ClosedAt != nil {
		closedAt = sql.NullString{String: sess.ClosedAt.UTC().Format(time.DateTime), Valid: true}
	}

	_, err := s.db.sql.Exec(
		`INSERT INTO sessions (id, requester_id, requester_name, agent_id, agent_name, status, subject, department, priority, rating, created_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			agent_id   = excluded.agent_id,
			agent_name = excluded.agent_name,
			status     = excluded.status,
			rating     = excluded.rating,
			closed_at  = excluded.closed_at`,
		sess.ID, sess.Requester.ID, sess.Requester.Name,
		sess.AgentID, sess.AgentName, string(sess.Status),
		sess.Subject, sess.Department, string(sess.Priority),
		rating, sess.CreatedAt.UTC().Format(time.DateTime), closedAt,
	)
	return err
}

// AppendMessage records a single message.
func (s *ChatStore) AppendMessage(msg *domain.ChatMessage) error {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.sql.Exec(
		`INSERT INTO messages (message_id, session_id, sender_id, sender_name, role, kind, content, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.SenderID, msg.SenderName,
		string(msg.Role), string(msg.Kind), msg.Content,
		ts.UTC().Format(time.DateTime),
	)
	return err
}

// UpsertAgent records the latest sighting of an agent.
func (s *ChatStore) UpsertAgent(ag *domain.ChatAgent) error {
	_, err := s.db.sql.Exec(
		`INSERT INTO agents (id, name, departments, last_status, last_seen)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name        = excluded.name,
			departments = excluded.departments,
			last_status = excluded.last_status,
			last_seen   = excluded.last_seen`,
		ag.ID, ag.Name, strings.Join(ag.Departments, ","),
		string(ag.Status), time.Now().UTC().Format(time.DateTime),
	)
	return err
}

// UpdateRating stores the requester's rating for a session.
func (s *ChatStore) UpdateRating(sessionID string, rating int) error {
	_, err := s.db.sql.Exec(
		`UPDATE sessions SET rating = ? WHERE id = ?`, rating, sessionID,
	)
	return err
}

// Report summarizes recorded activity over a period.
type Report struct {
	Sessions      int
	Closed        int
	Messages      int
	AvgRating     float64
	RatedSessions int
	ByDepartment  map[string]int
}

// Analytics aggregates sessions created in [from, to).
func (s *ChatStore) Analytics(from, to time.Time) (*Report, error) {
	fromStr := from.UTC().Format(time.DateTime)
	toStr := to.UTC().Format(time.DateTime)

	rep := &Report{ByDepartment: make(map[string]int)}

	err := s.db.sql.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = 'closed' THEN 1 ELSE 0 END), 0),
		        COALESCE(AVG(rating), 0),
		        COALESCE(SUM(CASE WHEN rating IS NOT NULL THEN 1 ELSE 0 END), 0)
		 FROM sessions WHERE created_at >= ? AND created_at < ?`,
		fromStr, toStr,
	).Scan(&rep.Sessions, &rep.Closed, &rep.AvgRating, &rep.RatedSessions)
	if err != nil {
		return nil, err
	}

	err = s.db.sql.QueryRow(
		`SELECT COUNT(*) FROM messages m
		 JOIN sessions s ON s.id = m.session_id
		 WHERE s.created_at >= ? AND s.created_at < ?`,
		fromStr, toStr,
	).Scan(&rep.Messages)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.sql.Query(
		`SELECT department, COUNT(*) FROM sessions
		 WHERE created_at >= ? AND created_at < ?
		 GROUP BY department`,
		fromStr, toStr,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var dept string
		var count int
		if err := rows.Scan(&dept, &count); err != nil {
			continue
		}
		if dept == "" {
			dept = "geral"
		}
		rep.ByDepartment[dept] = count
	}
	return rep, rows.Err()
}
