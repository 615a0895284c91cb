// Package queue holds escalated sessions awaiting a human agent, orders them
// by priority and accumulated wait, and periodically pairs them with
// available agents from the registry.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/licitahub/atendechat/internal/domain"
	"github.com/licitahub/atendechat/internal/events"
	"github.com/licitahub/atendechat/internal/logging"
)

// AgentPool is the slice of the agent registry the queue needs.
type AgentPool interface {
	ListAvailable(department string) []*domain.ChatAgent
	IncrementLoad(agentID string) (*domain.ChatAgent, error)
	AvailableCount() int
}

// SessionLookup is the slice of the session store the queue needs.
type SessionLookup interface {
	Get(sessionID string) (*domain.ChatSession, bool)
	AssignAgent(sessionID, agentID, agentName string) (*domain.ChatSession, error)
}

// Config tunes the queue processing pass.
type Config struct {
	TickInterval    time.Duration // assignment pass cadence
	BatchSize       int           // max head-of-queue entries per pass
	NotifyEvery     time.Duration // wait-update cadence per queued session
	AvgChatDuration time.Duration // heuristic input for wait estimation
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Length        int                     `json:"length"`
	ByPriority    map[domain.Priority]int `json:"byPriority"`
	EstimatedWait time.Duration           `json:"estimatedWait"`
}

// Manager owns the queue entries. All mutation happens on call paths and on
// the processing tick; events are emitted outside the lock.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*domain.QueueEntry

	agents   AgentPool
	sessions SessionLookup
	bus      *events.Bus
	cfg      Config
	log      *logging.Logger
}

// NewManager creates an empty queue manager.
func NewManager(agents AgentPool, sessions SessionLookup, bus *events.Bus, cfg Config, log *logging.Logger) *Manager {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.NotifyEvery <= 0 {
		cfg.NotifyEvery = 5 * time.Minute
	}
	if cfg.AvgChatDuration <= 0 {
		cfg.AvgChatDuration = 5 * time.Minute
	}
	return &Manager{
		entries:  make(map[string]*domain.QueueEntry),
		agents:   agents,
		sessions: sessions,
		bus:      bus,
		cfg:      cfg,
		log:      log.Sub("queue"),
	}
}

// Enqueue adds a waiting session to the queue. Sessions already queued or
// no longer waiting are skipped; returns whether an entry was created.
func (m *Manager) Enqueue(sess *domain.ChatSession) bool {
	if sess == nil || sess.Status != domain.SessionWaiting {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[sess.ID]; ok {
		return false
	}
	m.entries[sess.ID] = &domain.QueueEntry{
		SessionID:  sess.ID,
		Department: sess.Department,
		Weight:     sess.Priority.Weight(),
		EnqueuedAt: time.Now(),
	}
	m.log.Info().
		Str("sessionId", sess.ID).
		Int("weight", sess.Priority.Weight()).
		Int("queueLength", len(m.entries)).
		Msg("session enqueued")
	return true
}

// Remove drops a session's entry, if any. Called the instant a session
// becomes active or closed.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
}

// Contains reports whether a session has a live queue entry.
func (m *Manager) Contains(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[sessionID]
	return ok
}

// Len returns the number of queued sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Position returns the 1-based position of a session in the current
// ordering, or 0 if not queued.
func (m *Manager) Position(sessionID string) int {
	m.mu.Lock()
	ordered := m.orderedLocked()
	m.mu.Unlock()

	for i, e := range ordered {
		if e.SessionID == sessionID {
			return i + 1
		}
	}
	return 0
}

// EstimateWait computes the coarse wait heuristic:
// ceil(queueLength / max(availableAgents, 1)) * averageChatDuration.
func (m *Manager) EstimateWait() time.Duration {
	return m.estimate(m.Len())
}

func (m *Manager) estimate(queueLen int) time.Duration {
	if queueLen == 0 {
		return 0
	}
	avail := m.agents.AvailableCount()
	if avail < 1 {
		avail = 1
	}
	rounds := (queueLen + avail - 1) / avail
	return time.Duration(rounds) * m.cfg.AvgChatDuration
}

// Stats returns a snapshot of queue length, per-priority breakdown and the
// current wait estimate.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	byPrio := map[domain.Priority]int{}
	for _, e := range m.entries {
		byPrio[weightPriority(e.Weight)]++
	}
	length := len(m.entries)
	m.mu.Unlock()

	return Stats{
		Length:        length,
		ByPriority:    byPrio,
		EstimatedWait: m.estimate(length),
	}
}

func weightPriority(w int) domain.Priority {
	switch w {
	case 3:
		return domain.PriorityHigh
	case 2:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

// Run fires the processing pass on the configured interval until the
// context is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	m.log.Info().Dur("interval", m.cfg.TickInterval).Msg("queue processing started")
	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("queue processing stopped")
			return
		case <-ticker.C:
			m.ProcessTick(ctx)
		}
	}
}

// ProcessTick runs one assignment pass: re-sort the queue, try to assign up
// to BatchSize head entries, grow wait time on the rest, and emit wait
// updates when a session crosses the notify cadence.
func (m *Manager) ProcessTick(ctx context.Context) {
	m.mu.Lock()
	ordered := m.orderedLocked()
	m.mu.Unlock()

	batch := ordered
	if len(batch) > m.cfg.BatchSize {
		batch = batch[:m.cfg.BatchSize]
	}

	var emits []events.Event
	for _, entry := range batch {
		// Liveness: the session may have closed while queued.
		sess, ok := m.sessions.Get(entry.SessionID)
		if !ok || sess.Status != domain.SessionWaiting {
			m.Remove(entry.SessionID)
			m.log.Debug().Str("sessionId", entry.SessionID).Msg("dropping dead queue entry")
			continue
		}

		assigned, ev := m.tryAssign(entry, sess)
		if assigned {
			emits = append(emits, ev)
			continue
		}

		if ev := m.growWait(entry); ev != nil {
			emits = append(emits, *ev)
		}
	}

	for _, ev := range emits {
		m.bus.Emit(ctx, ev)
	}
}

// tryAssign pairs one waiting session with the least-loaded available agent.
// The capacity check-and-increment is atomic inside the registry, so a
// concurrent pass can never double-book the last slot.
func (m *Manager) tryAssign(entry *domain.QueueEntry, sess *domain.ChatSession) (bool, events.Event) {
	candidates := m.agents.ListAvailable(sess.Department)
	if len(candidates) == 0 {
		return false, events.Event{}
	}
	best := candidates[0]

	agent, err := m.agents.IncrementLoad(best.ID)
	if err != nil {
		// Lost the slot to a concurrent assignment; next tick retries.
		m.log.Warn().Err(err).Str("agentId", best.ID).Msg("candidate filled up mid-pass")
		return false, events.Event{}
	}

	updated, err := m.sessions.AssignAgent(sess.ID, agent.ID, agent.Name)
	if err != nil {
		m.log.Warn().Err(err).Str("sessionId", sess.ID).Msg("assign failed, releasing entry")
		m.Remove(sess.ID)
		return false, events.Event{}
	}

	m.Remove(sess.ID)
	m.log.Info().
		Str("sessionId", sess.ID).
		Str("agentId", agent.ID).
		Int("agentLoad", agent.CurrentChats).
		Msg("session assigned")
	return true, events.Event{Type: events.AgentAssigned, Session: updated, Agent: agent}
}

// growWait bumps an unassigned entry's accumulated wait by the tick
// interval and returns a queue_update event each time the wait crosses the
// notify cadence.
func (m *Manager) growWait(entry *domain.QueueEntry) *events.Event {
	m.mu.Lock()
	live, ok := m.entries[entry.SessionID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	before := live.WaitTime
	live.WaitTime += m.cfg.TickInterval
	after := live.WaitTime
	length := len(m.entries)
	m.mu.Unlock()

	if int(before/m.cfg.NotifyEvery) == int(after/m.cfg.NotifyEvery) {
		return nil
	}

	sess, ok := m.sessions.Get(entry.SessionID)
	if !ok {
		return nil
	}
	return &events.Event{
		Type:    events.QueueUpdate,
		Session: sess,
		Queue: &events.QueueInfo{
			Position:      m.Position(entry.SessionID),
			Length:        length,
			EstimatedWait: m.estimate(length),
		},
	}
}

// orderedLocked returns entries sorted by priority weight descending, then
// accumulated wait descending. Recomputed each pass so the tie-break stays
// correct as wait time grows. Caller holds the lock.
func (m *Manager) orderedLocked() []*domain.QueueEntry {
	out := make([]*domain.QueueEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		if out[i].WaitTime != out[j].WaitTime {
			return out[i].WaitTime > out[j].WaitTime
		}
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}
