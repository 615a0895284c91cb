// Package agent tracks human support agents: identity, availability,
// department tags and concurrent-chat capacity.
package agent

import (
	"errors"
	"sort"
	"sync"

	"github.com/licitahub/atendechat/internal/domain"
	"github.com/licitahub/atendechat/internal/logging"
)

var (
	// ErrNotFound is returned for unknown agent ids.
	ErrNotFound = errors.New("agent not found")
	// ErrCapacityExceeded is returned when an increment would push an agent
	// past its limit. Callers filter candidates first, so hitting this is an
	// invariant violation on their side, not a normal path.
	ErrCapacityExceeded = errors.New("agent capacity exceeded")
)

// Registry is the shared mutable record of all known agents. The capacity
// check-and-increment runs under a single lock, so an assignment pass can
// never race another past an agent's limit.
type Registry struct {
	mu     sync.Mutex
	agents map[string]*domain.ChatAgent
	log    *logging.Logger
}

// NewRegistry creates an empty agent registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		agents: make(map[string]*domain.ChatAgent),
		log:    log.Sub("agents"),
	}
}

// Register upserts an agent by id. New agents default to online with zero
// load; re-registering keeps the current load and status but refreshes
// identity, departments and capacity.
func (r *Registry) Register(a domain.ChatAgent) *domain.ChatAgent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.MaxConcurrentChats <= 0 {
		a.MaxConcurrentChats = 1
	}

	existing, ok := r.agents[a.ID]
	if ok {
		existing.Name = a.Name
		existing.Departments = append([]string(nil), a.Departments...)
		existing.MaxConcurrentChats = a.MaxConcurrentChats
		r.log.Debug().Str("agentId", a.ID).Msg("agent re-registered")
		return existing.Clone()
	}

	a.Status = domain.AgentOnline
	a.CurrentChats = 0
	a.Departments = append([]string(nil), a.Departments...)
	r.agents[a.ID] = &a

	r.log.Info().
		Str("agentId", a.ID).
		Str("name", a.Name).
		Strs("departments", a.Departments).
		Int("maxChats", a.MaxConcurrentChats).
		Msg("agent registered")
	return a.Clone()
}

// SetStatus updates an agent's availability.
func (r *Registry) SetStatus(agentID string, status domain.AgentStatus) (*domain.ChatAgent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	a.Status = status
	r.log.Debug().Str("agentId", agentID).Str("status", string(status)).Msg("agent status changed")
	return a.Clone(), nil
}

// IncrementLoad atomically checks capacity and takes one chat slot.
// Reaching the limit flips the agent to busy.
func (r *Registry) IncrementLoad(agentID string) (*domain.ChatAgent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	if a.CurrentChats >= a.MaxConcurrentChats {
		return nil, ErrCapacityExceeded
	}

	a.CurrentChats++
	if a.CurrentChats == a.MaxConcurrentChats && a.Status == domain.AgentOnline {
		a.Status = domain.AgentBusy
	}
	return a.Clone(), nil
}

// DecrementLoad releases one chat slot, clamping at zero. Dropping back
// under the limit flips busy agents to online; away and offline stay put.
func (r *Registry) DecrementLoad(agentID string) (*domain.ChatAgent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	if a.CurrentChats > 0 {
		a.CurrentChats--
	}
	if a.CurrentChats < a.MaxConcurrentChats && a.Status == domain.AgentBusy {
		a.Status = domain.AgentOnline
	}
	return a.Clone(), nil
}

// ListAvailable returns agents that are online with spare capacity and,
// when department is non-empty, tagged for that department. Results are
// snapshots sorted by current load ascending, so the head is the
// load-balancing pick.
func (r *Registry) ListAvailable(department string) []*domain.ChatAgent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.ChatAgent
	for _, a := range r.agents {
		if a.Status != domain.AgentOnline || !a.HasCapacity() {
			continue
		}
		if !a.HasDepartment(department) {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CurrentChats != out[j].CurrentChats {
			return out[i].CurrentChats < out[j].CurrentChats
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AvailableCount returns the number of agents with spare capacity,
// regardless of department.
func (r *Registry) AvailableCount() int {
	return len(r.ListAvailable(""))
}

// Get returns a snapshot of an agent.
func (r *Registry) Get(agentID string) (*domain.ChatAgent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// Counts returns the number of online and busy agents.
func (r *Registry) Counts() (online, busy int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.agents {
		switch a.Status {
		case domain.AgentOnline:
			online++
		case domain.AgentBusy:
			busy++
		}
	}
	return online, busy
}
