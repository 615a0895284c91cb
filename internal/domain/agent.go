package domain

// AgentStatus is the availability state of a human agent.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentAway    AgentStatus = "away"
	AgentBusy    AgentStatus = "busy"
	AgentOffline AgentStatus = "offline"
)

// ParseAgentStatus maps a wire string to an AgentStatus, defaulting to online.
func ParseAgentStatus(s string) AgentStatus {
	switch AgentStatus(s) {
	case AgentOnline, AgentAway, AgentBusy, AgentOffline:
		return AgentStatus(s)
	default:
		return AgentOnline
	}
}

// ChatAgent tracks a human agent's identity, availability, skills and
// concurrent-chat capacity.
type ChatAgent struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	Status             AgentStatus `json:"status"`
	Departments        []string    `json:"departments,omitempty"`
	MaxConcurrentChats int         `json:"maxConcurrentChats"`
	CurrentChats       int         `json:"currentChats"`
}

// HasDepartment reports whether the agent serves the given department.
// An empty department matches any agent.
func (a *ChatAgent) HasDepartment(dept string) bool {
	if dept == "" {
		return true
	}
	for _, d := range a.Departments {
		if d == dept {
			return true
		}
	}
	return false
}

// HasCapacity reports whether the agent can take another chat.
func (a *ChatAgent) HasCapacity() bool {
	return a.CurrentChats < a.MaxConcurrentChats
}

// Clone returns a deep copy of the agent.
func (a *ChatAgent) Clone() *ChatAgent {
	if a == nil {
		return nil
	}
	out := *a
	if a.Departments != nil {
		out.Departments = append([]string(nil), a.Departments...)
	}
	return &out
}
