package gateway

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is bumped on breaking envelope changes.
const ProtocolVersion = 1

// Envelope is the wire frame in both directions: a type tag and a JSON
// payload. Client commands and server events share the shape.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals a payload into an outbound envelope.
func NewEnvelope(event string, payload any) (Envelope, error) {
	env := Envelope{Type: event}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshaling %s payload: %w", event, err)
	}
	env.Payload = data
	return env, nil
}

// ConnectParams is the payload of the initial "connect" envelope. Role is
// "user" or "agent"; departments and capacity only apply to agents.
type ConnectParams struct {
	ParticipantID      string   `json:"participantId"`
	DisplayName        string   `json:"displayName,omitempty"`
	Role               string   `json:"role,omitempty"`
	Token              string   `json:"token,omitempty"`
	Departments        []string `json:"departments,omitempty"`
	MaxConcurrentChats int      `json:"maxConcurrentChats,omitempty"`
}

// ConnectedPayload acknowledges a successful handshake.
type ConnectedPayload struct {
	ConnID        string `json:"connId"`
	ParticipantID string `json:"participantId"`
	Role          string `json:"role"`
	Protocol      int    `json:"protocol"`
	ServerVersion string `json:"serverVersion"`
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Connections int    `json:"connections"`
}

// StatsResponse is the /stats body.
type StatsResponse struct {
	QueueLength          int            `json:"queueLength"`
	EstimatedWaitSeconds int            `json:"estimatedWaitSeconds"`
	ByPriority           map[string]int `json:"byPriority"`
	AgentsOnline         int            `json:"agentsOnline"`
	AgentsBusy           int            `json:"agentsBusy"`
	OpenSessions         int            `json:"openSessions"`
	Connections          int            `json:"connections"`
	UptimeSeconds        int64          `json:"uptimeSeconds"`
}
