package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Priority tests ---

func TestPriorityWeight(t *testing.T) {
	assert.Equal(t, 3, PriorityHigh.Weight())
	assert.Equal(t, 2, PriorityMedium.Weight())
	assert.Equal(t, 1, PriorityLow.Weight())
	assert.Equal(t, 1, Priority("bogus").Weight())
}

func TestParsePriority(t *testing.T) {
	assert.Equal(t, PriorityHigh, ParsePriority("high"))
	assert.Equal(t, PriorityLow, ParsePriority("low"))
	assert.Equal(t, PriorityMedium, ParsePriority(""))
	assert.Equal(t, PriorityMedium, ParsePriority("urgent"))
}

// --- Agent tests ---

func TestAgentHasDepartment(t *testing.T) {
	a := &ChatAgent{Departments: []string{"vendas", "suporte"}}

	assert.True(t, a.HasDepartment("suporte"))
	assert.True(t, a.HasDepartment(""), "empty department matches anyone")
	assert.False(t, a.HasDepartment("financeiro"))
}

func TestAgentHasCapacity(t *testing.T) {
	a := &ChatAgent{MaxConcurrentChats: 2, CurrentChats: 1}
	assert.True(t, a.HasCapacity())

	a.CurrentChats = 2
	assert.False(t, a.HasCapacity())
}

func TestParseAgentStatus(t *testing.T) {
	assert.Equal(t, AgentAway, ParseAgentStatus("away"))
	assert.Equal(t, AgentOnline, ParseAgentStatus(""))
	assert.Equal(t, AgentOnline, ParseAgentStatus("nope"))
}

// --- Clone tests ---

func TestSessionClone_IsDeep(t *testing.T) {
	closed := time.Now()
	sess := &ChatSession{
		ID:       "s1",
		Status:   SessionClosed,
		Tags:     []string{"edital"},
		ClosedAt: &closed,
		Messages: []ChatMessage{
			{ID: "m1", Content: "oi", Metadata: map[string]string{"category": "greeting"}},
		},
	}

	clone := sess.Clone()
	clone.Tags[0] = "mutated"
	clone.Messages[0].Metadata["category"] = "mutated"
	*clone.ClosedAt = closed.Add(time.Hour)

	assert.Equal(t, "edital", sess.Tags[0])
	assert.Equal(t, "greeting", sess.Messages[0].Metadata["category"])
	assert.Equal(t, closed, *sess.ClosedAt)
}

func TestSessionClone_Nil(t *testing.T) {
	var sess *ChatSession
	assert.Nil(t, sess.Clone())
}

// --- JSON shape tests ---

func TestChatMessageJSON_OmitsEmpty(t *testing.T) {
	msg := ChatMessage{
		ID:        "m1",
		SessionID: "s1",
		SenderID:  "u1",
		Role:      RoleUser,
		Kind:      KindText,
		Content:   "olá",
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	raw := string(data)
	assert.NotContains(t, raw, "metadata")
	assert.NotContains(t, raw, "senderName")
}

func TestChatSessionJSON_RoundTrip(t *testing.T) {
	sess := ChatSession{
		ID:        "s1",
		Requester: Requester{ID: "u1", Name: "Maria"},
		Status:    SessionWaiting,
		Priority:  PriorityHigh,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	data, err := json.Marshal(sess)
	require.NoError(t, err)

	var decoded ChatSession
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, sess.ID, decoded.ID)
	assert.Equal(t, sess.Requester, decoded.Requester)
	assert.Equal(t, SessionWaiting, decoded.Status)
	assert.Equal(t, PriorityHigh, decoded.Priority)
}
