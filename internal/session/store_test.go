package session

import (
	"testing"
	"time"

	"github.com/licitahub/atendechat/internal/domain"
	"github.com/licitahub/atendechat/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore("Bem-vindo ao atendimento!", logging.New(nil, "silent", "json"))
}

func createWaiting(t *testing.T, s *Store) *domain.ChatSession {
	t.Helper()
	return s.Create(domain.Requester{ID: "u1", Name: "Maria"}, "dúvida", "suporte", domain.PriorityMedium, nil)
}

// --- Create ---

func TestCreate_StartsWaitingWithWelcome(t *testing.T) {
	s := testStore(t)
	sess := createWaiting(t, s)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, domain.SessionWaiting, sess.Status)
	assert.Empty(t, sess.AgentID)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, domain.RoleSystem, sess.Messages[0].Role)
	assert.Equal(t, "Bem-vindo ao atendimento!", sess.Messages[0].Content)
	assert.Equal(t, 1, s.Count())
}

func TestCreate_SnapshotIsDetached(t *testing.T) {
	s := testStore(t)
	sess := createWaiting(t, s)

	sess.Status = domain.SessionClosed
	sess.Messages[0].Content = "mutated"

	fresh, ok := s.Get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, domain.SessionWaiting, fresh.Status)
	assert.Equal(t, "Bem-vindo ao atendimento!", fresh.Messages[0].Content)
}

// --- Append ---

func TestAppend_AddsMessageAndBumpsActivity(t *testing.T) {
	s := testStore(t)
	sess := createWaiting(t, s)

	msg, err := s.Append(sess.ID, domain.ChatMessage{
		SenderID: "u1",
		Role:     domain.RoleUser,
		Content:  "olá",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, sess.ID, msg.SessionID)
	assert.Equal(t, domain.KindText, msg.Kind)

	got, ok := s.Get(sess.ID)
	require.True(t, ok)
	assert.Len(t, got.Messages, 2)
	assert.False(t, got.LastActivity.Before(sess.LastActivity))
}

func TestAppend_UnknownSession(t *testing.T) {
	s := testStore(t)
	_, err := s.Append("nope", domain.ChatMessage{Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppend_ClosedSession(t *testing.T) {
	s := testStore(t)
	sess := createWaiting(t, s)
	_, _, err := s.Close(sess.ID)
	require.NoError(t, err)

	_, err = s.Append(sess.ID, domain.ChatMessage{Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppend_TimestampsNonDecreasing(t *testing.T) {
	s := testStore(t)
	sess := createWaiting(t, s)

	past := time.Now().Add(-time.Hour)
	msg, err := s.Append(sess.ID, domain.ChatMessage{
		SenderID:  "u1",
		Role:      domain.RoleUser,
		Content:   "antigo",
		Timestamp: past,
	})
	require.NoError(t, err)

	got, _ := s.Get(sess.ID)
	welcome := got.Messages[0].Timestamp
	assert.False(t, msg.Timestamp.Before(welcome), "timestamp clamped to log head")
}

// --- AssignAgent ---

func TestAssignAgent_FromWaiting(t *testing.T) {
	s := testStore(t)
	sess := createWaiting(t, s)

	got, err := s.AssignAgent(sess.ID, "a1", "João")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, got.Status)
	assert.Equal(t, "a1", got.AgentID)
	assert.Equal(t, "João", got.AgentName)
}

func TestAssignAgent_Twice(t *testing.T) {
	s := testStore(t)
	sess := createWaiting(t, s)

	_, err := s.AssignAgent(sess.ID, "a1", "João")
	require.NoError(t, err)

	_, err = s.AssignAgent(sess.ID, "a2", "Ana")
	assert.ErrorIs(t, err, ErrInvalidState, "no two agents may own a session")
}

func TestAssignAgent_UnknownSession(t *testing.T) {
	s := testStore(t)
	_, err := s.AssignAgent("nope", "a1", "João")
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Close ---

func TestClose_FromWaiting(t *testing.T) {
	s := testStore(t)
	sess := createWaiting(t, s)

	snap, already, err := s.Close(sess.ID)
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, domain.SessionClosed, snap.Status)
	require.NotNil(t, snap.ClosedAt)

	_, ok := s.Get(sess.ID)
	assert.False(t, ok, "closed sessions leave the live map")
	assert.True(t, s.WasClosed(sess.ID))
	assert.Equal(t, 0, s.Count())
}

func TestClose_FromActive(t *testing.T) {
	s := testStore(t)
	sess := createWaiting(t, s)
	_, err := s.AssignAgent(sess.ID, "a1", "João")
	require.NoError(t, err)

	snap, already, err := s.Close(sess.ID)
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, "a1", snap.AgentID)
}

func TestClose_Idempotent(t *testing.T) {
	s := testStore(t)
	sess := createWaiting(t, s)

	_, _, err := s.Close(sess.ID)
	require.NoError(t, err)

	snap, already, err := s.Close(sess.ID)
	require.NoError(t, err, "double close is a no-op success")
	assert.True(t, already)
	assert.Nil(t, snap)
}

func TestClose_UnknownSession(t *testing.T) {
	s := testStore(t)
	_, _, err := s.Close("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Tombstones ---

func TestPruneTombstones(t *testing.T) {
	s := testStore(t)
	sess := createWaiting(t, s)
	_, _, err := s.Close(sess.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, s.PruneTombstones(time.Hour))
	assert.True(t, s.WasClosed(sess.ID))

	assert.Equal(t, 1, s.PruneTombstones(0))
	assert.False(t, s.WasClosed(sess.ID))
}
