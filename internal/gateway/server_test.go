package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licitahub/atendechat/internal/agent"
	"github.com/licitahub/atendechat/internal/classify"
	"github.com/licitahub/atendechat/internal/config"
	"github.com/licitahub/atendechat/internal/domain"
	"github.com/licitahub/atendechat/internal/events"
	"github.com/licitahub/atendechat/internal/fanout"
	"github.com/licitahub/atendechat/internal/identity"
	"github.com/licitahub/atendechat/internal/logging"
	"github.com/licitahub/atendechat/internal/orchestrator"
	"github.com/licitahub/atendechat/internal/queue"
	"github.com/licitahub/atendechat/internal/session"
)

func testServer(t *testing.T, token string) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Gateway.Token = token

	log := logging.New(nil, "silent", "json")
	bus := events.NewBus(log)
	sessions := session.NewStore(cfg.Chat.WelcomeMessage, log)
	agents := agent.NewRegistry(log)
	qm := queue.NewManager(agents, sessions, bus, queue.Config{}, log)
	fan := fanout.NewRegistry(log)

	chain, err := classify.NewChain(
		classify.RuleSet{Rules: classify.DefaultRules(), Topics: classify.DefaultTopics()},
		cfg.Chat.HandoffMessage,
		2*time.Second,
		log,
	)
	require.NoError(t, err)

	orch := orchestrator.New(sessions, agents, qm, chain, fan, bus, identity.NewStaticResolver(nil), log)
	srv := New(cfg, orch, fan, qm, agents, sessions, log)

	mux := http.NewServeMux()
	srv.registerRoutes(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return srv, ts
}

// dial opens a websocket and completes the connect handshake.
func dial(t *testing.T, ts *httptest.Server, params ConnectParams) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	env, err := NewEnvelope("connect", params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))

	var reply Envelope
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, "connected", reply.Type)

	var connected ConnectedPayload
	require.NoError(t, json.Unmarshal(reply.Payload, &connected))
	assert.NotEmpty(t, connected.ConnID)
	return conn
}

// readEvent reads envelopes until one of the given type arrives.
func readEvent(t *testing.T, conn *websocket.Conn, event string) Envelope {
	t.Helper()
	for {
		var env Envelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Type == event {
			return env
		}
	}
}

// --- HTTP surface ---

func TestHealthEndpoint(t *testing.T) {
	_, ts := testServer(t, "")

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
}

func TestStatsEndpoint(t *testing.T) {
	_, ts := testServer(t, "")

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 0, stats.QueueLength)
	assert.Equal(t, 0, stats.OpenSessions)
}

// --- handshake ---

func TestHandshake_Success(t *testing.T) {
	_, ts := testServer(t, "")
	dial(t, ts, ConnectParams{ParticipantID: "user-1", DisplayName: "Maria"})
}

func TestHandshake_AgentRegistersInRegistry(t *testing.T) {
	srv, ts := testServer(t, "")
	dial(t, ts, ConnectParams{
		ParticipantID:      "agent-1",
		DisplayName:        "João",
		Role:               "agent",
		Departments:        []string{"licitacao"},
		MaxConcurrentChats: 3,
	})

	ag, found := srv.agents.Get("agent-1")
	require.True(t, found)
	assert.Equal(t, domain.AgentOnline, ag.Status)
	assert.Equal(t, 3, ag.MaxConcurrentChats)
}

func TestHandshake_WrongToken(t *testing.T) {
	_, ts := testServer(t, "secret-token")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	env, _ := NewEnvelope("connect", ConnectParams{ParticipantID: "user-1", Token: "wrong"})
	require.NoError(t, conn.WriteJSON(env))

	var reply Envelope
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)

	var errPayload orchestrator.ErrorPayload
	require.NoError(t, json.Unmarshal(reply.Payload, &errPayload))
	assert.Equal(t, "unauthorized", errPayload.Code)
}

func TestHandshake_MissingParticipantID(t *testing.T) {
	_, ts := testServer(t, "")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	env, _ := NewEnvelope("connect", ConnectParams{})
	require.NoError(t, conn.WriteJSON(env))

	var reply Envelope
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
}

// --- end-to-end chat flow over the wire ---

func TestChatFlow_StartAndGreet(t *testing.T) {
	_, ts := testServer(t, "")
	conn := dial(t, ts, ConnectParams{ParticipantID: "user-1", DisplayName: "Maria"})

	start, err := NewEnvelope("start_chat", orchestrator.StartChatParams{
		Subject:  "Dúvida sobre edital",
		Priority: "high",
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(start))

	started := readEvent(t, conn, "chat_started")
	var sess domain.ChatSession
	require.NoError(t, json.Unmarshal(started.Payload, &sess))
	assert.Equal(t, domain.SessionWaiting, sess.Status)
	require.NotEmpty(t, sess.Messages)

	send, err := NewEnvelope("send_message", orchestrator.SendMessageParams{
		ChatID:  sess.ID,
		Content: "oi",
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(send))

	// Echo of the user message arrives first, then the bot reply.
	echo := readEvent(t, conn, "new_message")
	var userMsg domain.ChatMessage
	require.NoError(t, json.Unmarshal(echo.Payload, &userMsg))
	assert.Equal(t, domain.RoleUser, userMsg.Role)

	replyEnv := readEvent(t, conn, "new_message")
	var botMsg domain.ChatMessage
	require.NoError(t, json.Unmarshal(replyEnv.Payload, &botMsg))
	assert.Equal(t, domain.RoleBot, botMsg.Role)
	assert.Equal(t, "greeting", botMsg.Metadata["category"])
}

func TestChatFlow_UnknownCommandGetsErrorEvent(t *testing.T) {
	_, ts := testServer(t, "")
	conn := dial(t, ts, ConnectParams{ParticipantID: "user-1"})

	env, _ := NewEnvelope("warp_drive", nil)
	require.NoError(t, conn.WriteJSON(env))

	reply := readEvent(t, conn, "error")
	var errPayload orchestrator.ErrorPayload
	require.NoError(t, json.Unmarshal(reply.Payload, &errPayload))
	assert.Equal(t, orchestrator.CodeUnrecognized, errPayload.Code)
}
