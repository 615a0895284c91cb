// Package gateway exposes the chat engine over WebSocket plus a small
// read-only HTTP surface.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/licitahub/atendechat/internal/agent"
	"github.com/licitahub/atendechat/internal/config"
	"github.com/licitahub/atendechat/internal/fanout"
	"github.com/licitahub/atendechat/internal/logging"
	"github.com/licitahub/atendechat/internal/orchestrator"
	"github.com/licitahub/atendechat/internal/queue"
	"github.com/licitahub/atendechat/internal/session"
	"github.com/licitahub/atendechat/internal/version"
)

const maxPayloadBytes = 1 * 1024 * 1024

// Server is the atendechat WebSocket + HTTP server.
type Server struct {
	cfg      config.Config
	log      *logging.Logger
	orch     *orchestrator.Orchestrator
	fan      *fanout.Registry
	queue    *queue.Manager
	agents   *agent.Registry
	sessions *session.Store

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New creates the gateway server over an already-wired engine.
func New(
	cfg config.Config,
	orch *orchestrator.Orchestrator,
	fan *fanout.Registry,
	qm *queue.Manager,
	agents *agent.Registry,
	sessions *session.Store,
	log *logging.Logger,
) *Server {
	return &Server{
		cfg:      cfg,
		log:      log.Sub("gateway"),
		orch:     orch,
		fan:      fan,
		queue:    qm,
		agents:   agents,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.AllowedOrigins),
		},
	}
}

// checkWebSocketOrigin validates the Origin header. With no configured
// origins, only same-origin or non-browser clients are allowed.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start begins listening. It blocks until the context is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Gateway)

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.startedAt = time.Now()
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Gateway.Bind).
		Bool("auth", s.cfg.Gateway.Token != "").
		Msg("gateway server ready")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.fan.CloseAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// registerRoutes sets up the HTTP surface on the given mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Version:     version.Version,
		Connections: s.fan.Count(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.queue.Stats()
	online, busy := s.agents.Counts()

	byPrio := make(map[string]int, len(stats.ByPriority))
	for prio, n := range stats.ByPriority {
		byPrio[string(prio)] = n
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		QueueLength:          stats.Length,
		EstimatedWaitSeconds: int(stats.EstimatedWait.Seconds()),
		ByPriority:           byPrio,
		AgentsOnline:         online,
		AgentsBusy:           busy,
		OpenSessions:         s.sessions.Count(),
		Connections:          s.fan.Count(),
		UptimeSeconds:        int64(time.Since(s.startedAt).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// handleWebSocket upgrades HTTP to WebSocket and runs the connection loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayloadBytes)

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("new websocket connection")

	client, part, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		conn.Close()
		return
	}

	defer func() {
		client.markClosed()
		s.orch.OnDisconnect(r.Context(), client.ID())
		client.Close()
	}()

	client.startKeepalive()
	s.readLoop(r.Context(), client, part)
}

// handshake reads the initial "connect" envelope, authenticates it, and
// binds the connection to a participant.
func (s *Server) handshake(conn *websocket.Conn) (*Client, fanout.Participant, error) {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fanout.Participant{}, fmt.Errorf("reading connect: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, fanout.Participant{}, fmt.Errorf("parsing connect envelope: %w", err)
	}
	if env.Type != "connect" {
		sendErrorAndClose(conn, "protocol_error", "expected connect envelope")
		return nil, fanout.Participant{}, fmt.Errorf("expected connect, got %q", env.Type)
	}

	var params ConnectParams
	if err := json.Unmarshal(env.Payload, &params); err != nil {
		sendErrorAndClose(conn, "protocol_error", "invalid connect payload")
		return nil, fanout.Participant{}, fmt.Errorf("parsing connect payload: %w", err)
	}
	if params.ParticipantID == "" {
		sendErrorAndClose(conn, "protocol_error", "participantId is required")
		return nil, fanout.Participant{}, errors.New("missing participantId")
	}

	if token := s.cfg.Gateway.Token; token != "" {
		if subtle.ConstantTimeCompare([]byte(token), []byte(params.Token)) != 1 {
			sendErrorAndClose(conn, "unauthorized", "invalid token")
			return nil, fanout.Participant{}, errors.New("token mismatch")
		}
	}

	// The handshake deadline is replaced by the keepalive's pong deadline
	// once the read loop starts.

	role := fanout.RoleUser
	if params.Role == string(fanout.RoleAgent) {
		role = fanout.RoleAgent
	}

	client := NewClient(conn, s.log.Sub("ws"))
	part := s.fan.Register(client, params.ParticipantID, params.DisplayName, role)
	s.orch.OnConnect(context.Background(), part, params.Departments, params.MaxConcurrentChats)

	if err := client.Send("connected", ConnectedPayload{
		ConnID:        client.ID(),
		ParticipantID: part.ID,
		Role:          string(part.Role),
		Protocol:      ProtocolVersion,
		ServerVersion: version.Version,
	}); err != nil {
		return nil, fanout.Participant{}, fmt.Errorf("sending connected: %w", err)
	}

	s.log.Info().
		Str("connId", client.ID()).
		Str("participant", part.ID).
		Str("role", string(part.Role)).
		Msg("participant connected")
	return client, part, nil
}

// readLoop dispatches inbound envelopes until the connection drops.
func (s *Server) readLoop(ctx context.Context, client *Client, part fanout.Participant) {
	for {
		env, err := client.ReadEnvelope()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ID()).Msg("client closed connection")
			} else {
				s.log.Warn().Err(err).Str("connId", client.ID()).Msg("read error")
			}
			return
		}
		s.orch.Dispatch(ctx, part, env.Type, env.Payload)
	}
}

// sendErrorAndClose rejects a handshake before a Client exists.
func sendErrorAndClose(conn *websocket.Conn, code, message string) {
	env, err := NewEnvelope("error", orchestrator.ErrorPayload{Code: code, Message: message})
	if err == nil {
		conn.WriteJSON(env)
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, message))
}
