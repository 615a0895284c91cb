// Package orchestrator wires transport commands to the session store, agent
// registry, queue manager, and classification chain, and fans lifecycle
// events back out to connected participants.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/licitahub/atendechat/internal/agent"
	"github.com/licitahub/atendechat/internal/classify"
	"github.com/licitahub/atendechat/internal/domain"
	"github.com/licitahub/atendechat/internal/events"
	"github.com/licitahub/atendechat/internal/fanout"
	"github.com/licitahub/atendechat/internal/identity"
	"github.com/licitahub/atendechat/internal/logging"
	"github.com/licitahub/atendechat/internal/queue"
	"github.com/licitahub/atendechat/internal/session"
)

// Client → server command types.
const (
	CmdStartChat     = "start_chat"
	CmdSendMessage   = "send_message"
	CmdJoinChat      = "join_chat"
	CmdCloseChat     = "close_chat"
	CmdGetQueueStats = "get_queue_stats"
	CmdTyping        = "typing"
	CmdRateChat      = "rate_chat"
	CmdSetStatus     = "set_status"
)

// Server → client event types.
const (
	EvChatStarted   = "chat_started"
	EvNewMessage    = "new_message"
	EvAgentAssigned = "agent_assigned"
	EvQueueUpdate   = "queue_update"
	EvAddedToQueue  = "added_to_queue"
	EvChatJoined    = "chat_joined"
	EvChatClosed    = "chat_closed"
	EvQueueStats    = "queue_stats"
	EvTyping        = "typing"
	EvError         = "error"
)

// Protocol error codes.
const (
	CodeNotFound         = "not_found"
	CodeInvalidState     = "invalid_state"
	CodeCapacityExceeded = "capacity_exceeded"
	CodeUnrecognized     = "unrecognized_command"
)

// StartChatParams opens a new session for the calling requester.
type StartChatParams struct {
	Subject    string   `json:"subject,omitempty"`
	Department string   `json:"department,omitempty"`
	Priority   string   `json:"priority,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// SendMessageParams appends a message to an open session.
type SendMessageParams struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}

// JoinChatParams assigns the calling agent to a waiting session.
type JoinChatParams struct {
	ChatID string `json:"chatId"`
}

// CloseChatParams closes a session.
type CloseChatParams struct {
	ChatID string `json:"chatId"`
}

// TypingParams relays a typing indicator to the session counterpart.
type TypingParams struct {
	ChatID string `json:"chatId"`
	Typing bool   `json:"typing"`
}

// RateChatParams records a post-close rating for a session.
type RateChatParams struct {
	ChatID string `json:"chatId"`
	Rating int    `json:"rating"`
}

// SetStatusParams changes the calling agent's availability.
type SetStatusParams struct {
	Status string `json:"status"`
}

// ErrorPayload is the body of an "error" event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QueuePosition describes a session's place in the waiting queue on the wire.
type QueuePosition struct {
	ChatID               string `json:"chatId"`
	Position             int    `json:"position"`
	QueueLength          int    `json:"queueLength"`
	EstimatedWaitSeconds int    `json:"estimatedWaitSeconds"`
	Message              string `json:"message,omitempty"`
}

// StatsPayload is the body of a "queue_stats" event.
type StatsPayload struct {
	QueueLength          int            `json:"queueLength"`
	EstimatedWaitSeconds int            `json:"estimatedWaitSeconds"`
	ByPriority           map[string]int `json:"byPriority"`
	AgentsOnline         int            `json:"agentsOnline"`
	AgentsBusy           int            `json:"agentsBusy"`
}

// Orchestrator is the engine façade. One instance owns all collaborators;
// there is no package-level state.
type Orchestrator struct {
	sessions *session.Store
	agents   *agent.Registry
	queue    *queue.Manager
	chain    *classify.Chain
	fan      *fanout.Registry
	bus      *events.Bus
	ident    identity.Resolver
	log      *logging.Logger
}

// New builds the orchestrator and subscribes its broadcast handlers to the
// event bus.
func New(
	sessions *session.Store,
	agents *agent.Registry,
	qm *queue.Manager,
	chain *classify.Chain,
	fan *fanout.Registry,
	bus *events.Bus,
	ident identity.Resolver,
	log *logging.Logger,
) *Orchestrator {
	o := &Orchestrator{
		sessions: sessions,
		agents:   agents,
		queue:    qm,
		chain:    chain,
		fan:      fan,
		bus:      bus,
		ident:    ident,
		log:      log.Sub("orchestrator"),
	}

	// Tick-driven assignments and wait notifications arrive over the bus;
	// the orchestrator turns them into transport events.
	bus.On(events.AgentAssigned, "orchestrator", o.onAgentAssigned)
	bus.On(events.QueueUpdate, "orchestrator", o.onQueueUpdate)

	// Swept connections take the same disconnect path as clean closes, so
	// an agent whose transport died ungracefully stops receiving work.
	fan.OnPrune(func(connID string) {
		o.OnDisconnect(context.Background(), connID)
	})
	return o
}

// OnConnect is called by the transport after a successful handshake. Agent
// connections are upserted into the registry.
func (o *Orchestrator) OnConnect(ctx context.Context, part fanout.Participant, departments []string, maxChats int) {
	if part.Role != fanout.RoleAgent {
		return
	}
	ag := o.agents.Register(domain.ChatAgent{
		ID:                 part.ID,
		Name:               part.Name,
		Departments:        departments,
		MaxConcurrentChats: maxChats,
	})
	if ag.Status == domain.AgentOffline {
		// Reconnecting after a drop; load carried over, availability restored.
		status := domain.AgentOnline
		if !ag.HasCapacity() {
			status = domain.AgentBusy
		}
		if back, err := o.agents.SetStatus(ag.ID, status); err == nil {
			ag = back
		}
	}
	o.bus.Emit(ctx, events.Event{Type: events.AgentStatusChanged, Agent: ag})
}

// OnDisconnect is called by the transport when a connection drops. When an
// agent's last connection is gone the agent goes offline.
func (o *Orchestrator) OnDisconnect(ctx context.Context, connID string) {
	part, ok := o.fan.Unregister(connID)
	if !ok {
		return
	}
	if part.Role != fanout.RoleAgent || o.fan.HasParticipant(part.ID) {
		return
	}
	ag, err := o.agents.SetStatus(part.ID, domain.AgentOffline)
	if err != nil {
		return
	}
	o.bus.Emit(ctx, events.Event{Type: events.AgentStatusChanged, Agent: ag})
}

// Dispatch routes one client command. Every failure becomes an "error" event
// to the offending connection; nothing here returns an error to the
// transport layer.
func (o *Orchestrator) Dispatch(ctx context.Context, part fanout.Participant, msgType string, payload json.RawMessage) {
	var err error
	switch msgType {
	case CmdStartChat:
		var p StartChatParams
		if err = decode(payload, &p); err == nil {
			err = o.startChat(ctx, part, p)
		}
	case CmdSendMessage:
		var p SendMessageParams
		if err = decode(payload, &p); err == nil {
			err = o.sendMessage(ctx, part, p)
		}
	case CmdJoinChat:
		var p JoinChatParams
		if err = decode(payload, &p); err == nil {
			err = o.joinChat(ctx, part, p)
		}
	case CmdCloseChat:
		var p CloseChatParams
		if err = decode(payload, &p); err == nil {
			err = o.closeChat(ctx, part, p)
		}
	case CmdGetQueueStats:
		err = o.queueStats(part)
	case CmdTyping:
		var p TypingParams
		if err = decode(payload, &p); err == nil {
			err = o.typing(part, p)
		}
	case CmdRateChat:
		var p RateChatParams
		if err = decode(payload, &p); err == nil {
			err = o.rateChat(ctx, part, p)
		}
	case CmdSetStatus:
		var p SetStatusParams
		if err = decode(payload, &p); err == nil {
			err = o.setStatus(ctx, part, p)
		}
	default:
		err = fmt.Errorf("%w: %s", errUnrecognized, msgType)
	}

	if err != nil {
		o.sendError(part, err)
	}
}

var errUnrecognized = errors.New("unrecognized command")

func decode(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", errUnrecognized, err)
	}
	return nil
}

func (o *Orchestrator) startChat(ctx context.Context, part fanout.Participant, p StartChatParams) error {
	req := domain.Requester{ID: part.ID, Name: part.Name}
	if user, err := o.ident.GetUser(ctx, part.ID); err == nil {
		if req.Name == "" {
			req.Name = user.Name
		}
		req.Contact = user.Email
	}

	sess := o.sessions.Create(req, p.Subject, p.Department, domain.ParsePriority(p.Priority), p.Tags)
	o.bus.Emit(ctx, events.Event{Type: events.SessionStarted, Session: sess})
	if len(sess.Messages) > 0 {
		welcome := sess.Messages[0]
		o.bus.Emit(ctx, events.Event{Type: events.MessageSent, Message: &welcome})
	}

	o.fan.SendToConn(part.ConnID, EvChatStarted, sess)
	return nil
}

func (o *Orchestrator) sendMessage(ctx context.Context, part fanout.Participant, p SendMessageParams) error {
	sess, ok := o.sessions.Get(p.ChatID)
	if !ok {
		return fmt.Errorf("session %s: %w", p.ChatID, session.ErrNotFound)
	}

	role := domain.RoleUser
	if part.Role == fanout.RoleAgent {
		role = domain.RoleAgent
	}

	msg := domain.ChatMessage{
		ID:         uuid.New().String(),
		SessionID:  sess.ID,
		SenderID:   part.ID,
		SenderName: part.Name,
		Role:       role,
		Kind:       domain.ParseMessageKind(p.Type),
		Content:    p.Content,
		Timestamp:  time.Now(),
	}
	stored, err := o.sessions.Append(sess.ID, msg)
	if err != nil {
		return err
	}

	o.bus.Emit(ctx, events.Event{Type: events.MessageSent, Message: stored})
	o.fan.BroadcastSession(sess.Requester.ID, sess.AgentID, EvNewMessage, stored)

	// Classification runs only while the session has no agent and only on
	// requester messages; once active, traffic is forwarded verbatim.
	if sess.Status == domain.SessionWaiting && role == domain.RoleUser {
		o.classifyAndReply(ctx, sess.ID, p.Content)
	}
	return nil
}

// classifyAndReply runs the bot chain over one requester message and acts on
// the outcome: scripted or contextual reply, immediate escalation, or
// deferred escalation for requires-human rules.
func (o *Orchestrator) classifyAndReply(ctx context.Context, sessionID, content string) {
	outcome := o.chain.Classify(content)

	if outcome.Reply != "" {
		if outcome.Source == classify.SourceEscalation {
			// Handoff copy is spoken by the system, not the bot persona.
			o.appendHandoffNotice(ctx, sessionID, outcome.Reply)
		} else {
			o.appendBotReply(ctx, sessionID, outcome.Reply, outcome.Category)
		}
	}

	switch {
	case outcome.Escalate:
		o.escalate(ctx, sessionID)
	case outcome.EscalateAfter > 0:
		// Scripted reply is shown first; escalation follows unless the
		// session moved on in the meantime.
		time.AfterFunc(outcome.EscalateAfter, func() {
			o.escalate(context.Background(), sessionID)
		})
	}
}

func (o *Orchestrator) appendBotReply(ctx context.Context, sessionID, reply, category string) {
	msg := domain.ChatMessage{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		SenderID:   "bot",
		SenderName: "Assistente LicitaHub",
		Role:       domain.RoleBot,
		Kind:       domain.KindText,
		Content:    reply,
		Timestamp:  time.Now(),
		Metadata:   map[string]string{"category": category},
	}
	stored, err := o.sessions.Append(sessionID, msg)
	if err != nil {
		o.log.Warn().Err(err).Str("sessionId", sessionID).Msg("bot reply dropped")
		return
	}

	sess, _ := o.sessions.Get(sessionID)
	o.bus.Emit(ctx, events.Event{Type: events.MessageSent, Message: stored})
	if sess != nil {
		o.fan.BroadcastSession(sess.Requester.ID, sess.AgentID, EvNewMessage, stored)
	}
}

// appendHandoffNotice records the "connecting you to a human" copy as a
// system message before the session enters the queue.
func (o *Orchestrator) appendHandoffNotice(ctx context.Context, sessionID, notice string) {
	msg := domain.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		SenderID:  "system",
		Role:      domain.RoleSystem,
		Kind:      domain.KindSystem,
		Content:   notice,
		Timestamp: time.Now(),
	}
	stored, err := o.sessions.Append(sessionID, msg)
	if err != nil {
		o.log.Warn().Err(err).Str("sessionId", sessionID).Msg("handoff notice dropped")
		return
	}

	sess, _ := o.sessions.Get(sessionID)
	o.bus.Emit(ctx, events.Event{Type: events.MessageSent, Message: stored})
	if sess != nil {
		o.fan.BroadcastSession(sess.Requester.ID, sess.AgentID, EvNewMessage, stored)
	}
}

// escalate queues a session for a human agent. Closed, assigned, or
// already-queued sessions are left alone.
func (o *Orchestrator) escalate(ctx context.Context, sessionID string) {
	sess, ok := o.sessions.Get(sessionID)
	if !ok || sess.Status != domain.SessionWaiting || o.queue.Contains(sessionID) {
		return
	}
	if !o.queue.Enqueue(sess) {
		return
	}

	info := &events.QueueInfo{
		Position:      o.queue.Position(sessionID),
		Length:        o.queue.Len(),
		EstimatedWait: o.queue.EstimateWait(),
	}
	o.bus.Emit(ctx, events.Event{Type: events.AddedToQueue, Session: sess, Queue: info})
	o.fan.SendTo(sess.Requester.ID, EvAddedToQueue, QueuePosition{
		ChatID:               sess.ID,
		Position:             info.Position,
		QueueLength:          info.Length,
		EstimatedWaitSeconds: int(info.EstimatedWait.Seconds()),
	})
}

func (o *Orchestrator) joinChat(ctx context.Context, part fanout.Participant, p JoinChatParams) error {
	if part.Role != fanout.RoleAgent {
		return fmt.Errorf("only agents may join sessions: %w", session.ErrInvalidState)
	}
	sess, ok := o.sessions.Get(p.ChatID)
	if !ok {
		return fmt.Errorf("session %s: %w", p.ChatID, session.ErrNotFound)
	}

	// Check-and-increment happens inside the registry lock; a concurrent
	// tick assignment loses cleanly here.
	ag, err := o.agents.IncrementLoad(part.ID)
	if err != nil {
		return err
	}
	updated, err := o.sessions.AssignAgent(sess.ID, ag.ID, ag.Name)
	if err != nil {
		o.agents.DecrementLoad(ag.ID)
		return err
	}
	o.queue.Remove(sess.ID)

	o.bus.Emit(ctx, events.Event{Type: events.AgentAssigned, Session: updated, Agent: ag})
	o.fan.SendToConn(part.ConnID, EvChatJoined, updated)
	return nil
}

func (o *Orchestrator) closeChat(ctx context.Context, part fanout.Participant, p CloseChatParams) error {
	snapshot, alreadyClosed, err := o.sessions.Close(p.ChatID)
	if err != nil {
		return fmt.Errorf("session %s: %w", p.ChatID, err)
	}
	if alreadyClosed {
		// Idempotent success: echo chat_closed to the caller only.
		o.fan.SendToConn(part.ConnID, EvChatClosed, map[string]string{"chatId": p.ChatID})
		return nil
	}

	o.queue.Remove(snapshot.ID)
	if snapshot.AgentID != "" {
		if ag, derr := o.agents.DecrementLoad(snapshot.AgentID); derr == nil {
			o.bus.Emit(ctx, events.Event{Type: events.AgentStatusChanged, Agent: ag})
		}
	}

	o.bus.Emit(ctx, events.Event{Type: events.SessionClosed, Session: snapshot})
	o.fan.BroadcastSession(snapshot.Requester.ID, snapshot.AgentID, EvChatClosed, map[string]string{"chatId": snapshot.ID})
	return nil
}

func (o *Orchestrator) queueStats(part fanout.Participant) error {
	stats := o.queue.Stats()
	online, busy := o.agents.Counts()

	byPrio := make(map[string]int, len(stats.ByPriority))
	for prio, n := range stats.ByPriority {
		byPrio[string(prio)] = n
	}

	o.fan.SendToConn(part.ConnID, EvQueueStats, StatsPayload{
		QueueLength:          stats.Length,
		EstimatedWaitSeconds: int(stats.EstimatedWait.Seconds()),
		ByPriority:           byPrio,
		AgentsOnline:         online,
		AgentsBusy:           busy,
	})
	return nil
}

func (o *Orchestrator) typing(part fanout.Participant, p TypingParams) error {
	sess, ok := o.sessions.Get(p.ChatID)
	if !ok {
		return fmt.Errorf("session %s: %w", p.ChatID, session.ErrNotFound)
	}

	// Relay to the counterpart only, never persisted.
	target := sess.AgentID
	if part.ID == sess.AgentID {
		target = sess.Requester.ID
	}
	if target == "" {
		return nil
	}
	o.fan.SendTo(target, EvTyping, map[string]any{
		"chatId": sess.ID,
		"from":   part.ID,
		"typing": p.Typing,
	})
	return nil
}

func (o *Orchestrator) rateChat(ctx context.Context, part fanout.Participant, p RateChatParams) error {
	if p.Rating < 1 || p.Rating > 5 {
		return fmt.Errorf("rating must be 1-5: %w", session.ErrInvalidState)
	}
	if _, ok := o.sessions.Get(p.ChatID); !ok && !o.sessions.WasClosed(p.ChatID) {
		return fmt.Errorf("session %s: %w", p.ChatID, session.ErrNotFound)
	}

	// The in-memory session is gone after close; the rating lands on the
	// persisted copy via the event stream.
	o.bus.Emit(ctx, events.Event{
		Type:    events.SessionRated,
		Session: &domain.ChatSession{ID: p.ChatID},
		Rating:  p.Rating,
	})
	return nil
}

func (o *Orchestrator) setStatus(ctx context.Context, part fanout.Participant, p SetStatusParams) error {
	if part.Role != fanout.RoleAgent {
		return fmt.Errorf("only agents have availability: %w", session.ErrInvalidState)
	}
	ag, err := o.agents.SetStatus(part.ID, domain.ParseAgentStatus(p.Status))
	if err != nil {
		return err
	}
	o.bus.Emit(ctx, events.Event{Type: events.AgentStatusChanged, Agent: ag})
	return nil
}

// onAgentAssigned reacts to assignments made by the queue tick (and by
// join_chat): appends a system message and broadcasts to both parties.
func (o *Orchestrator) onAgentAssigned(ctx context.Context, ev events.Event) error {
	if ev.Session == nil || ev.Agent == nil {
		return nil
	}

	sysMsg := domain.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: ev.Session.ID,
		SenderID:  "system",
		Role:      domain.RoleSystem,
		Kind:      domain.KindSystem,
		Content:   fmt.Sprintf("Você está falando com %s.", ev.Agent.Name),
		Timestamp: time.Now(),
	}
	stored, err := o.sessions.Append(ev.Session.ID, sysMsg)
	if err == nil {
		o.bus.Emit(ctx, events.Event{Type: events.MessageSent, Message: stored})
		o.fan.BroadcastSession(ev.Session.Requester.ID, ev.Session.AgentID, EvNewMessage, stored)
	}

	o.fan.BroadcastSession(ev.Session.Requester.ID, ev.Session.AgentID, EvAgentAssigned, map[string]string{
		"chatId":    ev.Session.ID,
		"agentId":   ev.Agent.ID,
		"agentName": ev.Agent.Name,
	})
	return nil
}

// onQueueUpdate relays wait-time notifications to the waiting requester only.
func (o *Orchestrator) onQueueUpdate(_ context.Context, ev events.Event) error {
	if ev.Session == nil || ev.Queue == nil {
		return nil
	}
	waitMin := int(ev.Queue.EstimatedWait.Minutes())
	o.fan.SendTo(ev.Session.Requester.ID, EvQueueUpdate, QueuePosition{
		ChatID:               ev.Session.ID,
		Position:             ev.Queue.Position,
		QueueLength:          ev.Queue.Length,
		EstimatedWaitSeconds: int(ev.Queue.EstimatedWait.Seconds()),
		Message:              fmt.Sprintf("Você está na posição %d da fila. Tempo estimado de espera: %d min.", ev.Queue.Position, waitMin),
	})
	return nil
}

func (o *Orchestrator) sendError(part fanout.Participant, err error) {
	code := codeFor(err)
	o.log.Debug().Err(err).Str("code", code).Str("participant", part.ID).Msg("command failed")
	o.fan.SendToConn(part.ConnID, EvError, ErrorPayload{Code: code, Message: err.Error()})
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, agent.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, session.ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, agent.ErrCapacityExceeded):
		return CodeCapacityExceeded
	default:
		return CodeUnrecognized
	}
}
