package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnloop/chat-service/internal/auth"
	"github.com/learnloop/chat-service/internal/domain"
	"github.com/learnloop/chat-service/internal/events"
	"github.com/learnloop/chat-service/internal/metrics"
	"github.com/learnloop/chat-service/internal/presence"
	"github.com/learnloop/chat-service/internal/service"
)

const dispatchTimeout = 5 * time.Second

// The gateway is the subscriber-side sink for room events.
var _ events.RoomEvents = (*Gateway)(nil)

// Gateway runs the websocket side of the chat service. It authenticates
// connections, keeps the hub's broadcast groups in sync with room
// membership, relays protocol events between clients, and reacts to bus
// events published by the REST write path. It never writes chat data
// itself; durable writes stay on the REST path.
type Gateway struct {
	hub      *Hub
	rooms    *service.RoomService
	messages *service.MessageService
	tracker  *presence.Tracker
	verifier *auth.Verifier
	logger   *zap.SugaredLogger
}

func NewGateway(hub *Hub, rooms *service.RoomService, messages *service.MessageService, tracker *presence.Tracker, verifier *auth.Verifier, logger *zap.SugaredLogger) *Gateway {
	return &Gateway{
		hub:      hub,
		rooms:    rooms,
		messages: messages,
		tracker:  tracker,
		verifier: verifier,
		logger:   logger,
	}
}

// Handle owns one websocket connection for its whole lifetime. Runs on
// the fiber websocket handler goroutine until the client goes away.
func (g *Gateway) Handle(sock *websocket.Conn) {
	userID, err := g.verifier.Verify(sock.Query("token"))
	if err != nil {
		sock.WriteMessage(websocket.TextMessage, envelope(EvtError, errorPayload{Message: "authentication failed"}))
		sock.Close()
		return
	}

	c := NewConn(uuid.NewString(), userID, sock)
	g.hub.Register(c)
	metrics.ActiveConnections.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	if p, cameOnline := g.tracker.Connect(ctx, userID, c.ID); cameOnline {
		g.hub.CastGlobal(envelope(EvtPresenceUpdate, presenceOf(p)), c)
	}
	roomIDs, err := g.rooms.RoomIDs(ctx, userID)
	cancel()
	if err != nil {
		g.logger.Errorw("auto-join room lookup", "user", userID, "err", err)
	}
	for _, id := range roomIDs {
		g.hub.Join(id, c)
	}

	go c.writePump()
	c.readPump(g.dispatch)

	g.hub.Unregister(c)
	metrics.ActiveConnections.Dec()
	ctx, cancel = context.WithTimeout(context.Background(), dispatchTimeout)
	if p, wentOffline := g.tracker.Disconnect(ctx, userID, c.ID); wentOffline {
		g.hub.CastGlobal(envelope(EvtPresenceUpdate, presenceOf(p)), c)
	}
	cancel()
}

// dispatch handles one inbound frame. Errors go back to the origin
// connection only; nothing a client sends can take down the pump.
func (g *Gateway) dispatch(c *Conn, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		g.sendError(c, "malformed frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	switch env.Event {
	case EvtMessageSend:
		metrics.WSEvents.WithLabelValues(EvtMessageSend).Inc()
		var p roomRef
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomID == "" {
			g.sendError(c, "roomId is required")
			return
		}
		// The message was already stored over REST; re-read it so the
		// fan-out carries the durable record, ids and all.
		msg, err := g.messages.LatestFrom(ctx, p.RoomID, c.UserID)
		if err != nil {
			g.sendError(c, err.Error())
			return
		}
		g.hub.Join(p.RoomID, c)
		g.hub.CastRoom(p.RoomID, envelope(EvtMessageNew, msg), nil)

	case EvtTyping, EvtTypingStop:
		metrics.WSEvents.WithLabelValues(env.Event).Inc()
		var p roomRef
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomID == "" {
			g.sendError(c, "roomId is required")
			return
		}
		g.hub.CastRoom(p.RoomID, envelope(env.Event, typingPayload{
			RoomID:   p.RoomID,
			UserID:   c.UserID,
			IsTyping: env.Event == EvtTyping,
		}), c)

	case EvtMessageRead:
		metrics.WSEvents.WithLabelValues(EvtMessageRead).Inc()
		var p readPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomID == "" {
			g.sendError(c, "roomId is required")
			return
		}
		if err := g.messages.MarkRead(ctx, p.RoomID, c.UserID, p.MessageIDs); err != nil {
			g.sendError(c, err.Error())
			return
		}
		g.hub.CastRoom(p.RoomID, envelope(EvtMessageRead, readRelay{
			RoomID:     p.RoomID,
			UserID:     c.UserID,
			MessageIDs: p.MessageIDs,
		}), nil)

	case EvtMemberJoin:
		metrics.WSEvents.WithLabelValues(EvtMemberJoin).Inc()
		var p roomRef
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomID == "" {
			g.sendError(c, "roomId is required")
			return
		}
		g.hub.Join(p.RoomID, c)
		g.hub.CastRoom(p.RoomID, envelope(EvtMemberJoin, memberRelay{RoomID: p.RoomID, UserID: c.UserID}), c)

	case EvtMemberLeave:
		metrics.WSEvents.WithLabelValues(EvtMemberLeave).Inc()
		var p roomRef
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomID == "" {
			g.sendError(c, "roomId is required")
			return
		}
		g.hub.CastRoom(p.RoomID, envelope(EvtMemberLeave, memberRelay{RoomID: p.RoomID, UserID: c.UserID}), c)
		g.hub.Leave(p.RoomID, c)

	default:
		metrics.WSEvents.WithLabelValues("unknown").Inc()
		g.sendError(c, "unknown event: "+env.Event)
	}
}

// sendError reports a bad frame back on the origin connection. Delivery
// goes through the hub: only it knows whether the connection is still
// registered, and its send channel is closed the moment it is not.
func (g *Gateway) sendError(c *Conn, msg string) {
	g.hub.SendTo(c, envelope(EvtError, errorPayload{Message: msg}))
}

// RequestCreated joins both parties' live connections to the new room and
// pings the recipient. Part of the events.RoomEvents sink.
func (g *Gateway) RequestCreated(ev events.RequestCreated) {
	g.hub.JoinUser(ev.RoomID, ev.From)
	g.hub.JoinUser(ev.RoomID, ev.To)
	g.hub.CastUser(ev.To, envelope(EvtRequestNotify, requestNotifyPayload{
		RoomID:    ev.RoomID,
		From:      ev.From,
		MessageID: ev.MessageID,
	}))
}

// RequestResponded tells the requester how their request resolved.
func (g *Gateway) RequestResponded(ev events.RequestResponded) {
	g.hub.CastUser(ev.From, envelope(EvtRequestResponse, requestResponsePayload{
		RoomID: ev.RoomID,
		By:     ev.To,
		Action: string(ev.Action),
	}))
}

// RoomCreated joins every member who is currently connected.
func (g *Gateway) RoomCreated(ev events.RoomCreated) {
	for _, id := range ev.MemberIDs {
		g.hub.JoinUser(ev.RoomID, id)
	}
}

// MemberAdded joins the new member's connections and announces them.
func (g *Gateway) MemberAdded(ev events.MemberChanged) {
	g.hub.JoinUser(ev.RoomID, ev.UserID)
	g.hub.CastRoom(ev.RoomID, envelope(EvtMemberJoin, memberRelay{RoomID: ev.RoomID, UserID: ev.UserID}), nil)
}

// MemberRemoved announces the departure, then detaches their connections.
func (g *Gateway) MemberRemoved(ev events.MemberChanged) {
	g.hub.CastRoom(ev.RoomID, envelope(EvtMemberLeave, memberRelay{RoomID: ev.RoomID, UserID: ev.UserID}), nil)
	g.hub.LeaveUser(ev.RoomID, ev.UserID)
}

// RoomDeleted discards the room's broadcast group.
func (g *Gateway) RoomDeleted(ev events.RoomDeleted) {
	g.hub.DropRoom(ev.RoomID)
}

func presenceOf(p domain.Presence) presencePayload {
	out := presencePayload{UserID: p.UserID, Online: p.Online}
	if !p.LastSeen.IsZero() {
		out.LastSeen = p.LastSeen.UTC().Format(time.RFC3339)
	}
	return out
}
