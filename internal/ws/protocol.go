package ws

import "encoding/json"

// Wire protocol of the realtime gateway. Every frame in both directions
// is an Envelope; data carries the event-specific payload.

const (
	// client -> server
	EvtMessageSend = "message:send"
	EvtTyping      = "message:typing"
	EvtTypingStop  = "message:typing-stop"
	EvtMessageRead = "message:read"
	EvtMemberJoin  = "group:member-joined"
	EvtMemberLeave = "group:member-left"

	// server -> client
	EvtMessageNew      = "message:new"
	EvtPresenceUpdate  = "presence:update"
	EvtRequestNotify   = "request:notify"
	EvtRequestResponse = "request:response"
	EvtError           = "error"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type roomRef struct {
	RoomID string `json:"roomId"`
}

type typingPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type readPayload struct {
	RoomID     string   `json:"roomId"`
	MessageIDs []string `json:"messageIds,omitempty"`
}

type readRelay struct {
	RoomID     string   `json:"roomId"`
	UserID     string   `json:"userId"`
	MessageIDs []string `json:"messageIds,omitempty"`
}

type memberRelay struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type presencePayload struct {
	UserID   string `json:"userId"`
	Online   bool   `json:"online"`
	LastSeen string `json:"lastSeen,omitempty"`
}

type requestNotifyPayload struct {
	RoomID    string `json:"roomId"`
	From      string `json:"from"`
	MessageID string `json:"messageId"`
}

type requestResponsePayload struct {
	RoomID string `json:"roomId"`
	By     string `json:"by"`
	Action string `json:"action"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// envelope marshals an outbound frame. Payload types here are all
// marshal-safe, so the error path never triggers in practice.
func envelope(event string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte("{}")
	}
	b, _ := json.Marshal(Envelope{Event: event, Data: raw})
	return b
}
