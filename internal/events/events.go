// Package events is the bus between the REST write path and the realtime
// gateway. The two paths are decoupled on purpose: durable writes finish
// first, then an event tells the gateway what to relay and which broadcast
// groups to adjust. Delivery is best-effort; clients that miss a live
// event re-fetch over REST.
package events

import "github.com/learnloop/chat-service/internal/domain"

const (
	subjectRequestCreated   = "chat.request.created"
	subjectRequestResponded = "chat.request.responded"
	subjectRoomCreated      = "chat.room.created"
	subjectMemberAdded      = "chat.room.member_added"
	subjectMemberRemoved    = "chat.room.member_removed"
	subjectRoomDeleted      = "chat.room.deleted"
)

type RequestCreated struct {
	RoomID    string `json:"room_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	MessageID string `json:"message_id"`
}

type RequestResponded struct {
	RoomID string               `json:"room_id"`
	From   string               `json:"from"`
	To     string               `json:"to"`
	Action domain.RequestStatus `json:"action"`
}

type RoomCreated struct {
	RoomID    string   `json:"room_id"`
	MemberIDs []string `json:"member_ids"`
}

type MemberChanged struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
	Actor  string `json:"actor,omitempty"`
}

type RoomDeleted struct {
	RoomID string `json:"room_id"`
}

// RoomEvents is implemented by the gateway; the subscriber feeds it.
type RoomEvents interface {
	RequestCreated(ev RequestCreated)
	RequestResponded(ev RequestResponded)
	RoomCreated(ev RoomCreated)
	MemberAdded(ev MemberChanged)
	MemberRemoved(ev MemberChanged)
	RoomDeleted(ev RoomDeleted)
}
