// Package notify dispatches best-effort notifications to the platform's
// notification consumer. Failures are logged and never fail the operation
// that triggered them.
package notify

import (
	"time"
)

type EventType string

const (
	EventChatRequest     EventType = "chat.request"
	EventRequestResponse EventType = "chat.request_response"
	EventGroupInvite     EventType = "chat.group_invite"
	EventNewMessage      EventType = "chat.new_message"
)

type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	ActorID   string    `json:"actor_id,omitempty"`
	RoomID    string    `json:"room_id,omitempty"`
	GroupName string    `json:"group_name,omitempty"`
	Text      string    `json:"text,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier is fire-and-forget: callers must never block on delivery, and
// there is nothing useful to return.
type Notifier interface {
	Notify(userID string, ev Event)
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) Notify(string, Event) {}
