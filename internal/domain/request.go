package domain

import "time"

// ChatRequest correlates a from/to pair with the initial message of a
// request-based direct room. Status mirrors Message.RequestStatus and the
// two are updated atomically. At most one pending request exists between a
// pair at a time, in either direction; PairKey is the direction-normalized
// identity the store uses to enforce that at creation time.
type ChatRequest struct {
	ID               string        `bson:"_id" json:"id"`
	RoomID           string        `bson:"room_id" json:"roomId"`
	From             string        `bson:"from" json:"from"`
	To               string        `bson:"to" json:"to"`
	PairKey          string        `bson:"pair_key" json:"-"`
	InitialMessageID string        `bson:"initial_message_id" json:"initialMessageId"`
	Status           RequestStatus `bson:"status" json:"status"`
	CreatedAt        time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt        time.Time     `bson:"updated_at" json:"updatedAt"`
}

// PairKey returns the same key for (a, b) and (b, a).
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}
