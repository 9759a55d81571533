package domain

import "time"

type RoomKind string

const (
	RoomDirect RoomKind = "direct"
	RoomGroup  RoomKind = "group"
)

const MaxGroupNameLen = 100

// Member is a room membership slot. JoinedAt stays zero for the recipient
// of a chat request until the request is accepted.
type Member struct {
	UserID   string    `bson:"user_id" json:"userId"`
	JoinedAt time.Time `bson:"joined_at,omitempty" json:"joinedAt,omitempty"`
}

// LastMessage is a denormalized cache of the newest message in a room so
// room listings do not need a join. It is updated in the same transaction
// as the message insert.
type LastMessage struct {
	Text      string    `bson:"text" json:"text"`
	SenderID  string    `bson:"sender_id" json:"senderId"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

type Room struct {
	ID               string       `bson:"_id" json:"id"`
	Kind             RoomKind     `bson:"kind" json:"kind"`
	Name             string       `bson:"name,omitempty" json:"name,omitempty"`
	AvatarURL        string       `bson:"avatar_url,omitempty" json:"avatarUrl,omitempty"`
	Members          []Member     `bson:"members" json:"members"`
	Admins           []string     `bson:"admins,omitempty" json:"admins,omitempty"`
	IsRequestPending bool         `bson:"is_request_pending" json:"isRequestPending"`
	CreatedBy        string       `bson:"created_by,omitempty" json:"createdBy,omitempty"`
	LastMessage      *LastMessage `bson:"last_message,omitempty" json:"lastMessage,omitempty"`
	CreatedAt        time.Time    `bson:"created_at" json:"createdAt"`
	UpdatedAt        time.Time    `bson:"updated_at" json:"updatedAt"`
}

func (r *Room) IsMember(userID string) bool {
	for _, m := range r.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

func (r *Room) IsAdmin(userID string) bool {
	for _, a := range r.Admins {
		if a == userID {
			return true
		}
	}
	return false
}

func (r *Room) MemberIDs() []string {
	ids := make([]string, 0, len(r.Members))
	for _, m := range r.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}
