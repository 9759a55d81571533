package domain

import "time"

const MaxMessageLen = 5000

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentVideo AttachmentType = "video"
	AttachmentAudio AttachmentType = "audio"
	AttachmentFile  AttachmentType = "file"
)

type Attachment struct {
	URL      string         `bson:"url" json:"url"`
	Type     AttachmentType `bson:"type" json:"type"`
	FileName string         `bson:"file_name,omitempty" json:"fileName,omitempty"`
	FileSize int64          `bson:"file_size,omitempty" json:"fileSize,omitempty"`
}

// Message belongs to exactly one room. RequestStatus is non-empty only on
// the initial system message of a request-based direct room; it moves
// pending -> accepted/rejected exactly once, together with the ChatRequest
// row. ReadBy grows monotonically and never contains the sender.
type Message struct {
	ID            string        `bson:"_id" json:"id"`
	RoomID        string        `bson:"room_id" json:"roomId"`
	SenderID      string        `bson:"sender_id" json:"senderId"`
	Text          string        `bson:"text" json:"text"`
	Attachments   []Attachment  `bson:"attachments,omitempty" json:"attachments,omitempty"`
	System        bool          `bson:"system,omitempty" json:"system,omitempty"`
	RequestStatus RequestStatus `bson:"request_status,omitempty" json:"requestStatus,omitempty"`
	ReadBy        []string      `bson:"read_by" json:"readBy"`
	EditedAt      *time.Time    `bson:"edited_at,omitempty" json:"editedAt,omitempty"`
	CreatedAt     time.Time     `bson:"created_at" json:"createdAt"`
}

func (m *Message) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}
