package store

import (
	"context"
	"time"

	"github.com/learnloop/chat-service/internal/domain"
)

// Store is the durable state behind the chat subsystem. Implementations
// must make AppendMessage, CreateRequestRoom and ResolveRequest atomic:
// a reader must never observe a room's last_message cache pointing at a
// message that is not yet queryable, and a request's status must never
// diverge from its initial message's status.
type Store interface {
	// Rooms
	CreateRoom(ctx context.Context, room *domain.Room) error
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	// FindDirectRoom matches a direct room containing both users,
	// regardless of which side created it.
	FindDirectRoom(ctx context.Context, userA, userB string) (*domain.Room, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]*domain.Room, error)
	UpdateRoomMembers(ctx context.Context, roomID string, members []domain.Member, admins []string) error
	// DeleteRoom removes the room and cascades to its messages.
	DeleteRoom(ctx context.Context, roomID string) error

	// Messages
	AppendMessage(ctx context.Context, msg *domain.Message) error
	// ListMessages returns up to limit messages strictly older than
	// before (zero before = newest), newest first.
	ListMessages(ctx context.Context, roomID string, limit int64, before time.Time) ([]*domain.Message, error)
	LatestMessageBySender(ctx context.Context, roomID, senderID string) (*domain.Message, error)
	// MarkRead adds readerID to read_by of the given messages in roomID,
	// idempotently and never for the reader's own messages. An empty
	// messageIDs slice marks every message in the room.
	MarkRead(ctx context.Context, roomID, readerID string, messageIDs []string) error
	CountUnread(ctx context.Context, roomID, userID string) (int64, error)

	// Requests
	// CreateRequestRoom inserts the room, its initial message and the
	// request together. Returns domain.ErrConflict when a pending request
	// (either direction) or a direct room already links the pair, enforced
	// inside the atomic unit so racing callers cannot both succeed.
	CreateRequestRoom(ctx context.Context, room *domain.Room, msg *domain.Message, req *domain.ChatRequest) error
	GetRequestByRoom(ctx context.Context, roomID string) (*domain.ChatRequest, error)
	FindPendingRequestBetween(ctx context.Context, userA, userB string) (*domain.ChatRequest, error)
	// ResolveRequest moves the request and its initial message from
	// pending to status as one atomic unit. On accept, members replaces
	// the room membership and the request-pending flag is cleared.
	// Returns domain.ErrInvalidState if the request is no longer pending.
	ResolveRequest(ctx context.Context, roomID string, status domain.RequestStatus, members []domain.Member) error
}
