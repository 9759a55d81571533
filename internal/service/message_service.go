package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnloop/chat-service/internal/domain"
	"github.com/learnloop/chat-service/internal/metrics"
	"github.com/learnloop/chat-service/internal/notify"
	"github.com/learnloop/chat-service/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// MessageService owns the durable, ordered message log per room and its
// read-receipt bookkeeping.
type MessageService struct {
	store    store.Store
	notifier notify.Notifier
	logger   *zap.SugaredLogger
}

func NewMessageService(st store.Store, n notify.Notifier, logger *zap.SugaredLogger) *MessageService {
	return &MessageService{store: st, notifier: n, logger: logger}
}

// Append stores a message and updates the room's last-message cache in the
// same transaction. Rooms still waiting on a chat request are not writable.
func (s *MessageService) Append(ctx context.Context, roomID, senderID, text string, attachments []domain.Attachment) (*domain.Message, error) {
	if text == "" && len(attachments) == 0 {
		return nil, fmt.Errorf("%w: message text is required", domain.ErrValidation)
	}
	if len(text) > domain.MaxMessageLen {
		return nil, fmt.Errorf("%w: message exceeds %d characters", domain.ErrValidation, domain.MaxMessageLen)
	}
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsMember(senderID) {
		return nil, fmt.Errorf("%w: not a member of this room", domain.ErrPermissionDenied)
	}
	// Covers both the pending and the rejected room: a rejection never
	// clears the flag, so the room stays unwritable for good.
	if room.IsRequestPending {
		return nil, fmt.Errorf("%w: room is not writable until the chat request is accepted", domain.ErrInvalidState)
	}

	msg := &domain.Message{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		SenderID:    senderID,
		Text:        text,
		Attachments: attachments,
		ReadBy:      []string{},
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	metrics.MessagesStored.Inc()

	for _, m := range room.Members {
		if m.UserID == senderID {
			continue
		}
		s.notifier.Notify(m.UserID, notify.Event{
			Type:    notify.EventNewMessage,
			ActorID: senderID,
			RoomID:  roomID,
			Text:    text,
		})
	}
	return msg, nil
}

// Page returns up to limit messages strictly older than before, oldest
// first for render convenience. A zero before means newest.
func (s *MessageService) Page(ctx context.Context, roomID, viewerID string, limit int64, before time.Time) ([]*domain.Message, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsMember(viewerID) {
		return nil, fmt.Errorf("%w: not a member of this room", domain.ErrPermissionDenied)
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	msgs, err := s.store.ListMessages(ctx, roomID, limit, before)
	if err != nil {
		return nil, err
	}
	// Store returns newest first; flip for ascending render order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkRead idempotently adds the reader to read_by of the given messages.
// The reader's own messages are skipped, never rejected. An empty id list
// marks everything in the room.
func (s *MessageService) MarkRead(ctx context.Context, roomID, readerID string, messageIDs []string) error {
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return err
	}
	return s.store.MarkRead(ctx, roomID, readerID, messageIDs)
}

// LatestFrom re-reads the newest message a sender wrote to a room. The
// gateway uses it to fan out a message that the REST path already stored.
func (s *MessageService) LatestFrom(ctx context.Context, roomID, senderID string) (*domain.Message, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsMember(senderID) {
		return nil, fmt.Errorf("%w: not a member of this room", domain.ErrPermissionDenied)
	}
	return s.store.LatestMessageBySender(ctx, roomID, senderID)
}
