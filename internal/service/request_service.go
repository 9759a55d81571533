package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnloop/chat-service/internal/domain"
	"github.com/learnloop/chat-service/internal/events"
	"github.com/learnloop/chat-service/internal/identity"
	"github.com/learnloop/chat-service/internal/metrics"
	"github.com/learnloop/chat-service/internal/notify"
	"github.com/learnloop/chat-service/internal/store"
)

const defaultRequestText = "Hey! Let's chat."

// RequestService runs the direct-chat handshake: a pending request gates
// the room until the recipient accepts or rejects, and that transition
// happens exactly once. A rejected room stays in place but is never
// writable again; re-opening contact after a rejection is deliberately
// unsupported.
type RequestService struct {
	store     store.Store
	directory identity.Directory
	notifier  notify.Notifier
	bus       events.RoomEvents
	logger    *zap.SugaredLogger
}

func NewRequestService(st store.Store, dir identity.Directory, n notify.Notifier, bus events.RoomEvents, logger *zap.SugaredLogger) *RequestService {
	return &RequestService{store: st, directory: dir, notifier: n, bus: bus, logger: logger}
}

// SendRequest opens a direct room gated by a pending request. The room,
// its initial system message and the request row are created together. A
// pending request in either direction, or any existing direct room
// between the pair, makes this a conflict.
func (s *RequestService) SendRequest(ctx context.Context, fromID, toID, text string) (*domain.Room, *domain.Message, error) {
	if toID == "" {
		return nil, nil, fmt.Errorf("%w: toUserId is required", domain.ErrValidation)
	}
	if fromID == toID {
		return nil, nil, fmt.Errorf("%w: cannot send a request to yourself", domain.ErrValidation)
	}
	users, err := s.directory.Lookup(ctx, []string{fromID, toID})
	if err != nil {
		return nil, nil, fmt.Errorf("resolve users: %w", err)
	}
	if len(users) != 2 {
		return nil, nil, fmt.Errorf("%w: one or both users not found", domain.ErrNotFound)
	}

	if _, err := s.store.FindPendingRequestBetween(ctx, fromID, toID); err == nil {
		return nil, nil, fmt.Errorf("%w: a request is already pending", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, err
	}
	if _, err := s.store.FindDirectRoom(ctx, fromID, toID); err == nil {
		return nil, nil, fmt.Errorf("%w: a room already exists with this user", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, err
	}

	if text == "" {
		text = defaultRequestText
	}
	now := time.Now().UTC()
	room := &domain.Room{
		ID:   uuid.NewString(),
		Kind: domain.RoomDirect,
		Members: []domain.Member{
			{UserID: fromID, JoinedAt: now},
			{UserID: toID}, // not joined until they accept
		},
		IsRequestPending: true,
		CreatedBy:        fromID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	msg := &domain.Message{
		ID:            uuid.NewString(),
		RoomID:        room.ID,
		SenderID:      fromID,
		Text:          text,
		System:        true,
		RequestStatus: domain.RequestPending,
		ReadBy:        []string{},
		CreatedAt:     now,
	}
	req := &domain.ChatRequest{
		ID:               uuid.NewString(),
		RoomID:           room.ID,
		From:             fromID,
		To:               toID,
		PairKey:          domain.PairKey(fromID, toID),
		InitialMessageID: msg.ID,
		Status:           domain.RequestPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateRequestRoom(ctx, room, msg, req); err != nil {
		return nil, nil, err
	}
	metrics.RequestsCreated.Inc()

	s.notifier.Notify(toID, notify.Event{
		Type:    notify.EventChatRequest,
		ActorID: fromID,
		RoomID:  room.ID,
	})
	s.bus.RequestCreated(events.RequestCreated{
		RoomID:    room.ID,
		From:      fromID,
		To:        toID,
		MessageID: msg.ID,
	})
	return room, msg, nil
}

// Respond resolves a pending request. Only the recipient may respond, and
// only once: the request status, the initial message status and the room
// flag move together in one atomic unit. Accept replaces the membership
// with both users joined as of now.
func (s *RequestService) Respond(ctx context.Context, roomID, actorID string, action domain.RequestStatus) (domain.RequestStatus, error) {
	if action != domain.RequestAccepted && action != domain.RequestRejected {
		return "", fmt.Errorf("%w: action must be accept or reject", domain.ErrValidation)
	}
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return "", err
	}
	req, err := s.store.GetRequestByRoom(ctx, room.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("%w: this room has no chat request", domain.ErrNotFound)
		}
		return "", err
	}
	if req.Status != domain.RequestPending {
		return "", fmt.Errorf("%w: request already %s", domain.ErrInvalidState, req.Status)
	}
	if actorID != req.To {
		return "", fmt.Errorf("%w: only the recipient can respond", domain.ErrPermissionDenied)
	}

	var members []domain.Member
	if action == domain.RequestAccepted {
		now := time.Now().UTC()
		members = []domain.Member{
			{UserID: req.From, JoinedAt: now},
			{UserID: req.To, JoinedAt: now},
		}
	}
	if err := s.store.ResolveRequest(ctx, roomID, action, members); err != nil {
		return "", err
	}

	s.notifier.Notify(req.From, notify.Event{
		Type:    notify.EventRequestResponse,
		ActorID: actorID,
		RoomID:  roomID,
		Text:    string(action),
	})
	s.bus.RequestResponded(events.RequestResponded{
		RoomID: roomID,
		From:   req.From,
		To:     req.To,
		Action: action,
	})
	return action, nil
}
