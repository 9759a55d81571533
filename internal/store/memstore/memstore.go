// Package memstore is a mutex-guarded in-memory Store used by tests and
// local development. Its atomic units hold the same invariants as the
// mongo implementation, just under one lock instead of a transaction.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/learnloop/chat-service/internal/domain"
	"github.com/learnloop/chat-service/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu       sync.RWMutex
	rooms    map[string]*domain.Room
	messages map[string][]*domain.Message // roomID -> ordered by CreatedAt asc
	requests map[string]*domain.ChatRequest
}

func New() *Store {
	return &Store{
		rooms:    make(map[string]*domain.Room),
		messages: make(map[string][]*domain.Message),
		requests: make(map[string]*domain.ChatRequest),
	}
}

func cloneRoom(r *domain.Room) *domain.Room {
	c := *r
	c.Members = append([]domain.Member(nil), r.Members...)
	c.Admins = append([]string(nil), r.Admins...)
	if r.LastMessage != nil {
		lm := *r.LastMessage
		c.LastMessage = &lm
	}
	return &c
}

func cloneMessage(m *domain.Message) *domain.Message {
	c := *m
	c.Attachments = append([]domain.Attachment(nil), m.Attachments...)
	c.ReadBy = append([]string{}, m.ReadBy...)
	return &c
}

// Rooms

func (s *Store) CreateRoom(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = cloneRoom(room)
	return nil
}

func (s *Store) GetRoom(_ context.Context, roomID string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneRoom(r), nil
}

func (s *Store) FindDirectRoom(_ context.Context, userA, userB string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rooms {
		if r.Kind == domain.RoomDirect && r.IsMember(userA) && r.IsMember(userB) {
			return cloneRoom(r), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListRoomsForUser(_ context.Context, userID string) ([]*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Room{}
	for _, r := range s.rooms {
		if r.IsMember(userID) {
			out = append(out, cloneRoom(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		li, lj := out[i].LastMessage, out[j].LastMessage
		switch {
		case li == nil && lj == nil:
			return out[i].ID < out[j].ID
		case li == nil:
			return false // rooms without messages sort last
		case lj == nil:
			return true
		default:
			return li.CreatedAt.After(lj.CreatedAt)
		}
	})
	return out, nil
}

func (s *Store) UpdateRoomMembers(_ context.Context, roomID string, members []domain.Member, admins []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrNotFound
	}
	r.Members = append([]domain.Member(nil), members...)
	r.Admins = append([]string(nil), admins...)
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) DeleteRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.rooms, roomID)
	delete(s.messages, roomID)
	for id, req := range s.requests {
		if req.RoomID == roomID {
			delete(s.requests, id)
		}
	}
	return nil
}

// Messages

func (s *Store) AppendMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[msg.RoomID]
	if !ok {
		return domain.ErrNotFound
	}
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], cloneMessage(msg))
	r.LastMessage = &domain.LastMessage{
		Text:      msg.Text,
		SenderID:  msg.SenderID,
		CreatedAt: msg.CreatedAt,
	}
	r.UpdatedAt = msg.CreatedAt
	return nil
}

func (s *Store) ListMessages(_ context.Context, roomID string, limit int64, before time.Time) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[roomID]
	out := []*domain.Message{}
	for i := len(msgs) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		m := msgs[i]
		if !before.IsZero() && !m.CreatedAt.Before(before) {
			continue
		}
		out = append(out, cloneMessage(m))
	}
	return out, nil
}

func (s *Store) LatestMessageBySender(_ context.Context, roomID, senderID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[roomID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].SenderID == senderID {
			return cloneMessage(msgs[i]), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) MarkRead(_ context.Context, roomID, readerID string, messageIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := map[string]bool{}
	for _, id := range messageIDs {
		wanted[id] = true
	}
	for _, m := range s.messages[roomID] {
		if len(messageIDs) > 0 && !wanted[m.ID] {
			continue
		}
		if m.SenderID == readerID || m.ReadByUser(readerID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, readerID)
	}
	return nil
}

func (s *Store) CountUnread(_ context.Context, roomID, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, m := range s.messages[roomID] {
		if m.SenderID != userID && !m.ReadByUser(userID) {
			n++
		}
	}
	return n, nil
}

// Requests

func (s *Store) CreateRequestRoom(_ context.Context, room *domain.Room, msg *domain.Message, req *domain.ChatRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// The single-pending-request-per-pair check has to share the critical
	// section with the insert, or two racing callers both pass it. The
	// mongo implementation gets the same guarantee from a unique index.
	key := domain.PairKey(req.From, req.To)
	for _, r := range s.requests {
		if r.Status == domain.RequestPending && domain.PairKey(r.From, r.To) == key {
			return domain.ErrConflict
		}
	}
	for _, r := range s.rooms {
		if r.Kind == domain.RoomDirect && r.IsMember(req.From) && r.IsMember(req.To) {
			return domain.ErrConflict
		}
	}
	s.rooms[room.ID] = cloneRoom(room)
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], cloneMessage(msg))
	r := *req
	s.requests[req.ID] = &r
	return nil
}

func (s *Store) GetRequestByRoom(_ context.Context, roomID string) (*domain.ChatRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, req := range s.requests {
		if req.RoomID == roomID {
			r := *req
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) FindPendingRequestBetween(_ context.Context, userA, userB string) (*domain.ChatRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, req := range s.requests {
		if req.Status != domain.RequestPending {
			continue
		}
		if (req.From == userA && req.To == userB) || (req.From == userB && req.To == userA) {
			r := *req
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ResolveRequest(_ context.Context, roomID string, status domain.RequestStatus, members []domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req *domain.ChatRequest
	for _, r := range s.requests {
		if r.RoomID == roomID {
			req = r
			break
		}
	}
	if req == nil {
		return domain.ErrNotFound
	}
	if req.Status != domain.RequestPending {
		return domain.ErrInvalidState
	}
	now := time.Now().UTC()
	req.Status = status
	req.UpdatedAt = now
	for _, m := range s.messages[roomID] {
		if m.ID == req.InitialMessageID {
			m.RequestStatus = status
		}
	}
	if room, ok := s.rooms[roomID]; ok {
		room.UpdatedAt = now
		if status == domain.RequestAccepted {
			room.IsRequestPending = false
			room.Members = append([]domain.Member(nil), members...)
		}
	}
	return nil
}
