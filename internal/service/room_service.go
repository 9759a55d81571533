package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnloop/chat-service/internal/domain"
	"github.com/learnloop/chat-service/internal/events"
	"github.com/learnloop/chat-service/internal/identity"
	"github.com/learnloop/chat-service/internal/notify"
	"github.com/learnloop/chat-service/internal/store"
)

// MemberInfo is a membership slot enriched with directory data for the
// room list.
type MemberInfo struct {
	UserID    string    `json:"userId"`
	Name      string    `json:"name,omitempty"`
	Username  string    `json:"username,omitempty"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	JoinedAt  time.Time `json:"joinedAt,omitempty"`
}

// RoomSummary is one row of a user's room list. UnreadCount counts
// messages the user neither sent nor read.
type RoomSummary struct {
	RoomID           string              `json:"roomId"`
	Kind             domain.RoomKind     `json:"type"`
	Name             string              `json:"name"`
	AvatarURL        string              `json:"avatarUrl,omitempty"`
	Members          []MemberInfo        `json:"members"`
	LastMessage      *domain.LastMessage `json:"lastMessage,omitempty"`
	UnreadCount      int64               `json:"unreadCount"`
	IsRequestPending bool                `json:"isRequestPending"`
}

// RoomService owns room lifecycle and membership for both direct and
// group rooms.
type RoomService struct {
	store     store.Store
	directory identity.Directory
	notifier  notify.Notifier
	bus       events.RoomEvents
	logger    *zap.SugaredLogger
}

func NewRoomService(st store.Store, dir identity.Directory, n notify.Notifier, bus events.RoomEvents, logger *zap.SugaredLogger) *RoomService {
	return &RoomService{store: st, directory: dir, notifier: n, bus: bus, logger: logger}
}

// CreateGroup creates a group room. The creator is always a member and an
// admin, whether or not they listed themselves.
func (s *RoomService) CreateGroup(ctx context.Context, creatorID, name string, memberIDs []string, avatarURL string) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > domain.MaxGroupNameLen {
		return nil, fmt.Errorf("%w: group name is required (max %d chars)", domain.ErrValidation, domain.MaxGroupNameLen)
	}
	if len(memberIDs) == 0 {
		return nil, fmt.Errorf("%w: members are required", domain.ErrValidation)
	}
	ids := dedupe(append([]string{creatorID}, memberIDs...))
	users, err := s.directory.Lookup(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve members: %w", err)
	}
	if len(users) != len(ids) {
		return nil, fmt.Errorf("%w: one or more members not found", domain.ErrValidation)
	}

	now := time.Now().UTC()
	members := make([]domain.Member, 0, len(ids))
	for _, id := range ids {
		members = append(members, domain.Member{UserID: id, JoinedAt: now})
	}
	room := &domain.Room{
		ID:        uuid.NewString(),
		Kind:      domain.RoomGroup,
		Name:      name,
		AvatarURL: avatarURL,
		Members:   members,
		Admins:    []string{creatorID},
		CreatedBy: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateRoom(ctx, room); err != nil {
		return nil, err
	}
	s.bus.RoomCreated(events.RoomCreated{RoomID: room.ID, MemberIDs: ids})
	return room, nil
}

// InviteMembers adds users to a group. Ids already present are silently
// dropped; each newly added member gets a best-effort invite notification.
func (s *RoomService) InviteMembers(ctx context.Context, roomID, actorID string, newMemberIDs []string) ([]string, error) {
	if len(newMemberIDs) == 0 {
		return nil, fmt.Errorf("%w: newMembers is required", domain.ErrValidation)
	}
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Kind != domain.RoomGroup {
		return nil, fmt.Errorf("%w: group not found", domain.ErrNotFound)
	}
	if !room.IsAdmin(actorID) {
		return nil, fmt.Errorf("%w: only admins can invite members", domain.ErrPermissionDenied)
	}

	toAdd := []string{}
	for _, id := range dedupe(newMemberIDs) {
		if !room.IsMember(id) {
			toAdd = append(toAdd, id)
		}
	}
	if len(toAdd) == 0 {
		return nil, nil
	}
	users, err := s.directory.Lookup(ctx, toAdd)
	if err != nil {
		return nil, fmt.Errorf("resolve members: %w", err)
	}
	if len(users) != len(toAdd) {
		return nil, fmt.Errorf("%w: one or more members not found", domain.ErrValidation)
	}

	now := time.Now().UTC()
	members := room.Members
	for _, id := range toAdd {
		members = append(members, domain.Member{UserID: id, JoinedAt: now})
	}
	if err := s.store.UpdateRoomMembers(ctx, roomID, members, room.Admins); err != nil {
		return nil, err
	}
	for _, id := range toAdd {
		s.notifier.Notify(id, notify.Event{
			Type:      notify.EventGroupInvite,
			ActorID:   actorID,
			RoomID:    roomID,
			GroupName: room.Name,
		})
		s.bus.MemberAdded(events.MemberChanged{RoomID: roomID, UserID: id, Actor: actorID})
	}
	return toAdd, nil
}

// Leave removes the actor from a group. The last member leaving deletes
// the room and its messages; losing the last admin promotes the
// earliest-joined remaining member.
func (s *RoomService) Leave(ctx context.Context, roomID, actorID string) error {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Kind != domain.RoomGroup {
		return fmt.Errorf("%w: group not found", domain.ErrNotFound)
	}
	if !room.IsMember(actorID) {
		return fmt.Errorf("%w: not a member of this group", domain.ErrPermissionDenied)
	}

	members := make([]domain.Member, 0, len(room.Members)-1)
	for _, m := range room.Members {
		if m.UserID != actorID {
			members = append(members, m)
		}
	}
	admins := removeString(room.Admins, actorID)

	if len(members) == 0 {
		if err := s.store.DeleteRoom(ctx, roomID); err != nil {
			return err
		}
		s.bus.RoomDeleted(events.RoomDeleted{RoomID: roomID})
		return nil
	}
	if len(admins) == 0 {
		admins = []string{earliestJoined(members)}
	}
	if err := s.store.UpdateRoomMembers(ctx, roomID, members, admins); err != nil {
		return err
	}
	s.bus.MemberRemoved(events.MemberChanged{RoomID: roomID, UserID: actorID, Actor: actorID})
	return nil
}

// DeleteGroup removes a group room and all its messages. Admins only.
func (s *RoomService) DeleteGroup(ctx context.Context, roomID, actorID string) error {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Kind != domain.RoomGroup {
		return fmt.Errorf("%w: group not found", domain.ErrNotFound)
	}
	if !room.IsAdmin(actorID) {
		return fmt.Errorf("%w: only admins can delete the group", domain.ErrPermissionDenied)
	}
	if err := s.store.DeleteRoom(ctx, roomID); err != nil {
		return err
	}
	s.bus.RoomDeleted(events.RoomDeleted{RoomID: roomID})
	return nil
}

// ListRooms returns the user's rooms newest-activity first, rooms without
// messages last, each with its unread count. Directory enrichment is
// best-effort: a directory outage degrades names, not the listing.
func (s *RoomService) ListRooms(ctx context.Context, userID string) ([]RoomSummary, error) {
	rooms, err := s.store.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	idSet := map[string]struct{}{}
	for _, r := range rooms {
		for _, m := range r.Members {
			idSet[m.UserID] = struct{}{}
		}
	}
	byID := map[string]identity.User{}
	if len(idSet) > 0 {
		ids := make([]string, 0, len(idSet))
		for id := range idSet {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		users, err := s.directory.Lookup(ctx, ids)
		if err != nil {
			s.logger.Warnw("directory lookup for room list", "err", err)
		}
		for _, u := range users {
			byID[u.ID] = u
		}
	}

	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		unread, err := s.store.CountUnread(ctx, r.ID, userID)
		if err != nil {
			return nil, err
		}
		members := make([]MemberInfo, 0, len(r.Members))
		for _, m := range r.Members {
			u := byID[m.UserID]
			members = append(members, MemberInfo{
				UserID:    m.UserID,
				Name:      u.Name,
				Username:  u.Username,
				AvatarURL: u.AvatarURL,
				JoinedAt:  m.JoinedAt,
			})
		}
		out = append(out, RoomSummary{
			RoomID:           r.ID,
			Kind:             r.Kind,
			Name:             displayName(r, userID, byID),
			AvatarURL:        r.AvatarURL,
			Members:          members,
			LastMessage:      r.LastMessage,
			UnreadCount:      unread,
			IsRequestPending: r.IsRequestPending,
		})
	}
	return out, nil
}

// RoomIDs returns just the ids of the user's rooms. The gateway uses it
// to seed broadcast-group membership without the cost of a full listing.
func (s *RoomService) RoomIDs(ctx context.Context, userID string) ([]string, error) {
	rooms, err := s.store.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// displayName falls back to the other members' names for direct rooms,
// which carry no name of their own.
func displayName(r *domain.Room, viewerID string, byID map[string]identity.User) string {
	if r.Name != "" {
		return r.Name
	}
	names := []string{}
	for _, m := range r.Members {
		if m.UserID == viewerID {
			continue
		}
		if u, ok := byID[m.UserID]; ok && u.Name != "" {
			names = append(names, u.Name)
		} else {
			names = append(names, m.UserID)
		}
	}
	return strings.Join(names, ", ")
}

// earliestJoined picks the next admin deterministically: join order first,
// user id as the tie-break.
func earliestJoined(members []domain.Member) string {
	best := members[0]
	for _, m := range members[1:] {
		if m.JoinedAt.Before(best.JoinedAt) ||
			(m.JoinedAt.Equal(best.JoinedAt) && m.UserID < best.UserID) {
			best = m
		}
	}
	return best.UserID
}

func dedupe(ids []string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func removeString(s []string, v string) []string {
	out := make([]string, 0, len(s))
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
