package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/learnloop/chat-service/internal/domain"
	"github.com/learnloop/chat-service/internal/notify"
	"github.com/learnloop/chat-service/internal/store/memstore"
)

func newRoomFixture(userIDs ...string) (*RoomService, *MessageService, *memstore.Store, *recordNotifier, *recordBus) {
	st := memstore.New()
	dir := newFakeDirectory(userIDs...)
	n := &recordNotifier{}
	bus := &recordBus{}
	rs := NewRoomService(st, dir, n, bus, testLogger())
	ms := NewMessageService(st, notify.Nop{}, testLogger())
	return rs, ms, st, n, bus
}

func TestCreateGroupInjectsCreator(t *testing.T) {
	rs, _, _, _, bus := newRoomFixture("alice", "bob", "carol")
	ctx := context.Background()

	// Creator listed twice on purpose: must still appear once.
	room, err := rs.CreateGroup(ctx, "alice", "study group", []string{"bob", "carol", "alice"}, "")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if room.Kind != domain.RoomGroup || room.Name != "study group" {
		t.Fatalf("room = %+v", room)
	}
	if len(room.Members) != 3 {
		t.Fatalf("members = %d, want 3", len(room.Members))
	}
	if !room.IsMember("alice") || !room.IsAdmin("alice") {
		t.Error("creator must be member and admin")
	}
	if len(bus.rooms) != 1 || bus.rooms[0].RoomID != room.ID {
		t.Fatalf("expected room.created event, got %+v", bus.rooms)
	}
}

func TestCreateGroupValidation(t *testing.T) {
	rs, _, _, _, _ := newRoomFixture("alice", "bob")
	ctx := context.Background()

	cases := []struct {
		name    string
		group   string
		members []string
	}{
		{"empty name", "", []string{"bob"}},
		{"long name", strings.Repeat("x", domain.MaxGroupNameLen+1), []string{"bob"}},
		{"no members", "ok", nil},
		{"unknown member", "ok", []string{"ghost"}},
	}
	for _, tc := range cases {
		if _, err := rs.CreateGroup(ctx, "alice", tc.group, tc.members, ""); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%s: got %v", tc.name, err)
		}
	}
}

func TestInviteMembers(t *testing.T) {
	rs, _, st, n, bus := newRoomFixture("alice", "bob", "carol", "dave")
	ctx := context.Background()

	room, err := rs.CreateGroup(ctx, "alice", "g", []string{"bob"}, "")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	if _, err := rs.InviteMembers(ctx, room.ID, "bob", []string{"carol"}); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("non-admin invite: got %v", err)
	}
	if _, err := rs.InviteMembers(ctx, room.ID, "alice", nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty invite: got %v", err)
	}

	// bob is already a member and must be silently skipped.
	added, err := rs.InviteMembers(ctx, room.ID, "alice", []string{"bob", "carol", "dave"})
	if err != nil {
		t.Fatalf("InviteMembers: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("added = %v", added)
	}

	got, _ := st.GetRoom(ctx, room.ID)
	if len(got.Members) != 4 {
		t.Fatalf("members = %d, want 4", len(got.Members))
	}
	if got := n.sent(); len(got) != 2 {
		t.Fatalf("expected 2 invite notifications, got %d", len(got))
	}
	if len(bus.added) != 2 {
		t.Fatalf("expected 2 member_added events, got %d", len(bus.added))
	}
}

func TestLeavePromotesEarliestJoinedAdmin(t *testing.T) {
	rs, _, st, _, _ := newRoomFixture("alice", "bob", "carol")
	ctx := context.Background()

	room, err := rs.CreateGroup(ctx, "alice", "g", []string{"bob"}, "")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	// carol joins later than the founding members.
	time.Sleep(5 * time.Millisecond)
	if _, err := rs.InviteMembers(ctx, room.ID, "alice", []string{"carol"}); err != nil {
		t.Fatalf("InviteMembers: %v", err)
	}

	// The only admin leaves: earliest joined remaining member takes over.
	if err := rs.Leave(ctx, room.ID, "alice"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	got, _ := st.GetRoom(ctx, room.ID)
	if len(got.Admins) != 1 || got.Admins[0] != "bob" {
		t.Fatalf("admins = %v, want [bob]", got.Admins)
	}
	if got.IsMember("alice") {
		t.Error("alice should be gone")
	}
}

func TestLeaveLastMemberDeletesRoom(t *testing.T) {
	rs, ms, st, _, bus := newRoomFixture("alice", "bob")
	ctx := context.Background()

	room, err := rs.CreateGroup(ctx, "alice", "g", []string{"bob"}, "")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, err := ms.Append(ctx, room.ID, "alice", "bye", nil); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := rs.Leave(ctx, room.ID, "alice"); err != nil {
		t.Fatalf("alice leave: %v", err)
	}
	if err := rs.Leave(ctx, room.ID, "bob"); err != nil {
		t.Fatalf("bob leave: %v", err)
	}

	if _, err := st.GetRoom(ctx, room.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("room should be deleted, got %v", err)
	}
	msgs, _ := st.ListMessages(ctx, room.ID, 10, time.Time{})
	if len(msgs) != 0 {
		t.Errorf("messages should cascade, got %d", len(msgs))
	}
	if len(bus.deleted) != 1 {
		t.Fatalf("expected room.deleted event, got %+v", bus.deleted)
	}
}

func TestLeaveNonMember(t *testing.T) {
	rs, _, _, _, _ := newRoomFixture("alice", "bob", "carol")
	ctx := context.Background()

	room, err := rs.CreateGroup(ctx, "alice", "g", []string{"bob"}, "")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := rs.Leave(ctx, room.ID, "carol"); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("non-member leave: got %v", err)
	}
}

func TestDeleteGroupAdminOnly(t *testing.T) {
	rs, _, st, _, _ := newRoomFixture("alice", "bob")
	ctx := context.Background()

	room, err := rs.CreateGroup(ctx, "alice", "g", []string{"bob"}, "")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := rs.DeleteGroup(ctx, room.ID, "bob"); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("member delete: got %v", err)
	}
	if err := rs.DeleteGroup(ctx, room.ID, "alice"); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := st.GetRoom(ctx, room.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("room should be gone, got %v", err)
	}
}

func TestListRoomsOrderUnreadAndNames(t *testing.T) {
	rs, ms, _, _, _ := newRoomFixture("alice", "bob", "carol")
	ctx := context.Background()

	old, err := rs.CreateGroup(ctx, "alice", "quiet group", []string{"bob"}, "")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	busy, err := rs.CreateGroup(ctx, "alice", "busy group", []string{"bob", "carol"}, "")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	empty, err := rs.CreateGroup(ctx, "alice", "empty group", []string{"bob"}, "")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	if _, err := ms.Append(ctx, old.ID, "bob", "one", nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := ms.Append(ctx, busy.ID, "bob", "two", nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := ms.Append(ctx, busy.ID, "carol", "three", nil); err != nil {
		t.Fatalf("Append: %v", err)
	}

	list, err := rs.ListRooms(ctx, "alice")
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("rooms = %d, want 3", len(list))
	}
	if list[0].RoomID != busy.ID || list[1].RoomID != old.ID || list[2].RoomID != empty.ID {
		t.Fatalf("order = %s, %s, %s", list[0].Name, list[1].Name, list[2].Name)
	}
	if list[0].UnreadCount != 2 || list[1].UnreadCount != 1 || list[2].UnreadCount != 0 {
		t.Fatalf("unread = %d, %d, %d", list[0].UnreadCount, list[1].UnreadCount, list[2].UnreadCount)
	}
}

func TestListRoomsDirectNameFallback(t *testing.T) {
	st := memstore.New()
	dir := newFakeDirectory("alice", "bob")
	rs := NewRoomService(st, dir, notify.Nop{}, &recordBus{}, testLogger())
	ctx := context.Background()

	now := time.Now().UTC()
	if err := st.CreateRoom(ctx, &domain.Room{
		ID:   "d1",
		Kind: domain.RoomDirect,
		Members: []domain.Member{
			{UserID: "alice", JoinedAt: now},
			{UserID: "bob", JoinedAt: now},
		},
		CreatedBy: "alice",
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	list, err := rs.ListRooms(ctx, "alice")
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("rooms = %d", len(list))
	}
	if list[0].Name != "name-bob" {
		t.Fatalf("direct room name = %q, want the other member's name", list[0].Name)
	}
}
