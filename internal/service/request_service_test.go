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

func newRequestFixture(userIDs ...string) (*RequestService, *MessageService, *memstore.Store, *recordNotifier, *recordBus) {
	st := memstore.New()
	dir := newFakeDirectory(userIDs...)
	n := &recordNotifier{}
	bus := &recordBus{}
	rs := NewRequestService(st, dir, n, bus, testLogger())
	ms := NewMessageService(st, notify.Nop{}, testLogger())
	return rs, ms, st, n, bus
}

func TestSendRequestCreatesPendingRoom(t *testing.T) {
	rs, _, st, n, bus := newRequestFixture("alice", "bob")
	ctx := context.Background()

	room, msg, err := rs.SendRequest(ctx, "alice", "bob", "")
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if room.Kind != domain.RoomDirect || !room.IsRequestPending {
		t.Fatalf("expected pending direct room, got %+v", room)
	}
	for _, m := range room.Members {
		switch m.UserID {
		case "alice":
			if m.JoinedAt.IsZero() {
				t.Error("requester should be joined immediately")
			}
		case "bob":
			if !m.JoinedAt.IsZero() {
				t.Error("recipient must not be joined before accepting")
			}
		default:
			t.Errorf("unexpected member %q", m.UserID)
		}
	}
	if !msg.System || msg.RequestStatus != domain.RequestPending {
		t.Fatalf("initial message should be a pending system message, got %+v", msg)
	}
	if msg.Text != "Hey! Let's chat." {
		t.Fatalf("default text = %q", msg.Text)
	}

	req, err := st.GetRequestByRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("GetRequestByRoom: %v", err)
	}
	if req.From != "alice" || req.To != "bob" || req.Status != domain.RequestPending {
		t.Fatalf("request row = %+v", req)
	}
	if req.InitialMessageID != msg.ID {
		t.Error("request should reference the initial message")
	}

	if got := n.sent(); len(got) != 1 || got[0].UserID != "bob" {
		t.Fatalf("expected one notification to bob, got %+v", got)
	}
	if len(bus.created) != 1 || bus.created[0].RoomID != room.ID {
		t.Fatalf("expected request.created event, got %+v", bus.created)
	}
}

func TestSendRequestValidation(t *testing.T) {
	rs, _, _, _, _ := newRequestFixture("alice", "bob")
	ctx := context.Background()

	if _, _, err := rs.SendRequest(ctx, "alice", "", "hi"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty recipient: got %v", err)
	}
	if _, _, err := rs.SendRequest(ctx, "alice", "alice", "hi"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("self request: got %v", err)
	}
	if _, _, err := rs.SendRequest(ctx, "alice", "ghost", "hi"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown recipient: got %v", err)
	}
}

func TestSendRequestConflicts(t *testing.T) {
	rs, _, _, _, _ := newRequestFixture("alice", "bob")
	ctx := context.Background()

	if _, _, err := rs.SendRequest(ctx, "alice", "bob", ""); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, _, err := rs.SendRequest(ctx, "alice", "bob", ""); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate request: got %v", err)
	}
	// Pending request in the opposite direction is the same conflict.
	if _, _, err := rs.SendRequest(ctx, "bob", "alice", ""); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("reverse request: got %v", err)
	}
}

func TestSendRequestExistingRoomConflicts(t *testing.T) {
	rs, _, _, _, _ := newRequestFixture("alice", "bob")
	ctx := context.Background()

	room, _, err := rs.SendRequest(ctx, "alice", "bob", "")
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if _, err := rs.Respond(ctx, room.ID, "bob", domain.RequestAccepted); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if _, _, err := rs.SendRequest(ctx, "alice", "bob", ""); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("request with existing room: got %v", err)
	}
}

func TestRespondAcceptOpensRoom(t *testing.T) {
	rs, ms, st, _, bus := newRequestFixture("alice", "bob")
	ctx := context.Background()

	room, msg, err := rs.SendRequest(ctx, "alice", "bob", "")
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	status, err := rs.Respond(ctx, room.ID, "bob", domain.RequestAccepted)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if status != domain.RequestAccepted {
		t.Fatalf("status = %q", status)
	}

	got, err := st.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if got.IsRequestPending {
		t.Error("room should no longer be pending")
	}
	for _, m := range got.Members {
		if m.JoinedAt.IsZero() {
			t.Errorf("member %q should be joined after accept", m.UserID)
		}
	}

	msgs, err := st.ListMessages(ctx, room.ID, 10, time.Time{})
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	for _, m := range msgs {
		if m.ID == msg.ID && m.RequestStatus != domain.RequestAccepted {
			t.Errorf("initial message status = %q", m.RequestStatus)
		}
	}

	// Accepted room is writable by both sides.
	if _, err := ms.Append(ctx, room.ID, "bob", "hello", nil); err != nil {
		t.Errorf("append after accept: %v", err)
	}
	if len(bus.responded) != 1 || bus.responded[0].Action != domain.RequestAccepted {
		t.Fatalf("expected request.responded event, got %+v", bus.responded)
	}
}

func TestRespondRejectLeavesRoomDead(t *testing.T) {
	rs, ms, st, _, _ := newRequestFixture("alice", "bob")
	ctx := context.Background()

	room, _, err := rs.SendRequest(ctx, "alice", "bob", "")
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if _, err := rs.Respond(ctx, room.ID, "bob", domain.RequestRejected); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	if _, err := st.GetRoom(ctx, room.ID); err != nil {
		t.Fatalf("rejected room should still exist: %v", err)
	}
	_, err = ms.Append(ctx, room.ID, "alice", "please", nil)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("append after reject: got %v", err)
	}
	// The request was rejected, not left pending; the error must not say
	// otherwise.
	if strings.Contains(err.Error(), "pending") {
		t.Errorf("misleading error for rejected room: %q", err)
	}
}

func TestRespondPermissions(t *testing.T) {
	rs, _, _, _, _ := newRequestFixture("alice", "bob")
	ctx := context.Background()

	room, _, err := rs.SendRequest(ctx, "alice", "bob", "")
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if _, err := rs.Respond(ctx, room.ID, "alice", domain.RequestAccepted); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("requester responding: got %v", err)
	}
	if _, err := rs.Respond(ctx, room.ID, "bob", "maybe"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bad action: got %v", err)
	}
	if _, err := rs.Respond(ctx, "nope", "bob", domain.RequestAccepted); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown room: got %v", err)
	}
}

func TestRespondTwiceIsInvalidState(t *testing.T) {
	rs, _, _, _, _ := newRequestFixture("alice", "bob")
	ctx := context.Background()

	room, _, err := rs.SendRequest(ctx, "alice", "bob", "")
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if _, err := rs.Respond(ctx, room.ID, "bob", domain.RequestAccepted); err != nil {
		t.Fatalf("first respond: %v", err)
	}
	if _, err := rs.Respond(ctx, room.ID, "bob", domain.RequestRejected); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("second respond: got %v", err)
	}
}
