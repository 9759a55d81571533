package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/learnloop/chat-service/internal/events"
	"github.com/learnloop/chat-service/internal/identity"
	"github.com/learnloop/chat-service/internal/notify"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// fakeDirectory resolves only the ids it was seeded with.
type fakeDirectory struct {
	users map[string]identity.User
}

func newFakeDirectory(ids ...string) *fakeDirectory {
	d := &fakeDirectory{users: map[string]identity.User{}}
	for _, id := range ids {
		d.users[id] = identity.User{ID: id, Name: "name-" + id, Username: id}
	}
	return d
}

func (d *fakeDirectory) Lookup(_ context.Context, ids []string) ([]identity.User, error) {
	out := []identity.User{}
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// recordNotifier captures fire-and-forget notifications.
type recordNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordNotifier) Notify(userID string, ev notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ev.UserID = userID
	n.events = append(n.events, ev)
}

func (n *recordNotifier) sent() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Event(nil), n.events...)
}

// recordBus captures room events published to the gateway bridge.
type recordBus struct {
	mu        sync.Mutex
	created   []events.RequestCreated
	responded []events.RequestResponded
	rooms     []events.RoomCreated
	added     []events.MemberChanged
	removed   []events.MemberChanged
	deleted   []events.RoomDeleted
}

func (b *recordBus) RequestCreated(ev events.RequestCreated) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created = append(b.created, ev)
}

func (b *recordBus) RequestResponded(ev events.RequestResponded) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responded = append(b.responded, ev)
}

func (b *recordBus) RoomCreated(ev events.RoomCreated) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rooms = append(b.rooms, ev)
}

func (b *recordBus) MemberAdded(ev events.MemberChanged) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.added = append(b.added, ev)
}

func (b *recordBus) MemberRemoved(ev events.MemberChanged) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removed = append(b.removed, ev)
}

func (b *recordBus) RoomDeleted(ev events.RoomDeleted) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, ev)
}
