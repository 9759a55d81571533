// Package presence derives per-user online state from the set of live
// connection ids. Transitions are computed under one lock from the
// current set, so concurrent connects and disconnects for the same user
// cannot both observe an empty set. Only the empty<->non-empty transition
// is reported; individual device connects never flicker presence.
package presence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/learnloop/chat-service/internal/domain"
)

type Tracker struct {
	mu       sync.Mutex
	conns    map[string]map[string]struct{} // userID -> connection ids
	lastSeen map[string]time.Time

	rdb    *redis.Client // optional mirror, best-effort
	prefix string
	logger *zap.SugaredLogger
}

func NewTracker(rdb *redis.Client, prefix string, logger *zap.SugaredLogger) *Tracker {
	return &Tracker{
		conns:    make(map[string]map[string]struct{}),
		lastSeen: make(map[string]time.Time),
		rdb:      rdb,
		prefix:   prefix,
		logger:   logger,
	}
}

// Connect records a connection id. The returned flag is true only when the
// user went from offline to online.
func (t *Tracker) Connect(ctx context.Context, userID, connID string) (domain.Presence, bool) {
	t.mu.Lock()
	set, ok := t.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		t.conns[userID] = set
	}
	wasEmpty := len(set) == 0
	set[connID] = struct{}{}
	last := t.lastSeen[userID]
	t.mu.Unlock()

	t.mirror(ctx, userID, connID, true, last)
	return domain.Presence{UserID: userID, Online: true, LastSeen: last}, wasEmpty
}

// Disconnect removes a connection id. The returned flag is true only when
// the last connection went away; LastSeen is set on that transition.
func (t *Tracker) Disconnect(ctx context.Context, userID, connID string) (domain.Presence, bool) {
	t.mu.Lock()
	set := t.conns[userID]
	delete(set, connID)
	wentOffline := set != nil && len(set) == 0
	var last time.Time
	if wentOffline {
		last = time.Now().UTC()
		t.lastSeen[userID] = last
	} else {
		last = t.lastSeen[userID]
	}
	t.mu.Unlock()

	t.mirror(ctx, userID, connID, false, last)
	return domain.Presence{UserID: userID, Online: !wentOffline, LastSeen: last}, wentOffline
}

// Online reports the current state of a user.
func (t *Tracker) Online(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns[userID]) > 0
}

// LastSeen returns when the user last went offline; zero if never seen or
// still online.
func (t *Tracker) LastSeen(userID string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSeen[userID]
}

func (t *Tracker) connKey(userID string) string     { return t.prefix + ":conn:" + userID }
func (t *Tracker) presenceKey(userID string) string { return t.prefix + ":presence:" + userID }

// mirror writes the state to redis for other services to read. Called
// after the lock is released; errors are logged only.
func (t *Tracker) mirror(ctx context.Context, userID, connID string, connected bool, last time.Time) {
	if t.rdb == nil {
		return
	}
	var err error
	if connected {
		err = t.rdb.SAdd(ctx, t.connKey(userID), connID).Err()
	} else {
		err = t.rdb.SRem(ctx, t.connKey(userID), connID).Err()
	}
	if err != nil {
		t.logger.Warnw("presence mirror", "user", userID, "err", err)
		return
	}
	state := domain.Presence{UserID: userID, Online: t.Online(userID), LastSeen: last}
	b, _ := json.Marshal(state)
	if err := t.rdb.Set(ctx, t.presenceKey(userID), b, 0).Err(); err != nil {
		t.logger.Warnw("presence mirror", "user", userID, "err", err)
	}
}
