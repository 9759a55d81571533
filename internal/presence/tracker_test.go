package presence

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func newTestTracker() *Tracker {
	return NewTracker(nil, "test", zap.NewNop().Sugar())
}

func TestConnectDisconnectTransitions(t *testing.T) {
	tr := newTestTracker()
	ctx := context.Background()

	p, transitioned := tr.Connect(ctx, "u1", "c1")
	if !transitioned || !p.Online {
		t.Fatalf("first connect: transitioned=%v online=%v", transitioned, p.Online)
	}

	// Second device: no observable transition.
	if _, transitioned := tr.Connect(ctx, "u1", "c2"); transitioned {
		t.Fatal("second connect must not re-announce online")
	}

	// Dropping one of two devices keeps the user online.
	p, transitioned = tr.Disconnect(ctx, "u1", "c1")
	if transitioned || !p.Online {
		t.Fatalf("partial disconnect: transitioned=%v online=%v", transitioned, p.Online)
	}
	if !tr.Online("u1") {
		t.Fatal("user should still be online")
	}

	p, transitioned = tr.Disconnect(ctx, "u1", "c2")
	if !transitioned || p.Online {
		t.Fatalf("final disconnect: transitioned=%v online=%v", transitioned, p.Online)
	}
	if p.LastSeen.IsZero() {
		t.Fatal("lastSeen should be set when the user goes offline")
	}
	if tr.Online("u1") {
		t.Fatal("user should be offline")
	}
	if tr.LastSeen("u1").IsZero() {
		t.Fatal("LastSeen should survive the disconnect")
	}
}

func TestDisconnectUnknownIsHarmless(t *testing.T) {
	tr := newTestTracker()
	if _, transitioned := tr.Disconnect(context.Background(), "ghost", "c1"); transitioned {
		t.Fatal("disconnecting an unknown user must not announce offline")
	}
}

func TestReconnectAnnouncesAgain(t *testing.T) {
	tr := newTestTracker()
	ctx := context.Background()

	tr.Connect(ctx, "u1", "c1")
	tr.Disconnect(ctx, "u1", "c1")
	if _, transitioned := tr.Connect(ctx, "u1", "c2"); !transitioned {
		t.Fatal("reconnect after offline should announce online")
	}
}

// A churn of connects and disconnects across goroutines must produce
// balanced transitions: every online announcement has a matching offline
// one, and the final state is offline.
func TestConcurrentChurnBalances(t *testing.T) {
	tr := newTestTracker()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	online, offline := 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := string(rune('a' + i))
			if _, ok := tr.Connect(ctx, "u1", connID); ok {
				mu.Lock()
				online++
				mu.Unlock()
			}
			if _, ok := tr.Disconnect(ctx, "u1", connID); ok {
				mu.Lock()
				offline++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if online != offline {
		t.Fatalf("unbalanced transitions: %d online, %d offline", online, offline)
	}
	if tr.Online("u1") {
		t.Fatal("all connections closed, user must be offline")
	}
}
