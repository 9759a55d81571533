package ws

import (
	"testing"
	"time"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

// flush waits until the hub has applied everything enqueued before it.
func flush(t *testing.T, h *Hub) {
	t.Helper()
	done := make(chan struct{})
	h.do(func(*Hub) { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not drain")
	}
}

func recv(t *testing.T, c *Conn) []byte {
	t.Helper()
	select {
	case b, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return b
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return nil
	}
}

func assertSilent(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case b := <-c.send:
		t.Fatalf("unexpected frame: %s", b)
	default:
	}
}

func TestCastRoomDeliversToGroup(t *testing.T) {
	h := startHub(t)
	a := NewConn("c1", "alice", nil)
	b := NewConn("c2", "bob", nil)
	out := NewConn("c3", "carol", nil)
	for _, c := range []*Conn{a, b, out} {
		h.Register(c)
	}
	h.Join("room1", a)
	h.Join("room1", b)

	h.CastRoom("room1", []byte("hi"), nil)
	flush(t, h)

	if string(recv(t, a)) != "hi" || string(recv(t, b)) != "hi" {
		t.Fatal("room members should receive the frame")
	}
	assertSilent(t, out)
}

func TestCastRoomExcludesOrigin(t *testing.T) {
	h := startHub(t)
	a := NewConn("c1", "alice", nil)
	b := NewConn("c2", "bob", nil)
	h.Register(a)
	h.Register(b)
	h.Join("room1", a)
	h.Join("room1", b)

	h.CastRoom("room1", []byte("typing"), a)
	flush(t, h)

	recv(t, b)
	assertSilent(t, a)
}

func TestCastUserReachesAllDevices(t *testing.T) {
	h := startHub(t)
	phone := NewConn("c1", "alice", nil)
	laptop := NewConn("c2", "alice", nil)
	other := NewConn("c3", "bob", nil)
	for _, c := range []*Conn{phone, laptop, other} {
		h.Register(c)
	}

	h.CastUser("alice", []byte("ping"))
	flush(t, h)

	recv(t, phone)
	recv(t, laptop)
	assertSilent(t, other)
}

func TestJoinUserAttachesEveryDevice(t *testing.T) {
	h := startHub(t)
	phone := NewConn("c1", "alice", nil)
	laptop := NewConn("c2", "alice", nil)
	h.Register(phone)
	h.Register(laptop)

	h.JoinUser("room1", "alice")
	h.CastRoom("room1", []byte("x"), nil)
	flush(t, h)

	recv(t, phone)
	recv(t, laptop)
}

func TestLeaveAndDropRoom(t *testing.T) {
	h := startHub(t)
	a := NewConn("c1", "alice", nil)
	b := NewConn("c2", "bob", nil)
	h.Register(a)
	h.Register(b)
	h.Join("room1", a)
	h.Join("room1", b)

	h.Leave("room1", a)
	h.CastRoom("room1", []byte("one"), nil)
	flush(t, h)
	recv(t, b)
	assertSilent(t, a)

	h.DropRoom("room1")
	h.CastRoom("room1", []byte("two"), nil)
	flush(t, h)
	assertSilent(t, b)
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	h := startHub(t)
	a := NewConn("c1", "alice", nil)
	h.Register(a)
	h.Join("room1", a)

	h.Unregister(a)
	flush(t, h)

	if _, ok := <-a.send; ok {
		t.Fatal("send channel should be closed after unregister")
	}

	// Casting to the old group must not panic or deliver.
	h.CastRoom("room1", []byte("x"), nil)
	flush(t, h)
}

func TestSendToSkipsUnregisteredConn(t *testing.T) {
	h := startHub(t)
	a := NewConn("c1", "alice", nil)
	h.Register(a)
	h.Unregister(a)
	flush(t, h)

	// The send channel is closed; a direct send must be a no-op.
	h.SendTo(a, []byte("x"))
	flush(t, h)

	b := NewConn("c2", "bob", nil)
	h.Register(b)
	h.SendTo(b, []byte("hi"))
	flush(t, h)
	if string(recv(t, b)) != "hi" {
		t.Fatal("registered conn should receive the frame")
	}
}

func TestSlowConsumerIsDropped(t *testing.T) {
	h := startHub(t)
	slow := NewConn("c1", "alice", nil)
	h.Register(slow)
	h.Join("room1", slow)

	// Fill the buffer without draining, then one more.
	for i := 0; i <= sendBuffer; i++ {
		h.CastRoom("room1", []byte("x"), nil)
	}
	flush(t, h)

	// Channel was closed by the hub once the buffer overflowed; draining
	// it must terminate.
	n := 0
	for range slow.send {
		n++
	}
	if n != sendBuffer {
		t.Fatalf("drained %d frames, want %d", n, sendBuffer)
	}
}
