package ws

// Hub owns every broadcast group. All membership state lives inside the
// Run goroutine and is only touched through the command channel, so
// fan-out needs no shared locks and operations apply in the order they
// were issued: a join enqueued before a cast is always visible to it.

type Hub struct {
	ops  chan func(*Hub)
	done chan struct{}

	conns  map[*Conn]struct{}
	rooms  map[string]map[*Conn]struct{} // roomID -> broadcast group
	byUser map[string]map[*Conn]struct{} // userID -> that user's devices
}

func NewHub() *Hub {
	return &Hub{
		ops:    make(chan func(*Hub), 256),
		done:   make(chan struct{}),
		conns:  make(map[*Conn]struct{}),
		rooms:  make(map[string]map[*Conn]struct{}),
		byUser: make(map[string]map[*Conn]struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for c := range h.conns {
				h.drop(c)
			}
			return
		case op := <-h.ops:
			op(h)
		}
	}
}

func (h *Hub) Stop() { close(h.done) }

func (h *Hub) do(op func(*Hub)) {
	select {
	case h.ops <- op:
	case <-h.done:
	}
}

func (h *Hub) joinRoom(roomID string, c *Conn) {
	if _, ok := h.conns[c]; !ok {
		return
	}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Conn]struct{})
	}
	h.rooms[roomID][c] = struct{}{}
}

func (h *Hub) leaveRoom(roomID string, c *Conn) {
	group, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(group, c)
	if len(group) == 0 {
		delete(h.rooms, roomID)
	}
}

// drop removes a connection everywhere and closes its send channel. Only
// ever called from the Run goroutine.
func (h *Hub) drop(c *Conn) {
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	if set, ok := h.byUser[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
	for roomID, group := range h.rooms {
		delete(group, c)
		if len(group) == 0 {
			delete(h.rooms, roomID)
		}
	}
	close(c.send)
}

func (h *Hub) send(c, exclude *Conn, payload []byte) {
	if c == exclude {
		return
	}
	select {
	case c.send <- payload:
	default:
		// Slow consumer: delivery is at-most-once, drop the connection
		// instead of blocking the hub.
		h.drop(c)
	}
}

// Register adds a connection to the hub and its user's device set.
func (h *Hub) Register(c *Conn) {
	h.do(func(h *Hub) {
		h.conns[c] = struct{}{}
		if _, ok := h.byUser[c.UserID]; !ok {
			h.byUser[c.UserID] = make(map[*Conn]struct{})
		}
		h.byUser[c.UserID][c] = struct{}{}
	})
}

// Unregister removes a connection from every group and closes its send
// channel. Other connections of the same user are untouched.
func (h *Hub) Unregister(c *Conn) {
	h.do(func(h *Hub) { h.drop(c) })
}

// Join subscribes one connection to a room's broadcast group.
func (h *Hub) Join(roomID string, c *Conn) {
	h.do(func(h *Hub) { h.joinRoom(roomID, c) })
}

// Leave unsubscribes one connection from a room's broadcast group.
func (h *Hub) Leave(roomID string, c *Conn) {
	h.do(func(h *Hub) { h.leaveRoom(roomID, c) })
}

// JoinUser subscribes all of a user's live connections to a room. Used
// when membership changes while the user is already connected.
func (h *Hub) JoinUser(roomID, userID string) {
	h.do(func(h *Hub) {
		for c := range h.byUser[userID] {
			h.joinRoom(roomID, c)
		}
	})
}

// LeaveUser unsubscribes all of a user's live connections from a room.
func (h *Hub) LeaveUser(roomID, userID string) {
	h.do(func(h *Hub) {
		for c := range h.byUser[userID] {
			h.leaveRoom(roomID, c)
		}
	})
}

// DropRoom discards a room's broadcast group entirely.
func (h *Hub) DropRoom(roomID string) {
	h.do(func(h *Hub) { delete(h.rooms, roomID) })
}

// SendTo delivers a frame to a single connection. Goes through the hub so
// a connection that was already dropped (and its send channel closed) is
// skipped instead of panicking the caller.
func (h *Hub) SendTo(c *Conn, payload []byte) {
	h.do(func(h *Hub) {
		if _, ok := h.conns[c]; !ok {
			return
		}
		h.send(c, nil, payload)
	})
}

// CastRoom broadcasts to a room's group, optionally excluding the origin
// connection.
func (h *Hub) CastRoom(roomID string, payload []byte, exclude *Conn) {
	h.do(func(h *Hub) {
		for c := range h.rooms[roomID] {
			h.send(c, exclude, payload)
		}
	})
}

// CastUser broadcasts to every device of one user.
func (h *Hub) CastUser(userID string, payload []byte) {
	h.do(func(h *Hub) {
		for c := range h.byUser[userID] {
			h.send(c, nil, payload)
		}
	})
}

// CastGlobal broadcasts to every live connection.
func (h *Hub) CastGlobal(payload []byte, exclude *Conn) {
	h.do(func(h *Hub) {
		for c := range h.conns {
			h.send(c, exclude, payload)
		}
	})
}
