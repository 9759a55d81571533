package ws

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// socket is the slice of *websocket.Conn the pumps need; tests swap in a
// fake.
type socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Conn is one websocket connection of one authenticated user. Outbound
// frames go through the buffered send channel, which only the hub closes.
type Conn struct {
	ID     string
	UserID string

	sock socket
	send chan []byte
}

func NewConn(id, userID string, sock socket) *Conn {
	return &Conn{ID: id, UserID: userID, sock: sock, send: make(chan []byte, sendBuffer)}
}

// readPump reads client frames and hands them to the dispatcher. It
// returns on any read error, including deadline expiry when pongs stop.
func (c *Conn) readPump(dispatch func(*Conn, []byte)) {
	c.sock.SetReadLimit(maxMessageSize)
	c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			return
		}
		dispatch(c, data)
	}
}

// writePump drains the send channel and keeps the connection alive with
// pings. It exits when the hub closes the channel or a write fails.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
