package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

// wsConn adapts a gorilla connection to rooms.Conn. Every write carries a
// deadline, so a peer that stops reading turns into a Send error instead of
// a blocked broadcast.
type wsConn struct {
	id        string
	ws        *websocket.Conn
	writeWait time.Duration

	// gorilla allows one concurrent writer.
	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newWSConn(ws *websocket.Conn, writeWait time.Duration) *wsConn {
	return &wsConn{
		id:        ulid.Make().String(),
		ws:        ws,
		writeWait: writeWait,
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

// Close sends a best-effort close frame and releases the socket. Only the
// first call has any effect.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
