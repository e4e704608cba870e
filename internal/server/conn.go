package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait     = 10 * time.Second
	readLimit     = 1 << 20 // 1MB
	sendQueueSize = 64
)

// outbound is the room's view of a connection: an identity plus a
// non-blocking way to push frames at it. Tests substitute a recorder.
type outbound interface {
	ID() string
	Enqueue(msg []byte)
}

// wsConn wraps a websocket connection with a buffered send queue so room
// broadcasts never block on a slow peer.
type wsConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	once sync.Once
	log  *zap.SugaredLogger
}

func newWSConn(id string, ws *websocket.Conn, log *zap.SugaredLogger) *wsConn {
	return &wsConn{
		id:   id,
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
		log:  log,
	}
}

func (c *wsConn) ID() string { return c.id }

// Enqueue drops the frame when the queue is full. Position updates are
// superseded by later ones, so dropping beats blocking the room.
func (c *wsConn) Enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.ws.Close()
	})
}

// readPump feeds inbound frames to the room until the connection drops, then
// detaches so the room can clean up the player it owned. Detach must come
// first: broadcasts enqueue under the room lock, so once Detach returns no
// frame can reach this connection and closing the send channel is safe.
func (c *wsConn) readPump(room *Room) {
	defer func() {
		room.Detach(c.id)
		c.close()
	}()

	c.ws.SetReadLimit(readLimit)
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warnf("conn %s read error: %v", c.id, err)
			}
			return
		}
		room.HandleMessage(c, payload)
	}
}

// writePump drains the send queue onto the wire.
func (c *wsConn) writePump() {
	defer func() { _ = c.ws.Close() }()

	for msg := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.log.Debugf("conn %s write error: %v", c.id, err)
			return
		}
	}
	_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
}
