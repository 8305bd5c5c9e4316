// Package wsconn owns the per-connection websocket plumbing: upgrading,
// read/write pumps, and fan-out broadcast. It knows nothing about message
// semantics -- it moves raw JSON frames in and out and leaves decoding to
// internal/router.
package wsconn

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sekiba/kifuroom/pkg/idgen"
	"github.com/seekerror/logw"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// OnMessage is called once per inbound text frame, off the read pump's own
// goroutine. Implementations must not block for long.
type OnMessage func(connID string, raw []byte)

type conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
}

// Hub tracks every live connection and fans broadcasts out to all of them.
type Hub struct {
	mu    sync.Mutex
	conns map[string]*conn
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: map[string]*conn{}}
}

// Upgrade accepts a websocket connection on w/r, registers it, and runs its
// read/write pumps until the connection closes. onOpen fires once the
// connection is registered (before any message can arrive), onMessage once
// per inbound frame, and onClose once the pumps have stopped. Upgrade blocks
// until the connection ends, so callers run it from the HTTP handler
// goroutine directly.
func (h *Hub) Upgrade(ctx context.Context, w http.ResponseWriter, r *http.Request, onOpen func(connID string), onMessage OnMessage, onClose func(connID string)) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	id := idgen.New()
	c := &conn{id: id, ws: ws, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()

	logw.Infof(ctx, "ws connection %v opened", id)
	if onOpen != nil {
		onOpen(id)
	}

	done := make(chan struct{})
	go h.writePump(c, done)
	h.readPump(ctx, c, onMessage)
	close(done)

	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
	logw.Infof(ctx, "ws connection %v closed", id)
	if onClose != nil {
		onClose(id)
	}
	return nil
}

func (h *Hub) readPump(ctx context.Context, c *conn, onMessage OnMessage) {
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		onMessage(c.id, raw)
	}
}

func (h *Hub) writePump(c *conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case raw, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// Send delivers raw to one connection, dropping it silently if the
// connection's outbox is full or it no longer exists.
func (h *Hub) Send(connID string, raw []byte) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	h.mu.Unlock()
	if !ok {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

// Broadcast delivers raw to every connected client.
func (h *Hub) Broadcast(raw []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		select {
		case c.send <- raw:
		default:
		}
	}
}

// Close closes one connection's outbox, ending its write pump and
// triggering the read pump's next read to fail.
func (h *Hub) Close(connID string) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	delete(h.conns, connID)
	h.mu.Unlock()
	if !ok {
		return
	}
	close(c.send)
	c.ws.Close()
}
