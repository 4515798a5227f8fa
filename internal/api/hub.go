package api

import (
	"log"
	"net/http"
	"sync"

	"clearcall/internal/callsync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// sendBufSize is the per-connection outbound buffer. A client that falls
// this far behind is disconnected rather than allowed to block publishes.
const sendBufSize = 16

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is one connected frontend. All writes to the conn go through the
// send channel and the single writeLoop goroutine; the websocket library
// allows at most one concurrent writer per connection.
type client struct {
	conn *websocket.Conn
	send chan callsync.Snapshot
}

func (cl *client) writeLoop(h *Hub) {
	defer cl.conn.Close()
	for snap := range cl.send {
		if err := cl.conn.WriteJSON(snap); err != nil {
			h.drop(cl)
			return
		}
	}
}

func (cl *client) readLoop(h *Hub) {
	defer h.drop(cl)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Hub fans state snapshots out to every connected frontend. It implements
// callsync.Notifier.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]bool
	last    *callsync.Snapshot
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]bool)}
}

// Serve upgrades the request and keeps the connection registered until
// the client goes away. Clients only read snapshots; anything they send
// is drained and dropped.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := &client{conn: conn, send: make(chan callsync.Snapshot, sendBufSize)}
	h.mu.Lock()
	h.clients[cl] = true
	if h.last != nil {
		cl.send <- *h.last
	}
	total := len(h.clients)
	h.mu.Unlock()
	log.Printf("[Hub] Client connected (%d total)", total)

	go cl.writeLoop(h)
	go cl.readLoop(h)
	return nil
}

// Publish enqueues the snapshot for every client. A client whose buffer
// is full is dropped; the publisher never blocks on a slow connection.
func (h *Hub) Publish(snap callsync.Snapshot) {
	h.mu.Lock()
	h.last = &snap
	for cl := range h.clients {
		select {
		case cl.send <- snap:
		default:
			delete(h.clients, cl)
			close(cl.send)
		}
	}
	h.mu.Unlock()
}

// drop unregisters the client and closes its send channel exactly once.
// The channel close ends writeLoop, which closes the conn.
func (h *Hub) drop(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
	h.mu.Unlock()
	cl.conn.Close()
}
