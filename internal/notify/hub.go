package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeWait = 10 * time.Second

// Hub is a websocket Broadcaster. Connections register through the HTTP
// handler and receive every published notification as a JSON frame. A
// connection that cannot be written to in time is dropped.
type Hub struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu    sync.RWMutex
	conns map[string]*wsConn
}

type wsConn struct {
	conn *websocket.Conn
	// serializes writes; gorilla allows only one concurrent writer
	mu sync.Mutex
}

// NewHub builds an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:   log,
		conns: make(map[string]*wsConn),
	}
}

// HandleWS upgrades the request and keeps the connection registered until
// the peer goes away.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	id := uuid.New().String()
	h.add(id, &wsConn{conn: conn})
	h.log.Debug().Str("conn", id).Msg("notification channel connected")

	// Drain (and discard) inbound frames so pings and close frames are
	// processed; the channel is push-only.
	go func() {
		defer func() {
			h.remove(id)
			_ = conn.Close()
			h.log.Debug().Str("conn", id).Msg("notification channel disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Publish sends the notification to every connected channel, dropping
// connections that fail.
func (h *Hub) Publish(n Notification) {
	h.mu.RLock()
	targets := make(map[string]*wsConn, len(h.conns))
	for id, c := range h.conns {
		targets[id] = c
	}
	h.mu.RUnlock()

	for id, c := range targets {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.conn.WriteJSON(n)
		c.mu.Unlock()
		if err != nil {
			h.log.Warn().Err(err).Str("conn", id).Msg("dropping notification channel")
			h.remove(id)
			_ = c.conn.Close()
		}
	}
}

// ConnCount reports the number of live connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) add(id string, c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[id] = c
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
}
