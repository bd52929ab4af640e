package events

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vaultshelf/orchestrator/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades incoming HTTP requests to websocket connections and
// attaches them to the Hub as read-only event subscribers.
type Handler struct {
	hub *Hub
	log *logging.Logger
}

// NewHandler creates a Handler serving hub's event stream.
func NewHandler(hub *Hub, log *logging.Logger) *Handler {
	return &Handler{hub: hub, log: log}
}

// ServeHTTP upgrades the connection and blocks until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("failed to upgrade event subscriber connection")
		return
	}
	defer conn.Close()

	sub, backlog := h.hub.Register()
	defer h.hub.Unregister(sub)

	for _, data := range backlog {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go h.discardReads(conn, done)

	h.writePump(conn, sub, done)
}

// discardReads drains and discards anything the subscriber sends; this is a
// publish-only stream but the read loop must run so close frames and
// disconnects are detected.
func (h *Handler) discardReads(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, sub *Subscriber, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case data, ok := <-sub.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
