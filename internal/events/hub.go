package events

import (
	"sync"

	"github.com/vaultshelf/orchestrator/internal/logging"
)

// Subscriber is a registered consumer of the event stream. Send is buffered;
// a slow subscriber that fills its buffer is disconnected rather than
// allowed to block the fanout for everyone else.
type Subscriber struct {
	ID   uint64
	Send chan []byte
}

// Hub fans every emitted Event out to all registered subscribers and keeps
// a short backlog so a subscriber that reconnects mid-download can catch up
// on the events for items it missed.
type Hub struct {
	log *logging.Logger

	mu          sync.RWMutex
	subscribers map[uint64]*Subscriber
	nextID      uint64

	backlog *Backlog
}

// NewHub creates a Hub. backlogPerItem bounds how many recent events are
// retained per queue item for reconnecting subscribers.
func NewHub(backlogPerItem int, log *logging.Logger) *Hub {
	return &Hub{
		log:         log,
		subscribers: make(map[uint64]*Subscriber),
		backlog:     NewBacklog(backlogPerItem),
	}
}

// Register adds a subscriber and returns it along with its catch-up
// backlog, encoded as the subscriber would receive it over its Send channel.
func (h *Hub) Register() (*Subscriber, [][]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscriber{ID: h.nextID, Send: make(chan []byte, 256)}
	h.subscribers[sub.ID] = sub
	return sub, h.backlog.Snapshot()
}

// Unregister removes a subscriber and closes its Send channel.
func (h *Hub) Unregister(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub.ID]; ok {
		delete(h.subscribers, sub.ID)
		close(sub.Send)
	}
}

// Emit implements Sink: it records the event in the backlog and fans it out
// to every connected subscriber.
func (h *Hub) Emit(e Event) {
	data, err := e.ToJSON()
	if err != nil {
		h.log.WithError(err).Warn("failed to marshal event")
		return
	}
	h.backlog.Record(e.ItemID, data)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers {
		select {
		case sub.Send <- data:
		default:
			h.log.WithField("subscriber_id", sub.ID).Warn("event subscriber buffer full, dropping connection")
			go h.Unregister(sub)
		}
	}
}

var _ Sink = (*Hub)(nil)
