// Package events implements the progress/event bus emitted to UI
// subscribers: an EventSink capability the orchestrator core calls into,
// backed by a websocket fanout with a per-item backlog for late joiners.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Name enumerates the event names the orchestrator core emits. The core
// only ever constructs events through the New* helpers below — payload
// shape is fixed per name.
type Name string

const (
	NameQueueItemAdded   Name = "queue:item_added"
	NameDownloadStarted  Name = "download:started"
	NameDownloadProgress Name = "download:progress"
	NameDownloadComplete Name = "download:completed"
	NameDownloadFailed   Name = "download:failed"
	NameDownloadCanceled Name = "download:cancelled"
	NameDownloadPaused   Name = "download:paused"
	NameDownloadResumed  Name = "download:resumed"
	NameStateChanged     Name = "state:changed"
	NameQueueUpdated     Name = "queue:updated"
)

// Event is one message published on the bus. ID lets a subscriber dedupe a
// redelivered backlog entry without comparing the whole payload.
type Event struct {
	ID        string                 `json:"id"`
	Name      Name                   `json:"name"`
	ItemID    int64                  `json:"item_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Sink is the capability the orchestrator core depends on to publish
// events. The core never talks to a transport directly.
type Sink interface {
	Emit(e Event)
}

func newEvent(name Name, itemID int64, payload map[string]interface{}) Event {
	return Event{ID: uuid.NewString(), Name: name, ItemID: itemID, Payload: payload, Timestamp: time.Now()}
}

// NewQueueItemAdded builds queue:item_added {id, catalog_id}.
func NewQueueItemAdded(itemID int64, catalogID string) Event {
	return newEvent(NameQueueItemAdded, itemID, map[string]interface{}{"id": itemID, "catalog_id": catalogID})
}

// NewDownloadStarted builds download:started {id}.
func NewDownloadStarted(itemID int64) Event {
	return newEvent(NameDownloadStarted, itemID, map[string]interface{}{"id": itemID})
}

// NewDownloadProgress builds download:progress {id, progress, speed_bytes?, eta_seconds?, message?}.
func NewDownloadProgress(itemID int64, progress float64, speedBytes int64, etaSeconds int64, message string) Event {
	payload := map[string]interface{}{"id": itemID, "progress": progress}
	if speedBytes > 0 {
		payload["speed_bytes"] = speedBytes
	}
	if etaSeconds > 0 {
		payload["eta_seconds"] = etaSeconds
	}
	if message != "" {
		payload["message"] = message
	}
	return newEvent(NameDownloadProgress, itemID, payload)
}

// NewDownloadCompleted builds download:completed {id}.
func NewDownloadCompleted(itemID int64) Event {
	return newEvent(NameDownloadComplete, itemID, map[string]interface{}{"id": itemID})
}

// NewDownloadFailed builds download:failed {id, error}.
func NewDownloadFailed(itemID int64, errMsg string) Event {
	return newEvent(NameDownloadFailed, itemID, map[string]interface{}{"id": itemID, "error": errMsg})
}

// NewDownloadCancelled builds download:cancelled {id}.
func NewDownloadCancelled(itemID int64) Event {
	return newEvent(NameDownloadCanceled, itemID, map[string]interface{}{"id": itemID})
}

// NewDownloadPaused builds download:paused {id}.
func NewDownloadPaused(itemID int64) Event {
	return newEvent(NameDownloadPaused, itemID, map[string]interface{}{"id": itemID})
}

// NewDownloadResumed builds download:resumed {id}.
func NewDownloadResumed(itemID int64) Event {
	return newEvent(NameDownloadResumed, itemID, map[string]interface{}{"id": itemID})
}

// NewStateChanged builds state:changed {id, old, new}.
func NewStateChanged(itemID int64, oldStatus, newStatus string) Event {
	return newEvent(NameStateChanged, itemID, map[string]interface{}{"id": itemID, "old": oldStatus, "new": newStatus})
}

// NewQueueUpdated builds queue:updated {}.
func NewQueueUpdated() Event {
	return newEvent(NameQueueUpdated, 0, nil)
}

// ToJSON serializes an event for transport over the websocket fanout.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
