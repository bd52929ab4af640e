package events

import (
	"encoding/json"
	"testing"
)

func TestNewDownloadProgressOmitsZeroOptionalFields(t *testing.T) {
	e := NewDownloadProgress(7, 42.5, 0, 0, "")
	if e.Payload["speed_bytes"] != nil || e.Payload["eta_seconds"] != nil || e.Payload["message"] != nil {
		t.Errorf("expected zero-value optional fields omitted, got %+v", e.Payload)
	}
	if e.Payload["progress"] != 42.5 || e.Payload["id"] != int64(7) {
		t.Errorf("unexpected required fields: %+v", e.Payload)
	}
}

func TestNewStateChangedPayload(t *testing.T) {
	e := NewStateChanged(3, "QUEUED", "SEARCHING")
	if e.Name != NameStateChanged {
		t.Errorf("expected state:changed, got %s", e.Name)
	}
	if e.Payload["old"] != "QUEUED" || e.Payload["new"] != "SEARCHING" {
		t.Errorf("unexpected payload: %+v", e.Payload)
	}
}

func TestNewEventAssignsUniqueID(t *testing.T) {
	a := NewDownloadStarted(1)
	b := NewDownloadStarted(1)
	if a.ID == "" {
		t.Fatal("expected a non-empty event ID")
	}
	if a.ID == b.ID {
		t.Fatal("expected distinct IDs across events")
	}
}

func TestToJSONRoundTrips(t *testing.T) {
	e := NewQueueItemAdded(1, "cat-1")
	data, err := e.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Name != NameQueueItemAdded {
		t.Errorf("expected name to round-trip, got %s", decoded.Name)
	}
}
