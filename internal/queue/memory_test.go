package queue

import (
	"context"
	"testing"

	"github.com/vaultshelf/orchestrator/internal/statemachine"
)

func TestEnqueueRejectsDuplicateActiveCatalogID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Enqueue(ctx, "book-1", 5, KindTorrent, "", nil); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if _, err := s.Enqueue(ctx, "book-1", 5, KindTorrent, "", nil); err == nil {
		t.Fatal("expected conflict on second enqueue for same catalog id")
	}
}

func TestEnqueueAllowsReQueueAfterTerminal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id, err := s.Enqueue(ctx, "book-1", 5, KindTorrent, "", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	cancelled := statemachine.Cancelled
	if err := s.Update(ctx, id, Fields{Status: &cancelled}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.Enqueue(ctx, "book-1", 5, KindTorrent, "", nil); err != nil {
		t.Fatalf("expected re-enqueue to succeed after terminal deletion: %v", err)
	}
}

func TestUpdateRejectsProgressRegressionWhileDownloading(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id, _ := s.Enqueue(ctx, "book-1", 5, KindTorrent, "", nil)
	downloading := statemachine.Downloading
	p50 := 50.0
	if err := s.Update(ctx, id, Fields{Status: &downloading, Progress: &p50}); err != nil {
		t.Fatalf("update to 50: %v", err)
	}

	p30 := 30.0
	if err := s.Update(ctx, id, Fields{Progress: &p30}); err == nil {
		t.Fatal("expected progress regression to be rejected")
	}

	p75 := 75.0
	if err := s.Update(ctx, id, Fields{Progress: &p75}); err != nil {
		t.Fatalf("update to 75 should succeed: %v", err)
	}
}

func TestUpdateResetsProgressOnReentry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id, _ := s.Enqueue(ctx, "book-1", 5, KindTorrent, "", nil)
	downloading := statemachine.Downloading
	p50 := 50.0
	_ = s.Update(ctx, id, Fields{Status: &downloading, Progress: &p50})

	found := statemachine.Found
	if err := s.Update(ctx, id, Fields{Status: &found, ProgressNull: true}); err != nil {
		t.Fatalf("update: %v", err)
	}

	item, _ := s.Get(ctx, id)
	if item.Progress != nil {
		t.Errorf("expected progress to be reset to nil, got %v", *item.Progress)
	}
}

func TestListOrdersByPriorityThenQueuedAt(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, _ = s.Enqueue(ctx, "book-low", 1, KindTorrent, "", nil)
	_, _ = s.Enqueue(ctx, "book-high", 9, KindTorrent, "", nil)
	_, _ = s.Enqueue(ctx, "book-mid", 5, KindTorrent, "", nil)

	items, err := s.List(ctx, statemachine.Queued, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].CatalogID != "book-high" || items[1].CatalogID != "book-mid" || items[2].CatalogID != "book-low" {
		t.Errorf("unexpected order: %s, %s, %s", items[0].CatalogID, items[1].CatalogID, items[2].CatalogID)
	}
}

func TestStatistics(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, _ = s.Enqueue(ctx, "book-1", 5, KindTorrent, "", nil)
	_, _ = s.Enqueue(ctx, "book-2", 5, KindTorrent, "", nil)

	stats, err := s.Statistics(ctx)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats[statemachine.Queued] != 2 {
		t.Errorf("expected 2 queued items, got %d", stats[statemachine.Queued])
	}
}
