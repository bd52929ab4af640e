package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vaultshelf/orchestrator/internal/download"
	"github.com/vaultshelf/orchestrator/internal/events"
	"github.com/vaultshelf/orchestrator/internal/logging"
	"github.com/vaultshelf/orchestrator/internal/queue"
	"github.com/vaultshelf/orchestrator/internal/retry"
	"github.com/vaultshelf/orchestrator/internal/search"
	"github.com/vaultshelf/orchestrator/internal/statemachine"
)

type fakeSearch struct {
	results []search.Candidate
	err     error
}

func (f *fakeSearch) Search(ctx context.Context, title, author, catalogID string) ([]search.Candidate, error) {
	return f.results, f.err
}

type fakeAdapter struct {
	name       string
	caps       download.Capabilities
	addID      string
	addErr     error
	snapshot   *download.Snapshot
	statusErr  error
	seedingOK  bool
	removeErrs []error
}

func (f *fakeAdapter) Name() string                          { return f.name }
func (f *fakeAdapter) Capabilities() download.Capabilities    { return f.caps }
func (f *fakeAdapter) Add(ctx context.Context, payload []byte, savePath, category string, paused bool, expectedHash string) (string, error) {
	return f.addID, f.addErr
}
func (f *fakeAdapter) Status(ctx context.Context, assignedID string) (*download.Snapshot, error) {
	return f.snapshot, f.statusErr
}
func (f *fakeAdapter) List(ctx context.Context) ([]download.ListedDownload, error) { return nil, nil }
func (f *fakeAdapter) Pause(ctx context.Context, assignedID string) error         { return nil }
func (f *fakeAdapter) Resume(ctx context.Context, assignedID string) error        { return nil }
func (f *fakeAdapter) Remove(ctx context.Context, assignedID string, deleteFiles bool) error {
	return nil
}
func (f *fakeAdapter) SetLocation(ctx context.Context, assignedID, savePath string) error { return nil }
func (f *fakeAdapter) IsSeedingComplete(snapshot download.Snapshot) bool                  { return f.seedingOK }

type fakeSink struct{ emitted []events.Event }

func (f *fakeSink) Emit(e events.Event) { f.emitted = append(f.emitted, e) }

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	l, err := logging.New(logging.Config{ToStdout: false}, logging.ComponentOrchestrator)
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	return l
}

func newTestOrchestrator(t *testing.T, store queue.Store, s search.Adapter, adapters []download.Adapter) (*Orchestrator, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	deps := Deps{
		Store:    store,
		Search:   s,
		Adapters: adapters,
		Retry:    retry.New(nil, 10),
		Events:   sink,
		Clock:    time.Now,
		Log:      testLogger(t),
	}
	return New(deps, Settings{
		PollingInterval:        time.Second,
		MaxActiveSearches:      2,
		MaxConcurrentDownloads: 2,
		MinSearchConfidence:    85,
	}), sink
}

func TestDispatchSearchSuccessMovesToFound(t *testing.T) {
	store := queue.NewMemoryStore()
	id, err := store.Enqueue(context.Background(), "cat-1", 0, queue.KindTorrent, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	item, _ := store.Get(context.Background(), id)

	s := &fakeSearch{results: []search.Candidate{{SourceURL: "magnet:?xt=1", ConfidenceScore: 90}}}
	o, sink := newTestOrchestrator(t, store, s, nil)

	o.dispatchSearch(context.Background(), item)

	got, _ := store.Get(context.Background(), id)
	if got.Status != statemachine.Found {
		t.Fatalf("expected FOUND, got %s", got.Status)
	}
	if got.SourceURL != "magnet:?xt=1" {
		t.Errorf("expected source URL recorded, got %q", got.SourceURL)
	}
	if len(sink.emitted) == 0 {
		t.Error("expected at least one event emitted")
	}
}

func TestDispatchSearchExhaustsRetryBudget(t *testing.T) {
	store := queue.NewMemoryStore()
	id, _ := store.Enqueue(context.Background(), "cat-2", 0, queue.KindTorrent, "", nil)

	s := &fakeSearch{err: errors.New("indexer unreachable")}
	o, _ := newTestOrchestrator(t, store, s, nil)

	for i := 0; i < 4; i++ {
		item, _ := store.Get(context.Background(), id)
		o.dispatchSearch(context.Background(), item)
	}

	final, _ := store.Get(context.Background(), id)
	if final.Status != statemachine.SearchFailed {
		t.Fatalf("expected permanent SEARCH_FAILED, got %s", final.Status)
	}
	if final.RetryCount != 3 {
		t.Errorf("expected retry count at budget (3), got %d", final.RetryCount)
	}
}

func TestDispatchDownloadStartsAdapterAndRecordsClient(t *testing.T) {
	store := queue.NewMemoryStore()
	id, _ := store.Enqueue(context.Background(), "cat-3", 0, queue.KindMagnet, "", nil)
	store.Update(context.Background(), id, queue.Fields{
		Status:    statusPtr(statemachine.Searching),
	})
	store.Update(context.Background(), id, queue.Fields{
		Status:    statusPtr(statemachine.Found),
		SourceURL: strPtr("magnet:?xt=abc"),
	})
	item, _ := store.Get(context.Background(), id)

	adapter := &fakeAdapter{name: "torrent", caps: download.Capabilities{AcceptsMagnet: true}, addID: "assigned-1"}
	o, sink := newTestOrchestrator(t, store, nil, []download.Adapter{adapter})

	o.dispatchDownload(context.Background(), item)

	got, _ := store.Get(context.Background(), id)
	if got.Status != statemachine.Downloading {
		t.Fatalf("expected DOWNLOADING, got %s", got.Status)
	}
	if got.ClientName != "torrent" || got.ClientID != "assigned-1" {
		t.Errorf("expected client assignment recorded, got %q/%q", got.ClientName, got.ClientID)
	}
	if len(sink.emitted) == 0 {
		t.Error("expected download:started event")
	}
}

func TestAdvanceDownloadingCompletesAtFullProgress(t *testing.T) {
	store := queue.NewMemoryStore()
	id, _ := store.Enqueue(context.Background(), "cat-4", 0, queue.KindMagnet, "", nil)
	store.Update(context.Background(), id, queue.Fields{Status: statusPtr(statemachine.Searching)})
	store.Update(context.Background(), id, queue.Fields{Status: statusPtr(statemachine.Found)})
	store.Update(context.Background(), id, queue.Fields{Status: statusPtr(statemachine.Downloading), ClientName: strPtr("torrent"), ClientID: strPtr("x")})
	item, _ := store.Get(context.Background(), id)

	adapter := &fakeAdapter{name: "torrent", snapshot: &download.Snapshot{State: "downloading", Progress: 100.0, SavePath: "/tmp/book.m4b"}}
	o, _ := newTestOrchestrator(t, store, nil, []download.Adapter{adapter})

	o.advanceDownloading(context.Background(), item, adapter, adapter.snapshot)

	got, _ := store.Get(context.Background(), id)
	if got.Status != statemachine.Complete {
		t.Fatalf("expected COMPLETE, got %s", got.Status)
	}
	if got.TempPath != "/tmp/book.m4b" {
		t.Errorf("expected temp path recorded, got %q", got.TempPath)
	}
}

func TestCancelRejectedFromImported(t *testing.T) {
	store := queue.NewMemoryStore()
	id, _ := store.Enqueue(context.Background(), "cat-5", 0, queue.KindCatalog, "", nil)
	for _, s := range []statemachine.Status{statemachine.AudibleDownloading, statemachine.Complete, statemachine.Importing, statemachine.Imported} {
		store.Update(context.Background(), id, queue.Fields{Status: statusPtr(s)})
	}

	o, _ := newTestOrchestrator(t, store, nil, nil)
	if err := o.Cancel(context.Background(), id); !errors.Is(err, ErrCancelNotAllowed) {
		t.Fatalf("expected ErrCancelNotAllowed, got %v", err)
	}
}

func TestCancelAllowedFromDownloading(t *testing.T) {
	store := queue.NewMemoryStore()
	id, _ := store.Enqueue(context.Background(), "cat-6", 0, queue.KindMagnet, "", nil)
	for _, s := range []statemachine.Status{statemachine.Searching, statemachine.Found, statemachine.Downloading} {
		store.Update(context.Background(), id, queue.Fields{Status: statusPtr(s)})
	}
	store.Update(context.Background(), id, queue.Fields{ClientName: strPtr("torrent"), ClientID: strPtr("x")})

	adapter := &fakeAdapter{name: "torrent"}
	o, _ := newTestOrchestrator(t, store, nil, []download.Adapter{adapter})

	if err := o.Cancel(context.Background(), id); err != nil {
		t.Fatalf("expected cancellation to succeed, got %v", err)
	}
	got, _ := store.Get(context.Background(), id)
	if got.Status != statemachine.Cancelled {
		t.Fatalf("expected CANCELLED, got %s", got.Status)
	}
}

func statusPtr(s statemachine.Status) *statemachine.Status { return &s }
func strPtr(s string) *string                              { return &s }
