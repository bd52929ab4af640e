package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaultshelf/orchestrator/internal/statemachine"
)

// MemoryStore is an in-process Store implementation used by orchestrator
// and adapter tests. It enforces the same invariants as PostgresStore.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*Item
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[int64]*Item)}
}

func (s *MemoryStore) Enqueue(_ context.Context, catalogID string, priority int, kind Kind, preSelectedSource string, _ map[string]string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if existing.CatalogID == catalogID && IsActive(existing.Status) {
			return 0, &ErrConflict{CatalogID: catalogID}
		}
	}

	s.nextID++
	id := s.nextID
	now := time.Now()
	s.items[id] = &Item{
		ID:                id,
		CatalogID:         catalogID,
		CorrelationID:     uuid.NewString(),
		Status:            statemachine.Queued,
		Priority:          priority,
		Kind:              kind,
		PreSelectedSource: preSelectedSource,
		QueuedAt:          now,
		UpdatedAt:         now,
	}
	return id, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, &ErrNotFound{ID: id}
	}
	cp := *item
	return &cp, nil
}

func (s *MemoryStore) GetActiveByCatalog(_ context.Context, catalogID string) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.CatalogID == catalogID && IsActive(item.Status) {
			cp := *item
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) List(_ context.Context, status statemachine.Status, limit, offset int) ([]*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Item
	for _, item := range s.items {
		if status != "" && item.Status != status {
			continue
		}
		cp := *item
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].QueuedAt.Before(out[j].QueuedAt)
	})

	if offset > len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, id int64, f Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}

	if f.Progress != nil && !f.ProgressNull {
		downloading := item.Status == statemachine.Downloading || item.Status == statemachine.AudibleDownloading
		if downloading && item.Progress != nil && *f.Progress < *item.Progress {
			return ErrProgressRegression
		}
	}

	if f.Status != nil {
		item.Status = *f.Status
	}
	if f.ClientName != nil {
		item.ClientName = *f.ClientName
	}
	if f.ClientID != nil {
		item.ClientID = *f.ClientID
	}
	if f.SourceURL != nil {
		item.SourceURL = *f.SourceURL
	}
	if f.SourceInfoHash != nil {
		item.SourceInfoHash = *f.SourceInfoHash
	}
	if f.TempPath != nil {
		item.TempPath = *f.TempPath
	}
	if f.VoucherPath != nil {
		item.VoucherPath = *f.VoucherPath
	}
	if f.ConvertedPath != nil {
		item.ConvertedPath = *f.ConvertedPath
	}
	if f.FinalPath != nil {
		item.FinalPath = *f.FinalPath
	}
	if f.Format != nil {
		item.Format = *f.Format
	}
	if f.ProgressNull {
		item.Progress = nil
	} else if f.Progress != nil {
		v := *f.Progress
		item.Progress = &v
	}
	if f.RetryCount != nil {
		item.RetryCount = *f.RetryCount
	}
	if f.ClearNextRetryAt {
		item.NextRetryAt = nil
	} else if f.NextRetryAt != nil {
		t := *f.NextRetryAt
		item.NextRetryAt = &t
	}
	if f.LastError != nil {
		item.LastError = *f.LastError
	}
	if f.StartedAt != nil {
		t := *f.StartedAt
		item.StartedAt = &t
	}
	if f.CompletedAt != nil {
		t := *f.CompletedAt
		item.CompletedAt = &t
	}
	if f.SeedingRatio != nil {
		v := *f.SeedingRatio
		item.SeedingRatio = &v
	}
	if f.SeedingTimeSeconds != nil {
		v := *f.SeedingTimeSeconds
		item.SeedingTimeSeconds = &v
	}
	item.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) Statistics(_ context.Context) (map[statemachine.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[statemachine.Status]int)
	for _, item := range s.items {
		out[item.Status]++
	}
	return out, nil
}
