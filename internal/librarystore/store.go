// Package librarystore looks up book metadata and ownership state for a
// catalog identifier from the external library system: title, author,
// purchase date, and sync status. It is the one place CatalogID gets
// resolved into the rest of what a search, an import, or an ownership
// check needs.
package librarystore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vaultshelf/orchestrator/internal/logging"
)

// Entry is the subset of a library record the orchestrator needs.
type Entry struct {
	CatalogID    string
	Title        string
	Author       string
	PurchaseDate *time.Time
	SyncStatus   string
	SourceTags   []string
}

// Store resolves a catalog identifier against the external library.
type Store interface {
	Lookup(ctx context.Context, catalogID string) (Entry, error)
}

// HTTPStore is the default Store: it reads entries from the same catalog
// provider API internal/catalogworker.HTTPDownloader fetches audio from.
type HTTPStore struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	log        *logging.Logger
}

// NewHTTPStore builds an HTTPStore against baseURL using a bearer
// authToken for every request.
func NewHTTPStore(baseURL, authToken string, timeout time.Duration, log *logging.Logger) *HTTPStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPStore{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type entryPayload struct {
	Title        string     `json:"title"`
	Author       string     `json:"author"`
	PurchaseDate *time.Time `json:"purchase_date"`
	SyncStatus   string     `json:"sync_status"`
	SourceTags   []string   `json:"source_tags"`
}

// Lookup fetches catalogID's library record.
func (s *HTTPStore) Lookup(ctx context.Context, catalogID string) (Entry, error) {
	url := fmt.Sprintf("%s/catalog/%s", s.baseURL, catalogID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("librarystore: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.authToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Entry{}, fmt.Errorf("librarystore: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Entry{}, fmt.Errorf("librarystore: provider returned status %d", resp.StatusCode)
	}

	var payload entryPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Entry{}, fmt.Errorf("librarystore: decode response: %w", err)
	}

	return Entry{
		CatalogID:    catalogID,
		Title:        payload.Title,
		Author:       payload.Author,
		PurchaseDate: payload.PurchaseDate,
		SyncStatus:   payload.SyncStatus,
		SourceTags:   payload.SourceTags,
	}, nil
}
