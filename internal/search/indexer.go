package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/vaultshelf/orchestrator/internal/logging"
)

// IndexerAdapter queries a Newznab/Torznab-style indexer aggregator (e.g. a
// Prowlarr instance) over its HTTP search API and maps results onto
// Candidate. It is the default Adapter implementation; anything speaking
// the same aggregator API can be swapped in at construction time.
type IndexerAdapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *logging.Logger
}

// NewIndexerAdapter builds an IndexerAdapter against baseURL (the
// aggregator's API root) using apiKey for auth.
func NewIndexerAdapter(baseURL, apiKey string, timeout time.Duration, log *logging.Logger) *IndexerAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &IndexerAdapter{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type indexerResult struct {
	GUID           string   `json:"guid"`
	Title          string   `json:"title"`
	DownloadURL    string   `json:"downloadUrl"`
	InfoHash       string   `json:"infoHash"`
	Indexer        string   `json:"indexer"`
	Protocol       string   `json:"protocol"`
	Size           int64    `json:"size"`
	Seeders        int      `json:"seeders"`
	IndexerFlags   []string `json:"indexerFlags"`
	ConfirmedMatch int      `json:"matchScore"`
}

// Search issues one query against the aggregator's /search endpoint and
// maps every hit onto a Candidate. A non-200 response or malformed body is
// reported as an error, not an empty result set, so the orchestrator's
// retry policy (rather than a silent zero-candidate Select) sees it.
func (a *IndexerAdapter) Search(ctx context.Context, title, author, catalogID string) ([]Candidate, error) {
	q := url.Values{}
	if title != "" {
		q.Set("query", title)
	} else {
		q.Set("query", catalogID)
	}
	if author != "" {
		q.Set("author", author)
	}
	q.Set("category", "audiobooks")

	endpoint := fmt.Sprintf("%s/api/v1/search?%s", a.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}
	req.Header.Set("X-Api-Key", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: indexer returned status %d", resp.StatusCode)
	}

	var results []indexerResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		kind := "torrent"
		source := r.DownloadURL
		if r.Protocol == "magnet" {
			kind = "magnet"
		}
		candidates = append(candidates, Candidate{
			SourceURL:       source,
			SourceInfoHash:  r.InfoHash,
			IndexerName:     r.Indexer,
			Kind:            kind,
			SizeBytes:       r.Size,
			Seeders:         r.Seeders,
			ConfidenceScore: confidenceFor(r),
		})
	}
	return candidates, nil
}

// confidenceFor turns an aggregator's own relevance score (0-100, already
// comparable to our threshold) into a ConfidenceScore, falling back to a
// seeder-derived heuristic when the aggregator didn't supply one.
func confidenceFor(r indexerResult) int {
	if r.ConfirmedMatch > 0 {
		if r.ConfirmedMatch > 100 {
			return 100
		}
		return r.ConfirmedMatch
	}
	switch {
	case r.Seeders >= 20:
		return 90
	case r.Seeders >= 5:
		return 75
	case r.Seeders >= 1:
		return 60
	default:
		return 30
	}
}
