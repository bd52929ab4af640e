// Package search defines the SearchAdapter capability and the selection
// rule the orchestrator applies to its results. The adapter itself is an
// external collaborator — this package only shapes the contract and the
// confidence-threshold decision.
package search

import "context"

// Candidate is one indexer result for a title. It is never persisted —
// only the winning candidate's source fields get written onto a queue item.
type Candidate struct {
	SourceURL       string
	SourceInfoHash  string
	IndexerName     string
	Kind            string // "torrent" | "magnet"
	SizeBytes       int64
	Seeders         int
	ConfidenceScore int // 0-100
}

// Adapter searches external indexers for a title. Implementations must be
// side-effect-free: they never mutate queue state themselves.
type Adapter interface {
	Search(ctx context.Context, title, author, catalogID string) ([]Candidate, error)
}

// DefaultMinConfidence is the threshold below which a result is treated as
// a failed search.
const DefaultMinConfidence = 85

// Select picks the best candidate from results ranked by confidence score.
// It returns ok=false with a reason when no candidate clears minConfidence
// or the top candidate has no source URL.
func Select(results []Candidate, minConfidence int) (best Candidate, ok bool, reason string) {
	if len(results) == 0 {
		return Candidate{}, false, "no candidates returned"
	}

	top := results[0]
	for _, c := range results[1:] {
		if c.ConfidenceScore > top.ConfidenceScore {
			top = c
		}
	}

	if top.SourceURL == "" {
		return Candidate{}, false, "top candidate has no source URL"
	}
	if top.ConfidenceScore < minConfidence {
		return Candidate{}, false, "confidence below threshold"
	}
	return top, true, ""
}
