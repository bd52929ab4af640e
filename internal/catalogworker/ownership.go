package catalogworker

import (
	"strings"

	"github.com/vaultshelf/orchestrator/internal/librarystore"
)

// unverifiedSyncStatuses are sync states that mean the account's library
// cache has not confirmed this entry against the catalog provider yet.
var unverifiedSyncStatuses = map[string]bool{
	"pending": true,
	"unknown": true,
	"error":   true,
	"":        true,
}

// borrowedTagHints mark entries that are on loan rather than owned outright
// (library exchange programs, time-limited promotional access).
var borrowedTagHints = []string{"borrowed", "loaner", "trial", "expired"}

// OwnershipResult is the outcome of assessing a librarystore.Entry.
type OwnershipResult struct {
	Owned  bool
	Reason string
}

// AssessOwnership decides whether entry represents a confirmed, permanent
// purchase. A missing purchase date, an unverified sync status, or a tag
// hinting at borrowed/trial access all disqualify it; the queue item should
// fail permanently rather than retry, since none of these resolve with time.
func AssessOwnership(entry librarystore.Entry) OwnershipResult {
	if entry.PurchaseDate == nil {
		return OwnershipResult{Owned: false, Reason: "no purchase date on file"}
	}
	if unverifiedSyncStatuses[strings.ToLower(entry.SyncStatus)] {
		return OwnershipResult{Owned: false, Reason: "library sync has not confirmed this entry"}
	}
	for _, tag := range entry.SourceTags {
		normalized := strings.ToLower(strings.TrimSpace(tag))
		for _, hint := range borrowedTagHints {
			if normalized == hint {
				return OwnershipResult{Owned: false, Reason: "entry is tagged as " + hint + ", not an outright purchase"}
			}
		}
	}
	return OwnershipResult{Owned: true}
}
