// Package queue owns the persistent QueueItem entity and the QueueStore
// that enforces its invariants. No other package may mutate a QueueItem's
// stored fields directly — the orchestrator goes through this store.
package queue

import (
	"time"

	"github.com/vaultshelf/orchestrator/internal/statemachine"
)

// Kind selects which worker path an item takes through the pipeline.
type Kind string

const (
	KindTorrent Kind = "torrent"
	KindMagnet  Kind = "magnet"
	KindCatalog Kind = "catalog"
)

// Item is the central persistent entity. Every field here is one the
// orchestrator reads or writes across the lifetime of a download.
type Item struct {
	ID        int64
	CatalogID string
	// CorrelationID is an opaque identifier external callers can use to
	// trace a single enqueue request across log lines and emitted events,
	// independent of the store-assigned ID.
	CorrelationID string

	Status   statemachine.Status
	Priority int
	Kind     Kind

	PreSelectedSource string
	SourceURL         string
	SourceInfoHash    string

	ClientName string
	ClientID   string

	TempPath      string
	VoucherPath   string
	ConvertedPath string
	FinalPath     string
	Format        string

	Progress     *float64
	RetryCount   int
	NextRetryAt  *time.Time
	LastError    string

	QueuedAt    time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time

	SeedingRatio       *float64
	SeedingTimeSeconds *int64
}

// activeStatuses are the statuses considered "in progress" for a given
// catalog id — everything except the terminal sinks and the permanent
// failure states.
var activeStatuses = map[statemachine.Status]bool{
	statemachine.Queued:                 true,
	statemachine.Searching:              true,
	statemachine.Found:                  true,
	statemachine.Downloading:            true,
	statemachine.AudibleDownloading:     true,
	statemachine.Paused:                 true,
	statemachine.Complete:               true,
	statemachine.Converting:             true,
	statemachine.Converted:              true,
	statemachine.Importing:              true,
	statemachine.Seeding:                true,
}

// IsActive reports whether status counts toward the one-active-item-per-
// catalog-id constraint.
func IsActive(s statemachine.Status) bool {
	return activeStatuses[s]
}
