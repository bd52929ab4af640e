// Package statemachine owns the pipeline's transition table. It is a pure
// function over (current, requested) state pairs — it never touches the
// queue store or any adapter.
package statemachine

// Status is a queue item's position in the download pipeline.
type Status string

const (
	Queued                 Status = "QUEUED"
	Searching              Status = "SEARCHING"
	Found                  Status = "FOUND"
	Downloading            Status = "DOWNLOADING"
	AudibleDownloading     Status = "AUDIBLE_DOWNLOADING"
	Paused                 Status = "PAUSED"
	Complete               Status = "COMPLETE"
	Converting             Status = "CONVERTING"
	Converted              Status = "CONVERTED"
	Importing              Status = "IMPORTING"
	Imported               Status = "IMPORTED"
	Seeding                Status = "SEEDING"
	SeedingComplete        Status = "SEEDING_COMPLETE"
	SearchFailed           Status = "SEARCH_FAILED"
	DownloadFailed         Status = "DOWNLOAD_FAILED"
	AudibleDownloadFailed  Status = "AUDIBLE_DOWNLOAD_FAILED"
	ConversionFailed       Status = "CONVERSION_FAILED"
	ImportFailed           Status = "IMPORT_FAILED"
	Cancelled              Status = "CANCELLED"
)

// allowedTransitions is the pipeline's transition graph. Any pair not
// present here is rejected with no side effect.
var allowedTransitions = map[Status]map[Status]bool{
	Queued: {
		Searching:             true,
		Found:                 true,
		AudibleDownloading:    true,
		AudibleDownloadFailed: true,
		Cancelled:             true,
	},
	Searching: {
		Found:        true,
		SearchFailed: true,
		Cancelled:    true,
	},
	Found: {
		Downloading: true,
		Cancelled:   true,
	},
	Downloading: {
		Complete:       true,
		DownloadFailed: true,
		Paused:         true,
		Cancelled:      true,
	},
	AudibleDownloading: {
		Complete:              true,
		AudibleDownloadFailed: true,
		Cancelled:             true,
	},
	Paused: {
		Downloading: true,
		Cancelled:   true,
	},
	Complete: {
		Converting: true,
		Importing:  true,
		Cancelled:  true,
	},
	Converting: {
		Converted:        true,
		ConversionFailed: true,
		Cancelled:        true,
	},
	Converted: {
		Importing: true,
		Cancelled: true,
	},
	Importing: {
		Imported:     true,
		ImportFailed: true,
		Cancelled:    true,
	},
	Imported: {
		Seeding: true,
	},
	Seeding: {
		SeedingComplete: true,
		Cancelled:       true,
	},
	SearchFailed: {
		Searching: true,
		Cancelled: true,
	},
	DownloadFailed: {
		Found:     true,
		Cancelled: true,
	},
	AudibleDownloadFailed: {
		Queued:             true,
		AudibleDownloading: true,
		Cancelled:          true,
	},
	ConversionFailed: {
		Converting: true,
		Cancelled:  true,
	},
	ImportFailed: {
		Importing: true,
		Cancelled: true,
	},
	// Terminal states: SeedingComplete and Cancelled have no outgoing edges.
}

// terminal holds the sinks of the graph: states a transition never leaves
// except by administrative delete.
var terminal = map[Status]bool{
	Imported:        true,
	SeedingComplete: true,
	Cancelled:       true,
}

// Allowed reports whether from→to is a legal transition.
func Allowed(from, to Status) bool {
	targets, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status is a sink state. Note this only covers
// the three unconditional sinks; the *_FAILED states become sinks only once
// the retry budget is exhausted, which is retry.Policy's call, not the
// state machine's.
func IsTerminal(s Status) bool {
	return terminal[s]
}

// StampsStartedAt reports whether entering `to` should stamp started_at:
// true for the two states where active transfer begins.
func StampsStartedAt(to Status) bool {
	return to == Downloading || to == AudibleDownloading
}

// StampsCompletedAt reports whether entering `to` should stamp completed_at.
func StampsCompletedAt(to Status) bool {
	return to == Complete || to == Imported
}

// ResetsProgress reports whether entering `to` should null out progress:
// true for any transition back to a pre-dispatch state.
func ResetsProgress(to Status) bool {
	return to == Queued || to == Found
}

// FailureKind classifies an observed failure so RetryPolicy knows which
// budget and retry target applies. It is distinct from Status because a
// failure kind always maps to exactly one retry target regardless of which
// Status the item currently occupies.
type FailureKind string

const (
	FailureSearch         FailureKind = "SEARCH_FAILED"
	FailureDownload       FailureKind = "DOWNLOAD_FAILED"
	FailureAudibleDownload FailureKind = "AUDIBLE_DOWNLOAD_FAILED"
	FailureConversion     FailureKind = "CONVERSION_FAILED"
	FailureImport         FailureKind = "IMPORT_FAILED"
)

// FailureStatus returns the Status that corresponds to a FailureKind's
// permanent (retry-exhausted) state. The two types share their string
// values by construction, but keeping them separate stops callers from
// passing an in-pipeline Status where only a terminal failure makes sense.
func (k FailureKind) FailureStatus() Status {
	return Status(k)
}
