// Package retry implements the per-failure-kind retry budgets and backoff
// for the download pipeline. It never touches storage directly — callers
// apply the returned Outcome to the queue store.
package retry

import (
	"time"

	"github.com/vaultshelf/orchestrator/internal/statemachine"
)

// Budgets maps a failure kind to its retry budget.
type Budgets map[statemachine.FailureKind]int

// DefaultBudgets returns the pipeline's built-in budgets: three attempts
// for a failed search, two for a failed torrent download, two for a failed
// catalog download, one for a failed conversion, two for a failed import.
func DefaultBudgets() Budgets {
	return Budgets{
		statemachine.FailureSearch:          3,
		statemachine.FailureDownload:        2,
		statemachine.FailureAudibleDownload: 2,
		statemachine.FailureConversion:      1,
		statemachine.FailureImport:          2,
	}
}

// retryTarget is the Status a retryable failure is sent back to.
var retryTarget = map[statemachine.FailureKind]statemachine.Status{
	statemachine.FailureSearch:          statemachine.Searching,
	statemachine.FailureDownload:        statemachine.Found,
	statemachine.FailureAudibleDownload: statemachine.Queued,
	statemachine.FailureConversion:      statemachine.Converting,
	statemachine.FailureImport:          statemachine.Importing,
}

// minDownloadBackoffSeconds floors the configurable torrent-download retry
// backoff. Every other retryable failure is immediately eligible.
const minDownloadBackoffSeconds = 10

// Policy decides, for a given failure, whether an item should be retried
// and where, or whether it has exhausted its budget and must become
// permanently failed.
type Policy struct {
	budgets               Budgets
	downloadBackoffSeconds int
}

// New constructs a Policy. downloadBackoffSeconds is clamped to a 10s
// floor. A nil/empty budgets map falls back to DefaultBudgets.
func New(budgets Budgets, downloadBackoffSeconds int) *Policy {
	if len(budgets) == 0 {
		budgets = DefaultBudgets()
	}
	if downloadBackoffSeconds < minDownloadBackoffSeconds {
		downloadBackoffSeconds = minDownloadBackoffSeconds
	}
	return &Policy{budgets: budgets, downloadBackoffSeconds: downloadBackoffSeconds}
}

// Outcome is the decision returned by HandleFailure.
type Outcome struct {
	// Retry is true when the item should be sent back into the pipeline.
	Retry bool
	// TargetStatus is the Status to transition to. When Retry is false this
	// is the failure kind's own permanent terminal status.
	TargetStatus statemachine.Status
	// NextRetryAt is non-zero only for DOWNLOAD_FAILED retries (the only
	// failure kind with a scheduled backoff).
	NextRetryAt time.Time
	// RetryCount is the retry_count value the caller should persist.
	RetryCount int
}

// HandleFailure decides whether a failed item gets another attempt.
// currentRetryCount is the item's retry_count before this failure; now is
// injected for testability.
func (p *Policy) HandleFailure(kind statemachine.FailureKind, currentRetryCount int, now time.Time) Outcome {
	budget := p.budgets[kind]
	if currentRetryCount >= budget {
		return Outcome{
			Retry:        false,
			TargetStatus: kind.FailureStatus(),
			RetryCount:   currentRetryCount,
		}
	}

	out := Outcome{
		Retry:        true,
		TargetStatus: retryTarget[kind],
		RetryCount:   currentRetryCount + 1,
	}
	if kind == statemachine.FailureDownload {
		out.NextRetryAt = now.Add(time.Duration(p.downloadBackoffSeconds) * time.Second)
	}
	return out
}
