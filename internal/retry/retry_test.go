package retry

import (
	"testing"
	"time"

	"github.com/vaultshelf/orchestrator/internal/statemachine"
)

func TestHandleFailureRetriesWithinBudget(t *testing.T) {
	p := New(nil, 10)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		kind           statemachine.FailureKind
		retryCount     int
		wantRetry      bool
		wantStatus     statemachine.Status
		wantRetryCount int
	}{
		{statemachine.FailureSearch, 0, true, statemachine.Searching, 1},
		{statemachine.FailureSearch, 2, true, statemachine.Searching, 3},
		{statemachine.FailureSearch, 3, false, statemachine.SearchFailed, 3},
		{statemachine.FailureDownload, 0, true, statemachine.Found, 1},
		{statemachine.FailureDownload, 1, true, statemachine.Found, 2},
		{statemachine.FailureDownload, 2, false, statemachine.DownloadFailed, 2},
		{statemachine.FailureAudibleDownload, 1, true, statemachine.Queued, 2},
		{statemachine.FailureAudibleDownload, 2, false, statemachine.AudibleDownloadFailed, 2},
		{statemachine.FailureConversion, 0, true, statemachine.Converting, 1},
		{statemachine.FailureConversion, 1, false, statemachine.ConversionFailed, 1},
		{statemachine.FailureImport, 1, true, statemachine.Importing, 2},
		{statemachine.FailureImport, 2, false, statemachine.ImportFailed, 2},
	}

	for _, c := range cases {
		out := p.HandleFailure(c.kind, c.retryCount, now)
		if out.Retry != c.wantRetry {
			t.Errorf("%s retryCount=%d: Retry = %v, want %v", c.kind, c.retryCount, out.Retry, c.wantRetry)
		}
		if out.TargetStatus != c.wantStatus {
			t.Errorf("%s retryCount=%d: TargetStatus = %s, want %s", c.kind, c.retryCount, out.TargetStatus, c.wantStatus)
		}
		if out.RetryCount != c.wantRetryCount {
			t.Errorf("%s retryCount=%d: RetryCount = %d, want %d", c.kind, c.retryCount, out.RetryCount, c.wantRetryCount)
		}
	}
}

func TestHandleFailureBackoffOnlyForDownload(t *testing.T) {
	p := New(nil, 30)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	out := p.HandleFailure(statemachine.FailureDownload, 0, now)
	if !out.Retry {
		t.Fatal("expected retry")
	}
	want := now.Add(30 * time.Second)
	if !out.NextRetryAt.Equal(want) {
		t.Errorf("NextRetryAt = %v, want %v", out.NextRetryAt, want)
	}

	out = p.HandleFailure(statemachine.FailureSearch, 0, now)
	if !out.NextRetryAt.IsZero() {
		t.Errorf("expected zero NextRetryAt for search retry, got %v", out.NextRetryAt)
	}
}

func TestNewClampsBackoffFloor(t *testing.T) {
	p := New(nil, 2)
	if p.downloadBackoffSeconds != minDownloadBackoffSeconds {
		t.Errorf("downloadBackoffSeconds = %d, want %d", p.downloadBackoffSeconds, minDownloadBackoffSeconds)
	}
}

func TestNewFallsBackToDefaultBudgets(t *testing.T) {
	p := New(nil, 10)
	defaults := DefaultBudgets()
	for kind, want := range defaults {
		if got := p.budgets[kind]; got != want {
			t.Errorf("budget[%s] = %d, want %d", kind, got, want)
		}
	}
}

func TestCustomBudgetsOverrideDefaults(t *testing.T) {
	p := New(Budgets{statemachine.FailureSearch: 5}, 10)
	now := time.Now()
	out := p.HandleFailure(statemachine.FailureSearch, 4, now)
	if !out.Retry {
		t.Error("expected retry with widened budget")
	}
	out = p.HandleFailure(statemachine.FailureSearch, 5, now)
	if out.Retry {
		t.Error("expected exhaustion at widened budget")
	}
}
