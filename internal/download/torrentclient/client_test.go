package torrentclient

import (
	"testing"

	"github.com/vaultshelf/orchestrator/internal/download"
)

func ratioLimit(v float64) *float64 { return &v }
func timeLimit(v int64) *int64      { return &v }

func TestIsSeedingCompleteRatioLimit(t *testing.T) {
	c := &Client{}
	snap := download.Snapshot{Ratio: 2.5, SeedRatioLimit: ratioLimit(2.0)}
	if !c.IsSeedingComplete(snap) {
		t.Error("expected seeding complete once ratio crosses the limit")
	}
}

func TestIsSeedingCompleteTimeLimit(t *testing.T) {
	c := &Client{}
	snap := download.Snapshot{SeedingTimeSeconds: 7200, SeedTimeLimitSecs: timeLimit(3600)}
	if !c.IsSeedingComplete(snap) {
		t.Error("expected seeding complete once seeding time crosses the limit")
	}
}

func TestIsSeedingCompleteNoLimitsConfigured(t *testing.T) {
	c := &Client{}
	snap := download.Snapshot{Ratio: 100, SeedingTimeSeconds: 1_000_000}
	if c.IsSeedingComplete(snap) {
		t.Error("expected never-complete when no ratio or time limit is set")
	}
}

func TestIsSeedingCompleteBelowBothLimits(t *testing.T) {
	c := &Client{}
	snap := download.Snapshot{
		Ratio:              0.5,
		SeedRatioLimit:     ratioLimit(2.0),
		SeedingTimeSeconds: 100,
		SeedTimeLimitSecs:  timeLimit(3600),
	}
	if c.IsSeedingComplete(snap) {
		t.Error("expected not complete while below both limits")
	}
}
