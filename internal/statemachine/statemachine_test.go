package statemachine

import "testing"

func TestAllowed(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{Queued, Searching, true},
		{Queued, AudibleDownloading, true},
		{Queued, AudibleDownloadFailed, true},
		{Queued, Downloading, false},
		{Searching, Found, true},
		{Found, Downloading, true},
		{Downloading, Complete, true},
		{Downloading, Converting, false},
		{Complete, Converting, true},
		{Complete, Importing, true},
		{Converted, Importing, true},
		{Importing, Imported, true},
		{Imported, Seeding, true},
		{Imported, Cancelled, false},
		{Seeding, SeedingComplete, true},
		{SearchFailed, Searching, true},
		{DownloadFailed, Found, true},
		{AudibleDownloadFailed, Queued, true},
		{AudibleDownloadFailed, AudibleDownloading, true},
		{Cancelled, Queued, false},
		{SeedingComplete, Importing, false},
	}

	for _, c := range cases {
		if got := Allowed(c.from, c.to); got != c.want {
			t.Errorf("Allowed(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []Status{Imported, SeedingComplete, Cancelled} {
		if !IsTerminal(s) {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []Status{Queued, Downloading, SearchFailed} {
		if IsTerminal(s) {
			t.Errorf("expected %s to not be terminal", s)
		}
	}
}

func TestStampsAndResets(t *testing.T) {
	if !StampsStartedAt(Downloading) || !StampsStartedAt(AudibleDownloading) {
		t.Error("expected downloading states to stamp started_at")
	}
	if StampsStartedAt(Searching) {
		t.Error("did not expect Searching to stamp started_at")
	}
	if !StampsCompletedAt(Complete) || !StampsCompletedAt(Imported) {
		t.Error("expected Complete/Imported to stamp completed_at")
	}
	if !ResetsProgress(Queued) || !ResetsProgress(Found) {
		t.Error("expected Queued/Found to reset progress")
	}
	if ResetsProgress(Downloading) {
		t.Error("did not expect Downloading to reset progress")
	}
}
